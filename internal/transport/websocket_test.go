// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spectrum/internal/errs"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSubscriber(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketPublisherBroadcasts(t *testing.T) {
	p := NewWebSocketPublisher("127.0.0.1:0", "/spectrum")
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	first := dialSubscriber(t, srv, "/spectrum")
	defer first.Close()
	second := dialSubscriber(t, srv, "/spectrum")
	defer second.Close()
	require.Eventually(t, func() bool { return p.Clients() == 2 }, 2*time.Second, time.Millisecond)

	payload := []byte("12.500000,-3.250000,0.000000,45.125000")
	require.NoError(t, p.Publish(context.Background(), payload))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.Equal(t, string(payload), string(msg))
	}

	require.NoError(t, p.Close())
	require.Eventually(t, func() bool { return p.Clients() == 0 }, 2*time.Second, time.Millisecond)
}

func TestWebSocketPublisherWithoutClients(t *testing.T) {
	p := NewWebSocketPublisher("127.0.0.1:0", "/spectrum")
	assert.NoError(t, p.Publish(context.Background(), []byte("1")))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close is idempotent")

	err := p.Publish(context.Background(), []byte("1"))
	assert.True(t, errors.Is(err, errs.ErrPublishTransient))
}

func TestWebSocketPublisherDropsDisconnectedClient(t *testing.T) {
	p := NewWebSocketPublisher("127.0.0.1:0", "/spectrum")
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	defer p.Close()

	conn := dialSubscriber(t, srv, "/spectrum")
	require.Eventually(t, func() bool { return p.Clients() == 1 }, 2*time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return p.Clients() == 0 }, 2*time.Second, time.Millisecond)
}

func TestWebSocketPublisherStart(t *testing.T) {
	p := NewWebSocketPublisher("127.0.0.1:0", "/spectrum")
	require.NoError(t, p.Start())
	require.NoError(t, p.Close())
}
