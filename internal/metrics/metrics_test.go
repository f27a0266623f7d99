// SPDX-License-Identifier: MIT
package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewRegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err, "registering a second set on the same registry should fail")
}

func TestObserveCycle(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveCycle(2*time.Millisecond, 400, 800)
	m.ObserveCycle(time.Millisecond, 800, 800)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowFill))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestObserveBins(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveBins([]float64{35.5, 7.1})
	m.ObserveBins([]float64{30, 6, 1.2})

	assert.Equal(t, 30.0, testutil.ToFloat64(m.BinLevel.WithLabelValues("0")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.BinLevel.WithLabelValues("1")))
	assert.Equal(t, 1.2, testutil.ToFloat64(m.BinLevel.WithLabelValues("2")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.BinLevel))
}

func TestPublishCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.PayloadPublished(39, time.Millisecond)
	m.PublishFailed()
	m.PublishFailed()
	m.PayloadDropped()
	m.SetBrokerConnected(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsPublished))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerConnected))

	m.SetBrokerConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BrokerConnected))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(time.Millisecond, 1, 2)
		m.ObserveBins([]float64{1})
		m.PayloadPublished(1, time.Millisecond)
		m.PublishFailed()
		m.PayloadDropped()
		m.SetBrokerConnected(true)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveCycle(time.Millisecond, 800, 800)

	srv := httptest.NewServer(Handler(m.Registry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "spectrum_cycles_total 1")
}

func TestServerStartAndShutdown(t *testing.T) {
	m := newTestMetrics(t)
	s := NewServer("127.0.0.1:0", m.Registry())
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "spectrum_window_fill_ratio"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
