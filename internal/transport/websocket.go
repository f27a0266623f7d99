// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	applog "spectrum/internal/log"

	"github.com/gorilla/websocket"
)

const wsWriteWait = time.Second

// WebSocketPublisher broadcasts every payload as one text message to all
// connected clients.
//
// Thread Safety:
//   - Uses mutex for client map access and to serialise writes
//   - Handles concurrent connections safely
type WebSocketPublisher struct {
	clients      map[*websocket.Conn]struct{} // Active client connections
	clientsMutex sync.Mutex                   // Protects clients map
	upgrader     websocket.Upgrader           // WebSocket connection upgrader
	server       *http.Server                 // HTTP server for WebSocket
	path         string
	logger       *applog.Logger
	closed       bool
}

// NewWebSocketPublisher creates a publisher serving clients on address at
// path. Nothing listens until Start is called; Handler can be mounted
// elsewhere instead.
func NewWebSocketPublisher(address, path string) *WebSocketPublisher {
	p := &WebSocketPublisher{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Browser dashboards are served from other origins.
			},
		},
		path:   path,
		logger: applog.Named("websocket"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, p.handleWebSocket)
	p.server = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return p
}

// Handler returns the HTTP handler that upgrades subscriber connections.
func (p *WebSocketPublisher) Handler() http.Handler {
	return p.server.Handler
}

// Start binds the listening socket and serves in its own goroutine.
func (p *WebSocketPublisher) Start() error {
	ln, err := net.Listen("tcp", p.server.Addr)
	if err != nil {
		return fmt.Errorf("websocket: failed to listen on %s: %w", p.server.Addr, err)
	}
	go func() {
		p.logger.Infof("listening on %s%s", ln.Addr(), p.path)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("server error: %v", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades the connection, registers the client and removes
// it once its read side fails.
func (p *WebSocketPublisher) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warnf("upgrade error: %v", err)
		return
	}

	p.clientsMutex.Lock()
	if p.closed {
		p.clientsMutex.Unlock()
		conn.Close()
		return
	}
	p.clients[conn] = struct{}{}
	p.clientsMutex.Unlock()
	p.logger.Debugf("client connected from %s", conn.RemoteAddr())

	// Subscribers never send; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				p.remove(conn)
				return
			}
		}
	}()
}

func (p *WebSocketPublisher) remove(conn *websocket.Conn) {
	p.clientsMutex.Lock()
	if _, ok := p.clients[conn]; ok {
		delete(p.clients, conn)
		p.logger.Debugf("client %s disconnected", conn.RemoteAddr())
	}
	p.clientsMutex.Unlock()
	conn.Close()
}

// Clients returns the number of connected subscribers.
func (p *WebSocketPublisher) Clients() int {
	p.clientsMutex.Lock()
	defer p.clientsMutex.Unlock()
	return len(p.clients)
}

// Publish sends payload to every client. Clients whose write fails are
// dropped. Having no clients is not an error.
func (p *WebSocketPublisher) Publish(ctx context.Context, payload []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsWriteWait)
	}

	p.clientsMutex.Lock()
	defer p.clientsMutex.Unlock()
	if p.closed {
		return transient("websocket publisher is closed")
	}

	failed := 0
	for client := range p.clients {
		client.SetWriteDeadline(deadline)
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(p.clients, client)
			failed++
		}
	}
	if failed > 0 {
		return transient("websocket write failed for %d client(s)", failed)
	}
	return nil
}

// Close disconnects all clients and shuts the server down. It is idempotent.
func (p *WebSocketPublisher) Close() error {
	p.clientsMutex.Lock()
	if p.closed {
		p.clientsMutex.Unlock()
		return nil
	}
	p.closed = true
	for client := range p.clients {
		client.Close()
		delete(p.clients, client)
	}
	p.clientsMutex.Unlock()

	return p.server.Close()
}

var _ Publisher = (*WebSocketPublisher)(nil)
