//go:build !js || !wasm

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = 1 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// hub fans coordinator updates out to websocket clients
type hub struct {
	svc    Service
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	unsub   func()
	done    chan struct{}
}

func newHub(svc Service, logger zerolog.Logger) *hub {
	h := &hub{
		svc:     svc,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
	}
	updates, unsub := svc.Subscribe()
	h.unsub = unsub
	go h.run(updates)
	return h
}

func (h *hub) run(updates <-chan coordinator.Update) {
	defer close(h.done)
	for u := range updates {
		if len(u.Changed) == 0 {
			continue
		}
		h.broadcast(newUpdateMessage(u))
	}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) snapshotClients() []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *hub) broadcast(msg wsMessage) {
	for _, c := range h.snapshotClients() {
		if err := c.write(msg); err != nil {
			h.logger.Warn().Err(err).Msg("Websocket broadcast failed, dropping client")
			h.remove(c)
			c.conn.Close()
		}
	}
}

func (h *hub) close() {
	h.unsub()
	<-h.done
	for _, c := range h.snapshotClients() {
		h.remove(c)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn}
	defer conn.Close()

	// Registered before the hello so no update between the two is missed
	s.hub.add(client)
	defer s.hub.remove(client)

	if err := client.write(newHelloMessage(s.svc.Snapshot())); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send initial snapshot")
		return
	}

	conn.SetReadLimit(wsReadLimit)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := client.ping(); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	// Clients only listen; reading drains control frames and detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug().Err(err).Msg("Websocket read ended")
			}
			return
		}
	}
}
