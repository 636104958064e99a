// Package realtime keeps the websocket connections of signed-in users and
// pushes scheduling events to them.
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"appointment-scheduler/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub is a ConnectionRegistry: connections grouped by user id. Run must be
// running for connections to register.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*client]struct{}

	register   chan *client
	unregister chan *client
	closed     chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHub(log *slog.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		conns:      make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		closed:     make(chan struct{}),
		log:        log.With("component", "realtime"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.conns[c.userID]; !ok {
				h.conns[c.userID] = make(map[*client]struct{})
			}
			h.conns[c.userID][c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("ws connected", "user_id", c.userID)
		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[c.userID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.conns, c.userID)
					}
				}
			}
			h.mu.Unlock()
			h.log.Debug("ws disconnected", "user_id", c.userID)
		case <-h.closed:
			h.mu.Lock()
			for _, set := range h.conns {
				for c := range set {
					c.conn.Close()
					close(c.send)
				}
			}
			h.conns = make(map[string]map[*client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.closed) })
}

// Connected reports how many live connections userID has.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Publish queues ev for every connection of userID. Slow clients whose
// buffer is full are dropped.
func (h *Hub) Publish(userID string, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- data:
		default:
			h.log.Warn("ws client too slow, dropping", "user_id", userID)
			go h.drop(c)
		}
	}
	return nil
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.closed:
	}
	c.conn.Close()
}

// ServeWS upgrades the request and attaches the connection to userID.
// Authentication happens before this is called.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}

	select {
	case h.register <- c:
	case <-h.closed:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer c.hub.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// inbound messages are ignored; reading keeps pongs flowing
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
