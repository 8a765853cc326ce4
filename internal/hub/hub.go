// Package hub hosts the WebSocket notification channel. Clients connect,
// receive a connection ID, and are pushed pipeline status events addressed
// to them (or broadcast). Events travel over the NATS notify fanout so a
// ticket processed by any service instance reaches the client's hub.
//
// The hub is push-dominant: the only client-originated traffic is the
// keepalive ping and the broadcast chat message relay.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/seesay/image-service/internal/messaging"
	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/protocol"
)

// Config holds tunable parameters for the hub.
type Config struct {
	MaxConnections int           // hard cap on total connections
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	PingInterval   time.Duration // how often to ping idle clients
	PingTimeout    time.Duration // extra grace after a ping before eviction
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 100000,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PingTimeout:    10 * time.Second,
	}
}

// Hub maintains the set of connected clients and routes notify-fanout
// events to them.
type Hub struct {
	config Config
	nats   *messaging.Client

	mu    sync.RWMutex
	conns map[string]*Connection

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub routing events from the given messaging client.
func NewHub(config Config, nats *messaging.Client) *Hub {
	return &Hub{
		config: config,
		nats:   nats,
		conns:  make(map[string]*Connection),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the notify fanout and launches the heartbeat loop.
func (h *Hub) Start() error {
	if err := h.nats.SubscribeNotify(h.route); err != nil {
		return err
	}
	go h.heartbeatLoop()
	return nil
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection,
// registers it, and sends session_created carrying the connection ID the
// client submits with subsequent image uploads.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if h.Count() >= h.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("hub: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		ID:        uuid.New().String(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	c.Touch()

	h.mu.Lock()
	h.conns[c.ID] = c
	total := len(h.conns)
	h.mu.Unlock()
	metrics.HubConnections.Inc()

	created, err := json.Marshal(protocol.SessionCreatedMsg{
		Type:         protocol.TypeSessionCreated,
		ConnectionID: c.ID,
	})
	if err == nil {
		if err := c.WriteMessage(created); err != nil {
			log.Printf("hub: send session_created conn=%s: %v", c.ID, err)
		}
	}

	log.Printf("hub: new connection conn=%s (total=%d)", c.ID, total)
	go h.readLoop(c)
}

// readLoop consumes frames from one client until the connection dies.
// Control frames (ping/pong/close) are answered inside ReadClientData; data
// frames carry the small client -> server protocol.
func (h *Hub) readLoop(c *Connection) {
	defer h.remove(c)

	for {
		data, op, err := wsutil.ReadClientData(c.Conn)
		if err != nil {
			return
		}
		c.Touch()

		if op != ws.OpText || len(data) == 0 {
			continue
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			log.Printf("hub: parse error conn=%s: %v", c.ID, err)
			h.sendError(c, "parse_error", "invalid message format")
			continue
		}

		switch msg.Type {
		case protocol.TypePing:
			pong, _ := json.Marshal(protocol.PongMsg{Type: protocol.TypePong})
			if err := c.WriteMessage(pong); err != nil {
				log.Printf("hub: send pong conn=%s: %v", c.ID, err)
			}

		case protocol.TypeMessage:
			// Relay to every client on every instance via the fanout.
			relay, err := json.Marshal(protocol.NewMessageMsg{
				Type: protocol.TypeNewMessage,
				From: c.ID,
				Text: msg.Text,
			})
			if err != nil {
				continue
			}
			if err := h.nats.PublishNotify("", relay); err != nil {
				log.Printf("hub: relay message conn=%s: %v", c.ID, err)
			}
		}
	}
}

// route is the notify-fanout handler: broadcast events go to every local
// client, addressed events only to the local client that owns the
// connection ID. Events for connections hosted elsewhere are ignored here.
func (h *Hub) route(connectionID string, data []byte) {
	if connectionID == "" {
		h.Broadcast(data)
		return
	}

	h.mu.RLock()
	c := h.conns[connectionID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if err := h.write(c, data); err != nil {
		log.Printf("hub: deliver conn=%s: %v", connectionID, err)
	}
}

// Broadcast sends a message to all connected clients. Errors on individual
// connections are ignored; dead connections are reaped by the read loop or
// the heartbeat.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = h.write(c, data)
	}
}

// Count returns the current number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	n := len(h.conns)
	h.mu.RUnlock()
	return n
}

// Shutdown stops the heartbeat and closes every client connection.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
		metrics.HubConnections.Dec()
	}

	log.Printf("hub: stopped, all connections closed")
}

func (h *Hub) write(c *Connection, data []byte) error {
	if h.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	_, ok := h.conns[c.ID]
	if ok {
		delete(h.conns, c.ID)
	}
	total := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = c.Close()
	metrics.HubConnections.Dec()
	log.Printf("hub: connection closed conn=%s (total=%d)", c.ID, total)
}

func (h *Hub) sendError(c *Connection, code, message string) {
	data, err := json.Marshal(protocol.ErrorMsg{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	if err := c.WriteMessage(data); err != nil {
		log.Printf("hub: send error conn=%s: %v", c.ID, err)
	}
}

// heartbeatLoop periodically pings all clients and evicts those with no
// activity within PingInterval + PingTimeout.
func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.checkConnections()
		}
	}
}

func (h *Hub) checkConnections() {
	deadline := h.config.PingInterval + h.config.PingTimeout
	now := time.Now()

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if idle := now.Sub(c.LastActive()); idle > deadline {
			log.Printf("hub: heartbeat timeout conn=%s last_activity=%s ago",
				c.ID, idle.Round(time.Second))
			h.remove(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			log.Printf("hub: heartbeat ping failed conn=%s: %v", c.ID, err)
			h.remove(c)
		}
	}
}
