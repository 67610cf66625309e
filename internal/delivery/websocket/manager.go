// Package websocket fans session snapshots out to connected participants.
// The hub holds one store subscription per session with at least one
// client and pushes every published snapshot to all of that session's
// connections. All triggering is push-based; nothing polls.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"saga-server/internal/models"
	"saga-server/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one participant's WebSocket connection.
type Client struct {
	SessionID     string
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan []byte

	hub *Hub
}

// Hub manages connections grouped by session and bridges the store's
// change feed to them.
type Hub struct {
	store  store.SessionStore
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*Client]bool // sessionID -> connections
	feeds   map[string]context.CancelFunc
}

// NewHub creates a Hub.
func NewHub(st store.SessionStore, logger *zap.Logger) *Hub {
	return &Hub{
		store:   st,
		logger:  logger.Named("WSHub"),
		clients: make(map[string]map[*Client]bool),
		feeds:   make(map[string]context.CancelFunc),
	}
}

// NewClient wraps a connection and registers it with the hub. The first
// client of a session starts the session's store feed.
func (h *Hub) NewClient(conn *websocket.Conn, sessionID, participantID string) *Client {
	client := &Client{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Conn:          conn,
		Send:          make(chan []byte, 16),
		hub:           h,
	}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*Client]bool)
	}
	h.clients[sessionID][client] = true
	if _, ok := h.feeds[sessionID]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		h.feeds[sessionID] = cancel
		go h.runFeed(ctx, sessionID)
	}
	h.mu.Unlock()

	h.logger.Debug("Client connected",
		zap.String("sessionId", sessionID),
		zap.String("participantId", participantID))
	return client
}

// removeClient drops a connection; the last client of a session also stops
// the session's store feed.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if conns, ok := h.clients[client.SessionID]; ok {
		if _, ok := conns[client]; ok {
			delete(conns, client)
			close(client.Send)
		}
		if len(conns) == 0 {
			delete(h.clients, client.SessionID)
			if cancel, ok := h.feeds[client.SessionID]; ok {
				cancel()
				delete(h.feeds, client.SessionID)
			}
		}
	}
	h.mu.Unlock()
}

// runFeed consumes the session's change feed and broadcasts each snapshot.
func (h *Hub) runFeed(ctx context.Context, sessionID string) {
	updates, err := h.store.Subscribe(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to subscribe to session feed",
			zap.String("sessionId", sessionID), zap.Error(err))
		return
	}

	// Deliver the current state first so a fresh connection renders
	// without waiting for the next write.
	if sess, err := h.store.Get(ctx, sessionID); err == nil {
		h.broadcast(sessionID, sess)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sess, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(sessionID, sess)
		}
	}
}

func (h *Hub) broadcast(sessionID string, sess *models.Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		h.logger.Error("Failed to marshal session snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- data:
		default:
			// Slow consumer; it will catch up on the next snapshot or get
			// dropped by its write pump.
			h.logger.Warn("Send queue full, dropping snapshot",
				zap.String("participantId", client.ParticipantID))
		}
	}
}

// ReadPump drains the connection until it closes. Clients send nothing the
// server acts on (all mutations go through the HTTP API), so inbound
// frames are discarded; the pump exists to process control frames and to
// detect the disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump pushes queued snapshots and periodic pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
