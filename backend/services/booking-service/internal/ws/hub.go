package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

// Hub tracks live feed subscribers per charging session.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[int64]map[*Connection]struct{}
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds the hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		subscribers:  make(map[int64]map[*Connection]struct{}),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers a connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[conn.SessionID()]
	if !ok {
		set = make(map[*Connection]struct{})
		h.subscribers[conn.SessionID()] = set
	}
	set[conn] = struct{}{}
}

// Remove unregisters a connection.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subscribers[conn.SessionID()]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subscribers, conn.SessionID())
	}
}

// Subscribers returns the number of connections watching the session.
func (h *Hub) Subscribers(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// Publish sends the session snapshot to its subscribers.
func (h *Hub) Publish(session *models.ChargingSession) {
	h.mu.RLock()
	set := h.subscribers[session.ID]
	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(session)
	if err != nil {
		h.logger.Warn("failed to encode session snapshot", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	for _, conn := range conns {
		conn.Send(payload)
	}
}

// Start pings every connection until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

// pingAll pings a snapshot of the connections outside the lock; a slow peer can block
// its own write for up to the write timeout.
func (h *Hub) pingAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.subscribers))
	for _, set := range h.subscribers {
		for conn := range set {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Ping()
	}
}
