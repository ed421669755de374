package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

// Server upgrades HTTP requests to live feed connections.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve upgrades the request and streams snapshots of the session, starting with initial.
// The caller has already authorised access to the session.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, initial *models.ChargingSession) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(initial.ID, conn, s.writeTimeout, s.logger, func(c *Connection) {
		s.hub.Remove(c)
		cancel()
	})
	s.hub.Add(connection)
	s.hub.Publish(initial)

	go connection.Start(ctx)
	s.logger.Info("live feed subscribed", zap.Int64("session_id", initial.ID))
}
