package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit  = 4096
	pongWait   = 60 * time.Second
	sendBuffer = 16
)

// Connection is one live feed subscriber. The feed is server-to-client; incoming frames
// are read only to track liveness.
type Connection struct {
	sessionID    int64
	ws           *websocket.Conn
	send         chan []byte
	writeMu      sync.Mutex
	closeOnce    sync.Once
	done         chan struct{}
	writeTimeout time.Duration
	logger       *zap.Logger
	onClose      func(*Connection)
}

// NewConnection wraps an upgraded websocket.
func NewConnection(sessionID int64, ws *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		sessionID:    sessionID,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
		onClose:      onClose,
	}
}

// SessionID returns the watched session.
func (c *Connection) SessionID() int64 {
	return c.sessionID
}

// Start launches the write pump and blocks in the read pump.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.logger.Debug("live feed closed", zap.Int64("session_id", c.sessionID), zap.Error(err))
			return
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message, dropping it when the buffer is full or the connection closed.
func (c *Connection) Send(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping live feed message, buffer full", zap.Int64("session_id", c.sessionID))
	}
}

// Ping sends a ping frame.
func (c *Connection) Ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *Connection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
