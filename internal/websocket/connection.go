package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Settings tunes the per-connection transport.
type Settings struct {
	SendBuffer       int
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	HandshakeTimeout time.Duration
	AllowedOrigins   []string
}

// DefaultSettings returns the transport defaults used when no config is given.
func DefaultSettings() Settings {
	return Settings{
		SendBuffer:       100,
		WriteTimeout:     5 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Connection is the hub-facing transport for one WebSocket client.
// ARCHITECTURAL DISCOVERY: gorilla connections allow one concurrent writer,
// so every frame and ping goes through writeLoop.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	settings  Settings
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, settings Settings) *Connection {
	c := newConnection(conn, settings)
	go c.writeLoop()
	return c
}

func newConnection(conn *websocket.Conn, settings Settings) *Connection {
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = DefaultSettings().SendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:     conn,
		writeCh:  make(chan []byte, settings.SendBuffer),
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Connection) writeLoop() {
	var pings <-chan time.Time
	if c.settings.PingInterval > 0 {
		ticker := time.NewTicker(c.settings.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer c.Close()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-pings:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout)); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. It never blocks: a slow client whose
// buffer is full gets ErrSendBufferFull and the frame is dropped.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
	})
	return c.closeErr
}

// Done is closed once the connection has been closed from either side.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
