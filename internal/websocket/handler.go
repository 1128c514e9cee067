package websocket

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classhub/pkg/interfaces"
)

// Hub is the part of the hub the transport layer drives.
type Hub interface {
	Register(id string, transport interfaces.Transport) error
	Dispatch(id string, frame []byte) error
	Disconnect(id string) error
}

// Handler upgrades HTTP requests and pumps frames between the socket and
// the hub.
type Handler struct {
	hub      Hub
	settings Settings
	upgrader websocket.Upgrader
	newID    func() string
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSettings overrides the transport settings.
func WithSettings(s Settings) HandlerOption {
	return func(h *Handler) { h.settings = s }
}

// WithIDGenerator overrides how connection ids are minted.
func WithIDGenerator(fn func() string) HandlerOption {
	return func(h *Handler) { h.newID = fn }
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a WebSocket handler feeding hub.
func NewHandler(hub Hub, opts ...HandlerOption) (*Handler, error) {
	if hub == nil {
		return nil, ErrNilHub
	}
	h := &Handler{
		hub:      hub,
		settings: DefaultSettings(),
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: h.settings.HandshakeTimeout,
		CheckOrigin:      originChecker(h.settings.AllowedOrigins),
	}
	return h, nil
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the request, registers the connection with the hub and
// starts its read pump.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := NewConnection(ws, h.settings)
	id := h.newID()

	if err := h.hub.Register(id, conn); err != nil {
		h.logger.Error("failed to register connection", "connection_id", id, "err", err)
		_ = conn.Close()
		return
	}

	go h.readPump(id, conn)
}

// readPump forwards text frames to the hub until the socket fails, then
// asks the hub to tear the connection down.
func (h *Handler) readPump(id string, conn *Connection) {
	defer func() {
		if err := h.hub.Disconnect(id); err != nil {
			h.logger.Debug("disconnect not delivered", "connection_id", id, "err", err)
		}
		_ = conn.Close()
	}()

	ws := conn.conn
	if h.settings.MaxMessageSize > 0 {
		ws.SetReadLimit(h.settings.MaxMessageSize)
	}
	if h.settings.PongWait > 0 {
		if err := ws.SetReadDeadline(time.Now().Add(h.settings.PongWait)); err != nil {
			return
		}
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(h.settings.PongWait))
		})
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "connection_id", id, "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.hub.Dispatch(id, data); err != nil {
			h.logger.Debug("frame not delivered", "connection_id", id, "err", err)
			return
		}
	}
}
