package router

import (
	"fmt"
	"log/slog"
	"time"

	"classhub/internal/broadcast"
	"classhub/internal/registry"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// HandlerFunc handles one parsed message from a registered sender. Returning
// an error drops the message without a reply.
type HandlerFunc func(conn *registry.Connection, data types.Payload) error

// Route binds a message type to its handler.
type Route struct {
	// SessionType, when set, is the session type the sender must have.
	SessionType types.SessionType
	Handle      HandlerFunc
}

// Router parses inbound frames and dispatches them through a type-keyed
// handler table. Like the registry it is used only from the hub goroutine.
type Router struct {
	registry *registry.Registry
	engine   *broadcast.Engine
	recorder interfaces.ActivityRecorder
	now      func() time.Time
	logger   *slog.Logger

	routes map[string]Route
	routed map[string]uint64 // message type -> handled count
}

// Option configures a Router.
type Option func(*Router)

// WithRecorder sets where session join/leave events are recorded.
func WithRecorder(recorder interfaces.ActivityRecorder) Option {
	return func(r *Router) { r.recorder = recorder }
}

// WithClock overrides the time source used for lastActivity.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a router with every built-in message type registered.
func New(reg *registry.Registry, engine *broadcast.Engine, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		engine:   engine,
		now:      time.Now,
		logger:   slog.Default(),
		routes:   make(map[string]Route),
		routed:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mustHandle(types.MessageTypeJoinSession, types.SessionTypeNone, r.handleJoinSession)
	r.mustHandle(types.MessageTypeLeaveSession, types.SessionTypeNone, r.handleLeaveSession)
	r.mustHandle(types.MessageTypePing, types.SessionTypeNone, r.handlePing)
	r.mustHandle(types.MessageTypeFocusEvent, types.SessionTypeFocus, r.handleFocusEvent)
	r.mustHandle(types.MessageTypeGameUpdate, types.SessionTypeGame, r.handleGameUpdate)
	r.mustHandle(types.MessageTypeHomeworkProgress, types.SessionTypeHomework, r.handleHomeworkProgress)
	r.mustHandle(types.MessageTypeWritingUpdate, types.SessionTypeWriting, r.handleWritingUpdate)

	return r
}

// Handle registers a handler for a new message type. sessionType may be
// SessionTypeNone to accept senders in any state.
func (r *Router) Handle(msgType string, sessionType types.SessionType, fn HandlerFunc) error {
	if _, exists := r.routes[msgType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, msgType)
	}
	r.routes[msgType] = Route{SessionType: sessionType, Handle: fn}
	return nil
}

func (r *Router) mustHandle(msgType string, sessionType types.SessionType, fn HandlerFunc) {
	if err := r.Handle(msgType, sessionType, fn); err != nil {
		panic(err)
	}
}

// Dispatch processes one frame from senderID. Malformed frames and unknown
// types get an error reply; every other failure is dropped silently and only
// reported through the returned error.
func (r *Router) Dispatch(senderID string, frame []byte) error {
	msg, err := types.ParseMessage(frame)
	if err != nil {
		r.engine.SendDirect(senderID, types.ErrorMessage("Invalid message format"))
		return err
	}

	conn, exists := r.registry.Get(senderID)
	if !exists {
		return ErrSenderNotConnected
	}
	conn.Touch(r.now())

	route, known := r.routes[msg.Type]
	if !known {
		r.engine.SendDirect(senderID, types.ErrorMessage("Unknown message type: "+msg.Type))
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}

	// FUNCTIONAL DISCOVERY: A sender outside the required session type gets
	// no reply at all, matching the original session isolation behavior.
	if route.SessionType != types.SessionTypeNone && conn.SessionType != route.SessionType {
		return fmt.Errorf("%w: %s requires %s, sender has %q",
			ErrSessionTypeMismatch, msg.Type, route.SessionType, conn.SessionType)
	}

	if err := route.Handle(conn, msg.Data); err != nil {
		return err
	}

	r.routed[msg.Type]++
	return nil
}

// Routed returns a copy of the per-type handled message counts.
func (r *Router) Routed() map[string]uint64 {
	out := make(map[string]uint64, len(r.routed))
	for k, v := range r.routed {
		out[k] = v
	}
	return out
}

func (r *Router) record(conn *registry.Connection, event, sessionID string, sessionType types.SessionType) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(types.ActivityEvent{
		ConnectionID: conn.ID,
		StudentID:    conn.StudentID,
		SessionID:    sessionID,
		SessionType:  sessionType,
		Event:        event,
		OccurredAt:   r.now(),
	})
}
