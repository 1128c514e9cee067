package broadcast

import (
	"log/slog"
	"slices"
	"time"

	"classhub/internal/registry"
	"classhub/pkg/types"
)

// Engine delivers outbound messages to registered connections.
type Engine struct {
	registry *registry.Registry
	now      func() time.Time
	logger   *slog.Logger

	// failures counts transport write errors since the engine was created.
	failures uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine that resolves recipients through reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendDirect delivers msg to one connection. Unknown ids are ignored. A write
// failure is logged and reported as false; the connection stays registered.
func (e *Engine) SendDirect(connID string, msg types.Outbound) bool {
	conn, exists := e.registry.Get(connID)
	if !exists {
		return false
	}

	envelope := types.Envelope{
		Type:      msg.Type,
		Data:      msg.Data,
		Timestamp: types.FormatTimestamp(e.now()),
		ClientID:  conn.ID,
	}
	if envelope.Data == nil {
		envelope.Data = types.Payload{}
	}

	if err := conn.Transport.WriteJSON(envelope); err != nil {
		e.failures++
		e.logger.Warn("failed to deliver message",
			"connection_id", conn.ID,
			"type", msg.Type,
			"err", err)
		return false
	}
	return true
}

// BroadcastSession delivers msg to every member of sessionID except the
// excluded ids. It returns the number of recipients attempted.
func (e *Engine) BroadcastSession(sessionID string, msg types.Outbound, exclude ...string) int {
	recipients := e.registry.MembersExcluding(sessionID, exclude...)
	for _, id := range recipients {
		e.SendDirect(id, msg)
	}
	return len(recipients)
}

// BroadcastAll delivers msg to every registered connection except the
// excluded ids. It returns the number of recipients attempted.
func (e *Engine) BroadcastAll(msg types.Outbound, exclude ...string) int {
	attempted := 0
	for conn := range e.registry.All() {
		if slices.Contains(exclude, conn.ID) {
			continue
		}
		e.SendDirect(conn.ID, msg)
		attempted++
	}
	return attempted
}

// Failures returns the number of failed transport writes.
func (e *Engine) Failures() uint64 {
	return e.failures
}
