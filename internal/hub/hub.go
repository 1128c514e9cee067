package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"classhub/internal/broadcast"
	"classhub/internal/reaper"
	"classhub/internal/registry"
	"classhub/internal/router"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// DefaultQueueSize is the capacity of the hub's operation queue.
const DefaultQueueSize = 1000

// Hub owns the connection registry, session index, router and reaper, and
// runs every operation on them from a single goroutine.
// ARCHITECTURAL DISCOVERY: One FIFO queue carries registrations, frames,
// disconnects and queries, so frames from one connection are handled in
// arrival order and no component needs locking.
type Hub struct {
	ops chan func()

	registry *registry.Registry
	engine   *broadcast.Engine
	router   *router.Router
	reaper   *reaper.Reaper
	recorder interfaces.ActivityRecorder
	now      func() time.Time
	logger   *slog.Logger

	// Owned by the loop goroutine.
	ticker *time.Ticker
	reaped uint64

	// Lifecycle state
	mu       sync.RWMutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

type options struct {
	queueSize int
	reaper    reaper.Settings
	recorder  interfaces.ActivityRecorder
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Hub.
type Option func(*options)

// WithQueueSize sets the operation queue capacity.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithReaperSettings sets the inactivity sweep interval and threshold.
func WithReaperSettings(s reaper.Settings) Option {
	return func(o *options) { o.reaper = s }
}

// WithRecorder sets the connection lifecycle recorder.
func WithRecorder(r interfaces.ActivityRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithClock overrides the hub's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger shared by the hub and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a hub with its own empty registry. Call Start before use.
func New(opts ...Option) (*Hub, error) {
	o := options{
		queueSize: DefaultQueueSize,
		reaper:    reaper.DefaultSettings(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}

	rp, err := reaper.New(o.reaper, o.now)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	engine := broadcast.New(reg, broadcast.WithClock(o.now), broadcast.WithLogger(o.logger))
	routerOpts := []router.Option{router.WithClock(o.now), router.WithLogger(o.logger)}
	if o.recorder != nil {
		routerOpts = append(routerOpts, router.WithRecorder(o.recorder))
	}

	return &Hub{
		ops:      make(chan func(), o.queueSize),
		registry: reg,
		engine:   engine,
		router:   router.New(reg, engine, routerOpts...),
		reaper:   rp,
		recorder: o.recorder,
		now:      o.now,
		logger:   o.logger,
	}, nil
}

// Router exposes the message router so callers can register extra message
// types before Start.
func (h *Hub) Router() *router.Router {
	return h.router
}

// Start launches the hub goroutine and the reaper ticker.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	settings := h.reaper.Settings()
	h.logger.Info("starting hub",
		"reap_interval", settings.Interval,
		"inactivity_threshold", settings.Threshold)

	go h.run(ctx, h.shutdown, h.done)
	return nil
}

// Stop shuts the loop down, closes every transport and waits for the
// goroutine to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	return nil
}

// Running reports whether the loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context, shutdown, done chan struct{}) {
	h.ticker = time.NewTicker(h.reaper.Settings().Interval)
	defer func() {
		h.ticker.Stop()
		h.closeAll()

		h.mu.Lock()
		if h.done == done {
			h.running = false
		}
		h.mu.Unlock()

		close(done)
		h.logger.Info("hub stopped")
	}()

	for {
		select {
		case op := <-h.ops:
			op()

		case <-h.ticker.C:
			h.sweep()

		case <-shutdown:
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			return
		}
	}
}

// submit queues op for the loop. It blocks while the queue is full, which
// only ever stalls the calling connection's reader.
func (h *Hub) submit(op func()) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown, done := h.shutdown, h.done
	h.mu.RUnlock()

	select {
	case h.ops <- op:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-done:
		return ErrHubNotRunning
	}
}

// call runs fn on the loop and waits for it to finish.
func (h *Hub) call(fn func()) error {
	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()

	finished := make(chan struct{})
	if err := h.submit(func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-done:
		return ErrHubNotRunning
	}
}

// Register adds an authenticated transport under id and greets it with
// connection_established.
func (h *Hub) Register(id string, transport interfaces.Transport) error {
	var regErr error
	if err := h.call(func() {
		regErr = h.register(id, transport)
	}); err != nil {
		return err
	}
	return regErr
}

// Dispatch queues one inbound frame from connection id.
func (h *Hub) Dispatch(id string, frame []byte) error {
	return h.submit(func() {
		if err := h.router.Dispatch(id, frame); err != nil {
			h.logger.Debug("message not routed", "connection_id", id, "err", err)
		}
	})
}

// Disconnect tears down connection id after its transport closed.
func (h *Hub) Disconnect(id string) error {
	return h.submit(func() {
		h.teardown(id, types.ActivityDisconnected)
	})
}

// SendInterventionNotification broadcasts intervention_triggered to every
// member of sessionID and returns the number of recipients.
func (h *Hub) SendInterventionNotification(sessionID string, payload types.Payload) (int, error) {
	return h.inject(sessionID, types.MessageTypeInterventionTriggered, payload)
}

// SendFocusAlert broadcasts focus_alert to every member of sessionID and
// returns the number of recipients.
func (h *Hub) SendFocusAlert(sessionID string, payload types.Payload) (int, error) {
	return h.inject(sessionID, types.MessageTypeFocusAlert, payload)
}

func (h *Hub) inject(sessionID, msgType string, payload types.Payload) (int, error) {
	if sessionID == "" {
		return 0, ErrEmptySessionID
	}
	var sent int
	err := h.call(func() {
		sent = h.engine.BroadcastSession(sessionID, types.NewOutbound(msgType, payload))
	})
	return sent, err
}

// ReapNow runs one inactivity sweep immediately and returns the evicted ids.
func (h *Hub) ReapNow() ([]string, error) {
	var evicted []string
	err := h.call(func() {
		evicted = h.sweep()
	})
	return evicted, err
}

// UpdateReaperSettings swaps the sweep interval and threshold at runtime.
func (h *Hub) UpdateReaperSettings(settings reaper.Settings) error {
	var updateErr error
	if err := h.call(func() {
		if updateErr = h.reaper.Update(settings); updateErr != nil {
			return
		}
		h.ticker.Reset(settings.Interval)
		h.logger.Info("reaper settings updated",
			"reap_interval", settings.Interval,
			"inactivity_threshold", settings.Threshold)
	}); err != nil {
		return err
	}
	return updateErr
}

func (h *Hub) register(id string, transport interfaces.Transport) error {
	now := h.now()
	conn := &registry.Connection{
		ID:           id,
		Transport:    transport,
		ConnectedAt:  now,
		LastActivity: now,
	}
	if err := h.registry.Register(conn); err != nil {
		h.logger.Warn("connection registration failed", "connection_id", id, "err", err)
		return err
	}

	h.record(conn, types.ActivityConnected, "", types.SessionTypeNone)
	h.engine.SendDirect(id, types.NewOutbound(types.MessageTypeConnectionEstablished, types.Payload{
		"clientId": id,
		"message":  "Connected to classhub",
	}))
	h.logger.Info("connection registered", "connection_id", id, "connections", h.registry.Len())
	return nil
}

// teardown is shared by transport close, reaping and shutdown: leave the
// session, tell the remaining members, unregister, close the transport.
func (h *Hub) teardown(id, event string) bool {
	conn, exists := h.registry.Get(id)
	if !exists {
		return false
	}

	sessionID, sessionType := conn.SessionID, conn.SessionType
	if sessionID != "" {
		h.registry.Leave(sessionID, id)
		h.engine.BroadcastSession(sessionID, types.NewOutbound(types.MessageTypeParticipantDisconnected, types.Payload{
			"clientId":  id,
			"studentId": conn.StudentID,
		}), id)
	}
	h.registry.Unregister(id)

	if err := conn.Transport.Close(); err != nil {
		h.logger.Debug("transport close failed", "connection_id", id, "err", err)
	}
	h.record(conn, event, sessionID, sessionType)

	h.logger.Info("connection closed",
		"connection_id", id,
		"session_id", sessionID,
		"reason", event,
		"duration", h.now().Sub(conn.ConnectedAt))
	return true
}

func (h *Hub) sweep() []string {
	expired := h.reaper.Sweep(h.registry)
	for _, id := range expired {
		if h.teardown(id, types.ActivityReaped) {
			h.reaped++
		}
	}
	if len(expired) > 0 {
		h.logger.Info("reaped inactive connections", "count", len(expired))
	}
	return expired
}

// closeAll drops every connection without notifying sessions; the process
// is going away.
func (h *Hub) closeAll() {
	for conn := range h.registry.All() {
		sessionID, sessionType := conn.SessionID, conn.SessionType
		h.registry.Unregister(conn.ID)
		if err := conn.Transport.Close(); err != nil {
			h.logger.Debug("transport close failed", "connection_id", conn.ID, "err", err)
		}
		h.record(conn, types.ActivityDisconnected, sessionID, sessionType)
	}
}

func (h *Hub) record(conn *registry.Connection, event, sessionID string, sessionType types.SessionType) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(types.ActivityEvent{
		ConnectionID: conn.ID,
		StudentID:    conn.StudentID,
		SessionID:    sessionID,
		SessionType:  sessionType,
		Event:        event,
		OccurredAt:   h.now(),
	})
}
