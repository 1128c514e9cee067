package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"classhub/internal/api"
	"classhub/internal/config"
	"classhub/internal/database"
	"classhub/internal/hub"
	"classhub/internal/reaper"
	"classhub/internal/websocket"
	dbconfig "classhub/pkg/database"
	"classhub/pkg/interfaces"
)

// Options carries the runtime handles that do not live in Config.
type Options struct {
	// ConfigPath enables hot reload of the hub section when set.
	ConfigPath string
	Logger     *slog.Logger
	// LogLevel, when set, follows log.level on reload.
	LogLevel *slog.LevelVar
}

// Application coordinates all system components
// Component initialization follows strict dependency order:
// Database → Hub → WebSocket → API → HTTP
type Application struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
	logLevel   *slog.LevelVar

	store      *database.Manager
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	watchWG  sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// STEP 1: audit log (optional)
	var store *database.Manager
	if cfg.Database.Enabled {
		dbCfg := dbconfig.DefaultConfig()
		dbCfg.Path = cfg.Database.Path
		dbCfg.QueueSize = cfg.Database.QueueSize

		var err error
		store, err = database.NewManager(dbCfg, logger.With("component", "database"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize activity store: %w", err)
		}
	}

	// STEP 2: hub
	hubOpts := []hub.Option{
		hub.WithQueueSize(cfg.Hub.QueueSize),
		hub.WithReaperSettings(reaperSettings(cfg.Hub)),
		hub.WithLogger(logger.With("component", "hub")),
	}
	if store != nil {
		hubOpts = append(hubOpts, hub.WithRecorder(store))
	}
	messageHub, err := hub.New(hubOpts...)
	if err != nil {
		closeStore(store, logger)
		return nil, fmt.Errorf("failed to create hub: %w", err)
	}

	// STEP 3: WebSocket transport
	wsHandler, err := websocket.NewHandler(messageHub,
		websocket.WithSettings(websocketSettings(cfg.WebSocket)),
		websocket.WithLogger(logger.With("component", "websocket")))
	if err != nil {
		closeStore(store, logger)
		return nil, fmt.Errorf("failed to create websocket handler: %w", err)
	}

	// STEP 4: HTTP API; a nil *Manager must not become a non-nil interface.
	var activity interfaces.ActivityStore
	if store != nil {
		activity = store
	}
	apiServer := api.NewServer(messageHub, activity, wsHandler, logger.With("component", "api"))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		configPath: opts.ConfigPath,
		logger:     logger,
		logLevel:   opts.LogLevel,
		store:      store,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start starts the hub, binds the listener and serves HTTP in the
// background. It returns once the listener is bound.
func (a *Application) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := a.hub.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		cancel()
		_ = a.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "err", err)
		}
	}()

	if a.configPath != "" {
		a.watchWG.Add(1)
		go func() {
			defer a.watchWG.Done()
			if err := config.Watch(ctx, a.configPath, a.logger, a.applyReload); err != nil {
				a.logger.Error("config watch stopped", "path", a.configPath, "err", err)
			}
		}()
	}

	a.logger.Info("classhub started", "addr", ln.Addr().String(), "audit_log", a.store != nil)
	return nil
}

// applyReload pushes the hot-reloadable parts of a new config into the
// running components.
func (a *Application) applyReload(cfg *config.Config) {
	if err := a.hub.UpdateReaperSettings(reaperSettings(cfg.Hub)); err != nil {
		a.logger.Warn("failed to apply reaper settings", "err", err)
	}
	if a.logLevel != nil {
		level, err := ParseLevel(cfg.Log.Level)
		if err == nil {
			a.logLevel.Set(level)
		}
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Database
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("shutting down classhub")

	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.watchWG.Wait()

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database shutdown: %w", err))
		}
	}

	a.logger.Info("classhub shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listener address, or the configured one before Start.
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpServer.Addr
}

// Hub exposes the running hub.
func (a *Application) Hub() *hub.Hub {
	return a.hub
}

func reaperSettings(h config.HubConfig) reaper.Settings {
	return reaper.Settings{
		Interval:  h.ReapInterval,
		Threshold: h.InactivityThreshold,
	}
}

func websocketSettings(w config.WebSocketConfig) websocket.Settings {
	return websocket.Settings{
		SendBuffer:       w.BufferSize,
		WriteTimeout:     w.WriteTimeout,
		PongWait:         w.ReadTimeout,
		PingInterval:     w.PingInterval,
		MaxMessageSize:   w.MaxMessageSize,
		HandshakeTimeout: websocket.DefaultSettings().HandshakeTimeout,
		AllowedOrigins:   w.AllowedOrigins,
	}
}

func closeStore(store *database.Manager, logger *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("failed to close activity store", "err", err)
	}
}
