package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"classhub/internal/hub"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Hub is what the HTTP surface needs from the running hub.
type Hub interface {
	Stats() (hub.Stats, error)
	SendInterventionNotification(sessionID string, payload types.Payload) (int, error)
	SendFocusAlert(sessionID string, payload types.Payload) (int, error)
}

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
	maxInjectionBody     = 64 * 1024
)

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	hub     Hub
	store   interfaces.ActivityStore
	started time.Time
	logger  *slog.Logger
	router  chi.Router
}

// NewServer builds the HTTP surface. store may be nil when auditing is
// disabled; ws may be nil when the WebSocket endpoint is served elsewhere.
func NewServer(h Hub, store interfaces.ActivityStore, ws http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:     h,
		store:   store,
		started: time.Now(),
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	if ws != nil {
		r.Handle("/ws", ws)
	}
	r.Get("/metrics", s.metrics)

	r.Group(func(r chi.Router) {
		r.Use(jsonMiddleware)

		r.Get("/health", s.healthCheck)
		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", s.stats)
			r.Get("/activity", s.recentActivity)
			r.Get("/activity/{connectionId}", s.connectionActivity)
			r.Post("/sessions/{sessionId}/interventions", s.injectIntervention)
			r.Post("/sessions/{sessionId}/focus-alerts", s.injectFocusAlert)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      string    `json:"uptime"`
	Hub         string    `json:"hub"`
	Database    string    `json:"database"`
	Connections int       `json:"connections"`
}

type InjectionResponse struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Delivered int    `json:"delivered"`
}

type ActivityResponse struct {
	Events []*types.ActivityEvent `json:"events"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Hub:       "running",
		Database:  "disabled",
	}

	if stats, err := s.hub.Stats(); err != nil {
		resp.Status = "unhealthy"
		resp.Hub = fmt.Sprintf("error: %v", err)
	} else {
		resp.Connections = stats.TotalConnections
	}

	if s.store != nil {
		resp.Database = "healthy"
		if err := s.store.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = fmt.Sprintf("error: %v", err)
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

// GET /api/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.Stats()
	if err != nil {
		s.sendError(w, "Hub unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// GET /api/activity?limit=N
func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.sendError(w, "Activity log disabled", http.StatusNotFound)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxActivityLimit)
	}

	events, err := s.store.RecentActivity(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read activity", "err", err)
		s.sendError(w, "Failed to read activity", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ActivityResponse{Events: events})
}

// GET /api/activity/{connectionId}
func (s *Server) connectionActivity(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.sendError(w, "Activity log disabled", http.StatusNotFound)
		return
	}

	events, err := s.store.ConnectionActivity(r.Context(), chi.URLParam(r, "connectionId"))
	if err != nil {
		s.logger.Error("failed to read connection activity", "err", err)
		s.sendError(w, "Failed to read activity", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ActivityResponse{Events: events})
}

// POST /api/sessions/{sessionId}/interventions
func (s *Server) injectIntervention(w http.ResponseWriter, r *http.Request) {
	s.inject(w, r, types.MessageTypeInterventionTriggered, s.hub.SendInterventionNotification)
}

// POST /api/sessions/{sessionId}/focus-alerts
func (s *Server) injectFocusAlert(w http.ResponseWriter, r *http.Request) {
	s.inject(w, r, types.MessageTypeFocusAlert, s.hub.SendFocusAlert)
}

func (s *Server) inject(w http.ResponseWriter, r *http.Request, msgType string, send func(string, types.Payload) (int, error)) {
	sessionID := chi.URLParam(r, "sessionId")

	payload := types.Payload{}
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInjectionBody))
		if err := dec.Decode(&payload); err != nil {
			s.sendError(w, "Body must be a JSON object", http.StatusBadRequest)
			return
		}
		if payload == nil {
			payload = types.Payload{}
		}
	}

	delivered, err := send(sessionID, payload)
	switch {
	case errors.Is(err, hub.ErrEmptySessionID):
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	case err != nil:
		s.sendError(w, "Hub unavailable", http.StatusServiceUnavailable)
		return
	}

	s.logger.Info("message injected", "session_id", sessionID, "type", msgType, "delivered", delivered)
	s.writeJSON(w, http.StatusAccepted, InjectionResponse{
		SessionID: sessionID,
		Type:      msgType,
		Delivered: delivered,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "err", err)
	}
}

// Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Allows all origins; the API carries no credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
