// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/storage"
	"github.com/jeranaias/medassist-tui/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// Version is reported by /health.
	Version = "1.0.0"

	// healthProbeTimeout bounds the store check in /health.
	healthProbeTimeout = 2 * time.Second
)

// ============================================================================
// SERVER
// ============================================================================

// Config configures the status server.
type Config struct {
	Addr string
	// BearerToken gates every route but /health when set.
	BearerToken string
	// RatePerSec and Burst bound requests per client IP (0 disables).
	RatePerSec float64
	Burst      int
	Logger     *slog.Logger
}

// Server serves health, metrics and read-only conversation history.
type Server struct {
	cfg     Config
	store   storage.Store
	auth    auth.Accessor
	metrics *telemetry.Metrics
	logger  *slog.Logger
	router  chi.Router
	server  *http.Server
	started time.Time
}

// New builds a server. metrics may be nil, in which case /metrics is absent.
func New(cfg Config, store storage.Store, accessor auth.Accessor, metrics *telemetry.Metrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		auth:    accessor,
		metrics: metrics,
		logger:  cfg.Logger,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
	)
	if s.cfg.RatePerSec > 0 {
		r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RatePerSec, s.cfg.Burst)))
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.BearerToken != "" {
			r.Use(AuthMiddleware(s.cfg.BearerToken))
		}
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}
		r.Route("/v1/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Get("/{id}", s.handleGetConversation)
			r.Get("/{id}/export", s.handleExportConversation)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router = r
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// ============================================================================
// HANDLERS
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	StoreStatus   string `json:"store_status"`
	SignedIn      bool   `json:"signed_in"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		StoreStatus:   "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}

	user := s.auth.CurrentUser()
	health.SignedIn = user != nil
	if user != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if _, err := s.store.ListHeaders(ctx, user.ID); err != nil {
			s.logger.Warn("health store probe failed", "error", err)
			health.StoreStatus = "unavailable"
			health.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, health)
}

// ConversationResponse is the body of GET /v1/conversations/{id}.
type ConversationResponse struct {
	model.ConversationHeader
	Turns []model.Turn `json:"turns"`
}

func (s *Server) requireUser(w http.ResponseWriter) *auth.User {
	user := s.auth.CurrentUser()
	if user == nil {
		writeError(w, http.StatusUnauthorized, "sign in with `medassist login` first")
	}
	return user
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w)
	if user == nil {
		return
	}
	headers, err := s.store.ListHeaders(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list conversations failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": headers})
}

func (s *Server) loadConversation(w http.ResponseWriter, r *http.Request) (model.Conversation, bool) {
	user := s.requireUser(w)
	if user == nil {
		return model.Conversation{}, false
	}
	id := chi.URLParam(r, "id")
	conv, err := storage.LoadConversation(r.Context(), s.store, user.ID, id)
	switch {
	case errors.Is(err, storage.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return model.Conversation{}, false
	case err != nil:
		s.logger.Error("load conversation failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return model.Conversation{}, false
	}
	return conv, true
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}
	turns := conv.Turns
	if turns == nil {
		turns = []model.Turn{}
	}
	writeJSON(w, http.StatusOK, ConversationResponse{ConversationHeader: conv.Header, Turns: turns})
}

func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}
	switch r.URL.Query().Get("format") {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(storage.ExportMarkdown(conv)))
	case "json":
		data, err := storage.ExportJSON(conv)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not export conversation")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "format must be md or json")
	}
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("server start", "addr", ln.Addr().String(), "version", Version)
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("server shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
