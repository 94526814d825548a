// Package dashboard serves the JSON API for browsing imported sessions,
// their correlated timelines and reconstructed communication flows.
package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/ingest"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

// Server serves the agentsight API.
type Server struct {
	auth         *Auth
	authDisabled bool
	store        session.Store
	importer     *ingest.Importer
	scanner      *engine.Scanner
	resolver     timeline.NameResolver
	version      string
	logger       *slog.Logger
	mux          *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithoutAuth serves the API without access-code authentication. The
// config self-audit flags this, so it stays a deliberate local-dev
// choice.
func WithoutAuth() Option {
	return func(s *Server) { s.authDisabled = true }
}

// NewServer creates an API server with access-code authentication.
// resolver may be nil; timelines then fall back to the display names
// recorded in each transcript.
func NewServer(store session.Store, importer *ingest.Importer, scanner *engine.Scanner, resolver timeline.NameResolver, version string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		auth:     NewAuth(),
		store:    store,
		importer: importer,
		scanner:  scanner,
		resolver: resolver,
		version:  version,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// AccessCode returns the one-time access code displayed in the terminal.
// Empty when authentication is disabled.
func (s *Server) AccessCode() string {
	if s.authDisabled {
		return ""
	}
	return s.auth.AccessCode()
}

// Handler returns the API handler with auth middleware applied.
func (s *Server) Handler() http.Handler {
	if s.authDisabled {
		return s.mux
	}
	return s.auth.Middleware(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleTranscript)
	s.mux.HandleFunc("GET /api/sessions/{id}/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/sessions/{id}/flow", s.handleFlow)
	s.mux.HandleFunc("GET /api/sessions/{id}/flow/active", s.handleActiveEdges)
	s.mux.HandleFunc("POST /api/import", s.handleImport)

	s.mux.HandleFunc("GET /api/agents", s.handleAgents)
	s.mux.HandleFunc("GET /api/agents/{id}/avatar.svg", s.handleAgentAvatar)

	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("GET /api/rules/{id}", s.handleRuleDetail)
	s.mux.HandleFunc("POST /api/scan", s.handleScan)
}
