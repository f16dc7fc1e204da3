// Package api exposes session status, findings, and a live session event
// stream over HTTP for operators watching a research database.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"fortean/adapters/report"
	"fortean/domain/core"
	"fortean/ports"
)

// SessionLogReader reads back the persisted narration of a session.
type SessionLogReader interface {
	Log(ctx context.Context, sessionID core.SessionID) ([]ports.SessionEntry, error)
}

// Server is the status API.
type Server struct {
	router   *chi.Mux
	sessions ports.SessionRepository
	findings ports.FindingRepository
	log      SessionLogReader
	hub      *Hub
	renderer *report.Renderer
	logger   *zap.Logger
}

func NewServer(sessions ports.SessionRepository, findings ports.FindingRepository, log SessionLogReader, hub *Hub) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		sessions: sessions,
		findings: findings,
		log:      log,
		hub:      hub,
		renderer: report.NewRenderer(),
		logger:   zap.L().With(zap.String("component", "api")),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Get("/api/sessions", s.handleListSessions)
	s.router.Get("/api/sessions/{id}", s.handleGetSession)
	s.router.Get("/api/sessions/{id}/findings", s.handleSessionFindings)
	s.router.Get("/api/sessions/{id}/report", s.handleSessionReport)
	s.router.Get("/api/sessions/{id}/events", s.handleSessionEvents)

	s.router.Get("/api/findings", s.handleRecentFindings)
	s.router.Get("/api/findings/{id}", s.handleGetFinding)
}

// Router returns the configured handler, mountable in tests
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails
func (s *Server) Start(addr string) error {
	s.logger.Info("status api listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.router)
}
