// Package server exposes the engine's HTTP surface: the control plane
// (start/stop/status/clear-blocks, state and session listings) and the
// realtime update gateway streaming newline-delimited JSON events.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/blocklist"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/engine"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/session"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// PlatformAPI is everything the HTTP surface needs from the platform
// client: the worker API plus attachment listing.
type PlatformAPI interface {
	engine.API
	ListAttachments(ctx context.Context, creds platform.Credentials, profileID, kind string) ([]models.Attachment, error)
}

// Service is the engine's HTTP service.
type Service struct {
	version string
	cfg     *config.Store
	api     PlatformAPI
	blocks  *blocklist.Registry
	states  *session.Store
	sup     *engine.Supervisor
	router  chi.Router

	startTime     time.Time
	streamClients atomic.Int64
}

// New wires a Service over its collaborators and mounts the routes.
func New(version string, cfg *config.Store, api PlatformAPI, blocks *blocklist.Registry, states *session.Store, sup *engine.Supervisor) *Service {
	s := &Service{
		version:   version,
		cfg:       cfg,
		api:       api,
		blocks:    blocks,
		states:    states,
		sup:       sup,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Router returns the mounted HTTP handler.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/{kind}/start", s.handleStart)
		r.Post("/{kind}/stop", s.handleStop)
		r.Get("/{kind}/status", s.handleStatus)
		r.Post("/{kind}/clear-blocks", s.handleClearBlocks)
		r.Get("/{kind}/blocks", s.handleBlocks)

		r.Get("/states", s.handleStates)
		r.Get("/sessions", s.handleSessions)
		r.Post("/stop-all", s.handleStopAll)
		r.Post("/logout", s.handleLogout)
		r.Get("/attachments", s.handleAttachments)

		r.Get("/stream", s.handleStream)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       s.version,
		"uptimeSeconds": int(time.Since(s.startTime).Seconds()),
		"workers":       s.sup.WorkerCount(),
		"sessions":      s.states.SessionCount(),
		"streamClients": s.streamClients.Load(),
	})
}
