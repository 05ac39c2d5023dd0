// Package server wires the review API handlers, middleware and the activity
// feed into an HTTP server and manages its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/scrypster/fileflow/internal/config"
	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/web/handlers"
)

// shutdownTimeout bounds graceful shutdown once the start context ends.
const shutdownTimeout = 5 * time.Second

// Deps are the components served over HTTP.
type Deps struct {
	Store    storage.RecordStore
	Vectors  handlers.VectorIndex
	Memory   handlers.EntityMemory
	Embedder handlers.Embedder

	// Backups is optional; without it the backup action reports 503.
	Backups handlers.Backuper
}

// Server is the FileFlow HTTP server.
type Server struct {
	cfg       *config.Config
	deps      Deps
	hub       *handlers.WebSocketHub
	retention int
	done      chan struct{}
}

// New returns a Server. Every dependency is required.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil || deps.Store == nil || deps.Vectors == nil || deps.Memory == nil || deps.Embedder == nil {
		return nil, fmt.Errorf("%w: server requires config, store, vectors, memory and embedder", storage.ErrInvalidInput)
	}
	port := strconv.Itoa(cfg.Server.Port)
	return &Server{
		cfg:       cfg,
		deps:      deps,
		hub:       handlers.NewWebSocketHub("localhost:"+port, "127.0.0.1:"+port, net.JoinHostPort(cfg.Server.Host, port)),
		retention: cfg.Activity.RetentionDays,
		done:      make(chan struct{}),
	}, nil
}

// Done is closed once a started server has finished shutting down and no
// request is in flight.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Hub returns the activity feed hub so callers can publish entries.
func (s *Server) Hub() *handlers.WebSocketHub {
	return s.hub
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	reviews := handlers.NewReviewHandler(s.deps.Store)
	stats := handlers.NewStatsHandler(s.deps.Store, s.deps.Vectors)
	activity := handlers.NewActivityHandler(s.deps.Store)
	entities := handlers.NewEntityHandler(s.deps.Memory)
	search := handlers.NewSearchHandler(s.deps.Embedder, s.deps.Vectors)
	export := handlers.NewExportHandler(s.deps.Store)
	maintenance := handlers.NewMaintenanceHandler(s.deps.Store, s.deps.Vectors, s.deps.Memory, s.retention).
		WithBackups(s.deps.Backups)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/reviews", reviews.List)
	apiMux.HandleFunc("POST /api/reviews/{id}/approve", reviews.Approve)
	apiMux.HandleFunc("POST /api/reviews/{id}/reject", reviews.Reject)
	apiMux.HandleFunc("GET /api/stats", stats.GetStats)
	apiMux.HandleFunc("GET /api/activity", activity.GetActivity)
	apiMux.HandleFunc("GET /api/entities", entities.Statistics)
	apiMux.HandleFunc("GET /api/entities/search", entities.Search)
	apiMux.HandleFunc("GET /api/context", entities.Context)
	apiMux.HandleFunc("GET /api/search", search.Search)
	apiMux.HandleFunc("GET /api/export", export.Export)
	apiMux.HandleFunc("POST /api/maintenance/{action}", maintenance.Run)
	apiMux.HandleFunc("GET /api/backups", maintenance.Backups)

	mux := http.NewServeMux()

	// Health endpoint, no auth required
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","vector_backend":"` + s.deps.Vectors.Backend() + `"}`))
	})
	mux.Handle("/api/", handlers.RequireAuth(apiMux, s.cfg.Server))

	// WebSocket endpoint (origin validation instead of auth)
	mux.Handle("GET /ws", s.hub)

	handler := handlers.RateLimitMiddleware(mux, handlers.NewRateLimiter(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst))
	return securityHeadersMiddleware(handler)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully. It returns the bound address, which differs
// from the configured one when the port is 0.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := s.cfg.Server.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server: serve failed", err)
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server: shutdown failed", err)
		}
		s.hub.Stop()
		log.Infow("server: stopped")
	}()

	actual := listener.Addr().String()
	log.Infow("server: listening", "addr", actual, "security_mode", s.cfg.Server.SecurityMode)
	return actual, nil
}
