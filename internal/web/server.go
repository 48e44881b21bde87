// Package web exposes the transaction service over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/transactions/internal/config"
	"github.com/JonMunkholm/transactions/internal/core"
	"github.com/JonMunkholm/transactions/internal/logging"
	"github.com/JonMunkholm/transactions/internal/web/middleware"
)

// Service is the part of core.Service the handlers use.
type Service interface {
	SaveUpload(ctx context.Context, fileName string, body io.Reader) (*core.UploadResult, error)
	ListForClientZones(ctx context.Context, year int, month string) ([]core.LocalTransaction, error)
	ListForCallerZone(ctx context.Context, ip string, year int, month string) ([]core.LocalTransaction, error)
	Export(ctx context.Context, spec core.ExportSpec) (*core.ExportFile, error)
	Limiter() *core.UploadLimiter
}

// HealthCheck is one named dependency probe for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP server.
type Server struct {
	service Service
	cfg     *config.Config
	checks  []HealthCheck
	router  *chi.Mux
	server  *http.Server

	limiters   []*middleware.RateLimiter
	stopSweeps context.CancelFunc
}

// NewServer builds the router. Rate limiter sweeps run until Shutdown.
func NewServer(service Service, cfg *config.Config, checks ...HealthCheck) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		checks:  checks,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweeps = cancel
	for _, rl := range s.limiters {
		go rl.Run(ctx)
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter("requests", s.cfg.Rate.RequestsPerMinute).Handler)
	}
}

// setupRoutes bounds every route by SERVER_REQUEST_TIMEOUT except uploads,
// which get the slot wait plus UPLOAD_TIMEOUT instead.
func (s *Server) setupRoutes() {
	timeout := withTimeout(s.cfg.Server.RequestTimeout)

	s.router.With(timeout).Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.With(timeout).Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	s.router.Route("/api/transactions", func(r chi.Router) {
		upload := r.With(withTimeout(s.uploadDeadline()))
		if s.cfg.Rate.Enabled {
			upload = upload.With(s.newLimiter("uploads", s.cfg.Rate.UploadLimit).Handler)
		}
		upload.Post("/upload", s.handleUpload)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/client-timezone/{year}", s.handleListClientZones)
			r.Get("/current-timezone/{year}", s.handleListCallerZone)
			r.Post("/export/excel", s.handleExport)
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// uploadDeadline is the longest an upload request may run: waiting for a
// slot, then processing.
func (s *Server) uploadDeadline() time.Duration {
	return s.cfg.Upload.MaxWaitTime + s.cfg.Upload.Timeout
}

// withTimeout is chi's Timeout middleware; d <= 0 disables it.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimw.Timeout(d)
}

func (s *Server) newLimiter(name string, perMinute int) *middleware.RateLimiter {
	rl := middleware.NewRateLimiter(name, perMinute, func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errRateLimited)
	})
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSweeps()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}
