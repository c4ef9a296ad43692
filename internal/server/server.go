// Package server exposes the playlist, channel and stream proxy HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voyagen/iptvdeck/internal/config"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/service"
	"github.com/voyagen/iptvdeck/internal/streamproxy"
)

// ProxyAlias is the legacy path the stream proxy also answers on.
const ProxyAlias = "/stream/proxy"

// Check is a named dependency probe reported by /api/health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Server holds dependencies for the HTTP API.
type Server struct {
	svc    *service.Service
	proxy  *streamproxy.Handler
	cfg    *config.Config
	checks []Check
	router chi.Router
	logger zerolog.Logger
}

// New creates a Server and registers routes.
func New(svc *service.Service, proxy *streamproxy.Handler, cfg *config.Config, checks ...Check) *Server {
	s := &Server{
		svc:    svc,
		proxy:  proxy,
		cfg:    cfg,
		checks: checks,
		router: chi.NewRouter(),
		logger: xlog.WithComponent("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/api/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/playlists", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Post("/", s.handleCreatePlaylist)
		r.Get("/", s.handleListPlaylists)
		r.Get("/{id}", s.handleGetPlaylist)
		r.Delete("/{id}", s.handleDeletePlaylist)
		r.Post("/{id}/refresh", s.handleRefreshPlaylist)
	})

	r.Get("/api/channels", s.handleListChannels)
	r.Get("/api/channels/{id}", s.handleGetChannel)

	r.Post("/api/stream/resolve", s.handleResolve)
	r.Group(func(r chi.Router) {
		if s.cfg.ProxyRateLimit > 0 {
			r.Use(httprate.Limit(s.cfg.ProxyRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Retry-After", "60")
					writeErr(w, http.StatusTooManyRequests, errors.New("too many proxy requests, try again later"))
				})))
		}
		for _, path := range proxyPaths(s.proxy.Endpoint()) {
			for _, m := range []string{http.MethodGet, http.MethodHead} {
				r.Method(m, path, s.proxy)
			}
		}
	})

	r.Get("/api/docs", handleSwaggerUI)
	r.Get("/api/docs/openapi.yaml", handleOpenAPISpec)
}

func proxyPaths(endpoint string) []string {
	if endpoint == ProxyAlias {
		return []string{endpoint}
	}
	return []string{endpoint, ProxyAlias}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Segments are streamed; keep the write budget generous.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("server shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Str("proxy", s.proxy.Endpoint()).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}
