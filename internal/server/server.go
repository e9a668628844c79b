// Package server exposes the assistant over HTTP for chat front-ends.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	"github.com/ggonzalez94/edufi-cli/internal/cache"
	"github.com/ggonzalez94/edufi-cli/internal/metrics"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "server").Logger()
}

type Config struct {
	Address               string
	AllowedOrigins        []string
	RatePerMinute         int
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	ExplorerTTL           time.Duration
	MarketTTL             time.Duration
	MaxStale              time.Duration
	SweepEvery            time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:               "127.0.0.1:8787",
		AllowedOrigins:        []string{"http://localhost:3000"},
		RatePerMinute:         120,
		MaxConcurrentRequests: 64,
		RequestTimeout:        30 * time.Second,
		ExplorerTTL:           30 * time.Second,
		MarketTTL:             5 * time.Minute,
		MaxStale:              5 * time.Minute,
		SweepEvery:            time.Minute,
	}
}

type Server struct {
	config     Config
	svc        *assistant.Service
	cache      cache.Backend
	metrics    *metrics.Metrics
	mux        *chi.Mux
	httpServer *http.Server
	now        func() time.Time
}

// New builds the router. cache may be nil, in which case every read goes to
// the providers.
func New(cfg Config, svc *assistant.Service, c cache.Backend, m *metrics.Metrics) *Server {
	def := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ExplorerTTL <= 0 {
		cfg.ExplorerTTL = def.ExplorerTTL
	}
	if cfg.MarketTTL <= 0 {
		cfg.MarketTTL = def.MarketTTL
	}

	s := &Server{config: cfg, svc: svc, cache: c, metrics: m, now: time.Now}

	mux := chi.NewMux()
	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Timeout(cfg.RequestTimeout))
	mux.Use(s.metricsMiddleware)
	if cfg.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.RatePerMinute, time.Minute))
	}
	if cfg.MaxConcurrentRequests > 0 {
		mux.Use(middleware.Throttle(cfg.MaxConcurrentRequests))
	}

	mux.Handle("/metrics", m.Handler())
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"edufi"}`))
	})

	mux.Route("/v1", func(r chi.Router) {
		r.Use(noCache)
		r.Get("/tokens", s.handleTokens)
		r.Get("/routes", s.handleRoutes)
		r.Get("/quote", s.handleQuote)
		r.Get("/bridge/estimate", s.handleBridgeEstimate)
		r.Get("/price", s.handlePrice)
		r.Get("/network", s.handleNetwork)
		r.Get("/balance", s.handleBalance)
		r.Post("/intents", s.handleIntent)
		r.Get("/actions", s.handleActions)
		r.Get("/actions/{actionID}", s.handleAction)
	})
	s.mux = mux

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           newCORSHandler(cfg.AllowedOrigins, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler is the full middleware chain, CORS included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully. The cache
// sweeper runs for the lifetime of the server.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go cache.Sweep(ctx, s.cache, s.config.SweepEvery)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.config.Address).Msg("edufi server starting")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
		return err
	}
	return nil
}
