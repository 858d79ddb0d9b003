// Package server exposes scan sessions over HTTP.
//
// Routes:
//
//	GET    /healthz
//	POST   /v1/scans              multipart "image" + language, documentType, preferredService
//	GET    /v1/scans/{id}
//	POST   /v1/scans/{id}/retry
//	DELETE /v1/scans/{id}
//	POST   /v1/quality            multipart "image"
//
// Scans run on their own goroutine; clients poll the session for progress and
// the result.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/quality"
	"docscan/pkg/services"
)

// Config tunes the HTTP layer.
type Config struct {
	RateLimitRPS   float64       // per client; <= 0 disables limiting
	RateLimitBurst int           // per client
	ScanTimeout    time.Duration // upper bound for one scan run
	SessionTTL     time.Duration // idle sessions older than this are evicted
	MaxUploadBytes int64
}

// DefaultConfig returns the settings used when the environment sets nothing.
func DefaultConfig() Config {
	return Config{
		RateLimitRPS:   5,
		RateLimitBurst: 10,
		ScanTimeout:    2 * time.Minute,
		SessionTTL:     30 * time.Minute,
		MaxUploadBytes: pixel.MaxUploadBytes,
	}
}

// Server owns the scan sessions and their HTTP routes.
type Server struct {
	config   Config
	scanner  services.Scanner
	assessor *quality.Assessor
	sessions *store
	log      zerolog.Logger
	router   chi.Router

	// base is the parent context of every scan; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a server that scans with scanner.
func New(scanner services.Scanner, config Config) *Server {
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = DefaultConfig().ScanTimeout
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = pixel.MaxUploadBytes
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		scanner:  scanner,
		assessor: quality.New(),
		sessions: newStore(config.SessionTTL),
		log:      logger.WithComponent("server"),
		base:     base,
		cancel:   cancel,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(chimiddleware.Recoverer)

	if s.config.RateLimitRPS > 0 {
		rl := newRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
		r.Use(rl.Limit)
	}

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.createScan)
			r.Get("/{id}", s.getScan)
			r.Post("/{id}/retry", s.retryScan)
			r.Delete("/{id}", s.deleteScan)
		})
		r.Post("/quality", s.assessQuality)
	})

	return r
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels scans still in flight.
func (s *Server) Close() {
	s.cancel()
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
