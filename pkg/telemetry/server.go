package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gridci/gridci/pkg/report"
)

// StatusServer exposes metrics and the latest run report over HTTP while the
// process stays resident (watch mode).
type StatusServer struct {
	server *http.Server
	logger zerolog.Logger

	mu   sync.RWMutex
	last *report.Report
}

// NewStatusServer builds the server on a chi router.
func NewStatusServer(cfg MetricsConfig, metrics *Metrics, logger zerolog.Logger) *StatusServer {
	s := &StatusServer{
		logger: logger.With().Str("component", "status-server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/report", s.handleReport)

	s.server = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetReport publishes the most recent run report.
func (s *StatusServer) SetReport(rep *report.Report) {
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
}

func (s *StatusServer) handleReport(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	rep := s.last
	s.mu.RUnlock()

	if rep == nil {
		http.Error(w, "no run completed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := rep.WriteJSON(w); err != nil {
		s.logger.Error().Err(err).Msg("writing report response")
	}
}

// Start serves in a background goroutine.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("status server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
