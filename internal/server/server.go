// Package server exposes the operator surface over HTTP: trigger a run,
// inspect the last report, pause or resume a trading day's batch.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dnavarro/kalshibot/internal/application/engine"
	"github.com/dnavarro/kalshibot/internal/ports"
)

// Runner is the engine surface the server needs.
type Runner interface {
	RunOnce(ctx context.Context) (*engine.RunReport, error)
}

// Server serializes operator-triggered runs and remembers the last report.
type Server struct {
	runner Runner
	ledger ports.Ledger

	mu         sync.Mutex
	lastReport *engine.RunReport
}

func New(runner Runner, ledger ports.Ledger) *Server {
	return &Server{runner: runner, ledger: ledger}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/run", s.handleRun)
	r.Get("/report/latest", s.handleLatestReport)
	r.Post("/batches/{date}/pause", s.handleSetPaused(true))
	r.Post("/batches/{date}/resume", s.handleSetPaused(false))

	return r
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun executes one engine pass. The mutex makes operator-triggered runs
// mutually exclusive; the scheduler loop uses the same lock via RunAndStore.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.RunAndStore(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RunAndStore runs the engine under the server's run lock and records the
// report for /report/latest.
func (s *Server) RunAndStore(ctx context.Context) (*engine.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.runner.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	s.lastReport = report
	return report, nil
}

func (s *Server) handleLatestReport(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	report := s.lastReport
	s.mu.Unlock()

	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := chi.URLParam(r, "date")
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}

		err := s.ledger.SetBatchPaused(r.Context(), date, paused)
		if errors.Is(err, ports.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no batch for " + date})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		slog.Info("server: batch pause state changed", "batch_date", date, "paused", paused)
		writeJSON(w, http.StatusOK, map[string]any{"batch_date": date, "is_paused": paused})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: write response", "err", err)
	}
}
