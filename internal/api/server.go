// Package api provides the HTTP status server for pfp: live batch
// progress, partial results, stored run history, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/pfp/internal/app/progress"
	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/health"
	"github.com/tutu-network/pfp/internal/infra/pool"
	"github.com/tutu-network/pfp/internal/infra/report"
)

// ProgressSource exposes tracker state.
type ProgressSource interface {
	Snapshot() progress.Snapshot
}

// ResultSource exposes the records aggregated so far.
type ResultSource interface {
	Snapshot() []domain.FileAnalysis
}

// PoolSource exposes worker pool counters.
type PoolSource interface {
	Stats() pool.Stats
}

// Canceller requests cancellation of the live batch.
type Canceller interface {
	Cancel()
}

// Live describes the batch currently running in this process.
type Live struct {
	RunID    string
	Root     string
	Progress ProgressSource
	Results  ResultSource
	Pool     PoolSource
	Cancel   Canceller
}

// Server is the pfp HTTP API server.
type Server struct {
	mu   sync.RWMutex
	live *Live

	runs           domain.RunStore
	health         *health.Checker
	metricsEnabled bool
	log            *slog.Logger
}

// NewServer creates a new API server. runs and checker may be nil.
func NewServer(runs domain.RunStore, checker *health.Checker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{runs: runs, health: checker, log: log.With("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetLive publishes the running batch. Pass nil once it is gone.
func (s *Server) SetLive(l *Live) {
	s.mu.Lock()
	s.live = l
	s.mu.Unlock()
}

func (s *Server) current() *Live {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/progress", s.handleProgress)
		r.Get("/results", s.handleResults)
		r.Post("/cancel", s.handleCancel)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ListenAndServe binds addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

type progressResponse struct {
	RunID     string                       `json:"run_id"`
	Root      string                       `json:"root,omitempty"`
	Total     int                          `json:"total"`
	Completed int                          `json:"completed"`
	Failed    int                          `json:"failed"`
	Cancelled int                          `json:"cancelled"`
	Settled   int                          `json:"settled"`
	Percent   float64                      `json:"percent"`
	Statuses  map[string]domain.FileStatus `json:"statuses"`
	Pool      *pool.Stats                  `json:"pool,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	live := s.current()
	if live == nil || live.Progress == nil {
		writeError(w, http.StatusNotFound, "no batch is running")
		return
	}

	snap := live.Progress.Snapshot()
	resp := progressResponse{
		RunID:     live.RunID,
		Root:      live.Root,
		Total:     snap.Total,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Cancelled: snap.Cancelled,
		Settled:   snap.Settled(),
		Percent:   snap.Percent(),
		Statuses:  snap.Statuses,
	}
	if live.Pool != nil {
		ps := live.Pool.Stats()
		resp.Pool = &ps
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	live := s.current()
	if live == nil || live.Results == nil {
		writeError(w, http.StatusNotFound, "no batch is running")
		return
	}
	writeJSON(w, http.StatusOK, report.NewDocument(live.Results.Snapshot()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	live := s.current()
	if live == nil || live.Cancel == nil {
		writeError(w, http.StatusNotFound, "no batch is running")
		return
	}
	live.Cancel.Cancel()
	s.log.Info("batch cancellation requested", "run", live.RunID, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "run_id": live.RunID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.runs.GetRun(r.Context(), id)
	if err == nil {
		var results []domain.FileAnalysis
		results, err = s.runs.RunResults(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"run":    run,
				"report": report.NewDocument(results),
			})
			return
		}
	}
	if errors.Is(err, domain.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("get run", "run", id, "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
