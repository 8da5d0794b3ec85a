// Package monitor serves the operator endpoints: Prometheus metrics, liveness,
// chain stats and an on-demand integrity check.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaibhaw-/snapguard/internal/snapguard/app"
	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
)

type Server struct {
	app    *app.App
	router *mux.Router
	server *http.Server

	mu   sync.RWMutex
	last *ledger.VerifyReport // most recent scheduled integrity result
	at   time.Time
}

func New(a *app.App) *Server {
	s := &Server{app: a, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/integrity", s.handleIntegrity).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/entries/{hash}", s.handleEntry).Methods(http.MethodGet)
}

// Observe records a scheduled integrity result for /healthz.
func (s *Server) Observe(report *ledger.VerifyReport, err error) {
	if report == nil {
		return
	}
	s.mu.Lock()
	s.last, s.at = report, time.Now().UTC()
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warnw("monitor: write response", "err", err)
	}
}

// handleHealth reports 503 once the last scheduled check found damage or the
// firewall is locked down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last, at := s.last, s.at
	s.mu.RUnlock()

	body := map[string]any{"status": "ok", "lockdown": s.app.Firewall.InLockdown()}
	status := http.StatusOK
	if last != nil {
		body["last_check"] = at.Format(time.RFC3339)
		body["chain_valid"] = last.Valid
		if !last.Valid {
			body["status"] = "compromised"
			status = http.StatusServiceUnavailable
		}
	}
	if s.app.Firewall.InLockdown() {
		body["status"] = "lockdown"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Gate.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Gate.IntegrityCheck(r.Context())
	s.Observe(report, err)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	h := mux.Vars(r)["hash"]
	e, err := s.app.Ledger.Get(r.Context(), h)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	ok, err := s.app.Audit.Verify(r.Context(), h)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": e, "verified": ok})
}

// Run serves on addr and runs the background jobs until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	log := logger.L()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		s.app.RunJobs(jobsCtx, s.Observe)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("monitor: listening", "addr", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := s.server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	stopJobs()
	<-jobsDone
	log.Infow("monitor: stopped")
	return err
}
