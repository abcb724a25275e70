package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seriesd/internal/api"
	"seriesd/internal/config"
	"seriesd/internal/logging"
)

const defaultHistoryLimit = 50

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.API.Token, srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.Handle("/metrics", s.daemon.Metrics().Handler())
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.daemon.apiAddr.Store(listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.daemon.apiAddr.Store("")
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, toDaemonStatus(s.daemon.Status(), time.Now()))
}

func (s *apiServer) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := time.Now()
	infos := s.daemon.Series()
	out := make([]api.Series, 0, len(infos))
	for _, info := range infos {
		out = append(out, api.FromWorkerInfo(info, now))
	}
	s.writeJSON(w, http.StatusOK, api.SeriesListResponse{Series: out})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultHistoryLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.daemon.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Runs: api.FromRuns(runs)})
}

func toDaemonStatus(status Status, now time.Time) api.DaemonStatus {
	checks := make([]api.CheckResult, 0, len(status.Preflight))
	for _, r := range status.Preflight {
		checks = append(checks, api.CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Mode:         status.Mode,
		Pipeline:     status.Pipeline,
		SourceDir:    status.SourceDir,
		DestDir:      status.DestDir,
		KeyFormat:    status.KeyFormat,
		IdleTimeout:  status.IdleTimeout.Seconds(),
		ActiveSeries: status.ActiveSeries,
		PendingFiles: status.PendingFiles,
		Counters: api.Counters{
			Ingested:       status.Ingested,
			Skipped:        status.Skipped,
			Failed:         status.Failed,
			StartedSeries:  status.Metrics.StartedSeries,
			FinishedSeries: status.Metrics.FinishedSeries,
			FailedSeries:   status.Metrics.FailedSeries,
			SetupFailures:  status.Metrics.SetupFailures,
			ItemsHandled:   status.Metrics.ItemsHandled,
			ItemFailures:   status.Metrics.ItemFailures,
			Rejected:       status.Metrics.Rejected,
		},
		LockFilePath:   status.LockFilePath,
		HistoryPath:    status.HistoryPath,
		Preflight:      checks,
		RegistryClosed: status.RegistryClosed,
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		payload.UptimeSeconds = now.Sub(status.StartedAt).Seconds()
	}
	return payload
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
