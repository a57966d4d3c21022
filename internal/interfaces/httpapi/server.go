package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"fraudpulse/internal/application"
	"fraudpulse/internal/config"
	"fraudpulse/internal/domain"
)

// Feed is the live session served by the API.
type Feed interface {
	ID() string
	ConnectionState() domain.ConnectionState
	Recent(limit int) []domain.ScoredTransaction
	Stats() *domain.DerivedStats
	LatestID() int64
	Size() int
	Select(id int64) (domain.ScoredTransaction, error)
	ClearSelection()
	Selection() application.SelectionState
}

// Backend is the subset of the scoring backend proxied by the API.
type Backend interface {
	FetchTransactions(ctx context.Context, page, limit int) (domain.TransactionPage, error)
	Health(ctx context.Context) (domain.BackendHealth, error)
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	cfg       config.Config
	feed      Feed
	backend   Backend
	archive   application.ArchiveRepository
	metrics   *Metrics
	buildInfo BuildInfo
}

// NewServer builds the local API. archive may be nil when archiving is disabled.
func NewServer(cfg config.Config, feed Feed, backend Backend, archive application.ArchiveRepository, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if feed == nil || backend == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, feed: feed, backend: backend, archive: archive, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/archive", s.handleArchive)
	mux.HandleFunc("/selection", s.handleSelection)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health, err := s.backend.Health(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "backend not ready")
		return
	}
	if !health.ModelsLoaded || !health.DataLoaded {
		respondError(w, http.StatusServiceUnavailable, "backend models or data not loaded")
		return
	}
	if s.archive != nil {
		if err := s.archive.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "archive not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":       s.feed.ID(),
		"connection_state": s.feed.ConnectionState(),
		"latest_id":        s.feed.LatestID(),
		"store_size":       s.feed.Size(),
		"config": map[string]any{
			"backend_url":        s.cfg.BackendURL,
			"ws_url":             s.cfg.WSURL,
			"store_capacity":     s.cfg.StoreCapacity,
			"display_limit":      s.cfg.DisplayLimit,
			"poll_interval":      s.cfg.PollInterval.String(),
			"poll_limit":         s.cfg.PollLimit,
			"fallback_threshold": s.cfg.FallbackThreshold,
			"stats_source":       s.cfg.StatsSource,
			"archive_driver":     s.cfg.ArchiveDriver,
		},
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"connection_state": s.feed.ConnectionState(),
		"latest_id":        s.feed.LatestID(),
		"transactions":     s.feed.Recent(limit),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.feed.Stats())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, err := parseIntParam(r, "page", 1)
	if err != nil || page < 1 {
		respondError(w, http.StatusBadRequest, "invalid page")
		return
	}
	limit, err := parseIntParam(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := s.backend.FetchTransactions(r.Context(), page, application.NormalizeLimit(limit, 50, 200))
	if err != nil {
		respondError(w, http.StatusBadGateway, "backend history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "archive disabled")
		return
	}
	sinceID, err := parseIntParam(r, "since_id", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntParam(r, "limit", application.DefaultArchiveLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	risk := domain.RiskLevel(strings.ToUpper(r.URL.Query().Get("risk_level")))
	if risk != "" && !risk.Valid() {
		respondError(w, http.StatusBadRequest, "invalid risk_level")
		return
	}
	rows, err := s.archive.QueryTransactions(r.Context(), application.ArchiveQueryFilter{
		SinceID:   int64(sinceID),
		RiskLevel: risk,
		Limit:     limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []domain.ScoredTransaction{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.feed.Selection())
	case http.MethodPost:
		id, err := parseIntParam(r, "id", -1)
		if err != nil || id < 0 {
			respondError(w, http.StatusBadRequest, "id is required")
			return
		}
		tx, err := s.feed.Select(int64(id))
		switch {
		case errors.Is(err, application.ErrTransactionNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, application.ErrSessionNotStarted):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			respondError(w, http.StatusInternalServerError, "selection failed")
		default:
			respondJSON(w, http.StatusAccepted, tx)
		}
	case http.MethodDelete:
		s.feed.ClearSelection()
		w.WriteHeader(http.StatusNoContent)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	fmt.Fprintf(w, "fraudpulse_uptime_seconds %.0f\n", time.Since(snap.StartTime).Seconds())
	for _, state := range []domain.ConnectionState{domain.ConnectionConnecting, domain.ConnectionPush, domain.ConnectionPoll} {
		active := 0
		if s.feed.ConnectionState() == state {
			active = 1
		}
		fmt.Fprintf(w, "fraudpulse_connection_state{state=%q} %d\n", state, active)
	}
	fmt.Fprintf(w, "fraudpulse_store_size %d\n", s.feed.Size())
	fmt.Fprintf(w, "fraudpulse_latest_id %d\n", s.feed.LatestID())
	fmt.Fprintf(w, "fraudpulse_connection_state_changes_total %d\n", snap.StateChanges)
	fmt.Fprintf(w, "fraudpulse_push_failures_total %d\n", snap.PushFailures)
	fmt.Fprintf(w, "fraudpulse_push_consecutive_failures %d\n", snap.ConsecutiveFailures)
	fmt.Fprintf(w, "fraudpulse_push_reconnects_total %d\n", snap.Reconnects)
	fmt.Fprintf(w, "fraudpulse_push_last_reconnect_delay_seconds %.3f\n", snap.LastReconnectDelay.Seconds())
	fmt.Fprintf(w, "fraudpulse_decode_errors_total %d\n", snap.DecodeErrors)
	fmt.Fprintf(w, "fraudpulse_polls_total %d\n", snap.Polls)
	fmt.Fprintf(w, "fraudpulse_poll_received_total %d\n", snap.PollReceived)
	fmt.Fprintf(w, "fraudpulse_poll_added_total %d\n", snap.PollAdded)
	fmt.Fprintf(w, "fraudpulse_poll_errors_total %d\n", snap.PollErrors)
	fmt.Fprintf(w, "fraudpulse_mirror_flushed_total %d\n", snap.MirrorFlushed)
	fmt.Fprintf(w, "fraudpulse_mirror_dropped_total %d\n", snap.MirrorDropped)
	sinks := make([]string, 0, len(snap.MirrorErrors))
	for sink := range snap.MirrorErrors {
		sinks = append(sinks, sink)
	}
	sort.Strings(sinks)
	for _, sink := range sinks {
		fmt.Fprintf(w, "fraudpulse_mirror_errors_total{sink=%q} %d\n", sink, snap.MirrorErrors[sink])
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parseIntParam(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return value, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
