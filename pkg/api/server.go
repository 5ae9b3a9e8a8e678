package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/clustergraph/pkg/engine"
	"github.com/rmax-ai/clustergraph/pkg/graph"
	"github.com/rmax-ai/clustergraph/pkg/provider"
	"github.com/rmax-ai/clustergraph/pkg/reports"
	"github.com/rmax-ai/clustergraph/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

const (
	defaultPassLimit = 50
	maxPassLimit     = 500
)

// Interfaces for dependencies to enable mocking

type PassStoreInterface interface {
	RecentPasses(ctx context.Context, filter store.PassFilter) ([]*store.PassRecord, error)
}

type GraphProjectionInterface interface {
	GetGraph() *graph.Graph
}

// SharedGraphInterface serves the graph published by the leader.
type SharedGraphInterface interface {
	Latest(ctx context.Context, clusterID string) (*graph.Graph, error)
}

type RefresherInterface interface {
	Refresh(ctx context.Context) (*engine.Result, error)
	Last() (*engine.Result, error)
}

type ElectionManagerInterface interface {
	IsLeader() bool
}

// Server encapsulates the HTTP API server
type Server struct {
	clusterID string
	passes    PassStoreInterface
	graph     GraphProjectionInterface
	shared    SharedGraphInterface
	refresher RefresherInterface
	election  ElectionManagerInterface
	logger    *slog.Logger

	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server instance. Any dependency may be nil; the endpoints that
// need it answer 503.
func NewServer(clusterID string, passes PassStoreInterface, graphProj GraphProjectionInterface, refresher RefresherInterface, addr string) *Server {
	s := &Server{
		clusterID: clusterID,
		passes:    passes,
		graph:     graphProj,
		refresher: refresher,
		logger:    slog.Default().With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/graph", s.handleGraph)
	mux.HandleFunc("/v1/passes", s.handlePasses)
	mux.HandleFunc("/v1/reports/{type}", s.handleReport)
	mux.HandleFunc("/v1/refresh", s.withLeaderCheck(s.handleRefresh))

	// Middleware: Logging, Panic Recovery, Security Headers
	s.handler = s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// SetElectionManager makes writes leader-only and lets followers serve the shared graph.
func (s *Server) SetElectionManager(em ElectionManagerInterface) {
	s.election = em
}

// SetSharedGraph sets where followers read the leader's graph from.
func (s *Server) SetSharedGraph(sg SharedGraphInterface) {
	s.shared = sg
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	s.logger.Info("Server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) isFollower() bool {
	return s.election != nil && !s.election.IsLeader()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		ClusterID: s.clusterID,
		Leader:    !s.isFollower(),
	}
	if s.refresher != nil {
		last, err := s.refresher.Last()
		if last != nil {
			resp.LastPassID = last.PassID
			resp.LastPassAt = &last.StartedAt
		}
		if err != nil {
			resp.LastError = err.Error()
		}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var g *graph.Graph
	if s.isFollower() && s.shared != nil {
		shared, err := s.shared.Latest(r.Context(), s.clusterID)
		if err != nil {
			s.logger.Error("Failed to read shared graph", "trace_id", getTraceID(r.Context()), "error", err)
			http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			return
		}
		g = shared
	} else if s.graph != nil {
		g = s.graph.GetGraph()
	}

	if g == nil {
		http.Error(w, `{"error":"graph_not_available"}`, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, g)
}

func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.passes == nil {
		http.Error(w, `{"error":"history_not_available"}`, http.StatusServiceUnavailable)
		return
	}

	limit := defaultPassLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid_limit"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxPassLimit)
	}

	filter := store.PassFilter{ClusterID: s.clusterID, Limit: limit}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, `{"error":"invalid_since","format":"RFC3339"}`, http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	passes, err := s.passes.RecentPasses(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to read passes", "trace_id", getTraceID(r.Context()), "error", err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if passes == nil {
		passes = []*store.PassRecord{}
	}
	s.writeJSON(w, r, http.StatusOK, passes)
}

// handleReport streams a CSV report over the pass history, bounded by optional RFC3339 start
// and end parameters.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.passes == nil {
		http.Error(w, `{"error":"history_not_available"}`, http.StatusServiceUnavailable)
		return
	}

	reportType := reports.ReportType(r.PathValue("type"))
	gen, err := reports.NewReportGenerator(reportType, s.passes)
	if err != nil {
		http.Error(w, `{"error":"unknown_report"}`, http.StatusNotFound)
		return
	}

	params := reports.ReportParams{ClusterID: s.clusterID}
	for key, dst := range map[string]*time.Time{"start": &params.Start, "end": &params.End} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, `{"error":"invalid_`+key+`","format":"RFC3339"}`, http.StatusBadRequest)
			return
		}
		*dst = t
	}

	body, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.logger.Error("Failed to generate report", "trace_id", getTraceID(r.Context()), "report", reportType, "error", err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.csv"`, s.clusterID, reportType))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("Failed to write report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.refresher == nil {
		http.Error(w, `{"error":"reconciler_not_configured"}`, http.StatusServiceUnavailable)
		return
	}

	res, err := s.refresher.Refresh(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrLeaseHeld):
		http.Error(w, `{"error":"lease_held"}`, http.StatusConflict)
		return
	case errors.Is(err, provider.ErrNoSnapshot):
		http.Error(w, `{"error":"no_snapshot"}`, http.StatusServiceUnavailable)
		return
	case errors.Is(err, engine.ErrInvariant):
		s.logger.Error("Refresh abandoned", "trace_id", getTraceID(r.Context()), "error", err)
		http.Error(w, `{"error":"invariant_violated"}`, http.StatusInternalServerError)
		return
	default:
		s.logger.Warn("Refresh failed", "trace_id", getTraceID(r.Context()), "error", err)
		http.Error(w, fmt.Sprintf(`{"error":"refresh_failed","details":%q}`, err.Error()), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "trace_id", getTraceID(r.Context()), "path", r.URL.Path, "error", err)
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered", "error", err, "path", r.URL.Path, "trace_id", getTraceID(r.Context()))
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Middleware: Leader Check (writes are refused on followers)
func (s *Server) withLeaderCheck(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || !s.isFollower() {
			next(w, r)
			return
		}
		http.Error(w, `{"error":"service_unavailable","reason":"not_leader"}`, http.StatusServiceUnavailable)
	}
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		next.ServeHTTP(w, r)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
