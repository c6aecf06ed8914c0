package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boofi-labs/keeper/internal/logger"
	"github.com/boofi-labs/keeper/internal/state"
	"github.com/boofi-labs/keeper/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// SnapshotSource exposes the latest cycle. *keeper.Keeper satisfies it.
type SnapshotSource interface {
	Latest() *types.CycleSnapshot
}

// AttemptReader reads the liquidation journal. *state.Store satisfies it.
type AttemptReader interface {
	Ping(ctx context.Context) error
	RecentAttempts(ctx context.Context, limit int, vaults []common.Address) ([]state.Attempt, error)
	GetAttemptStats(ctx context.Context) (state.AttemptStats, error)
}

// Options configures the ops server.
type Options struct {
	Port      string
	Snapshots SnapshotSource
	// Journal is optional; the attempts endpoints return 404 without it.
	Journal AttemptReader
	// StaleAfter marks the keeper degraded when the last cycle is older. Zero disables the check.
	StaleAfter time.Duration
	Mode       string
}

// WebServer serves health, journal and metrics endpoints for operators.
type WebServer struct {
	router     *mux.Router
	port       string
	snapshots  SnapshotSource
	journal    AttemptReader
	staleAfter time.Duration
	mode       string
	startedAt  time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	port := opts.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		snapshots:  opts.Snapshots,
		journal:    opts.Journal,
		staleAfter: opts.StaleAfter,
		mode:       opts.Mode,
		startedAt:  time.Now().UTC(),
	}

	server.setupRoutes()
	return server
}

// Handler returns the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	ws.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet, http.MethodOptions)

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/attempts", ws.handleGetAttempts).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/attempts/stats", ws.handleGetAttemptStats).Methods(http.MethodGet, http.MethodOptions)

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start serves until ctx is done, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var hasErrors bool
	var cycleInfo map[string]interface{}

	var latest *types.CycleSnapshot
	if ws.snapshots != nil {
		latest = ws.snapshots.Latest()
	}
	if latest != nil {
		stale := ws.staleAfter > 0 && time.Since(latest.FinishedAt) > ws.staleAfter
		status := "completed"
		if latest.QueryError != "" {
			status = "query_failed"
		}
		cycleInfo = map[string]interface{}{
			"current_cycle":     latest.CycleNumber,
			"cycle_id":          latest.CycleID,
			"last_cycle_time":   latest.FinishedAt,
			"last_cycle_status": status,
			"stale":             stale,
			"scanned":           latest.Scanned,
			"liquidatable":      latest.Liquidatable,
			"attempted":         latest.Attempted,
			"succeeded":         latest.Succeeded,
			"failed":            latest.Failed,
		}
		hasErrors = latest.QueryError != "" || stale
	} else {
		cycleInfo = map[string]interface{}{
			"current_cycle":     0,
			"last_cycle_time":   nil,
			"last_cycle_status": "pending",
		}
	}

	dbStatus := "disabled"
	if ws.journal != nil {
		dbStatus = "healthy"
		if err := ws.journal.Ping(r.Context()); err != nil {
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name": "vault-liquidation-keeper",
			"mode": ws.mode,
		},
		"keeper_status": map[string]interface{}{
			"database":          dbStatus,
			"has_recent_errors": hasErrors,
			"cycle_info":        cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	var latest *types.CycleSnapshot
	if ws.snapshots != nil {
		latest = ws.snapshots.Latest()
	}
	if latest == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, latest)
}

// handleGetAttempts returns recent journaled attempts, optionally filtered by ?vault=addr,addr
func (ws *WebServer) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	if ws.journal == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Journal is disabled")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	var vaults []common.Address
	if raw := r.URL.Query().Get("vault"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if !common.IsHexAddress(part) {
				ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
				return
			}
			vaults = append(vaults, common.HexToAddress(part))
		}
	}

	attempts, err := ws.journal.RecentAttempts(r.Context(), limit, vaults)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent attempts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve attempts")
		return
	}

	response := map[string]interface{}{
		"attempts": attempts,
		"count":    len(attempts),
		"limit":    limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetAttemptStats returns aggregate journal counts
func (ws *WebServer) handleGetAttemptStats(w http.ResponseWriter, r *http.Request) {
	if ws.journal == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Journal is disabled")
		return
	}

	stats, err := ws.journal.GetAttemptStats(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get attempt stats")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve attempt stats")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, stats)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
