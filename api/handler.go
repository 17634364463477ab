// Package api provides the admin HTTP API for Ripple automation management
// and the inbound webhook ingestion endpoint.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ripplehq/ripple"
)

// Handler is the root HTTP handler for the Ripple admin API.
type Handler struct {
	engine *ripple.Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates a new admin API handler.
func NewHandler(engine *ripple.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		engine: engine,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Automation rules
	h.mux.HandleFunc("POST /rules", h.createRule)
	h.mux.HandleFunc("GET /rules", h.listRules)
	h.mux.HandleFunc("GET /rules/{id}", h.getRule)
	h.mux.HandleFunc("PUT /rules/{id}", h.updateRule)
	h.mux.HandleFunc("PATCH /rules/{id}/activate", h.activateRule)
	h.mux.HandleFunc("PATCH /rules/{id}/deactivate", h.deactivateRule)
	h.mux.HandleFunc("POST /rules/{id}/dispatch", h.dispatchRule)
	h.mux.HandleFunc("POST /rules/test", h.testEvent)

	// Bank categorization rules
	h.mux.HandleFunc("POST /bank-rules", h.createBankRule)
	h.mux.HandleFunc("GET /bank-rules", h.listBankRules)
	h.mux.HandleFunc("GET /bank-rules/{id}", h.getBankRule)
	h.mux.HandleFunc("PUT /bank-rules/{id}", h.updateBankRule)
	h.mux.HandleFunc("PATCH /bank-rules/{id}/activate", h.activateBankRule)
	h.mux.HandleFunc("PATCH /bank-rules/{id}/deactivate", h.deactivateBankRule)
	h.mux.HandleFunc("POST /bank-rules/classify", h.classifyTransaction)

	// Events and queue
	h.mux.HandleFunc("POST /events", h.emitEvent)
	h.mux.HandleFunc("GET /queue/items", h.listItems)
	h.mux.HandleFunc("GET /queue/items/{id}", h.getItem)
	h.mux.HandleFunc("POST /queue/items/{id}/requeue", h.requeueItem)
	h.mux.HandleFunc("GET /queue/stats", h.queueStats)
	h.mux.HandleFunc("POST /queue/run-batch", h.runBatch)

	// Audit trail
	h.mux.HandleFunc("GET /audit", h.listAudit)

	// Inbound provider webhooks
	h.mux.HandleFunc("POST /ingest/{provider}", h.ingest)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
