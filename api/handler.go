// Package api provides the management HTTP API for Herald.
//
// Every route is scoped to the caller's organization, which the upstream
// auth layer passes in the X-Organization-ID header.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/scope"
)

// HeaderOrganization carries the caller's organization id.
const HeaderOrganization = "X-Organization-ID"

// Default and maximum page sizes for list routes.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Config configures the management API.
type Config struct {
	// AllowedOrigins lists origins allowed by CORS. "*" allows any origin.
	// Empty disables CORS headers.
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
}

// Handler is the root HTTP handler for the management API.
type Handler struct {
	herald *herald.Herald
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates a new management API handler.
func NewHandler(h *herald.Herald, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	handler := &Handler{
		herald: h,
		config: cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	handler.registerRoutes()
	return handler
}

func (h *Handler) registerRoutes() {
	// Webhooks
	h.mux.HandleFunc("GET /webhooks", h.listWebhooks)
	h.mux.HandleFunc("POST /webhooks", h.createWebhook)
	h.mux.HandleFunc("GET /webhooks/{id}", h.getWebhook)
	h.mux.HandleFunc("PUT /webhooks/{id}", h.updateWebhook)
	h.mux.HandleFunc("DELETE /webhooks/{id}", h.deleteWebhook)
	h.mux.HandleFunc("POST /webhooks/{id}/test", h.testWebhook)
	h.mux.HandleFunc("POST /webhooks/{id}/rotate-secret", h.rotateSecret)

	// Dispatch
	h.mux.HandleFunc("POST /dispatch", h.dispatch)
	h.mux.HandleFunc("POST /broadcast", h.broadcast)

	// Deliveries
	h.mux.HandleFunc("GET /deliveries", h.listDeliveries)
	h.mux.HandleFunc("GET /deliveries/{id}", h.getDelivery)
	h.mux.HandleFunc("POST /deliveries/{id}/replay", h.replayDelivery)

	// Catalog
	h.mux.HandleFunc("GET /event-types", h.listEventTypes)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(h.cors(h.organization(next))))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
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
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors answers preflight requests from allowed origins and decorates their
// responses. Other OPTIONS requests go through the normal checks.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && h.originAllowed(origin)
		if allowed {
			hdr := w.Header()
			if slices.Contains(h.config.AllowedOrigins, "*") {
				hdr.Set("Access-Control-Allow-Origin", "*")
			} else {
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Add("Vary", "Origin")
			}
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderOrganization)
			hdr.Set("Access-Control-Max-Age", "86400")
		}

		if allowed && r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	for _, o := range h.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// organization rejects requests without an organization and stores it in
// the request context.
func (h *Handler) organization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(HeaderOrganization))
		if orgID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderOrganization+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(scope.WithOrganization(r.Context(), orgID)))
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

// ──────────────────────────────────────────────────
// Errors
// ──────────────────────────────────────────────────

// errorStatus maps Herald errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *endpoint.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, herald.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, herald.ErrWebhookNotFound), errors.Is(err, herald.ErrDeliveryNotFound):
		return http.StatusNotFound
	case errors.Is(err, herald.ErrNotSubscribed), errors.Is(err, herald.ErrNotDeadLettered):
		return http.StatusConflict
	case errors.Is(err, herald.ErrInvalidPayload), errors.Is(err, herald.ErrUnknownEventType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, herald.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Server-side failures are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

// ──────────────────────────────────────────────────
// JSON helpers
// ──────────────────────────────────────────────────

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

// orgOf returns the organization installed by the organization middleware.
func orgOf(r *http.Request) string {
	return scope.Capture(r.Context())
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// page reads offset and limit, clamping limit to maxLimit.
func page(r *http.Request) (offset, limit int) {
	offset = queryInt(r, "offset", 0)
	limit = queryInt(r, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

// queryInt returns a non-negative query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
