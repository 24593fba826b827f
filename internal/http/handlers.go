// Package http exposes the tool functions over a small JSON API so the agent
// runtime can call them. Tool responses are always HTTP 200: the envelope
// carries success or error. Only transport-level problems (malformed bodies,
// rate limiting) surface as non-200 responses.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meteoagent/weather-tool-service/internal/tools"
)

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	toolset *tools.Toolset
	logger  *zap.Logger

	// cachePing is set when the cache backend is memcached; apiCheck is a
	// cheap probe of the upstream credential. Either may be nil.
	cachePing func() error
	apiCheck  func(context.Context) error
}

// NewHandler returns a new Handler. cachePing and apiCheck may be nil.
func NewHandler(toolset *tools.Toolset, logger *zap.Logger, cachePing func() error, apiCheck func(context.Context) error) *Handler {
	return &Handler{
		toolset:   toolset,
		logger:    logger,
		cachePing: cachePing,
		apiCheck:  apiCheck,
	}
}

// PostForecast handles POST /tools/forecast.
func (h *Handler) PostForecast(w http.ResponseWriter, r *http.Request) {
	var args tools.ForecastArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	writeJSON(w, http.StatusOK, h.toolset.GetForecast(r.Context(), args))
}

// PostClimateImage handles POST /tools/climate-image.
func (h *Handler) PostClimateImage(w http.ResponseWriter, r *http.Request) {
	var args tools.ImageArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	writeJSON(w, http.StatusOK, h.toolset.GetClimateImage(r.Context(), args))
}

// PostSearchLocation handles POST /tools/search-location.
func (h *Handler) PostSearchLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", "query is required")
		return
	}
	writeJSON(w, http.StatusOK, h.toolset.SearchLocation(r.Context(), body.Query))
}

// GetHealth handles GET /health. Reports upstream credential validity and
// cache reachability when those checks are wired.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if h.apiCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		if err := h.apiCheck(ctx); err != nil {
			checks["meteoblueApi"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["meteoblueApi"] = "healthy"
		}
		cancel()
	}
	if h.cachePing != nil {
		if err := h.cachePing(); err != nil {
			checks["cache"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "weather-tool-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a transport-level error in the standard error format
// with code, message, and requestId (correlation ID) if available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
