package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "kpidash/internal/errors"
	"kpidash/internal/services"
)

// MetricsHandler exposes the Prometheus scrape endpoint and a small JSON
// summary of in-process state.
type MetricsHandler struct {
	prometheus   http.Handler
	cache        services.CacheSizer
	hub          services.ClientCounter
	errorHandler *apierrors.ErrorHandler
}

// NewMetricsHandler creates a new metrics handler. Any argument but
// errorHandler may be nil.
func NewMetricsHandler(prometheus http.Handler, cache services.CacheSizer, hub services.ClientCounter, errorHandler *apierrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{
		prometheus:   prometheus,
		cache:        cache,
		hub:          hub,
		errorHandler: errorHandler,
	}
}

// Routes sets up the metrics routes
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetMetrics)
	r.Get("/stats", h.GetStats)
	return r
}

// GetMetrics serves the Prometheus exposition format
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// GetStats returns cache and websocket counters
func (h *MetricsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"cache_entries":     0,
		"websocket_clients": 0,
	}
	if h.cache != nil {
		stats["cache_entries"] = h.cache.Len()
	}
	if h.hub != nil {
		stats["websocket_clients"] = h.hub.ClientCount()
	}

	render.JSON(w, r, map[string]interface{}{
		"status":    "success",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      stats,
	})
}
