package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/maxpert/kvstream/publisher"
)

const healthTimeout = 2 * time.Second

// handleHealth handles GET /admin/health
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.counters.Ping(ctx); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"store":  err.Error(),
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"filters": h.dispatcher.Registry().Len(),
	})
}

// handleSinks handles GET /admin/sinks
func (h *AdminHandlers) handleSinks(w http.ResponseWriter, r *http.Request) {
	if h.sinks == nil {
		writeJSONResponse(w, http.StatusOK, []publisher.SinkStatus{})
		return
	}
	writeJSONResponse(w, http.StatusOK, h.sinks.Status())
}
