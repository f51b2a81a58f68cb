package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleTopCounters handles GET /admin/counters?limit=N
func (h *AdminHandlers) handleTopCounters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	members, err := h.counters.TopMembers(r.Context(), h.counterKey, limit)
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, members)
}

// handleCounter handles GET /admin/counters/{word}
func (h *AdminHandlers) handleCounter(w http.ResponseWriter, r *http.Request) {
	word := chi.URLParam(r, "word")

	count, found, err := h.counters.Score(r.Context(), h.counterKey, word)
	if err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !found {
		writeErrorResponse(w, http.StatusNotFound, "word not counted: "+word)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"word":  word,
		"count": count,
	})
}
