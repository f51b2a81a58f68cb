package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/filter"
	"github.com/rs/zerolog/log"
)

type filterView struct {
	Type     string `json:"type"`
	Function string `json:"function"`
	Key      string `json:"key"`
	Field    string `json:"field,omitempty"`
}

type declareRequest struct {
	Type     string `json:"type"`
	Function string `json:"function"`
	Key      string `json:"key"`
	Field    string `json:"field"`
}

func toView(f *filter.Filter) filterView {
	return filterView{
		Type:     f.KeyType.String(),
		Function: f.Function(),
		Key:      f.KeyPattern,
		Field:    f.FieldPattern,
	}
}

// handleListFilters handles GET /admin/filters[?type=STRING|HASH]
func (h *AdminHandlers) handleListFilters(w http.ResponseWriter, r *http.Request) {
	registry := h.dispatcher.Registry()

	filters := registry.All()
	if t := r.URL.Query().Get("type"); t != "" {
		keyType, ok := common.ParseKeyType(t)
		if !ok || !keyType.Dispatchable() {
			writeErrorResponse(w, http.StatusBadRequest, "unsupported key type: "+t)
			return
		}
		filters = registry.Filters(keyType)
	}

	views := make([]filterView, 0, len(filters))
	for _, f := range filters {
		views = append(views, toView(f))
	}
	writeJSONResponse(w, http.StatusOK, views)
}

// handleDeclareFilter handles POST /admin/filters
func (h *AdminHandlers) handleDeclareFilter(w http.ResponseWriter, r *http.Request) {
	var req declareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	keyType, ok := common.ParseKeyType(req.Type)
	if !ok || !keyType.Dispatchable() {
		writeErrorResponse(w, http.StatusBadRequest, "unsupported key type: "+req.Type)
		return
	}

	added, err := h.dispatcher.Declare(keyType, req.Function, req.Key, req.Field)
	switch {
	case errors.Is(err, aggregator.ErrUnknownFunction):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().
		Str("type", req.Type).
		Str("function", req.Function).
		Str("key", req.Key).
		Str("field", req.Field).
		Bool("added", added).
		Msg("Filter declared via admin API")

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]interface{}{"added": added})
}

// handleFunctions handles GET /admin/functions
func (h *AdminHandlers) handleFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.dispatcher.Functions().Names())
}
