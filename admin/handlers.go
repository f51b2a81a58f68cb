package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/maxpert/kvstream/dispatcher"
	"github.com/maxpert/kvstream/publisher"
	"github.com/maxpert/kvstream/store"
	"github.com/rs/zerolog/log"
)

// CounterReader reads the word counter structure and reports store health
type CounterReader interface {
	TopMembers(ctx context.Context, key string, limit int) ([]store.Member, error)
	Score(ctx context.Context, key, member string) (uint64, bool, error)
	Ping(ctx context.Context) error
}

// SinkReporter reports external sink delivery positions
type SinkReporter interface {
	Status() []publisher.SinkStatus
}

// AdminHandlers serves the admin API over a running dispatcher
type AdminHandlers struct {
	dispatcher *dispatcher.Dispatcher
	counters   CounterReader
	counterKey string
	sinks      SinkReporter // nil when no sinks are configured
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(d *dispatcher.Dispatcher, counters CounterReader, counterKey string, sinks SinkReporter) *AdminHandlers {
	return &AdminHandlers{
		dispatcher: d,
		counters:   counters,
		counterKey: counterKey,
		sinks:      sinks,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 100, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}
	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}

	return limit, nil
}
