package filter

import (
	"sync"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/rs/zerolog/log"
)

// Registry maps each key type to its filters in declaration order.
// It starts empty and is never pruned. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	filters map[common.KeyType][]*Filter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		filters: make(map[common.KeyType][]*Filter),
	}
}

// Declare appends a filter to the key type's list. Declaring a filter that
// already exists (same aggregator, key pattern and field pattern) succeeds
// without changing the registry; added reports which case occurred.
func (r *Registry) Declare(keyType common.KeyType, agg aggregator.Aggregator, keyPattern, fieldPattern string) (added bool, err error) {
	f, err := newFilter(keyType, agg, keyPattern, fieldPattern)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.filters[keyType] {
		if existing.sameAs(f) {
			log.Debug().Str("filter", f.String()).Msg("Duplicate filter declaration ignored")
			return false, nil
		}
	}

	r.filters[keyType] = append(r.filters[keyType], f)

	log.Info().
		Str("type", keyType.String()).
		Str("function", f.Function()).
		Str("key", f.KeyPattern).
		Str("field", f.FieldPattern).
		Msg("Filter declared")

	return true, nil
}

// Lookup returns the first filter, in declaration order, whose key pattern
// matches key.
func (r *Registry) Lookup(keyType common.KeyType, key string) (*Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.filters[keyType] {
		if f.MatchKey(key) {
			return f, true
		}
	}
	return nil, false
}

// Filters returns a copy of the key type's filters in declaration order
func (r *Registry) Filters(keyType common.KeyType) []*Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.filters[keyType]
	out := make([]*Filter, len(list))
	copy(out, list)
	return out
}

// All returns every filter grouped by key type, in key type order
func (r *Registry) All() []*Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Filter
	for _, keyType := range common.DispatchKeyTypes {
		out = append(out, r.filters[keyType]...)
	}
	return out
}

// Count returns the number of filters declared for a key type
func (r *Registry) Count(keyType common.KeyType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters[keyType])
}

// Len returns the total number of declared filters
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, list := range r.filters {
		n += len(list)
	}
	return n
}
