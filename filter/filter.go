// Package filter holds the registry of declared filters.
//
// A filter pairs a key pattern (and, for hash keys, a field pattern) with an
// aggregator. Filters are grouped by key type; within a type they keep their
// declaration order and lookups return the first filter whose key pattern
// matches. Filters live for the lifetime of the process: there is no removal.
package filter

import (
	"errors"
	"fmt"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/pattern"
)

var (
	// ErrUnsupportedKeyType is returned when declaring for a type no mutation is routed for.
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	// ErrEmptyPattern is returned when a required pattern is empty.
	ErrEmptyPattern = errors.New("pattern must not be empty")
	// ErrInvalidPattern is returned when a pattern fails to compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrNilAggregator is returned when declaring without an aggregator.
	ErrNilAggregator = errors.New("aggregator is required")
)

// Filter is a declarative routing rule for one key type
type Filter struct {
	KeyType      common.KeyType
	Aggregator   aggregator.Aggregator
	KeyPattern   string
	FieldPattern string // Only set for key types with fields

	keyMatcher   pattern.Matcher
	fieldMatcher pattern.Matcher
}

func newFilter(keyType common.KeyType, agg aggregator.Aggregator, keyPattern, fieldPattern string) (*Filter, error) {
	if !keyType.Dispatchable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, keyType)
	}
	if agg == nil {
		return nil, ErrNilAggregator
	}
	if keyPattern == "" {
		return nil, fmt.Errorf("key %w", ErrEmptyPattern)
	}

	km, err := pattern.Compile(keyPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	f := &Filter{
		KeyType:    keyType,
		Aggregator: agg,
		KeyPattern: keyPattern,
		keyMatcher: km,
	}

	if !keyType.HasFields() {
		return f, nil
	}

	if fieldPattern == "" {
		return nil, fmt.Errorf("field %w", ErrEmptyPattern)
	}
	fm, err := pattern.Compile(fieldPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	f.FieldPattern = fieldPattern
	f.fieldMatcher = fm

	return f, nil
}

// Function returns the name of the filter's aggregator
func (f *Filter) Function() string {
	return f.Aggregator.Name()
}

// MatchKey reports whether key satisfies the key pattern
func (f *Filter) MatchKey(key string) bool {
	return f.keyMatcher.Match(key)
}

// MatchField reports whether field satisfies the field pattern. Filters
// without a field pattern match no field.
func (f *Filter) MatchField(field string) bool {
	if f.fieldMatcher == nil {
		return false
	}
	return f.fieldMatcher.Match(field)
}

// SelectValues takes a flat field/value sequence and returns, in order, the
// values whose field matches the field pattern. A trailing field without a
// value is ignored.
func (f *Filter) SelectValues(pairs []string) []string {
	var values []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if f.MatchField(pairs[i]) {
			values = append(values, pairs[i+1])
		}
	}
	return values
}

// sameAs reports whether two filters share aggregator identity and patterns
func (f *Filter) sameAs(other *Filter) bool {
	return f.Aggregator.Name() == other.Aggregator.Name() &&
		f.KeyPattern == other.KeyPattern &&
		f.FieldPattern == other.FieldPattern
}

func (f *Filter) String() string {
	if f.KeyType.HasFields() {
		return fmt.Sprintf("%s %s %s %s", f.KeyType, f.Function(), f.KeyPattern, f.FieldPattern)
	}
	return fmt.Sprintf("%s %s %s", f.KeyType, f.Function(), f.KeyPattern)
}
