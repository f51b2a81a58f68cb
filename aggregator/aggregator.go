// Package aggregator defines the contract for pluggable aggregation functions
// and the name-keyed table they are registered in.
//
// An aggregator receives the values extracted from one mutating command
// (a string value, or the hash values whose fields matched a filter) and owns
// every side effect that follows: counter updates in the backing store and
// notifications on the streaming channel. Aggregators hold no per-invocation
// state and may be invoked any number of times.
package aggregator

import (
	"context"
	"errors"

	"github.com/maxpert/kvstream/common"
)

var (
	// ErrAllocation is returned when a result cannot be built within its
	// configured size limit.
	ErrAllocation = errors.New("allocation failure")
	// ErrStoreUnavailable is returned when a counter update or publish fails.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnknownFunction is returned when no aggregator is registered under a name.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrDuplicateFunction is returned when a name is registered twice.
	ErrDuplicateFunction = errors.New("function already registered")
)

// CounterStore is the persistent per-member counter structure.
type CounterStore interface {
	// Increment atomically adds one to member's counter under key and returns
	// the post-increment count.
	Increment(ctx context.Context, key, member string) (uint64, error)
}

// Notifier delivers aggregator results on the notification channel.
type Notifier interface {
	Notify(ctx context.Context, n common.Notification) error
}

// Env is what an aggregator may touch during one invocation.
type Env struct {
	KeyType  common.KeyType
	Key      string
	Counters CounterStore
	Notifier Notifier
}

// Aggregator consumes matched values and produces persistent and published
// side effects.
type Aggregator interface {
	// Name is the identity used by STREAM ADD and STREAM FUNCTIONS.
	Name() string
	// Aggregate processes values in order. Nothing is published when an
	// error is returned.
	Aggregate(ctx context.Context, env Env, values []string) error
}
