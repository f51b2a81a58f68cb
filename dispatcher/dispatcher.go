// Package dispatcher interprets STREAM requests: filter declarations and
// listings are handled here, everything else is executed against the
// backing store and then routed through the filter registry.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/filter"
	"github.com/maxpert/kvstream/store"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
)

// Control sub-commands, matched case-sensitively
const (
	CmdAdd       = "ADD"
	CmdFunctions = "FUNCTIONS"
	CmdFilters   = "FILTERS"
)

const (
	usageAddString = "STREAM ADD STRING <function> <key-pattern>"
	usageAddHash   = "STREAM ADD HASH <function> <key-pattern> <field-pattern>"
	usageAdd       = "STREAM ADD STRING|HASH <function> <key-pattern> [field-pattern]"
	usageFunctions = "STREAM FUNCTIONS"
	usageFilters   = "STREAM FILTERS [STRING|HASH]"
	usageStream    = "STREAM ADD|FUNCTIONS|FILTERS|<command> [args...]"
)

// OK is the reply to a successful declaration
const OK = store.StatusReply("OK")

// Backend executes pass-through commands
type Backend interface {
	Execute(ctx context.Context, args []string) (interface{}, error)
}

// Config wires a Dispatcher
type Config struct {
	Registry  *filter.Registry
	Functions *aggregator.Table
	Backend   Backend
	Counters  aggregator.CounterStore
	Notifier  aggregator.Notifier
}

// Dispatcher processes one STREAM request at a time
type Dispatcher struct {
	registry  *filter.Registry
	functions *aggregator.Table
	backend   Backend
	counters  aggregator.CounterStore
	notifier  aggregator.Notifier

	// Requests are serialized so a pass-through write and its dispatch are
	// never interleaved with another request.
	mu sync.Mutex
}

func New(c Config) (*Dispatcher, error) {
	switch {
	case c.Registry == nil:
		return nil, fmt.Errorf("filter registry is required")
	case c.Functions == nil:
		return nil, fmt.Errorf("function table is required")
	case c.Backend == nil:
		return nil, fmt.Errorf("backend is required")
	case c.Counters == nil:
		return nil, fmt.Errorf("counter store is required")
	case c.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	}

	return &Dispatcher{
		registry:  c.Registry,
		functions: c.Functions,
		backend:   c.Backend,
		counters:  c.Counters,
		notifier:  c.Notifier,
	}, nil
}

// Registry returns the filter registry declarations go to
func (d *Dispatcher) Registry() *filter.Registry {
	return d.registry
}

// Functions returns the aggregator table
func (d *Dispatcher) Functions() *aggregator.Table {
	return d.functions
}

// Handle processes the arguments following STREAM.
//
// For pass-through commands the reply is the store's reply, unchanged, and is
// valid whenever err is nil or a *DispatchError. Any other error means there
// is no reply.
func (d *Dispatcher) Handle(ctx context.Context, args []string) (reply interface{}, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := commandLabel(args)
	start := time.Now()
	defer func() {
		telemetry.CommandDurationSeconds.With(label).Observe(time.Since(start).Seconds())
		telemetry.CommandsTotal.With(label, resultLabel(err)).Inc()
	}()

	if len(args) == 0 {
		return nil, &SyntaxError{Usage: usageStream}
	}

	switch args[0] {
	case CmdAdd:
		return d.handleAdd(args[1:])
	case CmdFunctions:
		if len(args) != 1 {
			return nil, &SyntaxError{Usage: usageFunctions}
		}
		return d.functions.Names(), nil
	case CmdFilters:
		return d.handleFilters(args[1:])
	}

	return d.passThrough(ctx, args)
}

// Declare adds a filter the same way STREAM ADD does
func (d *Dispatcher) Declare(keyType common.KeyType, function, keyPattern, fieldPattern string) (bool, error) {
	agg, err := d.functions.Get(function)
	if err != nil {
		telemetry.FilterDeclarationsTotal.With(keyType.String(), "rejected").Inc()
		return false, err
	}

	added, err := d.registry.Declare(keyType, agg, keyPattern, fieldPattern)
	switch {
	case err != nil:
		telemetry.FilterDeclarationsTotal.With(keyType.String(), "rejected").Inc()
	case added:
		telemetry.FilterDeclarationsTotal.With(keyType.String(), "added").Inc()
	default:
		telemetry.FilterDeclarationsTotal.With(keyType.String(), "duplicate").Inc()
	}
	return added, err
}

func (d *Dispatcher) handleAdd(args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, &SyntaxError{Usage: usageAdd}
	}

	keyType, ok := common.ParseKeyType(args[0])
	if !ok || !keyType.Dispatchable() {
		return nil, fmt.Errorf("%w: %s", filter.ErrUnsupportedKeyType, args[0])
	}

	var fieldPattern string
	switch keyType {
	case common.KeyTypeString:
		if len(args) != 3 {
			return nil, &SyntaxError{Usage: usageAddString}
		}
	case common.KeyTypeHash:
		if len(args) != 4 {
			return nil, &SyntaxError{Usage: usageAddHash}
		}
		fieldPattern = args[3]
	}

	if _, err := d.Declare(keyType, args[1], args[2], fieldPattern); err != nil {
		return nil, err
	}
	return OK, nil
}

func (d *Dispatcher) handleFilters(args []string) (interface{}, error) {
	var filters []*filter.Filter

	switch len(args) {
	case 0:
		filters = d.registry.All()
	case 1:
		keyType, ok := common.ParseKeyType(args[0])
		if !ok || !keyType.Dispatchable() {
			return nil, fmt.Errorf("%w: %s", filter.ErrUnsupportedKeyType, args[0])
		}
		filters = d.registry.Filters(keyType)
	default:
		return nil, &SyntaxError{Usage: usageFilters}
	}

	out := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		out = append(out, []string{f.KeyType.String(), f.Function(), f.KeyPattern, f.FieldPattern})
	}
	return out, nil
}

func (d *Dispatcher) passThrough(ctx context.Context, args []string) (interface{}, error) {
	reply, err := d.backend.Execute(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", aggregator.ErrStoreUnavailable, err)
	}

	// A rejected write changed nothing, so there is nothing to aggregate
	if _, failed := reply.(store.ErrorReply); failed {
		return reply, nil
	}

	if err := d.dispatch(ctx, args, reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// dispatch routes a mutation that the store accepted to its filter
func (d *Dispatcher) dispatch(ctx context.Context, args []string, reply interface{}) error {
	m, ok := classify(args)
	if !ok || !applied(args, reply) {
		return nil
	}

	f, ok := d.registry.Lookup(m.keyType, m.key)
	if !ok {
		return nil
	}

	var values []string
	if m.keyType.HasFields() {
		values = f.SelectValues(m.pairs)
	} else {
		values = []string{m.value}
	}
	if len(values) == 0 {
		return nil
	}

	telemetry.FilterMatchesTotal.With(m.keyType.String()).Inc()
	log.Debug().
		Str("type", m.keyType.String()).
		Str("key", m.key).
		Str("function", f.Function()).
		Int("values", len(values)).
		Msg("Dispatching to filter")

	env := aggregator.Env{
		KeyType:  m.keyType,
		Key:      m.key,
		Counters: d.counters,
		Notifier: d.notifier,
	}
	if err := f.Aggregator.Aggregate(ctx, env, values); err != nil {
		telemetry.AggregationsTotal.With(f.Function(), "error").Inc()
		return &DispatchError{KeyType: m.keyType, Key: m.key, Function: f.Function(), Err: err}
	}
	telemetry.AggregationsTotal.With(f.Function(), "ok").Inc()
	return nil
}

// mutation is a write the dispatcher knows how to route
type mutation struct {
	keyType common.KeyType
	key     string
	value   string   // flat keys
	pairs   []string // field/value sequence for hash keys
}

// classify recognizes SET, HSET and HMSET by exact, case-insensitive name.
// Shapes the store would reject are not classified.
func classify(args []string) (mutation, bool) {
	switch strings.ToUpper(args[0]) {
	case "SET":
		if len(args) < 3 {
			return mutation{}, false
		}
		return mutation{keyType: common.KeyTypeString, key: args[1], value: args[2]}, true
	case "HSET", "HMSET":
		if len(args) < 4 || len(args)%2 != 0 {
			return mutation{}, false
		}
		return mutation{keyType: common.KeyTypeHash, key: args[1], pairs: args[2:]}, true
	}
	return mutation{}, false
}

// applied reports whether a classified write took effect. A conditional SET
// (NX or XX) that was skipped replies nil; with GET a nil reply only means
// there was no previous value.
func applied(args []string, reply interface{}) bool {
	if reply != nil || strings.ToUpper(args[0]) != "SET" {
		return true
	}

	conditional := false
	for _, opt := range args[3:] {
		switch strings.ToUpper(opt) {
		case "GET":
			return true
		case "NX", "XX":
			conditional = true
		}
	}
	return !conditional
}

func commandLabel(args []string) string {
	if len(args) == 0 {
		return "invalid"
	}
	switch args[0] {
	case CmdAdd, CmdFunctions, CmdFilters:
		return strings.ToLower(args[0])
	}
	return "passthrough"
}

func resultLabel(err error) string {
	var de *DispatchError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &de):
		return "dispatch_error"
	}
	return "error"
}
