package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/kvstream/cfg"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/id"
	"github.com/rs/zerolog/log"
)

// RegistryConfig configures the outbox and its sink workers
type RegistryConfig struct {
	DataDir     string
	NodeID      uint64
	SinkConfigs []cfg.SinkConfiguration
}

// Registry owns the outbox and the lifecycle of every sink worker.
// It satisfies the outbox side of Broadcaster.
type Registry struct {
	outbox  *Outbox
	nodeID  uint64
	ids     *id.Generator
	workers []*Worker
	running atomic.Bool
	mu      sync.Mutex
	now     func() time.Time
}

// NewRegistry opens the outbox and creates one worker per sink
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	outbox, err := OpenOutbox(config.DataDir)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		outbox:  outbox,
		nodeID:  config.NodeID,
		ids:     id.NewGenerator(config.NodeID),
		workers: make([]*Worker, 0, len(config.SinkConfigs)),
		now:     time.Now,
	}

	for _, sc := range config.SinkConfigs {
		if err := r.AddSink(sc); err != nil {
			r.closeSinks()
			outbox.Close()
			return nil, fmt.Errorf("add sink %q: %w", sc.Name, err)
		}
	}

	log.Info().Int("sinks", len(r.workers)).Msg("Publisher registry initialized")
	return r, nil
}

// AddSink builds the sink, transformer and filter for config and adds a worker
func (r *Registry) AddSink(config cfg.SinkConfiguration) error {
	snk, err := createSink(config)
	if err != nil {
		return err
	}
	return r.addWorker(config, snk)
}

func (r *Registry) addWorker(config cfg.SinkConfiguration, snk Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trans, err := createTransformer(config.Format)
	if err == nil {
		trans, err = withCompression(trans, config.Compression)
	}
	if err != nil {
		snk.Close()
		return err
	}

	filter, err := NewGlobFilter(config.FilterChannels, config.FilterFunctions)
	if err != nil {
		snk.Close()
		return err
	}

	w, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Outbox:          r.outbox,
		Sink:            snk,
		Transformer:     trans,
		Filter:          filter,
		WakeChannels:    config.FilterChannels,
		TopicPrefix:     config.TopicPrefix,
		BatchSize:       config.BatchSize,
		PollInterval:    time.Duration(config.PollIntervalMS) * time.Millisecond,
		RetryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: config.RetryMultiplier,
	})
	if err != nil {
		snk.Close()
		return err
	}

	r.workers = append(r.workers, w)
	if r.running.Load() {
		w.Start()
	}

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added sink")
	return nil
}

func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher registry already running")
	}
	for _, w := range r.workers {
		w.Start()
	}
	return nil
}

// Stop stops all workers, closes their sinks and the outbox
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Swap(false) {
		return
	}

	for _, w := range r.workers {
		w.Stop()
	}
	r.closeSinks()

	if err := r.outbox.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close outbox")
	}
	log.Info().Msg("Publisher registry stopped")
}

func (r *Registry) closeSinks() {
	for _, w := range r.workers {
		if err := w.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", w.config.Name).Msg("Failed to close sink")
		}
	}
}

// Append records a notification in the outbox
func (r *Registry) Append(n common.Notification) error {
	if !r.running.Load() {
		return fmt.Errorf("publisher registry not running")
	}
	ev := NewEvent(n, r.nodeID, r.now().UnixMilli())
	ev.ID = r.ids.NextID()
	return r.outbox.Append([]Event{ev})
}

// Outbox exposes the underlying log
func (r *Registry) Outbox() *Outbox {
	return r.outbox
}

// SinkStatus is a worker's delivery position in the outbox
type SinkStatus struct {
	Name   string `json:"name"`
	Cursor uint64 `json:"cursor"`
	Lag    uint64 `json:"lag"`
}

// Status reports every worker's cursor and how far it trails the outbox head
func (r *Registry) Status() []SinkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	head := r.outbox.LastSeq()
	out := make([]SinkStatus, 0, len(r.workers))
	for _, w := range r.workers {
		c := w.Cursor()
		st := SinkStatus{Name: w.config.Name, Cursor: c}
		if head > c {
			st.Lag = head - c
		}
		out = append(out, st)
	}
	return out
}

// SinkLags maps each sink name to its lag behind the outbox head
func (r *Registry) SinkLags() map[string]uint64 {
	out := make(map[string]uint64)
	for _, st := range r.Status() {
		out[st.Name] = st.Lag
	}
	return out
}

// SinkFactory builds a Sink from its configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory builds a Transformer
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink makes a sink type available to AddSink
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer makes a format available to AddSink
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, ok := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return factory(config)
}

func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	factory, ok := transformerFactories[format]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return factory(), nil
}
