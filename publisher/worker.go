package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/kvstream/notify"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBatchSize       = 100
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultRetryInitial    = 100 * time.Millisecond
	DefaultRetryMax        = 30 * time.Second
	DefaultRetryMultiplier = 2.0
	DefaultMaxRetries      = 100
	DefaultPublishTimeout  = 5 * time.Second
)

var errWorkerStopped = errors.New("worker stopped")

// WorkerConfig configures one sink worker
type WorkerConfig struct {
	Name            string // Sink name, also the cursor name
	Outbox          *Outbox
	Sink            Sink
	Transformer     Transformer
	Filter          Filter
	WakeChannels    []string // Channel patterns whose appends wake the worker early
	TopicPrefix     string
	BatchSize       int
	PollInterval    time.Duration
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMultiplier float64
	MaxRetries      int // 0 means DefaultMaxRetries
	PublishTimeout  time.Duration
}

// Worker tails the outbox and delivers events to one sink
type Worker struct {
	config      WorkerConfig
	cursor      uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewWorker validates config, applies defaults and loads the sink's cursor
func NewWorker(config WorkerConfig) (*Worker, error) {
	switch {
	case config.Name == "":
		return nil, fmt.Errorf("worker name is required")
	case config.Outbox == nil:
		return nil, fmt.Errorf("outbox is required")
	case config.Sink == nil:
		return nil, fmt.Errorf("sink is required")
	case config.Transformer == nil:
		return nil, fmt.Errorf("transformer is required")
	case config.Filter == nil:
		return nil, fmt.Errorf("filter is required")
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}

	cursor, err := config.Outbox.RegisterCursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	return &Worker{
		config: config,
		cursor: cursor,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Cursor returns the last delivered (or skipped) sequence
func (w *Worker) Cursor() uint64 {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.cursor
}

func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("sink", w.config.Name).
		Uint64("cursor", w.cursor).
		Msg("Starting sink worker")

	go w.pollLoop(w.stopCh, w.doneCh)
}

// Stop signals the loop and waits for it to exit
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	if !w.running.Load() {
		w.lifecycleMu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.lifecycleMu.Unlock()

	close(stopCh)
	<-doneCh

	w.lifecycleMu.Lock()
	w.running.Store(false)
	w.lifecycleMu.Unlock()

	log.Info().Str("sink", w.config.Name).Msg("Sink worker stopped")
}

func (w *Worker) pollLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	wake, cancel := w.config.Outbox.Subscribe(notify.Filter{Channels: w.config.WakeChannels})
	defer cancel()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		events, err := w.config.Outbox.ReadFrom(w.currentCursor(), w.config.BatchSize)
		if err != nil {
			log.Error().Err(err).Str("sink", w.config.Name).Msg("Failed to read outbox")
			if !sleep(stopCh, w.config.PollInterval) {
				return
			}
			continue
		}

		if len(events) == 0 {
			if !waitForAppend(stopCh, wake, w.config.PollInterval) {
				return
			}
			continue
		}

		for _, ev := range events {
			if err := w.processEvent(stopCh, ev); err != nil {
				if errors.Is(err, errWorkerStopped) {
					return
				}
				// Retries exhausted: leave the cursor where it is and try again next poll
				log.Error().
					Err(err).
					Str("sink", w.config.Name).
					Uint64("seq", ev.SeqNum).
					Msg("Giving up on event for this poll")
				if !sleep(stopCh, w.config.RetryMax) {
					return
				}
				break
			}
			w.setCursor(ev.SeqNum)
		}
	}
}

// processEvent publishes one event, then advances the cursor (at-least-once).
// Filtered events advance the cursor without publishing.
func (w *Worker) processEvent(stopCh chan struct{}, ev Event) error {
	if w.config.Filter.Match(ev.Channel, ev.Function) {
		data, err := w.config.Transformer.Transform(ev)
		if err != nil {
			return fmt.Errorf("transform event %d: %w", ev.SeqNum, err)
		}
		if err := w.publishWithRetry(stopCh, w.Topic(ev.Channel), ev.Key, data); err != nil {
			return err
		}
	}

	if err := w.config.Outbox.AdvanceCursor(w.config.Name, ev.SeqNum); err != nil {
		log.Warn().
			Err(err).
			Str("sink", w.config.Name).
			Uint64("seq", ev.SeqNum).
			Msg("Failed to persist cursor, event may be redelivered")
	}
	return nil
}

// Topic is the sink topic for events on channel
func (w *Worker) Topic(channel string) string {
	if w.config.TopicPrefix == "" {
		return channel
	}
	return w.config.TopicPrefix + "." + channel
}

func (w *Worker) publishWithRetry(stopCh chan struct{}, topic, key string, data []byte) error {
	delay := w.config.RetryInitial

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.PublishTimeout)
		err := w.config.Sink.Publish(ctx, topic, key, data)
		cancel()

		if err == nil {
			telemetry.NotificationsTotal.With("sink", "ok").Inc()
			return nil
		}
		telemetry.NotificationsTotal.With("sink", "error").Inc()

		if attempt >= w.config.MaxRetries {
			return fmt.Errorf("exhausted %d retries for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempt).
			Dur("retry_delay", delay).
			Msg("Sink publish failed, retrying")

		if !sleep(stopCh, delay) {
			return errWorkerStopped
		}

		delay = min(time.Duration(float64(delay)*w.config.RetryMultiplier), w.config.RetryMax)
	}
}

func (w *Worker) currentCursor() uint64 {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.cursor
}

func (w *Worker) setCursor(seq uint64) {
	w.lifecycleMu.Lock()
	w.cursor = seq
	w.lifecycleMu.Unlock()
}

// waitForAppend returns on a wakeup signal or after d, whichever is first.
// False means stopCh closed first.
func waitForAppend(stopCh chan struct{}, wake <-chan notify.Signal, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stopCh:
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}

// sleep waits for d; false means stopCh closed first
func sleep(stopCh chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}
