package telemetry

import (
	"sync"
	"time"

	"github.com/maxpert/kvstream/common"
)

// FilterCounter reports how many filters are declared for a key type
type FilterCounter interface {
	Count(keyType common.KeyType) int
}

// LagReporter reports how many outbox entries each sink has yet to deliver
type LagReporter interface {
	SinkLags() map[string]uint64
}

// MetricsCollector periodically refreshes registry gauges
type MetricsCollector struct {
	filters  FilterCounter
	lags     LagReporter
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(filters FilterCounter, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		filters:  filters,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// WithLags adds per-sink outbox lag to each collection. A nil reporter is ignored.
func (mc *MetricsCollector) WithLags(lags LagReporter) *MetricsCollector {
	mc.lags = lags
	return mc
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.filters != nil {
		for _, keyType := range common.DispatchKeyTypes {
			RegisteredFilters.With(keyType.String()).Set(float64(mc.filters.Count(keyType)))
		}
	}

	if mc.lags != nil {
		for name, lag := range mc.lags.SinkLags() {
			SinkLag.With(name).Set(float64(lag))
		}
	}
}
