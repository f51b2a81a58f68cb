package telemetry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxpert/kvstream/common"
	"github.com/stretchr/testify/assert"
)

type countingFilters struct {
	calls atomic.Int64
}

func (c *countingFilters) Count(keyType common.KeyType) int {
	c.calls.Add(1)
	return int(keyType)
}

func TestMetricsCollectorCollectsOnStart(t *testing.T) {
	filters := &countingFilters{}
	mc := NewMetricsCollector(filters, time.Hour)

	mc.Start()
	assert.Eventually(t, func() bool {
		return filters.calls.Load() >= int64(len(common.DispatchKeyTypes))
	}, time.Second, 5*time.Millisecond)
	mc.Stop()
}

type fixedLags struct {
	calls atomic.Int64
}

func (f *fixedLags) SinkLags() map[string]uint64 {
	f.calls.Add(1)
	return map[string]uint64{"nats": 3}
}

func TestMetricsCollectorCollectsLags(t *testing.T) {
	lags := &fixedLags{}
	mc := NewMetricsCollector(nil, time.Hour).WithLags(lags)

	mc.Start()
	assert.Eventually(t, func() bool { return lags.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	mc.Stop()
}

func TestMetricsCollectorNilFilters(t *testing.T) {
	mc := NewMetricsCollector(nil, time.Millisecond)
	mc.Start()
	time.Sleep(5 * time.Millisecond)
	mc.Stop()
}

func TestNoopMetricsWithoutRegistry(t *testing.T) {
	assert.Nil(t, GetMetricsHandler())

	// Every constructor degrades to a noop before initialization
	NewCounter("x_total", "x").Inc()
	NewGauge("x", "x").Set(1)
	NewCounterVec("y_total", "y", []string{"a"}).With("b").Add(2)
	NewGaugeVec("y", "y", []string{"a"}).With("b").Dec()
	NewHistogramVec("z", "z", []string{"a"}, CommandBuckets).With("b").Observe(0.1)
}
