package wordcount

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounters struct {
	counts  map[string]map[string]uint64
	failOn  string
	touched []string
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]map[string]uint64)}
}

func (m *memCounters) Increment(_ context.Context, key, member string) (uint64, error) {
	if m.failOn != "" && member == m.failOn {
		return 0, errors.New("connection refused")
	}
	if m.counts[key] == nil {
		m.counts[key] = make(map[string]uint64)
	}
	m.counts[key][member]++
	m.touched = append(m.touched, member)
	return m.counts[key][member], nil
}

type recordingNotifier struct {
	sent []common.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n common.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func newEnv(c *memCounters, n *recordingNotifier) aggregator.Env {
	return aggregator.Env{
		KeyType:  common.KeyTypeString,
		Key:      "k",
		Counters: c,
		Notifier: n,
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		skipEmpty bool
		want      []string
	}{
		{"single word", "hello", false, []string{"hello"}},
		{"two words", "hello world", false, []string{"hello", "world"}},
		{"double space keeps empty token", "a  b", false, []string{"a", "", "b"}},
		{"double space skipped", "a  b", true, []string{"a", "b"}},
		{"empty value", "", false, []string{""}},
		{"empty value skipped", "", true, []string{}},
		{"tabs are not separators", "a\tb", false, []string{"a\tb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.value, tt.skipEmpty))
		})
	}
}

func TestSerialize(t *testing.T) {
	msg, err := Serialize([]Entry{{"a", 1}, {"bb", 2}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "a,1,bb,2", msg)

	msg, err = Serialize([]Entry{{"hello", 18446744073709551615}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello,18446744073709551615", msg)

	msg, err = Serialize(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestSerializeLimit(t *testing.T) {
	_, err := Serialize([]Entry{{"a", 1}, {"bb", 2}}, 5)
	assert.ErrorIs(t, err, aggregator.ErrAllocation)

	msg, err := Serialize([]Entry{{"a", 1}, {"bb", 2}}, 8)
	require.NoError(t, err)
	assert.Equal(t, "a,1,bb,2", msg)
}

func TestAggregateSingleValue(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(DefaultOptions())

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), []string{"hello world hello"}))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "hello,1,world,1,hello,2", n.sent[0].Body)
	assert.Equal(t, DefaultChannel, n.sent[0].Channel)
	assert.Equal(t, Name, n.sent[0].Function)
	assert.Equal(t, "k", n.sent[0].Key)
	assert.Equal(t, uint64(2), c.counts[DefaultCounterKey]["hello"])
	assert.Equal(t, uint64(1), c.counts[DefaultCounterKey]["world"])
}

func TestAggregateCountsPersistAcrossCalls(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(DefaultOptions())
	ctx := context.Background()

	require.NoError(t, w.Aggregate(ctx, newEnv(c, n), []string{"hello"}))
	require.NoError(t, w.Aggregate(ctx, newEnv(c, n), []string{"hello"}))

	require.Len(t, n.sent, 2)
	assert.Equal(t, "hello,1", n.sent[0].Body)
	assert.Equal(t, "hello,2", n.sent[1].Body)
}

func TestAggregateMultipleValuesOneDigest(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(DefaultOptions())

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), []string{"a b", "b c"}))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "a,1,b,1,b,2,c,1", n.sent[0].Body)
}

func TestAggregateEmptyTokenCounted(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(DefaultOptions())

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), []string{"a  b"}))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "a,1,,1,b,1", n.sent[0].Body)
	assert.Equal(t, uint64(1), c.counts[DefaultCounterKey][""])
}

func TestAggregateNothingToPublish(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	opts := DefaultOptions()
	opts.SkipEmpty = true
	w := New(opts)

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), []string{"", "   "}))
	assert.Empty(t, n.sent)

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), nil))
	assert.Empty(t, n.sent)
}

func TestAggregateCounterFailure(t *testing.T) {
	c := newMemCounters()
	c.failOn = "world"
	n := &recordingNotifier{}
	w := New(DefaultOptions())

	err := w.Aggregate(context.Background(), newEnv(c, n), []string{"hello world again"})
	assert.ErrorIs(t, err, aggregator.ErrStoreUnavailable)
	assert.Empty(t, n.sent)
	// Increments before the failure stay applied
	assert.Equal(t, []string{"hello"}, c.touched)
}

func TestAggregateNotifyFailure(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{err: errors.New("broken pipe")}
	w := New(DefaultOptions())

	err := w.Aggregate(context.Background(), newEnv(c, n), []string{"hello"})
	assert.ErrorIs(t, err, aggregator.ErrStoreUnavailable)
	assert.Equal(t, uint64(1), c.counts[DefaultCounterKey]["hello"])
}

func TestAggregateMessageTooLarge(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(Options{MaxMessageBytes: 16})

	err := w.Aggregate(context.Background(), newEnv(c, n), []string{strings.Repeat("word ", 10)})
	assert.ErrorIs(t, err, aggregator.ErrAllocation)
	assert.Empty(t, n.sent)
}

func TestNewFillsDefaults(t *testing.T) {
	c := newMemCounters()
	n := &recordingNotifier{}
	w := New(Options{CounterKey: "custom"})

	require.NoError(t, w.Aggregate(context.Background(), newEnv(c, n), []string{"x"}))
	assert.Equal(t, uint64(1), c.counts["custom"]["x"])
	assert.Equal(t, DefaultChannel, n.sent[0].Channel)
	assert.Equal(t, Name, w.Name())
}
