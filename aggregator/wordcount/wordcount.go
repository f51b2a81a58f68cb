// Package wordcount implements streaming word counting.
//
// Each value is split on single spaces; every token's persistent counter is
// incremented in the backing store, and one digest of the form
// `word1,count1,word2,count2,...` is published per invocation, in token
// order across all values. Words are not escaped, so a word containing a
// comma produces an ambiguous digest.
package wordcount

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
)

// Name is the function name used in STREAM ADD
const Name = "wordcount"

const (
	DefaultCounterKey      = "_wordcounting"
	DefaultChannel         = "streaming"
	DefaultMaxMessageBytes = 1 << 20
)

// Entry is one word and its count after the increment
type Entry struct {
	Word  string
	Count uint64
}

// Options configures a WordCount aggregator
type Options struct {
	CounterKey      string // Sorted set holding the counters
	Channel         string // Notification channel for digests
	MaxMessageBytes int    // Digest size limit (0 = unlimited)
	SkipEmpty       bool   // Drop empty tokens produced by consecutive spaces
}

// DefaultOptions returns the reference settings
func DefaultOptions() Options {
	return Options{
		CounterKey:      DefaultCounterKey,
		Channel:         DefaultChannel,
		MaxMessageBytes: DefaultMaxMessageBytes,
	}
}

// WordCount is the reference aggregator
type WordCount struct {
	opts Options
}

var _ aggregator.Aggregator = (*WordCount)(nil)

// New creates a WordCount aggregator, filling unset options with defaults
func New(opts Options) *WordCount {
	if opts.CounterKey == "" {
		opts.CounterKey = DefaultCounterKey
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	return &WordCount{opts: opts}
}

func (w *WordCount) Name() string {
	return Name
}

// Aggregate counts every token of every value and publishes one digest.
// Counters incremented before a failure stay incremented; the digest is only
// published once fully built.
func (w *WordCount) Aggregate(ctx context.Context, env aggregator.Env, values []string) error {
	start := time.Now()
	defer func() {
		telemetry.AggregationDurationSeconds.With(Name).Observe(time.Since(start).Seconds())
	}()

	if env.Counters == nil || env.Notifier == nil {
		return fmt.Errorf("%w: counters and notifier are required", aggregator.ErrStoreUnavailable)
	}

	var entries []Entry
	for _, value := range values {
		for _, word := range Tokenize(value, w.opts.SkipEmpty) {
			count, err := env.Counters.Increment(ctx, w.opts.CounterKey, word)
			if err != nil {
				return fmt.Errorf("%w: increment %q: %w", aggregator.ErrStoreUnavailable, word, err)
			}
			entries = append(entries, Entry{Word: word, Count: count})
		}
	}

	if len(entries) == 0 {
		return nil
	}
	telemetry.WordsCountedTotal.Add(float64(len(entries)))

	msg, err := Serialize(entries, w.opts.MaxMessageBytes)
	if err != nil {
		return err
	}

	n := common.Notification{
		Channel:  w.opts.Channel,
		Function: Name,
		KeyType:  env.KeyType,
		Key:      env.Key,
		Body:     msg,
	}
	if err := env.Notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", aggregator.ErrStoreUnavailable, w.opts.Channel, err)
	}

	log.Debug().
		Str("key", env.Key).
		Int("words", len(entries)).
		Msg("Published word counts")

	return nil
}

// Tokenize splits value on single spaces. Consecutive, leading or trailing
// spaces yield empty tokens unless skipEmpty is set.
func Tokenize(value string, skipEmpty bool) []string {
	words := strings.Split(value, " ")
	if !skipEmpty {
		return words
	}

	kept := words[:0]
	for _, word := range words {
		if word != "" {
			kept = append(kept, word)
		}
	}
	return kept
}

// Serialize renders entries as `word,count,...` with no trailing delimiter.
// maxBytes bounds the result; 0 disables the bound.
func Serialize(entries []Entry, maxBytes int) (string, error) {
	var b strings.Builder
	var num [20]byte

	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Word)
		b.WriteByte(',')
		b.Write(strconv.AppendUint(num[:0], e.Count, 10))

		if maxBytes > 0 && b.Len() > maxBytes {
			return "", fmt.Errorf("%w: digest exceeds %d bytes", aggregator.ErrAllocation, maxBytes)
		}
	}

	return b.String(), nil
}
