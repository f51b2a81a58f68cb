package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

func newClient(addr string, poolSize int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		Protocol:        2,
		DisableIdentity: true,
		PoolSize:        poolSize,
	})
}

// declareFilters installs catch-all filters under the benchmark prefix
func declareFilters(ctx context.Context, client *redis.Client, cfg *Config) error {
	declarations := [][]interface{}{
		{"STREAM", "ADD", "STRING", "wordcount", cfg.KeyPrefix + ":str:*"},
		{"STREAM", "ADD", "HASH", "wordcount", cfg.KeyPrefix + ":hash:*", cfg.Field},
	}
	for _, args := range declarations {
		if err := client.Do(ctx, args...).Err(); err != nil {
			return fmt.Errorf("declare %v: %w", args[2:], err)
		}
	}
	return nil
}

// subscribeDigests counts digests published on the backing store
func subscribeDigests(ctx context.Context, addr, channel string, stats *Stats) (func(), error) {
	client := newClient(addr, 1)
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe %s on %s: %w", channel, addr, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			stats.RecordDigest(len(msg.Payload))
		}
	}()

	return func() {
		sub.Close()
		<-done
		client.Close()
	}, nil
}

type worker struct {
	id       int
	client   *redis.Client
	cfg      *Config
	keys     *KeyGenerator
	text     *TextGenerator
	selector *OpSelector
	stats    *Stats
	rng      *rand.Rand
}

func (w *worker) run(ctx context.Context, remaining *int64, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if remaining != nil && atomic.AddInt64(remaining, -1) < 0 {
			return
		}

		op := w.selector.Next()
		args := BuildCommand(op, w.keys.Next(op), w.cfg.Field, w.cfg.FieldsPerHMSet, w.text, w.rng)

		start := time.Now()
		err := w.client.Do(ctx, args...).Err()
		latency := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.stats.RecordError(op, err)
			continue
		}
		w.stats.RecordOp(op, latency)
	}
}

func executeRun(ctx context.Context, cfg *Config) error {
	client := newClient(cfg.Address, cfg.Threads)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}

	if cfg.Declare {
		if err := declareFilters(ctx, client, cfg); err != nil {
			return err
		}
	}

	stats := NewStats()

	if cfg.Redis != "" {
		stop, err := subscribeDigests(ctx, cfg.Redis, cfg.Channel, stats)
		if err != nil {
			return err
		}
		defer stop()
	}

	runCtx := ctx
	var remaining *int64
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	} else {
		n := int64(cfg.Operations)
		remaining = &n
	}

	reportCtx, stopReport := context.WithCancel(runCtx)
	go reportProgress(reportCtx, stats)

	fmt.Printf("Running %s workload against %s with %d threads\n", cfg.Workload, cfg.Address, cfg.Threads)

	keys := NewKeyGenerator(cfg.KeyPrefix)
	text := NewTextGenerator(cfg.VocabularySize, cfg.WordsPerValue)
	dist := cfg.GetWorkloadDistribution()
	seed := time.Now().UnixNano()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < cfg.Threads; i++ {
		w := &worker{
			id:       i,
			client:   client,
			cfg:      cfg,
			keys:     keys,
			text:     text,
			selector: NewOpSelector(dist, seed+int64(i)),
			stats:    stats,
			rng:      rand.New(rand.NewSource(seed + int64(i)*7919)),
		}
		wg.Add(1)
		go w.run(runCtx, remaining, &wg)
	}
	wg.Wait()
	elapsed := time.Since(start)
	stopReport()

	// Give in-flight digests a moment to arrive
	if cfg.Redis != "" {
		time.Sleep(200 * time.Millisecond)
	}

	stats.PrintFinal(elapsed)
	return nil
}
