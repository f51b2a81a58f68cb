package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runBenchmark(args)
	case "version":
		fmt.Printf("pika version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pika - kvstream load generator

Usage:
  pika <command> [options]

Commands:
  run       Drive STREAM writes through kvstream
  version   Print version
  help      Show this help

Run Options:
  --address       kvstream address (default: 127.0.0.1:6380)
  --redis         Backing Redis address to count published digests (default: none)
  --channel       Digest channel (default: streaming)
  --workload      Workload type: mixed|string|hash (default: mixed)
  --operations    Total operations to execute (default: 50000)
  --duration      Duration to run (e.g., 60s), overrides --operations
  --threads       Number of concurrent threads (default: 20)
  --set-pct       SET percentage (overrides workload default)
  --hset-pct      HSET percentage (overrides workload default)
  --hmset-pct     HMSET percentage (overrides workload default)
  --prefix        Key prefix (default: pika)
  --field         Hash field the filters match (default: body)
  --words         Words per value (default: 8)
  --vocabulary    Distinct words (default: 1000)
  --fields        Fields per HMSET (default: 3)
  --declare       Declare catch-all filters before running (default: true)

Examples:
  pika run --address=127.0.0.1:6380 --workload=mixed --operations=50000
  pika run --redis=127.0.0.1:6379 --duration=30s --threads=50`)
}

func runBenchmark(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	fs.StringVar(&cfg.Address, "address", "127.0.0.1:6380", "kvstream address")
	fs.StringVar(&cfg.Redis, "redis", "", "Backing Redis address for digest counting")
	fs.StringVar(&cfg.Channel, "channel", "streaming", "Digest channel")
	fs.StringVar(&cfg.Workload, "workload", "mixed", "Workload type")
	fs.IntVar(&cfg.Operations, "operations", 50000, "Total operations to execute")
	fs.DurationVar(&cfg.Duration, "duration", 0, "Duration to run (overrides --operations)")
	fs.IntVar(&cfg.Threads, "threads", 20, "Number of concurrent threads")
	fs.IntVar(&cfg.SetPct, "set-pct", -1, "SET percentage (overrides workload)")
	fs.IntVar(&cfg.HSetPct, "hset-pct", -1, "HSET percentage (overrides workload)")
	fs.IntVar(&cfg.HMSetPct, "hmset-pct", -1, "HMSET percentage (overrides workload)")
	fs.StringVar(&cfg.KeyPrefix, "prefix", "pika", "Key prefix")
	fs.StringVar(&cfg.Field, "field", "body", "Hash field the filters match")
	fs.IntVar(&cfg.WordsPerValue, "words", 8, "Words per value")
	fs.IntVar(&cfg.VocabularySize, "vocabulary", 1000, "Distinct words")
	fs.IntVar(&cfg.FieldsPerHMSet, "fields", 3, "Fields per HMSET")
	fs.BoolVar(&cfg.Declare, "declare", true, "Declare catch-all filters before running")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, shutting down...")
		cancel()
	}()

	start := time.Now()
	if err := executeRun(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed after %s: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
}
