package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks benchmark statistics using atomic operations
type Stats struct {
	ops    [opCount]uint64
	errors [opCount]uint64

	digests      uint64
	digestBytes  uint64
	lastErrorMsg atomic.Value

	// Latency tracking (microseconds)
	mu        sync.Mutex
	latencies []int64
}

func NewStats() *Stats {
	return &Stats{latencies: make([]int64, 0, 100000)}
}

func (s *Stats) RecordOp(op OpType, latency time.Duration) {
	atomic.AddUint64(&s.ops[op], 1)

	s.mu.Lock()
	s.latencies = append(s.latencies, latency.Microseconds())
	s.mu.Unlock()
}

func (s *Stats) RecordError(op OpType, err error) {
	atomic.AddUint64(&s.errors[op], 1)
	s.lastErrorMsg.Store(err.Error())
}

func (s *Stats) RecordDigest(size int) {
	atomic.AddUint64(&s.digests, 1)
	atomic.AddUint64(&s.digestBytes, uint64(size))
}

func (s *Stats) TotalOps() uint64 {
	var total uint64
	for i := range s.ops {
		total += atomic.LoadUint64(&s.ops[i])
	}
	return total
}

func (s *Stats) TotalErrors() uint64 {
	var total uint64
	for i := range s.errors {
		total += atomic.LoadUint64(&s.errors[i])
	}
	return total
}

// GetLatencyPercentiles returns p50, p90, p95, p99 in microseconds
func (s *Stats) GetLatencyPercentiles() (p50, p90, p95, p99 int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]int64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	return sorted[n*50/100], sorted[n*90/100], sorted[n*95/100], sorted[n*99/100]
}

// GetLatencyStats returns min, max, avg in microseconds
func (s *Stats) GetLatencyStats() (min, max, avg int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0
	}

	min, max = s.latencies[0], s.latencies[0]
	var sum int64
	for _, l := range s.latencies {
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
		sum += l
	}
	return min, max, sum / int64(len(s.latencies))
}

type Snapshot struct {
	Ops     uint64
	Errors  uint64
	Digests uint64
}

func (s *Stats) GetSnapshot() Snapshot {
	return Snapshot{
		Ops:     s.TotalOps(),
		Errors:  s.TotalErrors(),
		Digests: atomic.LoadUint64(&s.digests),
	}
}

func (s *Stats) PrintFinal(elapsed time.Duration) {
	totalOps := s.TotalOps()

	fmt.Println()
	fmt.Printf("Total time:    %.2fs\n", elapsed.Seconds())
	fmt.Printf("Throughput:    %.2f ops/sec\n", float64(totalOps)/elapsed.Seconds())
	fmt.Println()

	fmt.Println("Operations:")
	for op := OpSet; op < opCount; op++ {
		fmt.Printf("  %-6s %d\n", op.String()+":", atomic.LoadUint64(&s.ops[op]))
	}
	fmt.Printf("  TOTAL: %d\n", totalOps)
	fmt.Println()

	if errs := s.TotalErrors(); errs > 0 {
		fmt.Println("Errors:")
		for op := OpSet; op < opCount; op++ {
			if n := atomic.LoadUint64(&s.errors[op]); n > 0 {
				fmt.Printf("  %s errors: %d\n", op, n)
			}
		}
		if msg, ok := s.lastErrorMsg.Load().(string); ok {
			fmt.Printf("  Last error: %s\n", msg)
		}
		fmt.Println()
	}

	if digests := atomic.LoadUint64(&s.digests); digests > 0 {
		fmt.Println("Digests:")
		fmt.Printf("  Received: %d\n", digests)
		fmt.Printf("  Bytes:    %d\n", atomic.LoadUint64(&s.digestBytes))
		fmt.Println()
	}

	min, max, avg := s.GetLatencyStats()
	p50, p90, p95, p99 := s.GetLatencyPercentiles()

	fmt.Println("Latency (microseconds):")
	fmt.Printf("  Min:   %d\n", min)
	fmt.Printf("  Avg:   %d\n", avg)
	fmt.Printf("  Max:   %d\n", max)
	fmt.Printf("  P50:   %d\n", p50)
	fmt.Printf("  P90:   %d\n", p90)
	fmt.Printf("  P95:   %d\n", p95)
	fmt.Printf("  P99:   %d\n", p99)
}
