package main

import (
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
)

type OpType int

const (
	OpSet OpType = iota
	OpHSet
	OpHMSet
	opCount
)

func (o OpType) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpHSet:
		return "HSET"
	case OpHMSet:
		return "HMSET"
	default:
		return "UNKNOWN"
	}
}

// KeyGenerator hands out sequential keys, thread-safe
type KeyGenerator struct {
	prefix  string
	counter uint64
}

func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{prefix: prefix}
}

func (g *KeyGenerator) Next(op OpType) string {
	n := atomic.AddUint64(&g.counter, 1)
	if op == OpSet {
		return fmt.Sprintf("%s:str:%012d", g.prefix, n)
	}
	return fmt.Sprintf("%s:hash:%012d", g.prefix, n)
}

// TextGenerator builds space-separated values from a fixed vocabulary so
// counters accumulate across operations
type TextGenerator struct {
	words []string
	n     int
}

func NewTextGenerator(vocabulary, wordsPerValue int) *TextGenerator {
	words := make([]string, vocabulary)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return &TextGenerator{words: words, n: wordsPerValue}
}

// Value is not thread-safe through rng; each worker owns its rng
func (g *TextGenerator) Value(rng *rand.Rand) string {
	var b strings.Builder
	for i := 0; i < g.n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(g.words[rng.Intn(len(g.words))])
	}
	return b.String()
}

// OpSelector picks operations according to the workload distribution
type OpSelector struct {
	thresholds [opCount]int
	rng        *rand.Rand
}

func NewOpSelector(dist WorkloadDistribution, seed int64) *OpSelector {
	s := &OpSelector{rng: rand.New(rand.NewSource(seed))}
	s.thresholds[OpSet] = dist.Set
	s.thresholds[OpHSet] = s.thresholds[OpSet] + dist.HSet
	s.thresholds[OpHMSet] = s.thresholds[OpHSet] + dist.HMSet
	return s
}

func (s *OpSelector) Next() OpType {
	r := s.rng.Intn(100)
	for op := OpSet; op < opCount; op++ {
		if r < s.thresholds[op] {
			return op
		}
	}
	return OpSet
}

// BuildCommand returns the STREAM-prefixed arguments for one operation.
// HMSET writes the benchmark field plus fields-1 filler fields.
func BuildCommand(op OpType, key, field string, fields int, text *TextGenerator, rng *rand.Rand) []interface{} {
	switch op {
	case OpHSet:
		return []interface{}{"STREAM", "HSET", key, field, text.Value(rng)}
	case OpHMSet:
		args := []interface{}{"STREAM", "HMSET", key, field, text.Value(rng)}
		for i := 1; i < fields; i++ {
			args = append(args, fmt.Sprintf("extra%d", i), text.Value(rng))
		}
		return args
	default:
		return []interface{}{"STREAM", "SET", key, text.Value(rng)}
	}
}
