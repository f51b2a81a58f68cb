// Package id generates unique, time-ordered 64-bit event IDs.
package id

import (
	"sync"
	"time"
)

// Layout: (unix_ms << 22) | (node << 16) | sequence
//   - 42 bits of milliseconds (~139 years from epoch)
//   - 6 bits of node ID; higher bits of the configured ID are dropped
//   - 16 bits of sequence (~65k IDs per millisecond)
const (
	SequenceBits = 16
	NodeBits     = 6

	SequenceMask = (1 << SequenceBits) - 1
	NodeMask     = (1 << NodeBits) - 1
	timeShift    = NodeBits + SequenceBits
)

// Generator hands out IDs that increase strictly, even if the wall clock
// steps backwards or more than 65k IDs are taken in one millisecond.
type Generator struct {
	node uint64
	now  func() time.Time

	mu     sync.Mutex
	lastMS int64
	seq    uint64
}

func NewGenerator(nodeID uint64) *Generator {
	return &Generator{node: nodeID & NodeMask, now: time.Now}
}

// NextID is safe for concurrent use
func (g *Generator) NextID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	switch {
	case ms > g.lastMS:
		g.lastMS = ms
		g.seq = 0
	case g.seq < SequenceMask:
		g.seq++
	default:
		// Sequence exhausted: borrow the next millisecond
		g.lastMS++
		g.seq = 0
	}

	return uint64(g.lastMS)<<timeShift | g.node<<SequenceBits | g.seq
}

// Time extracts the millisecond timestamp of an ID
func Time(id uint64) time.Time {
	return time.UnixMilli(int64(id >> timeShift))
}

// Node extracts the node bits of an ID
func Node(id uint64) uint64 {
	return (id >> SequenceBits) & NodeMask
}
