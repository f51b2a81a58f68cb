package publisher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/kvstream/encoding"
	"github.com/maxpert/kvstream/notify"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	prefixOutbox = "/outbox/"
	prefixCursor = "/cursor/"
	keySeq       = "/seq"
)

// Pebble tuning for a small, write-mostly log
const (
	memTableSize          = 16 << 20
	l0CompactionThreshold = 2
	l0StopWritesThreshold = 12
)

const (
	defaultReadLimit = 100
	cleanupMask      = 0x7F // cleanup when seq & mask == 0, every 128 sequences
)

// ErrOutboxClosed is returned by every operation after Close
var ErrOutboxClosed = errors.New("outbox is closed")

// Outbox is a Pebble-backed append-only event log with per-sink cursors
type Outbox struct {
	db   *pebble.DB
	path string

	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	appendMu sync.Mutex // serializes sequence assignment
	lastSeq  atomic.Uint64

	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	hub *notify.Hub // wakes workers on append

	closed atomic.Bool
}

// OpenOutbox opens or creates the outbox under dataDir/outbox
func OpenOutbox(dataDir string) (*Outbox, error) {
	path := filepath.Join(dataDir, "outbox")

	db, err := pebble.Open(path, &pebble.Options{
		MemTableSize:          memTableSize,
		L0CompactionThreshold: l0CompactionThreshold,
		L0StopWritesThreshold: l0StopWritesThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("open outbox at %s: %w", path, err)
	}

	o := &Outbox{
		db:      db,
		path:    path,
		cursors: make(map[string]uint64),
		hub:     notify.NewHub(),
	}

	if err := o.load(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", path).
		Uint64("last_seq", o.lastSeq.Load()).
		Int("cursors", len(o.cursors)).
		Msg("Outbox opened")

	return o, nil
}

func (o *Outbox) load() error {
	seq, found, err := o.getUint64([]byte(keySeq))
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	if found {
		o.lastSeq.Store(seq)
	}

	prefix := []byte(prefixCursor)
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefix):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor for sink %s: length %d", name, len(val))
		}
		o.cursors[name] = binary.LittleEndian.Uint64(val)
	}

	return iter.Error()
}

// Append assigns sequence numbers to events in place and writes them in one batch
func (o *Outbox) Append(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if o.closed.Load() {
		return ErrOutboxClosed
	}

	o.appendMu.Lock()
	defer o.appendMu.Unlock()

	seq := o.lastSeq.Load()
	batch := o.db.NewBatch()
	defer batch.Close()

	for i := range events {
		seq++
		events[i].SeqNum = seq

		val, err := encoding.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := batch.Set(outboxKey(seq), val, nil); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}

	if err := batch.Set([]byte(keySeq), uint64Bytes(seq), nil); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}

	o.lastSeq.Store(seq)
	telemetry.PublishLogSeq.Set(float64(seq))

	for i := range events {
		o.hub.Signal(events[i].Channel, events[i].SeqNum)
	}
	return nil
}

// Subscribe returns a wakeup channel signalled after each appended event
// whose channel matches filter
func (o *Outbox) Subscribe(filter notify.Filter) (<-chan notify.Signal, func()) {
	return o.hub.Subscribe(filter)
}

// ReadFrom returns up to limit events with sequence greater than cursor
func (o *Outbox) ReadFrom(cursor uint64, limit int) ([]Event, error) {
	if o.closed.Load() {
		return nil, ErrOutboxClosed
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	start := outboxKey(cursor + 1)
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: prefixUpperBound([]byte(prefixOutbox)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	events := make([]Event, 0, limit)
	for iter.First(); iter.Valid() && len(events) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var ev Event
		if err := encoding.Unmarshal(val, &ev); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping undecodable outbox event")
			continue
		}
		events = append(events, ev)
	}

	return events, iter.Error()
}

// LastSeq is the sequence of the most recently appended event (0 when empty)
func (o *Outbox) LastSeq() uint64 {
	return o.lastSeq.Load()
}

// Cursor returns the last delivered sequence for sinkName (0 for a new sink)
func (o *Outbox) Cursor(sinkName string) (uint64, error) {
	if o.closed.Load() {
		return 0, ErrOutboxClosed
	}

	o.cursorsMu.RLock()
	defer o.cursorsMu.RUnlock()
	return o.cursors[sinkName], nil
}

// RegisterCursor loads sinkName's cursor, persisting a 0 entry for a new
// sink so cleanup keeps every event until that sink delivers it
func (o *Outbox) RegisterCursor(sinkName string) (uint64, error) {
	if o.closed.Load() {
		return 0, ErrOutboxClosed
	}

	o.cursorsMu.Lock()
	defer o.cursorsMu.Unlock()

	if c, ok := o.cursors[sinkName]; ok {
		return c, nil
	}
	if err := o.db.Set([]byte(prefixCursor+sinkName), uint64Bytes(0), pebble.Sync); err != nil {
		return 0, fmt.Errorf("register cursor for %s: %w", sinkName, err)
	}
	o.cursors[sinkName] = 0
	return 0, nil
}

// AdvanceCursor persists seq as sinkName's position
func (o *Outbox) AdvanceCursor(sinkName string, seq uint64) error {
	if o.closed.Load() {
		return ErrOutboxClosed
	}

	if err := o.db.Set([]byte(prefixCursor+sinkName), uint64Bytes(seq), pebble.Sync); err != nil {
		return fmt.Errorf("write cursor for %s: %w", sinkName, err)
	}

	o.cursorsMu.Lock()
	o.cursors[sinkName] = seq
	o.cursorsMu.Unlock()

	if seq&cleanupMask == 0 && o.cleanupRunning.CompareAndSwap(false, true) {
		o.cleanupWg.Add(1)
		go func() {
			defer o.cleanupWg.Done()
			defer o.cleanupRunning.Store(false)
			o.cleanup()
		}()
	}

	return nil
}

// cleanup deletes events every sink has already delivered
func (o *Outbox) cleanup() {
	o.cleanupMu.Lock()
	defer o.cleanupMu.Unlock()

	if o.closed.Load() {
		return
	}

	o.cursorsMu.RLock()
	if len(o.cursors) == 0 {
		o.cursorsMu.RUnlock()
		return
	}
	minCursor := ^uint64(0)
	for _, c := range o.cursors {
		minCursor = min(minCursor, c)
	}
	o.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	// Keep the event at minCursor itself; DeleteRange end is exclusive
	if err := o.db.DeleteRange([]byte(prefixOutbox), outboxKey(minCursor), pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Outbox cleanup failed")
		return
	}

	log.Debug().Uint64("min_cursor", minCursor).Msg("Outbox cleaned up")
}

// Close waits for in-flight cleanup and closes Pebble
func (o *Outbox) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return ErrOutboxClosed
	}
	o.hub.Close()
	o.cleanupWg.Wait()
	return o.db.Close()
}

func (o *Outbox) getUint64(key []byte) (uint64, bool, error) {
	val, closer, err := o.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, false, fmt.Errorf("invalid value length %d for %s", len(val), key)
	}
	return binary.LittleEndian.Uint64(val), true, nil
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixOutbox, seq))
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
