package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/aggregator/wordcount"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/filter"
	"github.com/maxpert/kvstream/publisher"
	"github.com/maxpert/kvstream/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []common.Notification
	err  error
}

func (r *recorder) Notify(_ context.Context, n common.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Body
	}
	return out
}

type harness struct {
	d     *Dispatcher
	m     *miniredis.Miniredis
	store *store.RedisStore
	notes *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := miniredis.RunT(t)
	s := store.NewRedisStore(store.Config{Address: m.Addr(), PoolSize: 2})
	t.Cleanup(func() { s.Close() })

	table, err := aggregator.NewTable(wordcount.New(wordcount.DefaultOptions()))
	require.NoError(t, err)

	notes := &recorder{}
	d, err := New(Config{
		Registry:  filter.NewRegistry(),
		Functions: table,
		Backend:   s,
		Counters:  s,
		Notifier:  notes,
	})
	require.NoError(t, err)

	return &harness{d: d, m: m, store: s, notes: notes}
}

func (h *harness) do(t *testing.T, args ...string) interface{} {
	t.Helper()
	reply, err := h.d.Handle(context.Background(), args)
	require.NoError(t, err)
	return reply
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestAddString(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, OK, h.do(t, "ADD", "STRING", "wordcount", "*"))
	assert.Equal(t, 1, h.d.Registry().Count(common.KeyTypeString))
}

func TestAddDuplicateIsNoop(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, OK, h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio"))
	assert.Equal(t, OK, h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio"))
	assert.Equal(t, 1, h.d.Registry().Count(common.KeyTypeHash))
}

func TestAddUnsupportedType(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Handle(context.Background(), []string{"ADD", "FOO", "wordcount", "*"})
	assert.ErrorIs(t, err, filter.ErrUnsupportedKeyType)
	assert.Equal(t, 0, h.d.Registry().Len())

	_, err = h.d.Handle(context.Background(), []string{"ADD", "LIST", "wordcount", "*"})
	assert.ErrorIs(t, err, filter.ErrUnsupportedKeyType)

	// Keywords are case-sensitive
	_, err = h.d.Handle(context.Background(), []string{"ADD", "string", "wordcount", "*"})
	assert.ErrorIs(t, err, filter.ErrUnsupportedKeyType)
	assert.Equal(t, 0, h.d.Registry().Len())
}

func TestAddWrongArity(t *testing.T) {
	h := newHarness(t)

	tests := [][]string{
		{"ADD"},
		{"ADD", "STRING", "wordcount"},
		{"ADD", "STRING", "wordcount", "*", "extra"},
		{"ADD", "HASH", "wordcount", "user:*"},
	}
	for _, args := range tests {
		_, err := h.d.Handle(context.Background(), args)
		var se *SyntaxError
		assert.ErrorAs(t, err, &se, "args %v", args)
	}
	assert.Equal(t, 0, h.d.Registry().Len())
}

func TestAddUnknownFunction(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Handle(context.Background(), []string{"ADD", "STRING", "median", "*"})
	assert.ErrorIs(t, err, aggregator.ErrUnknownFunction)
	assert.Equal(t, 0, h.d.Registry().Len())
}

func TestAddInvalidPattern(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Handle(context.Background(), []string{"ADD", "STRING", "wordcount", "[oops"})
	assert.ErrorIs(t, err, filter.ErrInvalidPattern)
}

func TestFunctions(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{"wordcount"}, h.do(t, "FUNCTIONS"))

	_, err := h.d.Handle(context.Background(), []string{"FUNCTIONS", "extra"})
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestFilters(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio")
	h.do(t, "ADD", "STRING", "wordcount", "post:*")

	all := h.do(t, "FILTERS")
	assert.Equal(t, []interface{}{
		[]string{"STRING", "wordcount", "post:*", ""},
		[]string{"HASH", "wordcount", "user:*", "bio"},
	}, all)

	hashOnly := h.do(t, "FILTERS", "HASH")
	assert.Equal(t, []interface{}{[]string{"HASH", "wordcount", "user:*", "bio"}}, hashOnly)

	_, err := h.d.Handle(context.Background(), []string{"FILTERS", "ZSET"})
	assert.ErrorIs(t, err, filter.ErrUnsupportedKeyType)
}

func TestEmptyRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Handle(context.Background(), nil)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestSetScenario(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")

	assert.Equal(t, OK, h.do(t, "SET", "greeting", "hello hello"))

	got, err := h.m.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello hello", got)
	assert.Equal(t, []string{"hello,1,hello,2"}, h.notes.bodies())

	h.do(t, "SET", "greeting", "hello")
	assert.Equal(t, "hello,3", h.notes.bodies()[1])
}

func TestSetWithPreexistingCount(t *testing.T) {
	h := newHarness(t)
	h.m.ZAdd(wordcount.DefaultCounterKey, 41, "hello")
	h.do(t, "ADD", "STRING", "wordcount", "*")

	h.do(t, "SET", "greeting", "hello")
	assert.Equal(t, []string{"hello,42"}, h.notes.bodies())
}

func TestHsetScenario(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio")

	assert.Equal(t, int64(2), h.do(t, "HSET", "user:1", "bio", "go go", "name", "x"))

	assert.Equal(t, "x", h.m.HGet("user:1", "name"))
	assert.Equal(t, []string{"go,1,go,2"}, h.notes.bodies())
	require.Len(t, h.notes.sent, 1)
	assert.Equal(t, common.KeyTypeHash, h.notes.sent[0].KeyType)
	assert.Equal(t, "user:1", h.notes.sent[0].Key)
}

func TestHsetSingleField(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio")

	h.do(t, "HSET", "user:1", "name", "ignored words")
	assert.Empty(t, h.notes.bodies())

	h.do(t, "HSET", "user:1", "bio", "hi")
	assert.Equal(t, []string{"hi,1"}, h.notes.bodies())
}

func TestHmsetScenario(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio")

	assert.Equal(t, OK, h.do(t, "HMSET", "user:2", "bio", "a b", "note", "c"))
	assert.Equal(t, []string{"a,1,b,1"}, h.notes.bodies())
}

func TestHmsetFieldOrderPreserved(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "doc:*", "body*")

	h.do(t, "HMSET", "doc:1", "body2", "y", "title", "t", "body1", "x y")
	assert.Equal(t, []string{"y,1,x,1,y,2"}, h.notes.bodies())
}

func TestFirstMatchWins(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "user:*", "bio")
	h.do(t, "ADD", "HASH", "wordcount", "*", "name")

	h.do(t, "HSET", "user:1", "name", "x")
	// user:1 routes to the first filter, whose field pattern excludes name
	assert.Empty(t, h.notes.bodies())

	h.do(t, "HSET", "other", "name", "x")
	assert.Equal(t, []string{"x,1"}, h.notes.bodies())
}

func TestNoFilterNoDispatch(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "post:*")

	h.do(t, "SET", "greeting", "hello")
	assert.Empty(t, h.notes.bodies())
	assert.False(t, h.m.Exists(wordcount.DefaultCounterKey))
}

func TestUnrecognizedCommandsPassThrough(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")

	assert.Equal(t, OK, h.do(t, "SETEX", "k", "100", "hello"))
	assert.Equal(t, int64(1), h.do(t, "LPUSH", "l", "a b"))
	assert.Equal(t, "hello", h.do(t, "GET", "k"))
	assert.Nil(t, h.do(t, "GET", "missing"))
	assert.Empty(t, h.notes.bodies())
}

func TestCommandNameCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")

	h.do(t, "set", "k", "hello")
	assert.Equal(t, []string{"hello,1"}, h.notes.bodies())
}

func TestStoreErrorReplySkipsDispatch(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "*", "*")
	h.m.Set("plain", "v")

	reply := h.do(t, "HSET", "plain", "f", "words here")
	require.IsType(t, store.ErrorReply(""), reply)
	assert.Contains(t, string(reply.(store.ErrorReply)), "WRONGTYPE")
	assert.Empty(t, h.notes.bodies())
}

func TestSkippedConditionalSetSkipsDispatch(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")
	require.NoError(t, h.m.Set("k", "old"))

	assert.Nil(t, h.do(t, "SET", "k", "new words", "NX"))
	assert.Nil(t, h.do(t, "SET", "missing", "new words", "xx"))
	assert.Empty(t, h.notes.bodies())

	assert.Equal(t, OK, h.do(t, "SET", "fresh", "word", "NX"))
	assert.Equal(t, []string{"word,1"}, h.notes.bodies())
}

func TestApplied(t *testing.T) {
	assert.True(t, applied([]string{"SET", "k", "v"}, nil))
	assert.False(t, applied([]string{"SET", "k", "v", "NX"}, nil))
	assert.True(t, applied([]string{"SET", "k", "v", "NX", "GET"}, nil))
	assert.True(t, applied([]string{"HSET", "k", "f", "v"}, nil))
}

func TestIncompletePairsSkipDispatch(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "HASH", "wordcount", "*", "*")

	reply := h.do(t, "HSET", "h", "f1", "v1", "f2")
	assert.IsType(t, store.ErrorReply(""), reply)
	assert.Empty(t, h.notes.bodies())
}

func TestDispatchFailureKeepsReply(t *testing.T) {
	h := newHarness(t)
	h.notes.err = errors.New("subscriber channel down")
	h.do(t, "ADD", "STRING", "wordcount", "*")

	reply, err := h.d.Handle(context.Background(), []string{"SET", "k", "hello"})
	assert.Equal(t, OK, reply)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "k", de.Key)
	assert.Equal(t, "wordcount", de.Function)
	assert.ErrorIs(t, err, aggregator.ErrStoreUnavailable)

	// The write itself and the counter survive the failed publish
	got, _ := h.m.Get("k")
	assert.Equal(t, "hello", got)
	score, _ := h.m.ZScore(wordcount.DefaultCounterKey, "hello")
	assert.Equal(t, float64(1), score)
}

func TestStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.d.Handle(ctx, []string{"SET", "k", "v"})
	assert.ErrorIs(t, err, aggregator.ErrStoreUnavailable)
}

func TestCountsAccumulate(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")

	for i := 0; i < 5; i++ {
		h.do(t, "SET", "k", "foo")
	}
	h.do(t, "SET", "k", "foo foo foo")

	score, err := h.m.ZScore(wordcount.DefaultCounterKey, "foo")
	require.NoError(t, err)
	assert.Equal(t, float64(8), score)
}

func TestPublishesOnStreamingChannel(t *testing.T) {
	m := miniredis.RunT(t)
	s := store.NewRedisStore(store.Config{Address: m.Addr(), PoolSize: 2})
	defer s.Close()

	table, err := aggregator.NewTable(wordcount.New(wordcount.DefaultOptions()))
	require.NoError(t, err)
	d, err := New(Config{
		Registry:  filter.NewRegistry(),
		Functions: table,
		Backend:   s,
		Counters:  s,
		Notifier:  publisher.NewBroadcaster(s, nil),
	})
	require.NoError(t, err)

	ctx := context.Background()
	sub := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, wordcount.DefaultChannel)
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	_, err = d.Handle(ctx, []string{"ADD", "STRING", "wordcount", "*"})
	require.NoError(t, err)
	_, err = d.Handle(ctx, []string{"SET", "greeting", "hello hello"})
	require.NoError(t, err)

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, wordcount.DefaultChannel, msg.Channel)
	assert.Equal(t, "hello,1,hello,2", msg.Payload)
}

func TestConcurrentRequests(t *testing.T) {
	h := newHarness(t)
	h.do(t, "ADD", "STRING", "wordcount", "*")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := h.d.Handle(context.Background(), []string{"SET", "k", "word"})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	score, err := h.m.ZScore(wordcount.DefaultCounterKey, "word")
	require.NoError(t, err)
	assert.Equal(t, float64(80), score)
	assert.Len(t, h.notes.bodies(), 80)
}
