package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	m := miniredis.RunT(t)
	s := NewRedisStore(Config{Address: m.Addr(), PoolSize: 2})
	t.Cleanup(func() { s.Close() })
	return s, m
}

func TestExecutePassThrough(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()

	reply, err := s.Execute(ctx, []string{"SET", "greeting", "hello hello"})
	require.NoError(t, err)
	assert.Equal(t, StatusReply("OK"), reply)

	got, err := m.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello hello", got)

	reply, err = s.Execute(ctx, []string{"HSET", "user:1", "bio", "go go", "name", "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), reply)
	assert.Equal(t, "go go", m.HGet("user:1", "bio"))

	reply, err = s.Execute(ctx, []string{"GET", "greeting"})
	require.NoError(t, err)
	assert.Equal(t, "hello hello", reply)
}

func TestExecuteNullReply(t *testing.T) {
	s, _ := newTestStore(t)

	reply, err := s.Execute(context.Background(), []string{"GET", "missing"})
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestExecuteErrorReplyIsRelayed(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()
	m.HSet("h", "f", "v")

	reply, err := s.Execute(ctx, []string{"GET", "h"})
	require.NoError(t, err)
	require.IsType(t, ErrorReply(""), reply)
	assert.Contains(t, string(reply.(ErrorReply)), "WRONGTYPE")

	reply, err = s.Execute(ctx, []string{"SET", "onlykey"})
	require.NoError(t, err)
	assert.IsType(t, ErrorReply(""), reply)
}

func TestExecuteTransportFailure(t *testing.T) {
	s, m := newTestStore(t)
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.Execute(ctx, []string{"PING"})
	assert.Error(t, err)

	_, err = s.Execute(ctx, nil)
	assert.Error(t, err)
}

func TestIncrement(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		n, err := s.Increment(ctx, "_wordcounting", "foo")
		require.NoError(t, err)
		assert.Equal(t, uint64(i), n)
	}

	score, err := m.ZScore("_wordcounting", "foo")
	require.NoError(t, err)
	assert.Equal(t, float64(5), score)
}

func TestIncrementEmptyMember(t *testing.T) {
	s, _ := newTestStore(t)

	n, err := s.Increment(context.Background(), "_wordcounting", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestPublish(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer sub.Close()

	ps := sub.Subscribe(ctx, "streaming")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	n, err := s.Publish(ctx, "streaming", "hello,1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "hello,1", msg.Payload)
}

func TestTopMembersAndScore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, w := range []string{"a", "b", "b", "c", "c", "c"} {
		_, err := s.Increment(ctx, "_wordcounting", w)
		require.NoError(t, err)
	}

	top, err := s.TopMembers(ctx, "_wordcounting", 2)
	require.NoError(t, err)
	assert.Equal(t, []Member{{"c", 3}, {"b", 2}}, top)

	top, err = s.TopMembers(ctx, "_wordcounting", 0)
	require.NoError(t, err)
	assert.Empty(t, top)

	count, found, err := s.Score(ctx, "_wordcounting", "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(2), count)

	_, found, err = s.Score(ctx, "_wordcounting", "zzz")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestExecuteKeepsReplyKind(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, m.Set("k", "OK"))

	reply, err := s.Execute(ctx, []string{"TYPE", "k"})
	require.NoError(t, err)
	assert.Equal(t, StatusReply("string"), reply)

	reply, err = s.Execute(ctx, []string{"GET", "k"})
	require.NoError(t, err)
	assert.Equal(t, "OK", reply, "a stored value of OK is still a bulk string")

	reply, err = s.Execute(ctx, []string{"rename", "k", "k2"})
	require.NoError(t, err)
	assert.Equal(t, StatusReply("OK"), reply)
}

func TestTagStatus(t *testing.T) {
	tests := []struct {
		args  []string
		reply interface{}
		want  interface{}
	}{
		{[]string{"SET", "k", "v"}, "OK", StatusReply("OK")},
		{[]string{"SET", "k", "v", "get"}, "old", "old"},
		{[]string{"SET", "k", "v", "NX", "GET"}, "OK", "OK"},
		{[]string{"type", "k"}, "hash", StatusReply("hash")},
		{[]string{"ECHO", "PONG"}, "PONG", "PONG"},
		{[]string{"MODULE.CMD"}, "OK", StatusReply("OK")},
		{[]string{"MODULE.CMD"}, "value", "value"},
		{[]string{"TYPE", "k"}, int64(1), int64(1)},
		{nil, "x", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tagStatus(tt.args, tt.reply), "%v", tt.args)
	}
}
