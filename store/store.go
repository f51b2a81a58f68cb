// Package store adapts the backing Redis server: pass-through command
// execution, the per-word counter structure and channel publishing.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrorReply is an error line returned by the store for a command. It is a
// reply to relay, not a failure of the store itself.
type ErrorReply string

func (e ErrorReply) Error() string {
	return string(e)
}

// StatusReply is a simple-string reply such as OK
type StatusReply string

// Member is one counter in a sorted counter structure
type Member struct {
	Word  string `json:"word"`
	Count uint64 `json:"count"`
}

// Config holds the connection settings for the backing store
type Config struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore executes commands against a Redis server
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore opens a client. The connection is lazy; use Ping to verify it.
func NewRedisStore(c Config) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		// RESP2 keeps reply shapes identical to what classic clients expect
		Protocol: 2,
	})

	log.Info().
		Str("address", c.Address).
		Int("db", c.DB).
		Int("pool_size", c.PoolSize).
		Msg("Backing store configured")

	return &RedisStore{client: client}
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying go-redis client
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Execute runs args verbatim. A store error reply is returned as an
// ErrorReply value with a nil error; only transport failures return an error.
// A nil reply means the store answered with a null.
func (s *RedisStore) Execute(ctx context.Context, args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmdArgs := make([]interface{}, len(args))
	for i, a := range args {
		cmdArgs[i] = a
	}

	reply, err := s.client.Do(ctx, cmdArgs...).Result()
	if err == nil {
		return tagStatus(args, reply), nil
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		return ErrorReply(rerr.Error()), nil
	}

	return nil, fmt.Errorf("execute %s: %w", args[0], err)
}

// Increment adds one to member in the sorted set at key and returns the new score
func (s *RedisStore) Increment(ctx context.Context, key, member string) (uint64, error) {
	score, err := s.client.ZIncrBy(ctx, key, 1, member).Result()
	if err != nil {
		return 0, fmt.Errorf("zincrby %s: %w", key, err)
	}
	return scoreToCount(score), nil
}

// Publish sends msg on channel and returns the number of receiving subscribers
func (s *RedisStore) Publish(ctx context.Context, channel, msg string) (int64, error) {
	n, err := s.client.Publish(ctx, channel, msg).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", channel, err)
	}
	return n, nil
}

// TopMembers returns up to limit members of key, highest count first
func (s *RedisStore) TopMembers(ctx context.Context, key string, limit int) ([]Member, error) {
	if limit <= 0 {
		return []Member{}, nil
	}

	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", key, err)
	}

	members := make([]Member, 0, len(zs))
	for _, z := range zs {
		word, _ := z.Member.(string)
		members = append(members, Member{Word: word, Count: scoreToCount(z.Score)})
	}
	return members, nil
}

// Score returns member's count under key. found is false when the member
// has never been counted.
func (s *RedisStore) Score(ctx context.Context, key, member string) (count uint64, found bool, err error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s: %w", key, err)
	}
	return scoreToCount(score), true, nil
}

// Ping checks the store is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func scoreToCount(score float64) uint64 {
	if score <= 0 || math.IsNaN(score) {
		return 0
	}
	return uint64(score)
}
