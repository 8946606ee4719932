package router

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore is the pluggable backing for the Router's cross-call dedup set.
// The zero-value Router uses an in-memory map (see Route/ClearSeenMarkets);
// a multi-process deployment can swap in RedisSeenStore instead so that
// several engine instances sharing one Redis share one dedup window.
type SeenStore interface {
	// SeenOrMark reports whether key has already been marked, and if not, marks
	// it atomically so two concurrent callers can't both observe "not seen".
	SeenOrMark(ctx context.Context, key string) (bool, error)
	// Clear resets the dedup window, mirroring clearSentMarketsCache().
	Clear(ctx context.Context) error
}

// RedisSeenStore backs SeenStore with Redis SETNX, grounded on
// alert-service/internal/dedup/dedup.go's Exists-then-Set pattern, collapsed
// into a single atomic SETNX so two Route calls for the same market racing
// against the same key can't both win.
type RedisSeenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenStore builds a RedisSeenStore. ttl bounds how long a market
// stays deduped after being marked; callers that want the dedup window to
// last exactly "until the next ClearSeenMarkets" should pass a ttl longer
// than any realistic scan interval and call Clear explicitly between scans,
// same as the in-memory default.
func NewRedisSeenStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSeenStore {
	if prefix == "" {
		prefix = "fortuna:seen:"
	}
	return &RedisSeenStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSeenStore) key(market string) string {
	return s.prefix + market
}

// SeenOrMark uses SETNX: the call that successfully creates the key is the
// first to see this market; subsequent callers get false back from SetNX
// and are reported as already-seen.
func (s *RedisSeenStore) SeenOrMark(ctx context.Context, market string) (bool, error) {
	created, err := s.client.SetNX(ctx, s.key(market), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis seen store: setnx %s: %w", market, err)
	}
	return !created, nil
}

// Clear deletes every key under prefix using SCAN, avoiding a blocking
// KEYS call against a potentially large keyspace.
func (s *RedisSeenStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis seen store: scan %s*: %w", s.prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis seen store: del: %w", err)
	}
	return nil
}
