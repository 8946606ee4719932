package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/router"
)

// RateLimited wraps a Sink with a Redis-backed token bucket, grounded on
// alert-service/internal/ratelimit/bucket.go's AllowAlert/Decr pattern:
// every channel gets its own bucket that refills to max once per
// refillPeriod, and a delivery that finds no tokens left is dropped rather
// than blocked, since spec.md §5 treats sink delivery as best-effort.
type RateLimited struct {
	next         router.Sink
	client       *redis.Client
	keyPrefix    string
	maxTokens    int
	refillPeriod time.Duration
}

// NewRateLimited wraps next so that at most maxTokens deliveries per
// refillPeriod pass through per channel.
func NewRateLimited(next router.Sink, client *redis.Client, maxTokens int, refillPeriod time.Duration) *RateLimited {
	return &RateLimited{
		next:         next,
		client:       client,
		keyPrefix:    "fortuna:ratelimit:",
		maxTokens:    maxTokens,
		refillPeriod: refillPeriod,
	}
}

// Deliver consumes one token from the channel's bucket before forwarding to
// the wrapped Sink. A drop for lack of tokens is not an error: the caller's
// job (the Router) already treats sink drops as best-effort.
func (r *RateLimited) Deliver(ctx context.Context, channel domain.Channel, o domain.Opportunity) error {
	allowed, err := r.allow(ctx, channel)
	if err != nil {
		return fmt.Errorf("rate limit check for channel %s: %w", channel, err)
	}
	if !allowed {
		return nil
	}
	return r.next.Deliver(ctx, channel, o)
}

// DeliverBatch forwards to next's DeliverBatch, consuming a single token for
// the whole group, if next implements router.BatchCapable. Otherwise it
// falls back to rate-limiting each member of the group individually.
func (r *RateLimited) DeliverBatch(ctx context.Context, channel domain.Channel, group router.Group) error {
	batch, ok := r.next.(router.BatchCapable)
	if !ok {
		for _, o := range group.Opportunities {
			if err := r.Deliver(ctx, channel, o); err != nil {
				return err
			}
		}
		return nil
	}

	allowed, err := r.allow(ctx, channel)
	if err != nil {
		return fmt.Errorf("rate limit check for channel %s: %w", channel, err)
	}
	if !allowed {
		return nil
	}
	return batch.DeliverBatch(ctx, channel, group)
}

func (r *RateLimited) bucketKey(channel domain.Channel) string {
	return r.keyPrefix + string(channel)
}

func (r *RateLimited) allow(ctx context.Context, channel domain.Channel) (bool, error) {
	key := r.bucketKey(channel)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check bucket existence: %w", err)
	}
	if exists == 0 {
		if err := r.client.Set(ctx, key, r.maxTokens, r.refillPeriod).Err(); err != nil {
			return false, fmt.Errorf("initialize bucket: %w", err)
		}
	}

	tokens, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("decrement tokens: %w", err)
	}
	if tokens < 0 {
		r.client.Incr(ctx, key)
		return false, nil
	}
	return true, nil
}
