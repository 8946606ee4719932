// Package sink collects the Router's channel -> destination implementations
// (spec.md §4.7): a Redis stream publisher, a Postgres writer, a websocket
// broadcaster, and a file sink for local inspection. Each implements
// router.Sink.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/router"
)

// RedisStreamSink publishes one opportunity per channel-specific stream,
// modeled on the teacher's StreamPublisher (edge-detector/internal/publisher).
type RedisStreamSink struct {
	client *redis.Client
}

// NewRedisStreamSink wraps an existing Redis client.
func NewRedisStreamSink(client *redis.Client) *RedisStreamSink {
	return &RedisStreamSink{client: client}
}

// Deliver publishes to "opportunities.<channel>" and to the unsuffixed
// "opportunities" stream, mirroring the teacher's per-sport + global
// publish pair.
func (s *RedisStreamSink) Deliver(ctx context.Context, channel domain.Channel, o domain.Opportunity) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}

	streamKey := fmt.Sprintf("opportunities.%s", channel)
	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"opportunity": string(payload)},
	}).Result(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", streamKey, err)
	}

	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "opportunities",
		Values: map[string]any{"opportunity": string(payload)},
	}).Result(); err != nil {
		return fmt.Errorf("publish to global stream: %w", err)
	}
	return nil
}

// DeliverBatch publishes a multi-outcome group (spec.md §4.8) as a single
// entry carrying the group key and its members, rather than one XAdd per
// opportunity. It implements router.BatchCapable.
func (s *RedisStreamSink) DeliverBatch(ctx context.Context, channel domain.Channel, group router.Group) error {
	payload, err := json.Marshal(group.Opportunities)
	if err != nil {
		return fmt.Errorf("marshal group %s: %w", group.Key, err)
	}

	streamKey := fmt.Sprintf("opportunities.%s", channel)
	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"group": group.Key, "opportunities": string(payload)},
	}).Result(); err != nil {
		return fmt.Errorf("publish group to stream %s: %w", streamKey, err)
	}

	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "opportunities",
		Values: map[string]any{"group": group.Key, "opportunities": string(payload)},
	}).Result(); err != nil {
		return fmt.Errorf("publish group to global stream: %w", err)
	}
	return nil
}
