package sink

import (
	"context"
	"time"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/wsbroadcast"
)

// WSBroadcastSink adapts a wsbroadcast.Hub to router.Sink.
type WSBroadcastSink struct {
	hub *wsbroadcast.Hub
}

// NewWSBroadcastSink wraps an already-running hub.
func NewWSBroadcastSink(hub *wsbroadcast.Hub) *WSBroadcastSink {
	return &WSBroadcastSink{hub: hub}
}

// Deliver enqueues the opportunity for broadcast; the hub's own buffering
// and per-client backpressure policy governs actual delivery.
func (s *WSBroadcastSink) Deliver(_ context.Context, channel domain.Channel, o domain.Opportunity) error {
	s.hub.Broadcast(wsbroadcast.Message{
		Type:      "opportunity",
		Channel:   channel,
		Payload:   o,
		Timestamp: time.Now(),
	})
	return nil
}
