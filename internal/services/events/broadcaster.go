package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis Pub/Sub channel theater events are published on.
const Channel = "theater-events"

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeNarrationCompleted EventType = "narration.completed"
	EventTypeNarrativeChanged   EventType = "narrative.state_changed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType              `json:"type"`
	RequestID string                 `json:"request_id,omitempty"`
	Seq       int64                  `json:"seq,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster publishes theater events to Redis Pub/Sub for displays and
// other listeners.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishNarrationCompleted publishes the narration produced for one board
// event.
func (b *Broadcaster) PublishNarrationCompleted(ctx context.Context, requestID string, seq int64, text, audioPath string, fallback bool) error {
	return b.publish(ctx, Event{
		Type:      EventTypeNarrationCompleted,
		RequestID: requestID,
		Seq:       seq,
		Data: map[string]interface{}{
			"text":     text,
			"audio":    audioPath,
			"fallback": fallback,
		},
	})
}

// PublishNarrativeChanged publishes a narrative state transition.
func (b *Broadcaster) PublishNarrativeChanged(ctx context.Context, requestID string, seq int64, fromAct, toAct string, flags []string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeNarrativeChanged,
		RequestID: requestID,
		Seq:       seq,
		Data: map[string]interface{}{
			"from_act": fromAct,
			"act":      toAct,
			"flags":    flags,
		},
	})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, Channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", Channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", Channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
