package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/votepulse/internal/domain"
)

const (
	channelPrefix = "votepulse:"
	votesPattern  = channelPrefix + "votes:*"
)

// envelope tags an event with the instance that published it, so relays can skip
// their own messages.
type envelope struct {
	Origin string           `json:"origin"`
	Event  domain.VoteEvent `json:"event"`
}

func channelFor(topic string) string {
	return channelPrefix + topic
}

// EventBus publishes vote events to Redis pub/sub for other instances.
type EventBus struct {
	rdb        goredis.Cmdable
	instanceID string
}

func NewEventBus(rdb goredis.Cmdable, instanceID string) *EventBus {
	return &EventBus{rdb: rdb, instanceID: instanceID}
}

func (b *EventBus) Publish(ctx context.Context, topic string, event domain.VoteEvent) error {
	data, err := json.Marshal(envelope{Origin: b.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal vote event: %w", err)
	}

	if err := b.rdb.Publish(ctx, channelFor(topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish vote event: %w", err)
	}
	return nil
}
