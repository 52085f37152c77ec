package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
)

// VoteRelay receives vote events published by other instances. For each one it
// invalidates the local cache for the product and re-publishes the event to local
// subscribers.
type VoteRelay struct {
	rdb        *goredis.Client
	instanceID string
	local      domain.EventPublisher
	invalidate func(productID string)
	metrics    *metrics.BroadcastMetrics
}

func NewVoteRelay(rdb *goredis.Client, instanceID string, local domain.EventPublisher, invalidate func(productID string), m *metrics.BroadcastMetrics) *VoteRelay {
	return &VoteRelay{
		rdb:        rdb,
		instanceID: instanceID,
		local:      local,
		invalidate: invalidate,
		metrics:    m,
	}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (r *VoteRelay) Start(ctx context.Context) {
	pubsub := r.rdb.PSubscribe(ctx, votesPattern)
	defer func() { _ = pubsub.Close() }()

	slog.Info("Vote relay subscribed", "pattern", votesPattern, "instance_id", r.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (r *VoteRelay) handle(ctx context.Context, msg *goredis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		slog.Warn("Dropping malformed vote event", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	topic := strings.TrimPrefix(msg.Channel, channelPrefix)
	if env.Event.ProductID == "" || topic != domain.VoteTopic(env.Event.ProductID) {
		slog.Warn("Dropping vote event with mismatched topic", "channel", msg.Channel, "product_id", env.Event.ProductID)
		return
	}

	if r.invalidate != nil {
		r.invalidate(env.Event.ProductID)
	}
	if r.metrics != nil {
		r.metrics.Relayed.Inc()
	}
	if err := r.local.Publish(ctx, topic, env.Event); err != nil {
		slog.Debug("Local publish of relayed event failed", "topic", topic, "error", err)
	}
}
