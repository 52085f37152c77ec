package domain

import (
	"context"
	"time"
)

const voteTopicPrefix = "votes:"

// VoteTopic is the broadcast topic for changes to one product.
func VoteTopic(productID string) string {
	return voteTopicPrefix + productID
}

// VoteEvent is the delta published after a vote commits.
type VoteEvent struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"productId"`
	Upvotes    int       `json:"upvotes"`
	Downvotes  int       `json:"downvotes"`
	Score      int       `json:"score"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventPublisher delivers events best-effort. Errors are for logging only and
// must never fail the vote that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event VoteEvent) error
}

// EventSubscriber opens a cancelable stream of events for a topic.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	Events() <-chan VoteEvent
	Close()
}
