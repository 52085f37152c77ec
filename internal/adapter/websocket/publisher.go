package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/centrifugal/centrifuge"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
)

const publishTimeout = 2 * time.Second

// Publisher pushes vote events to centrifuge channels. The topic is used as the channel name.
type Publisher struct {
	node      *centrifuge.Node
	wsMetrics *metrics.WebSocketMetrics
}

func NewPublisher(node *centrifuge.Node, wsMetrics *metrics.WebSocketMetrics) *Publisher {
	return &Publisher{node: node, wsMetrics: wsMetrics}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event domain.VoteEvent) error {
	if _, ok := channelProductID(topic); !ok {
		return fmt.Errorf("invalid vote channel %q", topic)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal vote event: %w", err)
	}

	if err := publishWithTimeout(ctx, func() error {
		_, err := p.node.Publish(topic, data)
		return err
	}); err != nil {
		return fmt.Errorf("publish to channel %s: %w", topic, err)
	}

	if p.wsMetrics != nil {
		p.wsMetrics.MessagesPublished.Inc()
	}
	return nil
}

// publishWithTimeout bounds a broker call that does not take a context.
func publishWithTimeout(ctx context.Context, publish func() error) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- publish() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
