package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
)

const (
	commandQueueSize     = 256
	subscriberBufferSize = 16
	commandTimeout       = 5 * time.Second
	stopTimeout          = 10 * time.Second
)

var ErrHubStopped = errors.New("broadcast hub stopped")

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type publishCmd struct {
	baseHubCmd
	topic string
	event domain.VoteEvent
}

type subscribeCmd struct {
	baseHubCmd
	sub   *subscription
	reply chan struct{}
}

type unsubscribeCmd struct {
	baseHubCmd
	sub *subscription
}

type countCmd struct {
	baseHubCmd
	topic string
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans vote events out to in-process subscribers.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	subscribers map[string]map[*subscription]struct{}
	metrics     *metrics.BroadcastMetrics
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

func NewHub(clock clockwork.Clock, m *metrics.BroadcastMetrics) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandQueueSize),
		clock:       clock,
		subscribers: make(map[string]map[*subscription]struct{}),
		metrics:     m,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Publish queues event for every subscriber of topic. It never blocks and never fails
// except when the hub is stopped.
func (h *Hub) Publish(_ context.Context, topic string, event domain.VoteEvent) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.cmdCh <- publishCmd{topic: topic, event: event}:
	default:
		slog.Warn("Broadcast queue full, dropping event", "topic", topic)
		h.recordDrop("queue_full")
	}
	return nil
}

// Subscribe registers a subscription for topic. It ends when ctx is cancelled,
// Close is called, or the hub stops; in every case Events is closed.
func (h *Hub) Subscribe(ctx context.Context, topic string) (domain.Subscription, error) {
	sub := &subscription{
		hub:    h,
		topic:  topic,
		events: make(chan domain.VoteEvent, subscriberBufferSize),
		closed: make(chan struct{}),
	}

	reply := make(chan struct{})
	if err := h.send(subscribeCmd{sub: sub, reply: reply}); err != nil {
		return nil, err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closed:
		}
	}()

	return sub, nil
}

// SubscriberCount returns the number of subscribers for topic, or -1 on timeout.
func (h *Hub) SubscriberCount(topic string) int {
	reply := make(chan int, 1)
	if err := h.send(countCmd{topic: topic, reply: reply}); err != nil {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down and closes every subscription.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	if err := h.send(stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Broadcast hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcast hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) send(cmd hubCmd) error {
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) run() {
	defer h.stopOnce.Do(func() { close(h.done) })
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcast hub panic recovered", "panic", r)
			h.closeAll()
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case publishCmd:
			h.handlePublish(c)
		case subscribeCmd:
			h.handleSubscribe(c)
		case unsubscribeCmd:
			h.handleUnsubscribe(c.sub)
		case countCmd:
			c.reply <- len(h.subscribers[c.topic])
		case stopCmd:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) handlePublish(c publishCmd) {
	for sub := range h.subscribers[c.topic] {
		select {
		case sub.events <- c.event:
		default:
			slog.Debug("Subscriber too slow, dropping event", "topic", c.topic)
			h.recordDrop("slow_subscriber")
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	subs, ok := h.subscribers[c.sub.topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.subscribers[c.sub.topic] = subs
	}
	subs[c.sub] = struct{}{}
	h.updateSubscriberGauge()
	close(c.reply)
}

func (h *Hub) handleUnsubscribe(sub *subscription) {
	subs, ok := h.subscribers[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, sub.topic)
	}
	close(sub.events)
	h.updateSubscriberGauge()
}

func (h *Hub) closeAll() {
	for topic, subs := range h.subscribers {
		for sub := range subs {
			close(sub.events)
		}
		delete(h.subscribers, topic)
	}
	h.updateSubscriberGauge()
}

func (h *Hub) updateSubscriberGauge() {
	if h.metrics == nil {
		return
	}
	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	h.metrics.Subscribers.Set(float64(total))
}

func (h *Hub) recordDrop(reason string) {
	if h.metrics != nil {
		h.metrics.Dropped.WithLabelValues(reason).Inc()
	}
}

type subscription struct {
	hub       *Hub
	topic     string
	events    chan domain.VoteEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan domain.VoteEvent {
	return s.events
}

// Close unregisters the subscription. Events is closed by the hub once it processes
// the request, so callers should keep draining until then.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.hub.send(unsubscribeCmd{sub: s})
	})
}
