// Package ratelimit implements fixed-window request limiting.
//
// A window is created on the first request for an identifier and expires a fixed
// duration later; every request inside it shares one counter. The limiter fails open:
// when its store errors, the request is allowed and the failure is logged and counted.
// This is deliberate and applies to every store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
)

const keyPrefix = "ratelimit:"

// Rule is the limit for one class.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Limiter struct {
	store   Store
	rules   map[domain.RateClass]Rule
	metrics *metrics.RateLimitMetrics
}

func NewLimiter(store Store, rules map[domain.RateClass]Rule, m *metrics.RateLimitMetrics) *Limiter {
	return &Limiter{store: store, rules: rules, metrics: m}
}

// Allow counts one request for identifier against the limit and window of class.
// Unknown classes are allowed.
func (l *Limiter) Allow(ctx context.Context, class domain.RateClass, identifier string) domain.RateDecision {
	rule, ok := l.rules[class]
	if !ok {
		return domain.RateDecision{Allowed: true}
	}

	d := l.check(ctx, Key(class, identifier), rule.Limit, rule.Window, class)
	if l.metrics != nil {
		result := "allowed"
		if !d.Allowed {
			result = "denied"
		}
		l.metrics.Decisions.WithLabelValues(string(class), result).Inc()
	}
	return d
}

func (l *Limiter) check(ctx context.Context, key string, limit int, window time.Duration, class domain.RateClass) domain.RateDecision {
	count, ttl, err := l.store.Increment(ctx, key, window)
	if err != nil {
		slog.WarnContext(ctx, "Rate limit store failed, allowing request", "key", key, "error", err)
		if l.metrics != nil {
			l.metrics.FailOpen.WithLabelValues(string(class)).Inc()
		}
		return domain.RateDecision{Allowed: true, Limit: limit, Remaining: limit, ResetIn: window}
	}

	if ttl <= 0 {
		ttl = window
	}
	return domain.RateDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		ResetIn:   ttl,
	}
}

// Key is the store key for a class and identifier.
func Key(class domain.RateClass, identifier string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, class, identifier)
}
