package domain

import (
	"context"
	"math"
	"time"
)

// RateClass selects an independently configured limit.
type RateClass string

const (
	RateClassStatus RateClass = "status"
	RateClassVote   RateClass = "vote"
)

// RateDecision is the outcome of one fixed-window check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// ResetInSeconds rounds up so callers never retry a moment too early.
func (d RateDecision) ResetInSeconds() int {
	return int(math.Ceil(d.ResetIn.Seconds()))
}

// RateLimiter enforces per-identifier fixed windows. Implementations fail open.
type RateLimiter interface {
	Allow(ctx context.Context, class RateClass, identifier string) RateDecision
}
