package domain

import "time"

// AnonymousClientID is used when a caller does not identify itself.
const AnonymousClientID = "anonymous"

// VoteType is a client's vote on a product. VoteNone is never stored; it denotes
// the absence of a record and, when submitted, clears any prior vote.
type VoteType int8

const (
	VoteDown VoteType = -1
	VoteNone VoteType = 0
	VoteUp   VoteType = 1
)

func (v VoteType) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "none"
	}
}

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown || v == VoteNone
}

// Nullable returns nil for VoteNone so JSON renders it as null.
func (v VoteType) Nullable() *int {
	if v == VoteNone {
		return nil
	}
	i := int(v)
	return &i
}

// VoteRecord is the durable fact that a client cast a directional vote on a product.
type VoteRecord struct {
	ProductID string
	ClientID  string
	VoteType  VoteType
	Timestamp time.Time
}

// Aggregate holds the running totals for one product. Both counts are never negative.
type Aggregate struct {
	ProductID string
	Upvotes   int
	Downvotes int
}

func (a Aggregate) Score() int {
	return a.Upvotes - a.Downvotes
}

// VoteOutcome is the result of applying one vote.
type VoteOutcome struct {
	Aggregate Aggregate
	VoteType  VoteType
}

// Status is what a client sees for a product: totals plus its own vote.
type Status struct {
	Upvotes   int
	Downvotes int
	Score     int
	VoteType  VoteType
	HasVoted  bool
}

func NewStatus(agg Aggregate, vote VoteType) Status {
	return Status{
		Upvotes:   agg.Upvotes,
		Downvotes: agg.Downvotes,
		Score:     agg.Score(),
		VoteType:  vote,
		HasVoted:  vote != VoteNone,
	}
}
