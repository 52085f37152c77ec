package domain

import "context"

// VoteStore is the single source of truth for vote records and aggregates.
//
// GetStatus reads the aggregate and the client's vote from one consistent state,
// so a concurrent toggle is seen either entirely or not at all.
//
// GetVote, GetAggregate, GetStatus and TopAggregates fail open: on corruption or backend
// failure they log and return the "no vote" / zero defaults instead of an error.
// ApplyVote serializes writers per product and returns an error only when the
// durable commit failed; in that case no state changed.
type VoteStore interface {
	GetVote(ctx context.Context, productID, clientID string) VoteType
	GetAggregate(ctx context.Context, productID string) Aggregate
	GetStatus(ctx context.Context, productID, clientID string) Status
	TopAggregates(ctx context.Context, limit int) []Aggregate
	ApplyVote(ctx context.Context, productID, clientID string, submitted VoteType) (VoteOutcome, error)
	Close() error
}
