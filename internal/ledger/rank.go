package ledger

import (
	"cmp"
	"slices"

	"github.com/pscheid92/votepulse/internal/domain"
)

// SortByScore orders aggregates by score, then upvotes, both descending, then by id.
func SortByScore(aggs []domain.Aggregate) {
	slices.SortFunc(aggs, func(a, b domain.Aggregate) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Upvotes, a.Upvotes); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
}

// Top sorts aggs and truncates to limit. A non-positive limit keeps everything.
func Top(aggs []domain.Aggregate, limit int) []domain.Aggregate {
	SortByScore(aggs)
	if limit > 0 && len(aggs) > limit {
		aggs = aggs[:limit]
	}
	return aggs
}
