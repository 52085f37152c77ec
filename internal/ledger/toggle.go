package ledger

import "github.com/pscheid92/votepulse/internal/domain"

// Delta is the change a transition applies to a product's counts.
type Delta struct {
	Upvotes   int
	Downvotes int
}

func (d Delta) IsZero() bool {
	return d.Upvotes == 0 && d.Downvotes == 0
}

// Transition resolves a submitted vote against the current one.
//
// Re-submitting the current vote clears it, a different direction switches it, and
// VoteNone always clears. The returned Delta removes the old contribution and adds
// the new one.
func Transition(current, submitted domain.VoteType) (domain.VoteType, Delta) {
	next := submitted
	if submitted == current {
		next = domain.VoteNone
	}

	var d Delta
	d.remove(current)
	d.add(next)
	return next, d
}

func (d *Delta) add(v domain.VoteType) {
	switch v {
	case domain.VoteUp:
		d.Upvotes++
	case domain.VoteDown:
		d.Downvotes++
	}
}

func (d *Delta) remove(v domain.VoteType) {
	switch v {
	case domain.VoteUp:
		d.Upvotes--
	case domain.VoteDown:
		d.Downvotes--
	}
}

// Counts are a product's running totals.
type Counts struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// Apply adds d to c, holding each field at zero. clamped reports whether a
// decrement would have gone negative, which means the prior state was inconsistent.
func (c Counts) Apply(d Delta) (next Counts, clamped bool) {
	next.Upvotes, clamped = clampAdd(c.Upvotes, d.Upvotes)
	var downClamped bool
	next.Downvotes, downClamped = clampAdd(c.Downvotes, d.Downvotes)
	return next, clamped || downClamped
}

// Clamp zeroes negative fields.
func (c Counts) Clamp() (Counts, bool) {
	return c.Apply(Delta{})
}

func (c Counts) Aggregate(productID string) domain.Aggregate {
	return domain.Aggregate{ProductID: productID, Upvotes: c.Upvotes, Downvotes: c.Downvotes}
}

func clampAdd(v, d int) (int, bool) {
	sum := v + d
	if sum < 0 {
		return 0, true
	}
	return sum, false
}
