package ledger

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/pscheid92/votepulse/internal/domain"
)

// Entry is one line of the vote history. VoteType 0 records a cleared vote.
type Entry struct {
	ProductID string          `json:"productId"`
	ClientID  string          `json:"clientId"`
	VoteType  domain.VoteType `json:"voteType"`
	Timestamp time.Time       `json:"timestamp"`
}

// Document is the persisted ledger. Field names are part of the file format.
type Document struct {
	Votes       map[string]domain.VoteType `json:"votes"`
	VoteCounts  map[string]Counts          `json:"voteCounts"`
	UserVotes   []Entry                    `json:"userVotes"`
	LastUpdated time.Time                  `json:"lastUpdated"`
}

// Change describes what Apply did to a document.
type Change struct {
	Outcome domain.VoteOutcome
	Before  Counts
	Delta   Delta
	Clamped bool
}

func NewDocument() *Document {
	return &Document{
		Votes:      make(map[string]domain.VoteType),
		VoteCounts: make(map[string]Counts),
		UserVotes:  []Entry{},
	}
}

// VoteKey joins a pair into the document key. Product ids never contain ':'.
func VoteKey(productID, clientID string) string {
	return productID + ":" + clientID
}

func (d *Document) Vote(productID, clientID string) domain.VoteType {
	return d.Votes[VoteKey(productID, clientID)]
}

func (d *Document) Aggregate(productID string) domain.Aggregate {
	return d.VoteCounts[productID].Aggregate(productID)
}

func (d *Document) Aggregates() []domain.Aggregate {
	aggs := make([]domain.Aggregate, 0, len(d.VoteCounts))
	for id, c := range d.VoteCounts {
		aggs = append(aggs, c.Aggregate(id))
	}
	return aggs
}

// Clone returns a deep copy so the receiver can stay published while the copy is mutated.
func (d *Document) Clone() *Document {
	return &Document{
		Votes:       maps.Clone(d.Votes),
		VoteCounts:  maps.Clone(d.VoteCounts),
		UserVotes:   slices.Clone(d.UserVotes),
		LastUpdated: d.LastUpdated,
	}
}

// Apply runs the toggle state machine for one pair and records the result in history,
// keeping at most historyLimit entries. A non-positive limit disables history.
func (d *Document) Apply(productID, clientID string, submitted domain.VoteType, now time.Time, historyLimit int) Change {
	key := VoteKey(productID, clientID)
	next, delta := Transition(d.Votes[key], submitted)

	if next == domain.VoteNone {
		delete(d.Votes, key)
	} else {
		d.Votes[key] = next
	}

	before := d.VoteCounts[productID]
	after, clamped := before.Apply(delta)
	d.VoteCounts[productID] = after

	d.appendHistory(Entry{ProductID: productID, ClientID: clientID, VoteType: next, Timestamp: now}, historyLimit)
	d.LastUpdated = now

	return Change{
		Outcome: domain.VoteOutcome{Aggregate: after.Aggregate(productID), VoteType: next},
		Before:  before,
		Delta:   delta,
		Clamped: clamped,
	}
}

func (d *Document) appendHistory(e Entry, limit int) {
	if limit <= 0 {
		d.UserVotes = d.UserVotes[:0]
		return
	}
	d.UserVotes = append(d.UserVotes, e)
	if over := len(d.UserVotes) - limit; over > 0 {
		d.UserVotes = slices.Delete(d.UserVotes, 0, over)
	}
}

// Normalize repairs a freshly decoded document: nil maps are allocated, negative counts
// and zero-valued votes are dropped. It returns the product ids whose counts were clamped.
func (d *Document) Normalize() []string {
	if d.Votes == nil {
		d.Votes = make(map[string]domain.VoteType)
	}
	if d.VoteCounts == nil {
		d.VoteCounts = make(map[string]Counts)
	}
	if d.UserVotes == nil {
		d.UserVotes = []Entry{}
	}

	maps.DeleteFunc(d.Votes, func(_ string, v domain.VoteType) bool {
		return v != domain.VoteUp && v != domain.VoteDown
	})

	var clamped []string
	for id, c := range d.VoteCounts {
		if fixed, ok := c.Clamp(); ok {
			d.VoteCounts[id] = fixed
			clamped = append(clamped, id)
		}
	}
	slices.Sort(clamped)
	return clamped
}

// Validate checks the structural rules a decoded document must satisfy.
func (d *Document) Validate() error {
	for key, v := range d.Votes {
		if !strings.Contains(key, ":") {
			return fmt.Errorf("malformed vote key %q", key)
		}
		if v != domain.VoteUp && v != domain.VoteDown {
			return fmt.Errorf("vote %q has invalid type %d", key, v)
		}
	}
	for id, c := range d.VoteCounts {
		if c.Upvotes < 0 || c.Downvotes < 0 {
			return fmt.Errorf("negative counts for product %q", id)
		}
	}
	return nil
}
