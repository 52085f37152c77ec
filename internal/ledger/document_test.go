package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDocumentApply_ProductScenario(t *testing.T) {
	doc := NewDocument()
	doc.VoteCounts["p1"] = Counts{Upvotes: 5, Downvotes: 2}

	c := doc.Apply("p1", "c1", domain.VoteUp, testNow, 100)
	assert.Equal(t, domain.Aggregate{ProductID: "p1", Upvotes: 6, Downvotes: 2}, c.Outcome.Aggregate)
	assert.Equal(t, 4, c.Outcome.Aggregate.Score())
	assert.Equal(t, domain.VoteUp, c.Outcome.VoteType)

	c = doc.Apply("p1", "c1", domain.VoteDown, testNow, 100)
	assert.Equal(t, domain.Aggregate{ProductID: "p1", Upvotes: 5, Downvotes: 3}, c.Outcome.Aggregate)
	assert.Equal(t, 2, c.Outcome.Aggregate.Score())

	c = doc.Apply("p1", "c1", domain.VoteDown, testNow, 100)
	assert.Equal(t, domain.Aggregate{ProductID: "p1", Upvotes: 5, Downvotes: 2}, c.Outcome.Aggregate)
	assert.Equal(t, 3, c.Outcome.Aggregate.Score())
	assert.Equal(t, domain.VoteNone, c.Outcome.VoteType)
	assert.Nil(t, c.Outcome.VoteType.Nullable())

	_, stored := doc.Votes[VoteKey("p1", "c1")]
	assert.False(t, stored, "cleared votes are not stored")
	assert.Len(t, doc.UserVotes, 3)
	assert.Equal(t, domain.VoteNone, doc.UserVotes[2].VoteType)
}

func TestDocumentApply_ClampsInconsistentCounts(t *testing.T) {
	doc := NewDocument()
	doc.Votes[VoteKey("p1", "c1")] = domain.VoteUp

	c := doc.Apply("p1", "c1", domain.VoteDown, testNow, 10)

	assert.True(t, c.Clamped)
	assert.Equal(t, Counts{Upvotes: 0, Downvotes: 1}, doc.VoteCounts["p1"])
}

func TestDocumentApply_HistoryCapped(t *testing.T) {
	doc := NewDocument()

	for i := range 7 {
		doc.Apply("p1", "c1", domain.VoteUp, testNow.Add(time.Duration(i)*time.Second), 3)
	}

	require.Len(t, doc.UserVotes, 3)
	assert.Equal(t, testNow.Add(4*time.Second), doc.UserVotes[0].Timestamp)
	assert.Equal(t, testNow.Add(6*time.Second), doc.UserVotes[2].Timestamp)
}

func TestDocumentClone_Independent(t *testing.T) {
	doc := NewDocument()
	doc.Apply("p1", "c1", domain.VoteUp, testNow, 10)

	clone := doc.Clone()
	clone.Apply("p1", "c2", domain.VoteDown, testNow, 10)

	assert.Equal(t, Counts{Upvotes: 1}, doc.VoteCounts["p1"])
	assert.Len(t, doc.Votes, 1)
	assert.Len(t, doc.UserVotes, 1)
}

func TestDocument_JSONShape(t *testing.T) {
	doc := NewDocument()
	doc.Apply("p1", "c1", domain.VoteDown, testNow, 10)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{"p1:c1": float64(-1)}, raw["votes"])
	assert.Equal(t, map[string]any{"p1": map[string]any{"upvotes": float64(0), "downvotes": float64(1)}}, raw["voteCounts"])
	assert.Equal(t, "2026-03-01T12:00:00Z", raw["lastUpdated"])

	entries := raw["userVotes"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]any{
		"productId": "p1",
		"clientId":  "c1",
		"voteType":  float64(-1),
		"timestamp": "2026-03-01T12:00:00Z",
	}, entries[0])
}

func TestDocumentNormalize(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"votes":{"p1:c1":1,"p1:c2":0},"voteCounts":{"p1":{"upvotes":1,"downvotes":-2},"p2":{"upvotes":-1,"downvotes":0}}}`), &doc))

	clamped := doc.Normalize()

	assert.Equal(t, []string{"p1", "p2"}, clamped)
	assert.Equal(t, Counts{Upvotes: 1}, doc.VoteCounts["p1"])
	assert.Equal(t, map[string]domain.VoteType{"p1:c1": domain.VoteUp}, doc.Votes)
	assert.NotNil(t, doc.UserVotes)
	assert.NoError(t, doc.Validate())
}

func TestDocumentValidate(t *testing.T) {
	doc := NewDocument()
	doc.Votes["broken"] = domain.VoteUp
	assert.Error(t, doc.Validate())

	doc = NewDocument()
	doc.VoteCounts["p1"] = Counts{Upvotes: -1}
	assert.Error(t, doc.Validate())
}
