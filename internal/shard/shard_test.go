package shard

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister records snapshots in memory; fail makes every save error.
type memPersister struct {
	saves int
	last  Snapshot
	fail  bool
}

func (p *memPersister) SaveShard(snap Snapshot) error {
	if p.fail {
		return errors.New("disk full")
	}
	p.saves++
	p.last = snap
	return nil
}

func newTestShard(p Persister) *Shard {
	return New("shard_technical", "Technique et Architecture",
		"Architecture, code, protocoles",
		[]string{"architecture", "code", "framework"}, p)
}

func TestAppendAssignsUniqueOrderedIDs(t *testing.T) {
	s := newTestShard(nil)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := s.Append(fmt.Sprintf("entry %d", i), SourceManual, 0.5, nil, nil)
		require.NoError(t, err)
		assert.False(t, seen[id], "id %s assigned twice", id)
		seen[id] = true
		assert.Contains(t, id, "shard_technical_")
	}
	assert.Equal(t, 20, s.Count())
}

func TestAppendRejectsNonFiniteImportance(t *testing.T) {
	s := newTestShard(nil)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := s.Append("content", SourceManual, v, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidImportance)
	}
	assert.Equal(t, 0, s.Count())
}

func TestAppendClampsOutOfRangeImportance(t *testing.T) {
	s := newTestShard(nil)

	_, err := s.Append("high", SourceManual, 3.5, nil, nil)
	require.NoError(t, err)
	_, err = s.Append("low", SourceManual, -2.0, nil, nil)
	require.NoError(t, err)

	txs := s.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, 1.0, txs[0].Importance)
	assert.Equal(t, 0.0, txs[1].Importance)
}

func TestAppendRejectsTooManyCrossRefs(t *testing.T) {
	s := newTestShard(nil)

	refs := []string{"shard_projects", "shard_people", "shard_strategy", "shard_insights"}
	_, err := s.Append("content", SourceManual, 0.5, refs, nil)
	assert.ErrorIs(t, err, ErrInvalidCrossRef)
	assert.Equal(t, 0, s.Count())
}

func TestAppendRollsBackOnPersistFailure(t *testing.T) {
	p := &memPersister{fail: true}
	s := newTestShard(p)

	_, err := s.Append("content", SourceManual, 0.8, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0.0, s.ImportanceScore())
}

func TestAppendPersistsWriteThrough(t *testing.T) {
	p := &memPersister{}
	s := newTestShard(p)

	_, err := s.Append("first", SourceManual, 0.4, nil, nil)
	require.NoError(t, err)
	_, err = s.Append("second", SourceAutomated, 0.6, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, p.saves)
	assert.Len(t, p.last.Transactions, 2)
	assert.InDelta(t, 0.5, p.last.ImportanceScore, 1e-9)
}

func TestImportanceScoreIsMeanOfTransactions(t *testing.T) {
	s := newTestShard(nil)

	for _, v := range []float64{0.2, 0.4, 0.9} {
		_, err := s.Append("x", SourceManual, v, nil, nil)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.5, s.ImportanceScore(), 1e-9)
}

func TestSearchKeywordFullMatchBeatsPartial(t *testing.T) {
	s := newTestShard(nil)

	_, err := s.Append("GitHub release checklist", SourceManual, 0.5, nil, nil)
	require.NoError(t, err)
	_, err = s.Append("release notes draft", SourceManual, 0.5, nil, nil)
	require.NoError(t, err)
	_, err = s.Append("unrelated entry", SourceManual, 0.5, nil, nil)
	require.NoError(t, err)

	results := s.SearchKeyword("GitHub release", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "GitHub release checklist", results[0].Transaction.Content)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "release notes draft", results[1].Transaction.Content)
	assert.Equal(t, 0.5, results[1].Score)
}

func TestSearchKeywordBreaksTiesByImportance(t *testing.T) {
	s := newTestShard(nil)

	_, err := s.Append("framework choice", SourceManual, 0.2, nil, nil)
	require.NoError(t, err)
	_, err = s.Append("framework upgrade", SourceManual, 0.9, nil, nil)
	require.NoError(t, err)

	results := s.SearchKeyword("framework", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "framework upgrade", results[0].Transaction.Content)
}

func TestSearchKeywordRespectsLimit(t *testing.T) {
	s := newTestShard(nil)
	for i := 0; i < 5; i++ {
		_, err := s.Append(fmt.Sprintf("code review %d", i), SourceManual, 0.5, nil, nil)
		require.NoError(t, err)
	}
	assert.Len(t, s.SearchKeyword("code", 3), 3)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	s := newTestShard(nil)
	for i := 0; i < 4; i++ {
		_, err := s.Append(fmt.Sprintf("entry %d", i), SourceManual, 0.5, nil, nil)
		require.NoError(t, err)
	}

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "entry 3", recent[0].Content)
	assert.Equal(t, "entry 2", recent[1].Content)
}

func TestReplaceRecomputesAndRollsBack(t *testing.T) {
	p := &memPersister{}
	s := newTestShard(p)
	_, err := s.Append("old", SourceManual, 0.2, nil, nil)
	require.NoError(t, err)

	err = s.Replace([]Transaction{{
		ID:         "shard_technical_0_1",
		Content:    "kept",
		CreatedAt:  time.Now(),
		Source:     SourceSystem,
		Importance: 0.8,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())
	assert.InDelta(t, 0.8, s.ImportanceScore(), 1e-9)

	p.fail = true
	err = s.Replace(nil)
	require.Error(t, err)
	assert.Equal(t, 1, s.Count(), "failed replace must keep previous log")
	assert.InDelta(t, 0.8, s.ImportanceScore(), 1e-9)
}

func TestRestoreResumesCounter(t *testing.T) {
	snap := Snapshot{
		ID:   "shard_projects",
		Name: "Projets en cours",
		Transactions: []Transaction{
			{ID: "shard_projects_0_1", Content: "a", CreatedAt: time.Now(), Importance: 0.5},
			{ID: "shard_projects_1_2", Content: "b", CreatedAt: time.Now(), Importance: 0.5},
		},
		ImportanceScore: 0.5,
	}

	s := Restore(snap, nil)
	assert.Equal(t, 2, s.Count())

	id, err := s.Append("c", SourceManual, 0.5, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, id, "shard_projects_2_")
}
