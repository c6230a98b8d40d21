package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/embedding"
	"shardmem/internal/shard"
)

type fakeRegistry struct {
	shards []*shard.Shard
}

func (f *fakeRegistry) Shards() []*shard.Shard { return f.shards }

func (f *fakeRegistry) Get(id string) (*shard.Shard, error) {
	for _, s := range f.shards {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown shard: %s", id)
}

// failEngine always errors, standing in for a down embedding backend.
type failEngine struct{}

func (failEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend down")
}

func (failEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

func (failEngine) Dimensions() int { return 0 }
func (failEngine) Name() string    { return "fail" }

func seedShard(t *testing.T, engine embedding.Engine, id string, contents ...string) *shard.Shard {
	t.Helper()

	s := shard.New(id, id, "", nil, nil)
	for _, content := range contents {
		var vec []float32
		if engine != nil {
			var err error
			vec, err = engine.Embed(context.Background(), content)
			require.NoError(t, err)
		}
		_, err := s.Append(content, shard.SourceManual, 0.5, nil, vec)
		require.NoError(t, err)
	}
	return s
}

func TestSemanticRanksExactContentFirst(t *testing.T) {
	engine := embedding.NewLocalEngine()
	reg := &fakeRegistry{shards: []*shard.Shard{
		seedShard(t, engine, "shard_technical",
			"architecture du framework",
			"notes de refactoring",
			"liste de courses"),
	}}

	results, err := New(reg, engine).Semantic(context.Background(),
		"architecture du framework", "", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "architecture du framework", results[0].Transaction.Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, MatchSemantic, results[0].MatchType)
}

func TestSemanticRespectsTopKAndMinScore(t *testing.T) {
	engine := embedding.NewLocalEngine()
	reg := &fakeRegistry{shards: []*shard.Shard{
		seedShard(t, engine, "shard_technical", "aaa", "bbb", "ccc", "ddd"),
	}}
	searcher := New(reg, engine)

	results, err := searcher.Semantic(context.Background(), "aaa", "", 2, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)

	// A min score of 0.99 keeps only the exact-content hit.
	results, err = searcher.Semantic(context.Background(), "aaa", "", 10, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aaa", results[0].Transaction.Content)
}

func TestSemanticSkipsTransactionsWithoutEmbedding(t *testing.T) {
	engine := embedding.NewLocalEngine()

	s := seedShard(t, engine, "shard_technical", "embedded entry")
	_, err := s.Append("plain entry", shard.SourceManual, 0.5, nil, nil)
	require.NoError(t, err)

	results, err := New(&fakeRegistry{shards: []*shard.Shard{s}}, engine).
		Semantic(context.Background(), "embedded entry", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "embedded entry", results[0].Transaction.Content)
}

func TestSemanticScopedToOneShard(t *testing.T) {
	engine := embedding.NewLocalEngine()
	reg := &fakeRegistry{shards: []*shard.Shard{
		seedShard(t, engine, "shard_technical", "architecture"),
		seedShard(t, engine, "shard_projects", "architecture"),
	}}

	results, err := New(reg, engine).Semantic(context.Background(),
		"architecture", "shard_projects", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, "shard_projects", res.ShardID)
	}

	_, err = New(reg, engine).Semantic(context.Background(), "x", "shard_nope", 10, 0)
	assert.Error(t, err)
}

func TestSemanticUnavailableBackend(t *testing.T) {
	reg := &fakeRegistry{shards: []*shard.Shard{
		seedShard(t, nil, "shard_technical", "entry"),
	}}

	_, err := New(reg, failEngine{}).Semantic(context.Background(), "entry", "", 10, 0)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	_, err = New(reg, nil).Semantic(context.Background(), "entry", "", 10, 0)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)
}

func TestHybridMergesKeywordHits(t *testing.T) {
	engine := embedding.NewLocalEngine()

	s := seedShard(t, engine, "shard_technical", "architecture du framework")
	// Keyword-only entry: no embedding, so only the keyword leg can
	// surface it.
	_, err := s.Append("framework sans vecteur", shard.SourceManual, 0.5, nil, nil)
	require.NoError(t, err)

	results, err := New(&fakeRegistry{shards: []*shard.Shard{s}}, engine).
		Hybrid(context.Background(), "framework", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	types := map[string]string{}
	for _, res := range results {
		types[res.Transaction.Content] = res.MatchType
	}
	assert.Equal(t, MatchSemantic, types["architecture du framework"])
	assert.Equal(t, MatchKeyword, types["framework sans vecteur"])
}

func TestHybridDegradesToKeywordOnly(t *testing.T) {
	s := seedShard(t, nil, "shard_technical", "architecture du framework")

	results, err := New(&fakeRegistry{shards: []*shard.Shard{s}}, failEngine{}).
		Hybrid(context.Background(), "framework", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, MatchKeyword, results[0].MatchType)
	assert.InDelta(t, keywordBaseScore+keywordBonus, results[0].Score, 1e-9)
}

func TestHybridDedupesByTransactionID(t *testing.T) {
	engine := embedding.NewLocalEngine()
	s := seedShard(t, engine, "shard_technical", "framework notes")

	results, err := New(&fakeRegistry{shards: []*shard.Shard{s}}, engine).
		Hybrid(context.Background(), "framework notes", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, MatchSemantic, results[0].MatchType)
}
