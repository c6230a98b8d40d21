// Package search ranks stored transactions against a query by vector
// similarity, with an optional hybrid mode that unions keyword matches
// into the result set.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"shardmem/internal/embedding"
	"shardmem/internal/logging"
	"shardmem/internal/shard"
)

// Registry is the view of the shard registry the searcher needs.
// *router.Router satisfies it.
type Registry interface {
	Shards() []*shard.Shard
	Get(id string) (*shard.Shard, error)
}

// Match types reported on results.
const (
	MatchSemantic = "semantic"
	MatchKeyword  = "keyword"
)

// Hybrid scoring: keyword hits carry a fixed base score plus a bonus
// so they rank above weak semantic matches but below strong ones.
// Semantic hits keep their cosine similarity.
const (
	keywordBaseScore = 0.5
	keywordBonus     = 0.3
)

// Result is one similarity hit.
type Result struct {
	ShardID     string
	ShardName   string
	Transaction shard.Transaction
	Score       float64
	MatchType   string
}

// Searcher runs semantic and hybrid searches over the registry.
type Searcher struct {
	registry Registry
	engine   embedding.Engine
	log      *zap.Logger
}

// New creates a searcher over the given registry.
func New(registry Registry, engine embedding.Engine) *Searcher {
	return &Searcher{
		registry: registry,
		engine:   engine,
		log:      logging.Get(logging.CategorySearch),
	}
}

// Semantic embeds the query and ranks all stored transactions by
// cosine similarity. shardID narrows the search to one shard; empty
// searches all. Transactions without an embedding are filtered out,
// not errors. Results with score < minScore are dropped, the rest are
// sorted by descending score (ties: importance, recency, id) and
// truncated to topK.
func (s *Searcher) Semantic(ctx context.Context, query, shardID string, topK int, minScore float64) ([]Result, error) {
	if s.engine == nil {
		return nil, embedding.ErrUnavailable
	}
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding: %v", embedding.ErrUnavailable, err)
	}

	shards, err := s.scope(shardID)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, sh := range shards {
		for _, tx := range sh.Transactions() {
			if !tx.HasEmbedding() {
				continue
			}
			score := embedding.CosineSimilarity(queryVec, tx.Embedding)
			if score < 0 {
				score = 0
			}
			if score < minScore {
				continue
			}
			results = append(results, Result{
				ShardID:     sh.ID(),
				ShardName:   sh.Name(),
				Transaction: tx,
				Score:       score,
				MatchType:   MatchSemantic,
			})
		}
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	s.log.Debug("semantic search complete",
		zap.String("shard", shardID),
		zap.Int("results", len(results)))
	return results, nil
}

// Hybrid unions semantic and keyword results, deduplicated by
// transaction id with semantic hits winning collisions, and re-ranks
// the merged list. Keyword-only hits score keywordBaseScore plus
// keywordBonus. When the embedding backend is unavailable the keyword
// leg alone is returned; hybrid search never fails outright.
func (s *Searcher) Hybrid(ctx context.Context, query, shardID string, topK int, minScore float64) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	semantic, err := s.Semantic(ctx, query, shardID, topK, minScore)
	if err != nil {
		s.log.Warn("semantic leg unavailable, degrading to keyword-only", zap.Error(err))
		semantic = nil
	}

	shards, err := s.scope(shardID)
	if err != nil {
		return nil, err
	}

	merged := append([]Result(nil), semantic...)
	seen := make(map[string]bool, len(merged))
	for _, res := range merged {
		seen[res.Transaction.ID] = true
	}

	for _, sh := range shards {
		for _, hit := range sh.SearchKeyword(query, topK) {
			if seen[hit.Transaction.ID] {
				continue
			}
			seen[hit.Transaction.ID] = true
			merged = append(merged, Result{
				ShardID:     sh.ID(),
				ShardName:   sh.Name(),
				Transaction: hit.Transaction,
				Score:       keywordBaseScore + keywordBonus,
				MatchType:   MatchKeyword,
			})
		}
	}

	sortResults(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (s *Searcher) scope(shardID string) ([]*shard.Shard, error) {
	if shardID == "" {
		return s.registry.Shards(), nil
	}
	sh, err := s.registry.Get(shardID)
	if err != nil {
		return nil, err
	}
	return []*shard.Shard{sh}, nil
}

// sortResults orders by score, importance, recency, then id so equal
// vectors rank deterministically.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Transaction, results[j].Transaction
		if ti.Importance != tj.Importance {
			return ti.Importance > tj.Importance
		}
		if !ti.CreatedAt.Equal(tj.CreatedAt) {
			return ti.CreatedAt.After(tj.CreatedAt)
		}
		return ti.ID < tj.ID
	})
}
