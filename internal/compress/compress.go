// Package compress reduces redundancy within a shard: exact duplicates
// are removed and near-duplicate transactions (by embedding cosine
// similarity) are consolidated under a configurable policy. The pass
// never crosses shard boundaries and is idempotent.
package compress

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shardmem/internal/crossref"
	"shardmem/internal/embedding"
	"shardmem/internal/logging"
	"shardmem/internal/shard"
)

// Policy selects how a similarity group collapses.
type Policy string

const (
	// PolicyKeepNewest discards all but the most recent transaction of
	// the group. The survivor's importance becomes the group maximum
	// and its cross-refs the capped union of the group's.
	PolicyKeepNewest Policy = "keep-newest"

	// PolicyMergeContent concatenates the group into one new
	// transaction and recomputes its embedding.
	PolicyMergeContent Policy = "merge-content"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyKeepNewest, PolicyMergeContent:
		return Policy(s), nil
	case "":
		return PolicyKeepNewest, nil
	}
	return "", fmt.Errorf("unknown compression policy %q", s)
}

// Stats reports one compression pass.
type Stats struct {
	DuplicatesRemoved  int  `json:"duplicates_removed"`
	GroupsConsolidated int  `json:"groups_consolidated"`
	TotalBefore        int  `json:"total_before"`
	TotalAfter         int  `json:"total_after"`
	DryRun             bool `json:"dry_run"`
}

// Compressor runs per-shard compression passes.
type Compressor struct {
	threshold float64
	engine    embedding.Engine
	log       *zap.Logger
}

// New creates a compressor. threshold is the minimum pairwise cosine
// similarity for two transactions to be grouped.
func New(threshold float64, engine embedding.Engine) *Compressor {
	return &Compressor{
		threshold: threshold,
		engine:    engine,
		log:       logging.Get(logging.CategoryCompress),
	}
}

// Run compresses one shard. With dryRun the resulting state is
// computed and reported but not persisted.
func (c *Compressor) Run(ctx context.Context, s *shard.Shard, policy Policy, dryRun bool) (Stats, error) {
	txs := s.Transactions()
	stats := Stats{TotalBefore: len(txs), DryRun: dryRun}

	// Pass 1: exact duplicates by normalized content; the earliest
	// occurrence survives.
	unique, removed := dedupeExact(txs)
	stats.DuplicatesRemoved = removed

	// Pass 2: transitive-closure similarity groups. If A~B and B~C
	// both clear the threshold, {A,B,C} is one group even when A~C
	// does not.
	groups := c.FindSimilar(unique)

	final, err := c.consolidateAll(ctx, unique, groups, policy)
	if err != nil {
		return stats, err
	}
	stats.GroupsConsolidated = len(groups)
	stats.TotalAfter = len(final)

	if !dryRun && stats.TotalAfter != stats.TotalBefore {
		if err := s.Replace(final); err != nil {
			return stats, err
		}
	}

	c.log.Info("compression pass complete",
		zap.String("shard", s.ID()),
		zap.Int("before", stats.TotalBefore),
		zap.Int("after", stats.TotalAfter),
		zap.Bool("dry_run", dryRun))
	return stats, nil
}

// FindSimilar groups transaction indices whose pairwise cosine
// similarity exceeds the threshold, using transitive closure over the
// pairwise relation. Transactions without embeddings are never
// grouped. Groups are returned in first-member log order.
func (c *Compressor) FindSimilar(txs []shard.Transaction) [][]int {
	parent := make([]int, len(txs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) { parent[find(a)] = find(b) }

	for i := 0; i < len(txs); i++ {
		if !txs[i].HasEmbedding() {
			continue
		}
		for j := i + 1; j < len(txs); j++ {
			if !txs[j].HasEmbedding() {
				continue
			}
			if embedding.CosineSimilarity(txs[i].Embedding, txs[j].Embedding) >= c.threshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	var roots []int
	for i := range txs {
		root := find(i)
		if len(byRoot[root]) == 0 {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], i)
	}

	var groups [][]int
	for _, root := range roots {
		if len(byRoot[root]) >= 2 {
			groups = append(groups, byRoot[root])
		}
	}
	return groups
}

// consolidateAll collapses every group inside the log in one pass,
// preserving log order for everything else. Each survivor takes the
// slot of its group's newest member; the rest of the group is dropped.
// Groups are disjoint, so all indices stay valid against txs.
func (c *Compressor) consolidateAll(ctx context.Context, txs []shard.Transaction, groups [][]int, policy Policy) ([]shard.Transaction, error) {
	survivorAt := make(map[int]shard.Transaction)
	drop := make(map[int]bool)

	for _, group := range groups {
		members := make([]shard.Transaction, 0, len(group))
		for _, idx := range group {
			members = append(members, txs[idx])
		}

		var survivor shard.Transaction
		var err error
		switch policy {
		case PolicyMergeContent:
			survivor, err = c.merge(ctx, members)
		default:
			survivor = keepNewest(members)
		}
		if err != nil {
			return nil, err
		}

		newestIdx := group[0]
		for _, idx := range group {
			if txs[idx].CreatedAt.After(txs[newestIdx].CreatedAt) {
				newestIdx = idx
			}
		}
		for _, idx := range group {
			drop[idx] = true
		}
		survivorAt[newestIdx] = survivor
	}

	out := make([]shard.Transaction, 0, len(txs))
	for i, tx := range txs {
		if survivor, ok := survivorAt[i]; ok {
			out = append(out, survivor)
		} else if !drop[i] {
			out = append(out, tx)
		}
	}
	return out, nil
}

// keepNewest keeps the most recent member, raising its importance to
// the group maximum and unioning cross-refs up to the cap. Keeping the
// survivor's id makes a second pass over the same data a no-op.
func keepNewest(members []shard.Transaction) shard.Transaction {
	newest := members[0]
	for _, m := range members[1:] {
		if m.CreatedAt.After(newest.CreatedAt) {
			newest = m
		}
	}

	survivor := newest
	survivor.Importance = maxImportance(members)
	survivor.CrossRefs = unionRefs(members)
	for _, m := range members {
		if m.ID != survivor.ID {
			survivor.ConsolidatedFrom = append(survivor.ConsolidatedFrom, m.ID)
		}
	}
	return survivor
}

// merge concatenates the group into a new system transaction and
// recomputes its embedding. An unavailable embedding backend leaves
// the merged transaction without a vector rather than failing.
func (c *Compressor) merge(ctx context.Context, members []shard.Transaction) (shard.Transaction, error) {
	ordered := append([]shard.Transaction(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	contents := make([]string, len(ordered))
	ids := make([]string, len(ordered))
	for i, m := range ordered {
		contents[i] = m.Content
		ids[i] = m.ID
	}

	newest := ordered[len(ordered)-1]
	merged := shard.Transaction{
		ID:               fmt.Sprintf("consolidated_%s", uuid.NewString()),
		Content:          strings.Join(contents, "\n---\n"),
		CreatedAt:        newest.CreatedAt,
		Source:           shard.SourceSystem,
		Importance:       maxImportance(members),
		CrossRefs:        unionRefs(members),
		ConsolidatedFrom: ids,
	}

	if c.engine != nil {
		if vec, err := c.engine.Embed(ctx, merged.Content); err == nil {
			merged.Embedding = vec
		} else {
			c.log.Warn("embedding unavailable for merged transaction", zap.Error(err))
		}
	}
	return merged, nil
}

func maxImportance(members []shard.Transaction) float64 {
	max := 0.0
	for _, m := range members {
		if m.Importance > max {
			max = m.Importance
		}
	}
	return max
}

// unionRefs unions cross-refs in first-seen order across members
// (members in log order), capped at shard.MaxCrossRefs.
func unionRefs(members []shard.Transaction) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, m := range members {
		for _, ref := range m.CrossRefs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
			if len(refs) == shard.MaxCrossRefs {
				return refs
			}
		}
	}
	return refs
}

// dedupeExact removes transactions whose normalized content already
// appeared earlier in the log.
func dedupeExact(txs []shard.Transaction) ([]shard.Transaction, int) {
	seen := make(map[string]bool, len(txs))
	out := make([]shard.Transaction, 0, len(txs))
	removed := 0
	for _, tx := range txs {
		key := crossref.Normalize(tx.Content)
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		out = append(out, tx)
	}
	return out, removed
}
