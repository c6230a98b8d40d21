// Package router owns the fixed shard registry. It is the single
// entry/exit point of the memory store: it routes new content to the
// best-scoring shard, dispatches queries across shards and regenerates
// the summary record after every mutation.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"shardmem/internal/config"
	"shardmem/internal/crossref"
	"shardmem/internal/embedding"
	"shardmem/internal/logging"
	"shardmem/internal/shard"
	"shardmem/internal/store"
)

// ErrUnknownShard reports a lookup against a shard id outside the
// fixed registry. Always surfaced to the caller.
var ErrUnknownShard = errors.New("unknown shard")

// Router holds the registry in registration order. The registry is
// created once at startup and never changes for the process lifetime.
type Router struct {
	shards  []*shard.Shard
	byID    map[string]*shard.Shard
	targets []crossref.Target

	importanceWeight float64
	defaultShard     string
	strictCrossRefs  bool
	embedTimeout     time.Duration

	engine embedding.Engine
	files  *store.FileStore
	log    *zap.Logger
}

// New builds the registry from configuration, restoring persisted
// shard state where present and creating (and persisting) empty shards
// otherwise.
func New(cfg *config.Config, files *store.FileStore, engine embedding.Engine) (*Router, error) {
	r := &Router{
		byID:             make(map[string]*shard.Shard, len(cfg.Shards)),
		importanceWeight: cfg.Router.ImportanceWeight,
		defaultShard:     cfg.Router.DefaultShard,
		strictCrossRefs:  cfg.Router.StrictCrossRefs,
		embedTimeout:     cfg.Embedding.TimeoutDuration(),
		engine:           engine,
		files:            files,
		log:              logging.Get(logging.CategoryRouter),
	}
	if r.defaultShard == "" {
		r.defaultShard = cfg.Shards[0].ID
	}

	boot := logging.Get(logging.CategoryBoot)
	for _, dom := range cfg.Shards {
		snap, ok, err := files.LoadShard(dom.ID)
		var s *shard.Shard
		switch {
		case err != nil:
			return nil, err
		case ok:
			// Registry config wins over persisted metadata; only the
			// transaction log survives a keyword/name change.
			snap.Name = dom.Name
			snap.Description = dom.Description
			snap.Keywords = dom.Keywords
			s = shard.Restore(snap, files)
			boot.Info("shard restored",
				zap.String("shard", dom.ID),
				zap.Int("transactions", s.Count()))
		default:
			s = shard.New(dom.ID, dom.Name, dom.Description, dom.Keywords, files)
			if err := files.SaveShard(s.Snapshot()); err != nil {
				return nil, err
			}
			boot.Info("shard created", zap.String("shard", dom.ID))
		}

		r.shards = append(r.shards, s)
		r.byID[dom.ID] = s
		r.targets = append(r.targets, crossref.Target{ID: dom.ID, Name: dom.Name})
	}

	if err := files.SaveSummary(r.summary()); err != nil {
		return nil, err
	}
	return r, nil
}

// Shards returns the registry in registration order.
func (r *Router) Shards() []*shard.Shard {
	return r.shards
}

// Get resolves a shard id against the registry.
func (r *Router) Get(id string) (*shard.Shard, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShard, id)
	}
	return s, nil
}

// Targets returns the registry as cross-reference targets.
func (r *Router) Targets() []crossref.Target {
	return r.targets
}

// AddMemory sanitizes content, routes it to the best-scoring shard,
// validates cross-references against that shard and appends. Routing
// never fails for unroutable content: zero-score content lands on the
// configured default shard. The returned id is prefixed with the
// selected shard's id.
func (r *Router) AddMemory(ctx context.Context, content, source string, importance float64) (string, error) {
	content = shard.Sanitize(content)
	best := r.route(content)

	var refs []string
	if r.strictCrossRefs {
		var err error
		refs, err = crossref.ExtractStrict(content, best.ID(), r.targets)
		if err != nil {
			return "", err
		}
	} else {
		refs = crossref.Extract(content, best.ID(), r.targets)
	}

	emb := r.embed(ctx, content)

	id, err := best.Append(content, shard.ParseSource(source), importance, refs, emb)
	if err != nil {
		return "", err
	}

	r.log.Info("memory routed",
		zap.String("shard", best.ID()),
		zap.String("transaction", id),
		zap.Strings("cross_refs", refs))

	if err := r.files.SaveSummary(r.summary()); err != nil {
		return "", err
	}
	return id, nil
}

// route scores every shard and returns the winner. Ties are broken by
// registration order; content matching nothing anywhere falls back to
// the default shard.
func (r *Router) route(content string) *shard.Shard {
	text := crossref.Normalize(content)

	best := r.byID[r.defaultShard]
	bestScore := 0.0
	anyMatch := false

	for _, s := range r.shards {
		score := r.Score(s, text)
		if score > 0 {
			anyMatch = true
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}

	if !anyMatch {
		r.log.Debug("no shard matched, using default",
			zap.String("shard", r.defaultShard))
		return r.byID[r.defaultShard]
	}
	return best
}

// Score computes the routing score for one shard against normalized
// content: keyword match count plus the weighted shard importance. The
// importance term makes recently active shards sticky; the weight is a
// tunable (config router.importance_weight), not a law.
func (r *Router) Score(s *shard.Shard, normalizedContent string) float64 {
	score := 0.0
	for _, kw := range s.Keywords() {
		if strings.Contains(normalizedContent, crossref.Normalize(kw)) {
			score += 1.0
		}
	}
	return score + r.importanceWeight*s.ImportanceScore()
}

// embed computes the content embedding with a bounded timeout. Any
// failure degrades to storing the transaction without an embedding; it
// is filtered from similarity ranking, never an error.
func (r *Router) embed(ctx context.Context, content string) []float32 {
	if r.engine == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	emb, err := r.engine.Embed(ctx, content)
	if err != nil {
		r.log.Warn("embedding unavailable, storing without vector", zap.Error(err))
		return nil
	}
	return emb
}

// QueryResult is one query hit with its owning shard attached.
type QueryResult struct {
	ShardID     string
	ShardName   string
	Transaction shard.Transaction
	Score       float64
}

// Query searches every shard by keyword match and merges the results,
// ordered by score, importance and recency, all descending. With cross
// set, each hit's cross-references additionally pull in the most
// recent transactions of the linked shards at half the parent's score.
// The limit applies to the final merged list, not per shard.
func (r *Router) Query(text string, limit int, cross bool) []QueryResult {
	if limit <= 0 {
		limit = 10
	}

	var merged []QueryResult
	for _, s := range r.shards {
		for _, res := range s.SearchKeyword(text, limit) {
			merged = append(merged, QueryResult{
				ShardID:     s.ID(),
				ShardName:   s.Name(),
				Transaction: res.Transaction,
				Score:       res.Score,
			})
		}
	}

	if cross {
		merged = append(merged, r.followCrossRefs(merged)...)
	}

	merged = dedupeByID(merged)
	sortResults(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// followCrossRefs pulls linked transactions for each primary hit: the
// two most recent entries of every referenced shard, scored at half
// the parent score so linked context ranks below direct matches.
func (r *Router) followCrossRefs(primary []QueryResult) []QueryResult {
	const linkedPerRef = 2

	var linked []QueryResult
	for _, res := range primary {
		for _, refID := range res.Transaction.CrossRefs {
			target, ok := r.byID[refID]
			if !ok {
				continue
			}
			for _, tx := range target.Recent(linkedPerRef) {
				linked = append(linked, QueryResult{
					ShardID:     target.ID(),
					ShardName:   target.Name(),
					Transaction: tx,
					Score:       res.Score * 0.5,
				})
			}
		}
	}
	return linked
}

// SearchShard delegates a keyword search to a single shard.
func (r *Router) SearchShard(shardID, text string, limit int) ([]QueryResult, error) {
	s, err := r.Get(shardID)
	if err != nil {
		return nil, err
	}

	var out []QueryResult
	for _, res := range s.SearchKeyword(text, limit) {
		out = append(out, QueryResult{
			ShardID:     s.ID(),
			ShardName:   s.Name(),
			Transaction: res.Transaction,
			Score:       res.Score,
		})
	}
	return out, nil
}

// Status reports per-shard counts and the global totals. Read-only.
func (r *Router) Status() store.Summary {
	return r.summary()
}

// ExportSummary regenerates the persisted summary record. Maintenance
// passes call this after mutating shards directly.
func (r *Router) ExportSummary() error {
	return r.files.SaveSummary(r.summary())
}

func (r *Router) summary() store.Summary {
	sum := store.Summary{
		ExportedAt:  time.Now(),
		TotalShards: len(r.shards),
	}
	for _, s := range r.shards {
		count := s.Count()
		sum.TotalTransactions += count
		sum.Shards = append(sum.Shards, store.ShardStatus{
			ID:               s.ID(),
			Name:             s.Name(),
			TransactionCount: count,
			ImportanceScore:  s.ImportanceScore(),
			LastUpdated:      s.LastUpdated(),
		})
	}
	return sum
}

func dedupeByID(results []QueryResult) []QueryResult {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, res := range results {
		if seen[res.Transaction.ID] {
			continue
		}
		seen[res.Transaction.ID] = true
		out = append(out, res)
	}
	return out
}

func sortResults(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Transaction.Importance != results[j].Transaction.Importance {
			return results[i].Transaction.Importance > results[j].Transaction.Importance
		}
		return results[i].Transaction.CreatedAt.After(results[j].Transaction.CreatedAt)
	})
}
