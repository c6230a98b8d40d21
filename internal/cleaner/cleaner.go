// Package cleaner bounds shard size: it removes transactions older
// than the shard's TTL and evicts the oldest excess above the
// per-shard transaction cap. Removed entries go through an optional
// archive hook before deletion.
package cleaner

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"shardmem/internal/config"
	"shardmem/internal/logging"
	"shardmem/internal/shard"
)

// Archiver receives removed transactions before they are dropped from
// the live log. *store.ArchiveStore satisfies it; nil disables
// archiving (hard delete).
type Archiver interface {
	Archive(shardID, reason string, txs []shard.Transaction) error
}

// Stats reports one cleanup pass.
type Stats struct {
	Expired int  `json:"expired_count"`
	Kept    int  `json:"kept_count"`
	Evicted int  `json:"evicted_count"`
	DryRun  bool `json:"dry_run"`
}

// Cleaner runs per-shard TTL/size cleanup passes.
type Cleaner struct {
	archive Archiver
	log     *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a cleaner. archive may be nil.
func New(archive Archiver) *Cleaner {
	return &Cleaner{
		archive: archive,
		log:     logging.Get(logging.CategoryCleaner),
		now:     time.Now,
	}
}

// Expired returns the transactions whose age exceeds ttl at now.
// A non-positive ttl disables expiry.
func Expired(txs []shard.Transaction, ttl time.Duration, now time.Time) []shard.Transaction {
	if ttl <= 0 {
		return nil
	}
	var out []shard.Transaction
	for _, tx := range txs {
		if tx.Age(now) > ttl {
			out = append(out, tx)
		}
	}
	return out
}

// Run applies the policy to one shard: TTL expiry first, then eviction
// of the oldest excess over MaxTransactions (ties: lowest importance
// first, then id). With dryRun the result is computed but nothing is
// archived or persisted. A second run with no time elapsed and no new
// data is a no-op.
func (c *Cleaner) Run(s *shard.Shard, policy config.TTLPolicy, dryRun bool) (Stats, error) {
	now := c.now()
	txs := s.Transactions()

	ttl := policy.TTL()
	var kept, expired []shard.Transaction
	for _, tx := range txs {
		if ttl > 0 && tx.Age(now) > ttl {
			expired = append(expired, tx)
		} else {
			kept = append(kept, tx)
		}
	}

	var evicted []shard.Transaction
	if policy.MaxTransactions > 0 && len(kept) > policy.MaxTransactions {
		kept, evicted = evictExcess(kept, policy.MaxTransactions)
	}

	stats := Stats{
		Expired: len(expired),
		Kept:    len(kept),
		Evicted: len(evicted),
		DryRun:  dryRun,
	}

	if dryRun || (len(expired) == 0 && len(evicted) == 0) {
		return stats, nil
	}

	// Archive before deleting: data must never be silently dropped.
	if c.archive != nil {
		if err := c.archive.Archive(s.ID(), "expired", expired); err != nil {
			return stats, fmt.Errorf("archive expired: %w", err)
		}
		if err := c.archive.Archive(s.ID(), "evicted", evicted); err != nil {
			return stats, fmt.Errorf("archive evicted: %w", err)
		}
	}

	if err := s.Replace(kept); err != nil {
		return stats, err
	}

	c.log.Info("cleanup pass complete",
		zap.String("shard", s.ID()),
		zap.Int("expired", stats.Expired),
		zap.Int("evicted", stats.Evicted),
		zap.Int("kept", stats.Kept))
	return stats, nil
}

// evictExcess removes the excess above max: oldest first, lowest
// importance first among equally old entries, id as the final
// deterministic tie-break. The kept remainder stays in log order.
func evictExcess(txs []shard.Transaction, max int) (kept, evicted []shard.Transaction) {
	order := make([]int, len(txs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := txs[order[a]], txs[order[b]]
		if !ta.CreatedAt.Equal(tb.CreatedAt) {
			return ta.CreatedAt.Before(tb.CreatedAt)
		}
		if ta.Importance != tb.Importance {
			return ta.Importance < tb.Importance
		}
		return ta.ID < tb.ID
	})

	excess := len(txs) - max
	drop := make(map[int]bool, excess)
	for _, idx := range order[:excess] {
		drop[idx] = true
	}

	kept = make([]shard.Transaction, 0, max)
	evicted = make([]shard.Transaction, 0, excess)
	for i, tx := range txs {
		if drop[i] {
			evicted = append(evicted, tx)
		} else {
			kept = append(kept, tx)
		}
	}
	return kept, evicted
}
