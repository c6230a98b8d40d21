package shard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shardmem/internal/logging"
)

// Persister receives a full shard snapshot after every mutation.
// Persistence is write-through: a failed save aborts the mutation.
type Persister interface {
	SaveShard(snap Snapshot) error
}

// Snapshot is the serializable state of one shard, the unit of
// persistence.
type Snapshot struct {
	ID              string        `json:"shard_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Keywords        []string      `json:"keywords"`
	Transactions    []Transaction `json:"transactions"`
	ImportanceScore float64       `json:"importance_score"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// Shard is one topical partition of the memory store. All mutating
// operations are mutually exclusive; reads may run concurrently.
type Shard struct {
	id          string
	name        string
	description string
	keywords    []string

	mu              sync.RWMutex
	txs             []Transaction
	importanceScore float64
	lastUpdated     time.Time
	counter         uint64

	persist Persister
	log     *zap.Logger
}

// New creates an empty shard for a registry domain.
func New(id, name, description string, keywords []string, persist Persister) *Shard {
	return &Shard{
		id:          id,
		name:        name,
		description: description,
		keywords:    keywords,
		persist:     persist,
		log:         logging.Get(logging.CategoryShard).With(zap.String("shard", id)),
	}
}

// Restore rebuilds a shard from a persisted snapshot. The append
// counter resumes past the restored log so ids stay monotonic.
func Restore(snap Snapshot, persist Persister) *Shard {
	s := New(snap.ID, snap.Name, snap.Description, snap.Keywords, persist)
	s.txs = append(s.txs, snap.Transactions...)
	s.importanceScore = clamp01(snap.ImportanceScore)
	s.lastUpdated = snap.LastUpdated
	s.counter = uint64(len(snap.Transactions))
	return s
}

// ID returns the stable shard identifier.
func (s *Shard) ID() string { return s.id }

// Name returns the shard display name.
func (s *Shard) Name() string { return s.name }

// Description returns the shard domain description.
func (s *Shard) Description() string { return s.description }

// Keywords returns the static routing keyword list.
func (s *Shard) Keywords() []string { return s.keywords }

// Append validates and stores a new transaction, recomputes the shard
// importance score and persists write-through. Importance must be a
// finite number; finite values outside [0,1] are clamped rather than
// rejected. Cross-references are assumed already validated by the
// caller (see crossref.Extract); Append re-checks only the hard cap.
func (s *Shard) Append(content string, source Source, importance float64, crossRefs []string, embedding []float32) (string, error) {
	if math.IsNaN(importance) || math.IsInf(importance, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidImportance, importance)
	}
	if len(crossRefs) > MaxCrossRefs {
		return "", fmt.Errorf("%w: %d refs exceed cap of %d", ErrInvalidCrossRef, len(crossRefs), MaxCrossRefs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	tx := Transaction{
		ID:         fmt.Sprintf("%s_%d_%d", s.id, s.counter, now.UnixNano()),
		Content:    content,
		CreatedAt:  now,
		Source:     source,
		Importance: clamp01(importance),
		CrossRefs:  append([]string(nil), crossRefs...),
		Embedding:  embedding,
	}

	s.txs = append(s.txs, tx)
	s.counter++
	s.recomputeLocked(now)

	if err := s.saveLocked(); err != nil {
		// Roll back the append: the caller must not observe a
		// transaction that was never durably stored.
		s.txs = s.txs[:len(s.txs)-1]
		s.recomputeLocked(now)
		return "", err
	}

	s.log.Debug("transaction appended",
		zap.String("id", tx.ID),
		zap.Float64("importance", tx.Importance),
		zap.Int("cross_refs", len(tx.CrossRefs)))
	return tx.ID, nil
}

// Result pairs a transaction with its keyword match score.
type Result struct {
	Transaction Transaction
	Score       float64
}

// SearchKeyword performs a case-insensitive keyword match over the
// log. A full substring match scores 1.0; otherwise the score is the
// fraction of query tokens present in the content. Results are ordered
// by score, then importance, then recency, all descending.
func (s *Shard) SearchKeyword(query string, limit int) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryLower := strings.ToLower(strings.TrimSpace(query))
	tokens := strings.Fields(queryLower)

	var results []Result
	for _, tx := range s.txs {
		score := matchScore(strings.ToLower(tx.Content), queryLower, tokens)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Transaction: tx, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Transaction.Importance != results[j].Transaction.Importance {
			return results[i].Transaction.Importance > results[j].Transaction.Importance
		}
		return results[i].Transaction.CreatedAt.After(results[j].Transaction.CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func matchScore(contentLower, queryLower string, tokens []string) float64 {
	if queryLower == "" {
		return 0
	}
	if strings.Contains(contentLower, queryLower) {
		return 1.0
	}
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(contentLower, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// Recent returns the most recent transactions, newest first.
func (s *Shard) Recent(limit int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.txs) {
		limit = len(s.txs)
	}

	out := make([]Transaction, 0, limit)
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.txs[i])
	}
	return out
}

// Transactions returns a copy of the full log in append order.
func (s *Shard) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transaction(nil), s.txs...)
}

// Replace swaps the whole log, used by the compression and cleanup
// passes. The importance score is recomputed and the new state is
// persisted write-through; on persistence failure the previous log is
// kept and the error returned.
func (s *Shard) Replace(txs []Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.txs
	prevScore := s.importanceScore
	prevUpdated := s.lastUpdated

	s.txs = append([]Transaction(nil), txs...)
	s.recomputeLocked(time.Now())

	if err := s.saveLocked(); err != nil {
		s.txs = prev
		s.importanceScore = prevScore
		s.lastUpdated = prevUpdated
		return err
	}
	return nil
}

// Count returns the number of stored transactions.
func (s *Shard) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// ImportanceScore returns the derived shard importance in [0,1].
func (s *Shard) ImportanceScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.importanceScore
}

// LastUpdated returns the time of the last mutation.
func (s *Shard) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Snapshot returns a deep-enough copy of the shard state for
// persistence or inspection.
func (s *Shard) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Shard) snapshotLocked() Snapshot {
	return Snapshot{
		ID:              s.id,
		Name:            s.name,
		Description:     s.description,
		Keywords:        append([]string(nil), s.keywords...),
		Transactions:    append([]Transaction(nil), s.txs...),
		ImportanceScore: s.importanceScore,
		LastUpdated:     s.lastUpdated,
	}
}

// recomputeLocked derives the shard importance score as the mean of
// transaction importances. Always in [0,1] because every transaction
// importance is clamped at creation.
func (s *Shard) recomputeLocked(now time.Time) {
	if len(s.txs) == 0 {
		s.importanceScore = 0
	} else {
		var total float64
		for _, tx := range s.txs {
			total += tx.Importance
		}
		s.importanceScore = clamp01(total / float64(len(s.txs)))
	}
	s.lastUpdated = now
}

func (s *Shard) saveLocked() error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.SaveShard(s.snapshotLocked()); err != nil {
		s.log.Error("write-through persistence failed", zap.Error(err))
		return fmt.Errorf("persist shard %s: %w", s.id, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
