// Package shard implements the topical memory partitions: each shard
// holds an append-only log of transactions, a static keyword list used
// for routing, and a derived importance score.
package shard

import (
	"errors"
	"time"
)

// Sentinel errors for the append path.
var (
	// ErrInvalidImportance reports an importance that is not a finite
	// number. Out-of-range finite values are clamped, not rejected.
	ErrInvalidImportance = errors.New("invalid importance")

	// ErrInvalidCrossRef reports a cross-reference that failed
	// validation (unknown shard, self-reference or over the cap).
	ErrInvalidCrossRef = errors.New("invalid cross-reference")
)

// MaxCrossRefs caps the number of cross-shard references a single
// transaction may carry.
const MaxCrossRefs = 3

// Source identifies where a memory entry came from. Informational only.
type Source string

const (
	SourceManual    Source = "manual"
	SourceAutomated Source = "automated"
	SourceSystem    Source = "system"
)

// ParseSource normalizes a source string, defaulting to manual.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceAutomated:
		return SourceAutomated
	case SourceSystem:
		return SourceSystem
	default:
		return SourceManual
	}
}

// Transaction is one stored memory entry. Immutable once appended:
// compression and cleanup replace or remove whole transactions, never
// edit them in place.
type Transaction struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Source     Source    `json:"source"`
	Importance float64   `json:"importance"`
	CrossRefs  []string  `json:"cross_refs,omitempty"`

	// Embedding is derived, cached data: transactions without one are
	// simply excluded from similarity ranking.
	Embedding []float32 `json:"embedding,omitempty"`

	// Set on transactions produced by the compressor.
	ConsolidatedFrom []string `json:"consolidated_from,omitempty"`
}

// Age returns the transaction age relative to now.
func (t Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// HasEmbedding reports whether the transaction can participate in
// similarity ranking.
func (t Transaction) HasEmbedding() bool {
	return len(t.Embedding) > 0
}
