package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// =============================================================================
// LOCAL DETERMINISTIC ENGINE
// =============================================================================

// localDimensions matches the all-MiniLM-L6-v2 footprint so data
// produced with the local engine stays interchangeable with a real
// sentence-transformer deployment.
const localDimensions = 384

// LocalEngine generates deterministic embeddings from a text hash.
// It needs no network or model download, which keeps the core fully
// testable, and caches results by normalized content.
type LocalEngine struct {
	mu    sync.RWMutex
	cache map[uint64][]float32
}

// NewLocalEngine creates the deterministic fallback engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{cache: make(map[uint64][]float32)}
}

// Embed creates a deterministic embedding from text. Identical inputs
// (after trimming and lowercasing) always yield identical vectors.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	key := hashText(text)

	e.mu.RLock()
	cached, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	vec := make([]float32, localDimensions)

	// LCG seeded by the content hash; cheap, deterministic and spread
	// well enough for cosine ranking in tests and offline mode.
	seed := key
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	normalize(vec)

	e.mu.Lock()
	e.cache[key] = vec
	e.mu.Unlock()
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (e *LocalEngine) Dimensions() int { return localDimensions }

// Name returns the engine name.
func (e *LocalEngine) Name() string { return "local:deterministic" }

// CacheSize reports how many embeddings are cached.
func (e *LocalEngine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	return h.Sum64()
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
}
