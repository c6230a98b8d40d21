// Package embedding provides vector embedding generation for semantic
// search. Supports a deterministic local engine plus Ollama (local
// server) and Google GenAI (cloud) backends.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"shardmem/internal/config"
	"shardmem/internal/logging"
)

// ErrUnavailable reports that the embedding backend timed out or
// errored. Callers degrade to keyword-only search; this is never fatal
// for the add/query path.
var ErrUnavailable = errors.New("embedding unavailable")

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// NewEngine creates an embedding engine based on configuration. The
// provider is chosen by config, which in turn honors the
// SHARDMEM_EMBEDDING_PROVIDER environment switch.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	log := logging.Get(logging.CategoryEmbedding)
	log.Debug("creating embedding engine", zap.String("provider", cfg.Provider))

	var engine Engine
	var err error

	switch cfg.Provider {
	case "local", "":
		engine = NewLocalEngine()
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'local', 'ollama' or 'genai')", cfg.Provider)
	}

	if err != nil {
		log.Error("failed to create embedding engine", zap.Error(err))
		return nil, err
	}

	log.Info("embedding engine ready",
		zap.String("name", engine.Name()),
		zap.Int("dimensions", engine.Dimensions()))
	return engine, nil
}

// CosineSimilarity calculates the cosine similarity between two
// vectors. Returns 0 when either vector has zero norm or the lengths
// differ, so mixed-dimension corpora rank such pairs last instead of
// failing the whole search.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
