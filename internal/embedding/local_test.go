package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedIsDeterministic(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()

	a, err := e.Embed(ctx, "Projet actif: Finaliser GitHub release")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Projet actif: Finaliser GitHub release")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, e.Dimensions())
}

func TestLocalEmbedNormalizesInput(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()

	a, err := e.Embed(ctx, "  Hello World  ")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedUnitLength(t *testing.T) {
	e := NewLocalEngine()

	vec, err := e.Embed(context.Background(), "some content")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalEmbedCaches(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()

	_, err := e.Embed(ctx, "one")
	require.NoError(t, err)
	_, err = e.Embed(ctx, "ONE")
	require.NoError(t, err)
	_, err = e.Embed(ctx, "two")
	require.NoError(t, err)

	assert.Equal(t, 2, e.CacheSize())
}

func TestEmbedBatch(t *testing.T) {
	e := NewLocalEngine()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestCosineSimilaritySelfIsOne(t *testing.T) {
	e := NewLocalEngine()

	vec, err := e.Embed(context.Background(), "identical content")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, CosineSimilarity(vec, vec), 1e-6)
}

func TestCosineSimilarityKnownVectors(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	diag := CosineSimilarity([]float32{1, 0}, []float32{1, 1})
	assert.InDelta(t, 1/math.Sqrt2, diag, 1e-6)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
