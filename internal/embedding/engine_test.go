package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/config"
)

func TestNewEngineDefaultsToLocal(t *testing.T) {
	engine, err := NewEngine(config.EmbeddingConfig{})
	require.NoError(t, err)
	assert.Equal(t, "local:deterministic", engine.Name())

	engine, err = NewEngine(config.EmbeddingConfig{Provider: "local"})
	require.NoError(t, err)
	assert.Equal(t, "local:deterministic", engine.Name())
}

func TestNewEngineOllama(t *testing.T) {
	engine, err := NewEngine(config.EmbeddingConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Contains(t, engine.Name(), "ollama")
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	_, err := NewEngine(config.EmbeddingConfig{Provider: "quantum"})
	assert.Error(t, err)
}
