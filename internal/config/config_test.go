package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Shards, 5)
	assert.Equal(t, "shard_insights", cfg.Router.DefaultShard)
	assert.Equal(t, 2.0, cfg.Router.ImportanceWeight)
	assert.Equal(t, 0.9, cfg.Compressor.SimilarityThreshold)
}

func TestValidateRejectsEmptyRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shards = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateShardIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shards = append(cfg.Shards, cfg.Shards[0])
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDefaultShard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Router.DefaultShard = "shard_finance"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compressor.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestPolicyForFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()

	p := cfg.PolicyFor("shard_projects")
	assert.Equal(t, 30, p.TTLDays)
	assert.Equal(t, 100, p.MaxTransactions)

	delete(cfg.Cleaner.PerShard, "shard_projects")
	p = cfg.PolicyFor("shard_projects")
	assert.Equal(t, cfg.Cleaner.Default, p)
}

func TestTTLPolicyDuration(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, TTLPolicy{TTLDays: 30}.TTL())
	assert.Equal(t, time.Duration(0), TTLPolicy{}.TTL())
}

func TestEmbeddingTimeoutDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, EmbeddingConfig{Timeout: "5s"}.TimeoutDuration())
	assert.Equal(t, 10*time.Second, EmbeddingConfig{}.TimeoutDuration())
	assert.Equal(t, 10*time.Second, EmbeddingConfig{Timeout: "bogus"}.TimeoutDuration())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Shards, cfg.Shards)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardmem.yaml")

	cfg := DefaultConfig()
	cfg.Router.ImportanceWeight = 3.5
	cfg.Compressor.Policy = "merge-content"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3.5, loaded.Router.ImportanceWeight)
	assert.Equal(t, "merge-content", loaded.Compressor.Policy)
	assert.Equal(t, cfg.Shards, loaded.Shards)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardmem.yaml")

	cfg := DefaultConfig()
	cfg.Router.DefaultShard = "shard_finance"
	require.NoError(t, cfg.Save(path))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHARDMEM_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("SHARDMEM_GENAI_API_KEY", "secret")
	t.Setenv("SHARDMEM_DATA_DIR", "/tmp/mem/shards")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "secret", cfg.Embedding.GenAIAPIKey)
	assert.Equal(t, "/tmp/mem/shards", cfg.Storage.Dir)
	assert.Equal(t, "/tmp/mem/archive.db", cfg.Storage.ArchivePath)
}
