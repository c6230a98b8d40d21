// Package config holds all shardmem configuration: the fixed shard
// registry, router scoring weights, maintenance policies and the
// embedding provider selection.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all shardmem configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Storage layout
	Storage StorageConfig `yaml:"storage"`

	// Fixed shard registry. Shards are created once at startup and are
	// not user-creatable at runtime.
	Shards []ShardDomain `yaml:"shards"`

	// Router scoring
	Router RouterConfig `yaml:"router"`

	// Compression pass
	Compressor CompressorConfig `yaml:"compressor"`

	// TTL cleanup pass
	Cleaner CleanerConfig `yaml:"cleaner"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the on-disk layout.
type StorageConfig struct {
	// Directory holding one JSON document per shard plus summary.json.
	Dir string `yaml:"dir"`

	// SQLite database receiving archived (evicted/expired) transactions.
	ArchivePath string `yaml:"archive_path"`
}

// ShardDomain describes one registry entry: a topical partition with
// its static keyword list used for routing.
type ShardDomain struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// RouterConfig configures the routing score.
// score(shard, content) = keywordMatches + ImportanceWeight * shard importance.
type RouterConfig struct {
	// Weight applied to the shard's derived importance score. Higher
	// values make recently active shards stickier.
	ImportanceWeight float64 `yaml:"importance_weight"`

	// Shard receiving content that matches no keywords anywhere.
	DefaultShard string `yaml:"default_shard"`

	// StrictCrossRefs surfaces invalid cross-references as errors
	// instead of silently dropping the offending reference.
	StrictCrossRefs bool `yaml:"strict_cross_refs"`
}

// CompressorConfig configures the deduplication/consolidation pass.
type CompressorConfig struct {
	// Minimum pairwise cosine similarity for two transactions to be
	// considered near-duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Consolidation policy: "keep-newest" or "merge-content".
	Policy string `yaml:"policy"`
}

// CleanerConfig configures TTL cleanup. Policies are keyed by shard id;
// shards without an entry fall back to Default.
type CleanerConfig struct {
	Default  TTLPolicy            `yaml:"default"`
	PerShard map[string]TTLPolicy `yaml:"per_shard"`
}

// TTLPolicy bounds one shard's size and entry age.
type TTLPolicy struct {
	TTLDays         int `yaml:"ttl_days"`
	MaxTransactions int `yaml:"max_transactions"`
}

// TTL returns the policy's max age as a duration.
func (p TTLPolicy) TTL() time.Duration {
	return time.Duration(p.TTLDays) * 24 * time.Hour
}

// EmbeddingConfig configures the vector embedding engine.
// Supports a deterministic local engine plus Ollama and GenAI backends.
type EmbeddingConfig struct {
	// Provider: "local", "ollama" or "genai". Overridden by the
	// SHARDMEM_EMBEDDING_PROVIDER environment variable.
	Provider string `yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI embeddings: SEMANTIC_SIMILARITY,
	// RETRIEVAL_DOCUMENT, RETRIEVAL_QUERY, ...
	TaskType string `yaml:"task_type"`

	// Per-call timeout. Embedding is a bounded-latency dependency; a
	// timeout degrades to keyword-only search, it is never fatal.
	Timeout string `yaml:"timeout"`
}

// TimeoutDuration parses the configured timeout, defaulting to 10s.
func (c EmbeddingConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration, including the fixed
// five-domain registry.
func DefaultConfig() *Config {
	return &Config{
		Name:    "shardmem",
		Version: "1.0.0",

		Storage: StorageConfig{
			Dir:         "memory/shards",
			ArchivePath: "memory/archive.db",
		},

		Shards: []ShardDomain{
			{
				ID:          "shard_projects",
				Name:        "Projets en cours",
				Description: "Projets actifs, tâches en cours, objectifs",
				Keywords:    []string{"projet", "task", "project", "todo", "goal", "objective"},
			},
			{
				ID:          "shard_insights",
				Name:        "Insights et Leçons",
				Description: "Leçons apprises, patterns identifiés, décisions importantes",
				Keywords:    []string{"leçon", "lesson", "pattern", "insight", "décision", "decision"},
			},
			{
				ID:          "shard_people",
				Name:        "Personnes et Relations",
				Description: "Contacts, experts, builders, relations importantes",
				Keywords:    []string{"@", "contact", "person", "expert", "builder", "relation"},
			},
			{
				ID:          "shard_technical",
				Name:        "Technique et Architecture",
				Description: "Architecture, code, protocoles, frameworks",
				Keywords:    []string{"architecture", "framework", "code", "protocol", "shard", "layer", "pillar"},
			},
			{
				ID:          "shard_strategy",
				Name:        "Stratégie et Vision",
				Description: "Vision à long terme, priorités, stratégies de contenu",
				Keywords:    []string{"stratégie", "vision", "priority", "strategie", "tendance", "trend"},
			},
		},

		Router: RouterConfig{
			ImportanceWeight: 2.0,
			DefaultShard:     "shard_insights",
		},

		Compressor: CompressorConfig{
			SimilarityThreshold: 0.9,
			Policy:              "keep-newest",
		},

		Cleaner: CleanerConfig{
			Default: TTLPolicy{TTLDays: 180, MaxTransactions: 200},
			PerShard: map[string]TTLPolicy{
				"shard_projects":  {TTLDays: 30, MaxTransactions: 100},
				"shard_insights":  {TTLDays: 90, MaxTransactions: 50},
				"shard_people":    {TTLDays: 90, MaxTransactions: 50},
				"shard_technical": {TTLDays: 180, MaxTransactions: 200},
				"shard_strategy":  {TTLDays: 180, MaxTransactions: 200},
			},
		},

		Embedding: EmbeddingConfig{
			Provider:       "local",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
			Timeout:        "10s",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// PolicyFor returns the TTL policy for a shard, falling back to the
// cleaner default.
func (c *Config) PolicyFor(shardID string) TTLPolicy {
	if p, ok := c.Cleaner.PerShard[shardID]; ok {
		return p
	}
	return c.Cleaner.Default
}

// Load reads configuration from a YAML file, overlaying it on defaults
// and applying environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the environment switches. The embedding
// provider switch is the only one the core contract requires; the API
// key override keeps secrets out of config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHARDMEM_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("SHARDMEM_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("SHARDMEM_DATA_DIR"); v != "" {
		c.Storage.Dir = v
		c.Storage.ArchivePath = filepath.Join(filepath.Dir(v), "archive.db")
	}
}

// Validate checks invariants the rest of the system relies on: a
// non-empty registry with unique ids, and a default shard inside it.
func (c *Config) Validate() error {
	if len(c.Shards) == 0 {
		return fmt.Errorf("config: shard registry is empty")
	}

	seen := make(map[string]bool, len(c.Shards))
	for _, s := range c.Shards {
		if s.ID == "" {
			return fmt.Errorf("config: shard with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate shard id %q", s.ID)
		}
		seen[s.ID] = true
	}

	if c.Router.DefaultShard != "" && !seen[c.Router.DefaultShard] {
		return fmt.Errorf("config: default shard %q is not in the registry", c.Router.DefaultShard)
	}

	if c.Compressor.SimilarityThreshold < 0 || c.Compressor.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity threshold %f out of [0,1]", c.Compressor.SimilarityThreshold)
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
