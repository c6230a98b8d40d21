// Package logging provides categorized structured logging for shardmem.
// Every subsystem logs through a named zap logger so log output can be
// filtered per category (router, shard, search, compress, cleaner, ...).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and registry loading
	CategoryRouter    Category = "router"    // Routing decisions
	CategoryShard     Category = "shard"     // Shard append/search
	CategoryCrossRef  Category = "crossref"  // Cross-reference extraction
	CategorySearch    Category = "search"    // Semantic and hybrid search
	CategoryCompress  Category = "compress"  // Compression passes
	CategoryCleaner   Category = "cleaner"   // TTL cleanup passes
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryStore     Category = "store"     // Persistence
	CategoryConfig    Category = "config"    // Config loading and reload
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Initialize installs the process-wide root logger. verbose enables
// debug-level output; the default is production info-level logging.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// SetLogger replaces the root logger. Tests use this to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// Get returns the named logger for a category.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(cat))
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
