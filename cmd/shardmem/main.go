// Package main implements the shardmem CLI: a sharded semantic memory
// store with keyword routing, cross-references, embedding search and
// background maintenance passes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shardmem/internal/config"
	"shardmem/internal/embedding"
	"shardmem/internal/logging"
	"shardmem/internal/router"
	"shardmem/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shardmem",
	Short: "shardmem - sharded semantic memory store",
	Long: `shardmem stores free-text memories across a fixed set of topical
shards. Content is routed to the best-matching shard by keyword and
importance scoring, cross-references between shards are extracted from
the text itself, and retrieval works by keyword, embedding similarity
or a hybrid of both.

Maintenance passes keep shards bounded: compression consolidates
near-duplicate entries, cleanup expires old ones into a SQLite archive.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// app bundles the booted subsystems a command needs.
type app struct {
	cfg     *config.Config
	files   *store.FileStore
	engine  embedding.Engine
	router  *router.Router
	archive *store.ArchiveStore
}

// boot loads configuration and brings up storage, the embedding engine
// and the shard registry. withArchive additionally opens the SQLite
// archive for commands that remove data.
func boot(withArchive bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}

	files, err := store.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	r, err := router.New(cfg, files, engine)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, files: files, engine: engine, router: r}
	if withArchive {
		a.archive, err = store.OpenArchive(cfg.Storage.ArchivePath)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.archive != nil {
		_ = a.archive.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shardmem.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override shard storage directory")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(semanticCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
