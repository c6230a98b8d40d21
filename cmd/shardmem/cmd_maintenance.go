// Package main maintenance commands: registry status, compression,
// TTL cleanup and the background watch daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"shardmem/internal/cleaner"
	"shardmem/internal/compress"
	"shardmem/internal/config"
	"shardmem/internal/maintenance"
)

var (
	compressPolicy string
	compressDryRun bool
	compressShard  string

	cleanupDryRun bool
	cleanupShard  string

	watchInterval time.Duration
)

// statusCmd shows the registry summary
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-shard counts and importance scores",
	RunE:  runStatus,
}

// compressCmd consolidates near-duplicates
var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Remove duplicates and consolidate near-duplicate entries",
	Long: `Runs the compression pass: exact duplicates are dropped and groups of
transactions whose embeddings clear the similarity threshold collapse
under the selected policy (keep-newest or merge-content).`,
	RunE: runCompress,
}

// cleanupCmd enforces TTL and size bounds
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire old entries and evict excess over the per-shard cap",
	Long: `Runs the TTL cleanup pass. Removed transactions are archived to the
SQLite archive database before deletion.`,
	RunE: runCleanup,
}

// watchCmd runs the maintenance daemon
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run maintenance cycles periodically until interrupted",
	Long: `Runs cleanup and compression on every shard at a fixed interval.
The config file is watched for changes; edited TTL and compression
policies apply on the next cycle without a restart.`,
	RunE: runWatch,
}

var (
	statusTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("241"))
	statusShardStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	statusTotalStyle  = lipgloss.NewStyle().Bold(true)
)

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	sum := a.router.Status()

	fmt.Println(statusTitleStyle.Render("shardmem registry"))
	fmt.Println(statusHeaderStyle.Render(fmt.Sprintf("%-18s %6s %12s  %s", "SHARD", "COUNT", "IMPORTANCE", "LAST UPDATED")))
	for _, s := range sum.Shards {
		updated := "-"
		if !s.LastUpdated.IsZero() {
			updated = s.LastUpdated.Format("2006-01-02 15:04")
		}
		fmt.Printf("%s %6d %12.2f  %s\n",
			statusShardStyle.Render(fmt.Sprintf("%-18s", s.ID)),
			s.TransactionCount, s.ImportanceScore, updated)
	}
	fmt.Println(statusTotalStyle.Render(
		fmt.Sprintf("%d shards, %d transactions", sum.TotalShards, sum.TotalTransactions)))
	return nil
}

func runCompress(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if compressPolicy == "" {
		compressPolicy = a.cfg.Compressor.Policy
	}
	policy, err := compress.ParsePolicy(compressPolicy)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	comp := compress.New(a.cfg.Compressor.SimilarityThreshold, a.engine)

	if compressShard != "" {
		s, err := a.router.Get(compressShard)
		if err != nil {
			return err
		}
		st, err := comp.Run(ctx, s, policy, compressDryRun)
		if err != nil {
			return err
		}
		printCompressStats(compressShard, st)
		if !compressDryRun {
			return a.router.ExportSummary()
		}
		return nil
	}

	runner := maintenance.New(a.cfg, a.router, comp, cleaner.New(nil))
	stats, err := runner.CompressAll(ctx, policy, compressDryRun)
	if err != nil {
		return err
	}
	for _, s := range a.router.Shards() {
		printCompressStats(s.ID(), stats[s.ID()])
	}
	return nil
}

func printCompressStats(shardID string, st compress.Stats) {
	note := ""
	if st.DryRun {
		note = " (dry run)"
	}
	fmt.Printf("%-18s %d -> %d (%d duplicates, %d groups)%s\n",
		shardID, st.TotalBefore, st.TotalAfter, st.DuplicatesRemoved, st.GroupsConsolidated, note)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := boot(!cleanupDryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	var cl *cleaner.Cleaner
	if a.archive != nil {
		cl = cleaner.New(a.archive)
	} else {
		cl = cleaner.New(nil)
	}

	if cleanupShard != "" {
		s, err := a.router.Get(cleanupShard)
		if err != nil {
			return err
		}
		st, err := cl.Run(s, a.cfg.PolicyFor(cleanupShard), cleanupDryRun)
		if err != nil {
			return err
		}
		printCleanupStats(cleanupShard, st)
		if !cleanupDryRun {
			return a.router.ExportSummary()
		}
		return nil
	}

	runner := maintenance.New(a.cfg, a.router, nil, cl)
	stats, err := runner.CleanupAll(cleanupDryRun)
	if err != nil {
		return err
	}
	for _, s := range a.router.Shards() {
		printCleanupStats(s.ID(), stats[s.ID()])
	}
	return nil
}

func printCleanupStats(shardID string, st cleaner.Stats) {
	note := ""
	if st.DryRun {
		note = " (dry run)"
	}
	fmt.Printf("%-18s expired %d, evicted %d, kept %d%s\n",
		shardID, st.Expired, st.Evicted, st.Kept, note)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := boot(true)
	if err != nil {
		return err
	}
	defer a.Close()

	comp := compress.New(a.cfg.Compressor.SimilarityThreshold, a.engine)
	runner := maintenance.New(a.cfg, a.router, comp, cleaner.New(a.archive))

	watcher, err := config.NewWatcher(configPath, runner.SetConfig)
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	fmt.Printf("Watching, maintenance every %s. Ctrl-C to stop.\n", watchInterval)
	runner.Loop(ctx, watchInterval)
	return nil
}

func init() {
	compressCmd.Flags().StringVar(&compressPolicy, "policy", "", "Consolidation policy: keep-newest or merge-content")
	compressCmd.Flags().BoolVar(&compressDryRun, "dry-run", false, "Report without persisting")
	compressCmd.Flags().StringVar(&compressShard, "shard", "", "Compress only one shard")

	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report without removing anything")
	cleanupCmd.Flags().StringVar(&cleanupShard, "shard", "", "Clean only one shard")

	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Hour, "Maintenance cycle interval")
}
