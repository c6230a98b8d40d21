// Package maintenance orchestrates the background passes over the
// registry: compression and TTL cleanup fan out across shards, and a
// periodic runner keeps them going for the daemon mode.
package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shardmem/internal/cleaner"
	"shardmem/internal/compress"
	"shardmem/internal/config"
	"shardmem/internal/logging"
	"shardmem/internal/router"
)

// Runner drives maintenance passes over every shard in the registry.
// Shards lock independently, so passes run one goroutine per shard.
type Runner struct {
	router     *router.Router
	compressor *compress.Compressor
	cleaner    *cleaner.Cleaner
	log        *zap.Logger

	mu  sync.RWMutex
	cfg *config.Config
}

// New creates a maintenance runner over the registry.
func New(cfg *config.Config, r *router.Router, comp *compress.Compressor, cl *cleaner.Cleaner) *Runner {
	return &Runner{
		router:     r,
		compressor: comp,
		cleaner:    cl,
		cfg:        cfg,
		log:        logging.Get(logging.CategoryCleaner),
	}
}

// SetConfig swaps the active configuration. The daemon's config watcher
// calls this so edited TTL and compression policies apply on the next
// cycle without a restart.
func (m *Runner) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Runner) config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// CompressAll runs the compression pass on every shard concurrently and
// returns per-shard stats keyed by shard id. The first failing shard
// cancels the rest.
func (m *Runner) CompressAll(ctx context.Context, policy compress.Policy, dryRun bool) (map[string]compress.Stats, error) {
	var (
		g, gctx = errgroup.WithContext(ctx)
		mu      sync.Mutex
		stats   = make(map[string]compress.Stats)
	)

	for _, s := range m.router.Shards() {
		g.Go(func() error {
			st, err := m.compressor.Run(gctx, s, policy, dryRun)
			if err != nil {
				return err
			}
			mu.Lock()
			stats[s.ID()] = st
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if !dryRun {
		if err := m.router.ExportSummary(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// CleanupAll runs the TTL cleanup pass on every shard concurrently,
// applying each shard's configured policy, and returns per-shard stats.
func (m *Runner) CleanupAll(dryRun bool) (map[string]cleaner.Stats, error) {
	cfg := m.config()

	var (
		g     errgroup.Group
		mu    sync.Mutex
		stats = make(map[string]cleaner.Stats)
	)

	for _, s := range m.router.Shards() {
		g.Go(func() error {
			st, err := m.cleaner.Run(s, cfg.PolicyFor(s.ID()), dryRun)
			if err != nil {
				return err
			}
			mu.Lock()
			stats[s.ID()] = st
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if !dryRun {
		if err := m.router.ExportSummary(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// RunOnce executes one full maintenance cycle: cleanup first so expired
// entries never reach the compressor, then compression.
func (m *Runner) RunOnce(ctx context.Context) error {
	if _, err := m.CleanupAll(false); err != nil {
		return err
	}

	cfg := m.config()
	policy, err := compress.ParsePolicy(cfg.Compressor.Policy)
	if err != nil {
		return err
	}
	_, err = m.CompressAll(ctx, policy, false)
	return err
}

// Loop runs maintenance cycles at the given interval until ctx is
// cancelled. A failed cycle is logged and the loop keeps going; one
// unreachable embedding backend must not stop TTL enforcement forever.
func (m *Runner) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("maintenance loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("maintenance loop stopped")
			return
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				m.log.Error("maintenance cycle failed", zap.Error(err))
			}
		}
	}
}
