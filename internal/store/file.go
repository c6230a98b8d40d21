// Package store persists shard state. Each shard is one pretty-printed
// JSON document so on-disk state stays human-diffable for audit, plus a
// regenerated summary record aggregating totals. Evicted transactions
// go to a SQLite archive (see archive.go).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"shardmem/internal/logging"
	"shardmem/internal/shard"
)

const summaryFile = "summary.json"

// FileStore owns a directory of shard documents. It implements
// shard.Persister.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the storage directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shards dir %s: %w", dir, err)
	}
	return &FileStore{
		dir: dir,
		log: logging.Get(logging.CategoryStore),
	}, nil
}

// Dir returns the storage directory.
func (fs *FileStore) Dir() string { return fs.dir }

// SaveShard writes one shard document. The write goes to a temp file
// first and is renamed into place so a crash never leaves a truncated
// document behind.
func (fs *FileStore) SaveShard(snap shard.Snapshot) error {
	return fs.writeJSON(snap.ID+".json", snap)
}

// LoadShard reads one shard document. The second return value is false
// when no document exists yet.
func (fs *FileStore) LoadShard(id string) (shard.Snapshot, bool, error) {
	var snap shard.Snapshot

	data, err := os.ReadFile(filepath.Join(fs.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return snap, false, nil
		}
		return snap, false, fmt.Errorf("read shard %s: %w", id, err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("parse shard %s: %w", id, err)
	}
	return snap, true, nil
}

// LoadAll reads every shard document in the directory.
func (fs *FileStore) LoadAll() ([]shard.Snapshot, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("read shards dir: %w", err)
	}

	var snaps []shard.Snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == summaryFile {
			continue
		}

		snap, ok, err := fs.LoadShard(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// Summary aggregates per-shard status plus global totals. Regenerated
// after every mutating operation.
type Summary struct {
	ExportedAt        time.Time     `json:"exported_at"`
	TotalShards       int           `json:"total_shards"`
	TotalTransactions int           `json:"total_transactions"`
	Shards            []ShardStatus `json:"shards"`
}

// ShardStatus is one shard's line in the summary.
type ShardStatus struct {
	ID               string    `json:"shard_id"`
	Name             string    `json:"name"`
	TransactionCount int       `json:"transaction_count"`
	ImportanceScore  float64   `json:"importance_score"`
	LastUpdated      time.Time `json:"last_updated"`
}

// SaveSummary writes the aggregate record.
func (fs *FileStore) SaveSummary(sum Summary) error {
	return fs.writeJSON(summaryFile, sum)
}

// LoadSummary reads the aggregate record; false when absent.
func (fs *FileStore) LoadSummary() (Summary, bool, error) {
	var sum Summary

	data, err := os.ReadFile(filepath.Join(fs.dir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return sum, false, nil
		}
		return sum, false, fmt.Errorf("read summary: %w", err)
	}

	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, false, fmt.Errorf("parse summary: %w", err)
	}
	return sum, true, nil
}

func (fs *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(fs.dir, name)
	tmp, err := os.CreateTemp(fs.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}

	fs.log.Debug("document written", zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}
