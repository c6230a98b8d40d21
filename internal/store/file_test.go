package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/shard"
)

func testSnapshot() shard.Snapshot {
	return shard.Snapshot{
		ID:          "shard_projects",
		Name:        "Projets en cours",
		Description: "Projets actifs",
		Keywords:    []string{"projet", "task"},
		Transactions: []shard.Transaction{
			{
				ID:         "shard_projects_0_1",
				Content:    "Projet actif: Finaliser GitHub release",
				CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
				Source:     shard.SourceManual,
				Importance: 0.8,
				CrossRefs:  []string{"shard_technical"},
				Embedding:  []float32{0.1, 0.2, 0.3},
			},
		},
		ImportanceScore: 0.8,
		LastUpdated:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadShardRoundtrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := testSnapshot()
	require.NoError(t, fs.SaveShard(snap))

	loaded, ok, err := fs.LoadShard("shard_projects")
	require.NoError(t, err)
	require.True(t, ok)

	if diff := cmp.Diff(snap, loaded); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadShardMissing(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := fs.LoadShard("shard_nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadShardCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shard_projects.json"), []byte("{broken"), 0o644))
	_, _, err = fs.LoadShard("shard_projects")
	assert.Error(t, err)
}

func TestLoadAllSkipsSummary(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := testSnapshot()
	require.NoError(t, fs.SaveShard(snap))
	require.NoError(t, fs.SaveSummary(Summary{TotalShards: 1}))

	snaps, err := fs.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "shard_projects", snaps[0].ID)
}

func TestSaveLoadSummary(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := fs.LoadSummary()
	require.NoError(t, err)
	assert.False(t, ok)

	sum := Summary{
		ExportedAt:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		TotalShards:       5,
		TotalTransactions: 3,
		Shards: []ShardStatus{
			{ID: "shard_projects", Name: "Projets en cours", TransactionCount: 3, ImportanceScore: 0.6},
		},
	}
	require.NoError(t, fs.SaveSummary(sum))

	loaded, ok, err := fs.LoadSummary()
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(sum, loaded); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.SaveShard(testSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shard_projects.json", entries[0].Name())
}
