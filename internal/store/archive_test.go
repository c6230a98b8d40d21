package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/shard"
)

func openTestArchive(t *testing.T) *ArchiveStore {
	t.Helper()

	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func archiveTx(id string) shard.Transaction {
	return shard.Transaction{
		ID:         id,
		Content:    "content " + id,
		CreatedAt:  time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Source:     shard.SourceManual,
		Importance: 0.4,
	}
}

func TestArchiveAndCount(t *testing.T) {
	a := openTestArchive(t)

	err := a.Archive("shard_projects", "expired", []shard.Transaction{
		archiveTx("t1"), archiveTx("t2"),
	})
	require.NoError(t, err)
	err = a.Archive("shard_people", "evicted", []shard.Transaction{archiveTx("t3")})
	require.NoError(t, err)

	n, err := a.Count("shard_projects")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = a.Count("")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestArchiveIsIdempotent(t *testing.T) {
	a := openTestArchive(t)

	batch := []shard.Transaction{archiveTx("t1")}
	require.NoError(t, a.Archive("shard_projects", "expired", batch))
	require.NoError(t, a.Archive("shard_projects", "expired", batch))

	n, err := a.Count("shard_projects")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveEmptyBatchIsNoop(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.Archive("shard_projects", "expired", nil))
	n, err := a.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
