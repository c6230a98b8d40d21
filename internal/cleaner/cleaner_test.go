package cleaner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmem/internal/config"
	"shardmem/internal/shard"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// recordingArchiver captures archived batches keyed by reason.
type recordingArchiver struct {
	batches map[string][]shard.Transaction
	fail    bool
}

func newRecordingArchiver() *recordingArchiver {
	return &recordingArchiver{batches: make(map[string][]shard.Transaction)}
}

func (a *recordingArchiver) Archive(shardID, reason string, txs []shard.Transaction) error {
	if a.fail {
		return errors.New("archive unavailable")
	}
	a.batches[reason] = append(a.batches[reason], txs...)
	return nil
}

func mkTx(id string, importance float64, age time.Duration) shard.Transaction {
	return shard.Transaction{
		ID:         id,
		Content:    "content " + id,
		CreatedAt:  base.Add(-age),
		Source:     shard.SourceManual,
		Importance: importance,
	}
}

func seedShard(t *testing.T, txs ...shard.Transaction) *shard.Shard {
	t.Helper()
	s := shard.New("shard_projects", "Projets en cours", "", nil, nil)
	require.NoError(t, s.Replace(txs))
	return s
}

func newTestCleaner(a Archiver) *Cleaner {
	c := New(a)
	c.now = func() time.Time { return base }
	return c
}

func TestRunExpiresOldTransactions(t *testing.T) {
	s := seedShard(t,
		mkTx("t1", 0.5, 40*24*time.Hour),
		mkTx("t2", 0.5, 10*24*time.Hour),
	)

	stats, err := newTestCleaner(nil).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 100}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 0, stats.Evicted)

	txs := s.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ID)
}

func TestRunZeroTTLDisablesExpiry(t *testing.T) {
	s := seedShard(t, mkTx("t1", 0.5, 400*24*time.Hour))

	stats, err := newTestCleaner(nil).Run(s, config.TTLPolicy{TTLDays: 0, MaxTransactions: 100}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Expired)
	assert.Equal(t, 1, s.Count())
}

func TestRunEvictsExcessOldestFirst(t *testing.T) {
	s := seedShard(t,
		mkTx("t1", 0.9, 4*time.Hour),
		mkTx("t2", 0.1, 3*time.Hour),
		mkTx("t3", 0.5, 2*time.Hour),
		mkTx("t4", 0.5, time.Hour),
	)

	stats, err := newTestCleaner(nil).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evicted)
	assert.Equal(t, 2, stats.Kept)

	txs := s.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "t3", txs[0].ID)
	assert.Equal(t, "t4", txs[1].ID)
}

func TestRunEvictionBreaksAgeTiesByImportance(t *testing.T) {
	s := seedShard(t,
		mkTx("t1", 0.9, time.Hour),
		mkTx("t2", 0.1, time.Hour),
		mkTx("t3", 0.5, time.Hour),
	)

	stats, err := newTestCleaner(nil).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evicted)

	ids := []string{}
	for _, tx := range s.Transactions() {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []string{"t1", "t3"}, ids, "the least important of the equally old entries goes first")
}

func TestRunArchivesBeforeDeleting(t *testing.T) {
	arch := newRecordingArchiver()
	s := seedShard(t,
		mkTx("t1", 0.5, 40*24*time.Hour),
		mkTx("t2", 0.5, 3*time.Hour),
		mkTx("t3", 0.5, 2*time.Hour),
		mkTx("t4", 0.5, time.Hour),
	)

	_, err := newTestCleaner(arch).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 2}, false)
	require.NoError(t, err)

	require.Len(t, arch.batches["expired"], 1)
	assert.Equal(t, "t1", arch.batches["expired"][0].ID)
	require.Len(t, arch.batches["evicted"], 1)
	assert.Equal(t, "t2", arch.batches["evicted"][0].ID)
}

func TestRunAbortsWhenArchiveFails(t *testing.T) {
	arch := newRecordingArchiver()
	arch.fail = true
	s := seedShard(t, mkTx("t1", 0.5, 40*24*time.Hour))

	_, err := newTestCleaner(arch).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 100}, false)
	require.Error(t, err)
	assert.Equal(t, 1, s.Count(), "nothing is deleted when archiving fails")
}

func TestRunDryRunLeavesShardUntouched(t *testing.T) {
	arch := newRecordingArchiver()
	s := seedShard(t,
		mkTx("t1", 0.5, 40*24*time.Hour),
		mkTx("t2", 0.5, time.Hour),
	)

	stats, err := newTestCleaner(arch).Run(s, config.TTLPolicy{TTLDays: 30, MaxTransactions: 100}, true)
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 2, s.Count())
	assert.Empty(t, arch.batches)
}

func TestRunIsIdempotent(t *testing.T) {
	s := seedShard(t,
		mkTx("t1", 0.5, 40*24*time.Hour),
		mkTx("t2", 0.5, time.Hour),
	)
	c := newTestCleaner(nil)
	policy := config.TTLPolicy{TTLDays: 30, MaxTransactions: 1}

	_, err := c.Run(s, policy, false)
	require.NoError(t, err)

	again, err := c.Run(s, policy, false)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Expired)
	assert.Equal(t, 0, again.Evicted)
	assert.Equal(t, 1, again.Kept)
}

func TestExpired(t *testing.T) {
	txs := []shard.Transaction{
		mkTx("t1", 0.5, 48*time.Hour),
		mkTx("t2", 0.5, time.Hour),
	}

	out := Expired(txs, 24*time.Hour, base)
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].ID)

	assert.Empty(t, Expired(txs, 0, base))
}
