package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"shardmem/internal/shard"
)

// ArchiveStore keeps transactions removed by the cleanup pass. Cold
// storage is SQLite rather than the live JSON documents: archived
// entries are append-only audit data, not part of the searchable log.
type ArchiveStore struct {
	db *sql.DB
}

// OpenArchive opens (and migrates) the archive database.
func OpenArchive(path string) (*ArchiveStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS archived_transactions (
		id          TEXT PRIMARY KEY,
		shard_id    TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		source      TEXT NOT NULL,
		importance  REAL NOT NULL,
		reason      TEXT NOT NULL,
		archived_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_shard ON archived_transactions(shard_id);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	return &ArchiveStore{db: db}, nil
}

// Archive stores a batch of removed transactions with the removal
// reason ("expired" or "evicted"). Re-archiving the same id is a no-op
// so retried cleanup passes stay idempotent.
func (a *ArchiveStore) Archive(shardID, reason string, txs []shard.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO archived_transactions
		(id, shard_id, content, created_at, source, importance, reason, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339Nano)
	for _, t := range txs {
		if _, err := stmt.Exec(
			t.ID, shardID, t.Content,
			t.CreatedAt.Format(time.RFC3339Nano),
			string(t.Source), t.Importance, reason, now,
		); err != nil {
			return fmt.Errorf("archive transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of archived transactions for one shard, or
// all shards when shardID is empty.
func (a *ArchiveStore) Count(shardID string) (int, error) {
	var n int
	var err error
	if shardID == "" {
		err = a.db.QueryRow(`SELECT COUNT(*) FROM archived_transactions`).Scan(&n)
	} else {
		err = a.db.QueryRow(`SELECT COUNT(*) FROM archived_transactions WHERE shard_id = ?`, shardID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count archived: %w", err)
	}
	return n, nil
}

// Close closes the archive database.
func (a *ArchiveStore) Close() error {
	return a.db.Close()
}
