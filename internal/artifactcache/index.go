package artifactcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes. The index is derived data;
// a mismatched index is dropped and rebuilt from the files on disk.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrSchemaMismatch indicates the index was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Entry is one row of the artifact index.
type Entry struct {
	Key       string
	JobID     string
	Size      int64
	Censored  bool
	Regions   int
	CreatedAt time.Time
	LastHitAt time.Time
	Hits      int
}

// Index is the SQLite artifact index.
type Index struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &Index{db: db, path: path, now: time.Now}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database connection.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// Path returns the database file location.
func (i *Index) Path() string {
	return i.path
}

func (i *Index) initSchema(ctx context.Context) error {
	var tableExists int
	err := i.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return i.createSchema(ctx)
	}

	var version int
	if err := i.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		if _, err := i.db.ExecContext(ctx, "DROP TABLE IF EXISTS artifacts; DROP TABLE IF EXISTS schema_version"); err != nil {
			return fmt.Errorf("%w: index has version %d, expected %d: %w", ErrSchemaMismatch, version, schemaVersion, err)
		}
		return i.createSchema(ctx)
	}
	return nil
}

func (i *Index) createSchema(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (i *Index) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := i.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Record inserts or replaces the row for entry.Key.
func (i *Index) Record(ctx context.Context, entry Entry) error {
	now := i.now().Unix()
	return i.exec(ctx, `INSERT INTO artifacts (key, job_id, size_bytes, censored, regions, created_at, last_hit_at, hits)
VALUES (?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT(key) DO UPDATE SET
    job_id = excluded.job_id,
    size_bytes = excluded.size_bytes,
    censored = excluded.censored,
    regions = excluded.regions,
    last_hit_at = excluded.last_hit_at`,
		entry.Key, entry.JobID, entry.Size, boolToInt(entry.Censored), entry.Regions, now, now)
}

// Touch marks key as recently used.
func (i *Index) Touch(ctx context.Context, key string) error {
	return i.exec(ctx, "UPDATE artifacts SET last_hit_at = ?, hits = hits + 1 WHERE key = ?", i.now().Unix(), key)
}

// Remove deletes the row for key.
func (i *Index) Remove(ctx context.Context, key string) error {
	return i.exec(ctx, "DELETE FROM artifacts WHERE key = ?", key)
}

// Clear deletes every row.
func (i *Index) Clear(ctx context.Context) error {
	return i.exec(ctx, "DELETE FROM artifacts")
}

// Entries returns all rows ordered from least to most recently used.
func (i *Index) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT key, job_id, size_bytes, censored, regions, created_at, last_hit_at, hits
FROM artifacts ORDER BY last_hit_at ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			censored int
			created  int64
			lastHit  int64
		)
		if err := rows.Scan(&entry.Key, &entry.JobID, &entry.Size, &censored, &entry.Regions, &created, &lastHit, &entry.Hits); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		entry.Censored = censored != 0
		entry.CreatedAt = time.Unix(created, 0)
		entry.LastHitAt = time.Unix(lastHit, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact rows: %w", err)
	}
	return entries, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
