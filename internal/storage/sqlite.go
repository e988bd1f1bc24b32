package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	_ "modernc.org/sqlite"
)

// Revision is a previous value of a key, kept for recovery.
type Revision struct {
	ID        int64
	Key       string
	Value     []byte
	CreatedAt time.Time
}

// SQLite wraps a SQLite-backed key-value store with a bounded revision history.
type SQLite struct {
	db    *sql.DB
	cfg   config.StorageConfig
	log   *slog.Logger
	clock func() time.Time
}

// OpenSQLite initializes the database at cfg.Path, creating parent directories.
func OpenSQLite(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("storage vacuum failed", slogError(err))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("storage prune on start failed", slogError(err))
	}

	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_revisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_revisions_key ON kv_revisions(key, id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the current value for key or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put replaces the value for key and records a revision when history is enabled.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) (err error) {
	if value == nil {
		value = []byte{}
	}
	now := s.clock().UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	if s.cfg.MaxRevisions > 0 {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv_revisions(key, value, created_at) VALUES(?, ?, ?)`,
			key, value, now); err != nil {
			return fmt.Errorf("record revision %s: %w", key, err)
		}
		if err = trimRevisions(ctx, tx, key, s.cfg.MaxRevisions); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Revisions lists up to limit revisions of key, newest first.
func (s *SQLite) Revisions(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, created_at FROM kv_revisions
		 WHERE key = ? ORDER BY id DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var r Revision
		var created int64
		if err := rows.Scan(&r.ID, &r.Key, &r.Value, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// Restore makes the revision with the given id the current value of its key.
func (s *SQLite) Restore(ctx context.Context, id int64) error {
	var key string
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT key, value FROM kv_revisions WHERE id = ?`, id).Scan(&key, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load revision %d: %w", id, err)
	}
	return s.Put(ctx, key, value)
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *SQLite) Prune(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM kv_revisions WHERE created_at < ?`, cutoff.UTC().UnixNano()); err != nil {
			return err
		}
	}

	if s.cfg.MaxRevisions > 0 {
		var keys []string
		keys, err = distinctRevisionKeys(ctx, tx)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err = trimRevisions(ctx, tx, key, s.cfg.MaxRevisions); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

func distinctRevisionKeys(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT key FROM kv_revisions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func trimRevisions(ctx context.Context, tx *sql.Tx, key string, keep int) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM kv_revisions WHERE id IN (
		SELECT id FROM kv_revisions WHERE key = ? ORDER BY id DESC LIMIT -1 OFFSET ?
	)`, key, keep)
	if err != nil {
		return fmt.Errorf("trim revisions %s: %w", key, err)
	}
	return nil
}
