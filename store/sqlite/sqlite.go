// Package sqlite implements the structured persistent tier: one row per
// cache entry in a SQLite database, keyed by (version, key), with no
// artificial cap. This is the durable tier when available; the blob tier is
// the lightweight fallback.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IvanBrykalov/tiercache/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	version       TEXT    NOT NULL,
	key           TEXT    NOT NULL,
	data          BLOB    NOT NULL,
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL,
	raw_size      INTEGER NOT NULL,
	compressed    INTEGER NOT NULL DEFAULT 0,
	encrypted     INTEGER NOT NULL DEFAULT 0,
	access_count  INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL DEFAULT 0,
	tags          TEXT,
	metadata      TEXT,
	PRIMARY KEY (version, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires
	ON cache_entries (version, expires_at);
`

// Config configures the sqlite tier.
type Config struct {
	// Dir is the directory holding the database file. Created if missing.
	Dir string
	// Version namespaces rows so incompatible schema versions never collide.
	Version string
}

// Store is the Tier B adapter backed by modernc.org/sqlite (no cgo).
type Store struct {
	db      *sql.DB
	version string
}

// New opens (creating if necessary) the cache database and its schema.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("sqlite: Dir is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("sqlite: Version is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// The driver serializes writes anyway; a small pool keeps reads cheap.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &Store{db: db, version: cfg.Version}, nil
}

// LoadAll returns every record under this store's version namespace.
func (s *Store) LoadAll(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, data, created_at, expires_at, raw_size, compressed,
		       encrypted, access_count, last_accessed,
		       COALESCE(tags, ''), COALESCE(metadata, '')
		FROM cache_entries WHERE version = ?`, s.version)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	var recs []store.Record
	for rows.Next() {
		var (
			rec            store.Record
			tags, metadata string
		)
		if err := rows.Scan(&rec.Key, &rec.Data, &rec.CreatedAt, &rec.ExpiresAt,
			&rec.RawSize, &rec.Compressed, &rec.Encrypted,
			&rec.AccessCount, &rec.LastAccessed, &tags, &metadata); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if tags != "" {
			if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
				return nil, fmt.Errorf("sqlite: tags for %q: %w", rec.Key, err)
			}
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: metadata for %q: %w", rec.Key, err)
			}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	return recs, nil
}

// Put writes or replaces one record.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	tags, err := encodeJSON(rec.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encode tags: %w", err)
	}
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries
		(version, key, data, created_at, expires_at, raw_size,
		 compressed, encrypted, access_count, last_accessed, tags, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.version, rec.Key, rec.Data, rec.CreatedAt, rec.ExpiresAt, rec.RawSize,
		rec.Compressed, rec.Encrypted, rec.AccessCount, rec.LastAccessed,
		tags, metadata)
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", rec.Key, err)
	}
	return nil
}

// Delete removes the record for key if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE version = ? AND key = ?`, s.version, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every record under this store's version namespace.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE version = ?`, s.version)
	if err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeJSON(v any) (string, error) {
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return "", nil
		}
	case map[string]string:
		if len(x) == 0 {
			return "", nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var _ store.Store = (*Store)(nil)
