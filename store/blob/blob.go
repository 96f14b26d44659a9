// Package blob implements the lightweight persistent tier: the whole entry
// collection serialized as one JSON blob in a version-namespaced file.
//
// The tier is capped to the MaxEntries newest-by-creation records; older
// records are silently dropped on write. That trades completeness for
// predictable capacity, which is the point of this tier — the structured
// sqlite tier is the uncapped one.
package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/IvanBrykalov/tiercache/store"
)

// DefaultMaxEntries caps the mirrored collection when Config.MaxEntries is
// zero.
const DefaultMaxEntries = 100

// Config configures a blob tier.
type Config struct {
	// Dir is the directory holding the blob file. Created if missing.
	Dir string
	// Version namespaces the file so incompatible schema versions never
	// collide.
	Version string
	// MaxEntries bounds how many records the blob keeps (newest by
	// CreatedAt win). <= 0 means DefaultMaxEntries.
	MaxEntries int
}

// Store is the Tier A adapter. One file, rewritten wholesale on every
// mutation; fine for the small capped collections it is meant for.
type Store struct {
	mu         sync.Mutex
	path       string
	maxEntries int
}

// New creates the blob tier, ensuring its directory exists.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("blob: Dir is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("blob: Version is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir: %w", err)
	}
	return &Store{
		path:       filepath.Join(cfg.Dir, "entries-"+cfg.Version+".json"),
		maxEntries: cfg.MaxEntries,
	}, nil
}

// LoadAll reads the blob. A missing file is an empty tier, not an error.
func (s *Store) LoadAll(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Put upserts one record and rewrites the blob, trimming to the cap.
func (s *Store) Put(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range recs {
		if recs[i].Key == rec.Key {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}

	// Keep the newest records by creation time; drop the rest.
	if len(recs) > s.maxEntries {
		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt > recs[j].CreatedAt })
		recs = recs[:s.maxEntries]
	}
	return s.writeLocked(recs)
}

// Delete removes the record for key if present.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readLocked()
	if err != nil {
		return err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Key != key {
			out = append(out, r)
		}
	}
	if len(out) == len(recs) {
		return nil
	}
	return s.writeLocked(out)
}

// Clear removes the blob file.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: clear: %w", err)
	}
	return nil
}

// Close is a no-op; the tier holds no open handles between calls.
func (s *Store) Close() error { return nil }

func (s *Store) readLocked() ([]store.Record, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	var recs []store.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("blob: decode: %w", err)
	}
	return recs, nil
}

func (s *Store) writeLocked(recs []store.Record) error {
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("blob: encode: %w", err)
	}
	// Write-then-rename so a crash mid-write never corrupts the blob.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("blob: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("blob: rename: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
