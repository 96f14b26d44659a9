// Package store defines the contract persistent cache tiers implement.
//
// Tiers hold best-effort mirrors of the in-memory index and never own the
// truth: on disagreement the index wins, and tiers are re-synced from it.
// All implementations are namespaced by a cache version string so a schema
// bump never reads incompatible state.
package store

import "context"

// Record is the persisted form of a cache entry. Data is the payload after
// any transforms; the flags record which inverse transforms a reader must
// apply.
type Record struct {
	Key          string            `json:"key"`
	Data         []byte            `json:"data"`
	CreatedAt    int64             `json:"created_at"`
	ExpiresAt    int64             `json:"expires_at"`
	RawSize      int64             `json:"raw_size"`
	Compressed   bool              `json:"compressed,omitempty"`
	Encrypted    bool              `json:"encrypted,omitempty"`
	AccessCount  int64             `json:"access_count,omitempty"`
	LastAccessed int64             `json:"last_accessed,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Store is a persistent cache tier. Implementations must be safe for
// concurrent use; the cache calls Put/Delete from an asynchronous mirror
// worker, decoupled from the operation that triggered them.
type Store interface {
	// LoadAll returns every record in the tier's namespace.
	LoadAll(ctx context.Context) ([]Record, error)

	// Put writes or replaces one record.
	Put(ctx context.Context, rec Record) error

	// Delete removes the record for key if present.
	Delete(ctx context.Context, key string) error

	// Clear removes every record in the tier's namespace.
	Clear(ctx context.Context) error

	// Close releases resources held by the tier.
	Close() error
}
