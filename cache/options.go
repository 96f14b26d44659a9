package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tiercache/store"
)

// Config is the immutable, scalar half of the cache configuration. It can be
// filled from the environment with ConfigFromEnv; runtime dependencies
// (stores, logger, metrics, clock, loader) live on Options.
type Config struct {
	// Enabled gates the whole cache: when false every Get is a miss and
	// every mutation is a no-op.
	Enabled bool `env:"TIERCACHE_ENABLED" envDefault:"true"`

	// Version namespaces persistent tiers so a schema bump never reads
	// stale or incompatible state.
	Version string `env:"TIERCACHE_VERSION" envDefault:"v1"`

	// DefaultTTL applies to Set when no per-call TTL is given.
	// Non-positive means entries do not expire by default.
	DefaultTTL time.Duration `env:"TIERCACHE_DEFAULT_TTL" envDefault:"1h"`

	// MaxSize is the aggregate byte budget for resident entries,
	// measured after transforms. Must be > 0 when Enabled.
	MaxSize int64 `env:"TIERCACHE_MAX_SIZE" envDefault:"104857600"`

	// SweepInterval is the cadence of the background TTL sweep.
	// Non-positive disables the sweep (expiry still happens lazily on read).
	SweepInterval time.Duration `env:"TIERCACHE_SWEEP_INTERVAL" envDefault:"1m"`

	// Compression toggles the gzip stage for payloads of at least
	// CompressionThreshold serialized bytes. Smaller payloads skip the
	// stage: the overhead outweighs the benefit.
	Compression          bool `env:"TIERCACHE_COMPRESSION" envDefault:"true"`
	CompressionThreshold int  `env:"TIERCACHE_COMPRESSION_THRESHOLD" envDefault:"1024"`

	// CompressionWorkers sizes the compressor pool; CompressionTimeout
	// bounds each round trip. A timed-out stage fails soft (raw storage).
	CompressionWorkers int           `env:"TIERCACHE_COMPRESSION_WORKERS" envDefault:"1"`
	CompressionTimeout time.Duration `env:"TIERCACHE_COMPRESSION_TIMEOUT" envDefault:"5s"`

	// Encryption toggles the XChaCha20-Poly1305 stage. KeyPath locates the
	// persisted wrapped key; if key material cannot be loaded or generated
	// the feature is disabled for the session rather than failing startup.
	Encryption bool   `env:"TIERCACHE_ENCRYPTION" envDefault:"false"`
	KeyPath    string `env:"TIERCACHE_KEY_PATH"`

	// PreloadConcurrency bounds how many loader calls Preload keeps in
	// flight at once.
	PreloadConcurrency int `env:"TIERCACHE_PRELOAD_CONCURRENCY" envDefault:"4"`
}

// ConfigFromEnv parses Config from TIERCACHE_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("cache: parse env: %w", err)
	}
	return cfg, nil
}

// Clock provides time in UnixNano; override for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a cache instance. Zero values are safe; defaults are
// applied in New:
//   - nil Metrics => NoopMetrics
//   - nil Logger  => logging disabled
//   - zero Config => ConfigFromEnv defaults are NOT implied; set Config
//     explicitly or via ConfigFromEnv
type Options[V any] struct {
	Config Config

	// Stores are the persistent mirror tiers, loaded at construction in
	// order (later stores win on key collisions — configure the durable
	// tier last). All tier I/O is best effort: failures are logged and
	// swallowed.
	Stores []store.Store

	// Loader fetches a value on miss. Used by GetOrLoad.
	Loader func(ctx context.Context, key string) (V, error)

	// OnEvict is called for every eviction (capacity, TTL, tag) under the
	// index lock; keep it lightweight.
	OnEvict func(key string, reason EvictReason)

	Metrics Metrics

	// Logger receives warn-level records for swallowed failures.
	// Nil disables logging.
	Logger *zerolog.Logger

	// Clock overrides the time source (tests). Nil => time.Now.
	Clock Clock
}

// SetOptions carries the per-call knobs of SetWith.
type SetOptions struct {
	// TTL overrides Config.DefaultTTL for this entry. Zero inherits the
	// default; negative disables expiry for this entry.
	TTL time.Duration

	// Tags label the entry for bulk invalidation.
	Tags []string

	// Compress/Encrypt override the configured toggles for this call.
	// Nil inherits the configuration.
	Compress *bool
	Encrypt  *bool

	// Metadata is free-form and opaque to the cache.
	Metadata map[string]string
}
