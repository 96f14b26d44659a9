package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/tiercache/internal/singleflight"
	"github.com/IvanBrykalov/tiercache/store"
	"github.com/IvanBrykalov/tiercache/transform"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
var ErrNoLoader = errors.New("cache: no Loader provided")

// ErrClosed is returned by GetOrLoad after Close.
var ErrClosed = errors.New("cache: closed")

// storeOpTimeout bounds each fire-and-forget persistent-tier operation.
const storeOpTimeout = 5 * time.Second

// manager orchestrates the index, the transform pipeline and the persistent
// tiers. The in-memory index is authoritative; tier I/O is asynchronous and
// best effort.
type manager[V any] struct {
	cfg Config
	opt Options[V]
	log zerolog.Logger

	ix     *index
	comp   *transform.Compressor
	enc    *transform.Encryptor
	stores []store.Store

	trk tracker
	obs observers

	sf singleflight.Group[string, V]

	closed atomic.Bool

	stop    chan struct{}
	sweepWG sync.WaitGroup

	// Mirror ops are serialized through one worker so tier state always
	// converges in operation order (a delete can never be overtaken by the
	// put it follows). Close drains the queue.
	mirrorMu   sync.Mutex
	mirrorCond *sync.Cond
	mirrorOps  []mirrorOp
	mirrorDone chan struct{}
}

type mirrorKind int

const (
	mirrorPutOp mirrorKind = iota
	mirrorDeleteOp
	mirrorClearOp
)

type mirrorOp struct {
	kind mirrorKind
	key  string
	rec  store.Record
}

// New constructs a cache with the provided Options and hydrates the index
// from the configured persistent tiers. Defaults:
//   - nil Metrics => NoopMetrics
//   - nil Logger  => logging disabled
//
// New panics when the cache is enabled with a non-positive MaxSize; every
// other misconfiguration degrades the affected feature instead of failing.
func New[V any](opt Options[V]) Cache[V] {
	cfg := opt.Config
	if cfg.Enabled && cfg.MaxSize <= 0 {
		panic("cache: MaxSize must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}

	m := &manager[V]{
		cfg:    cfg,
		opt:    opt,
		log:    log,
		stores: opt.Stores,
	}
	m.ix = newIndex(cfg.MaxSize, opt.Metrics, m.handleEvict)
	m.mirrorCond = sync.NewCond(&m.mirrorMu)

	if cfg.Enabled {
		// The pool also serves decompression of mirrored entries written
		// by earlier sessions, so it exists even when the write-side
		// toggle is off.
		m.comp = transform.NewCompressor(transform.CompressorConfig{
			Workers: cfg.CompressionWorkers,
			Timeout: cfg.CompressionTimeout,
		})
		if cfg.Encryption {
			m.enc = m.openEncryptor()
		}
		if len(m.stores) > 0 {
			m.mirrorDone = make(chan struct{})
			go m.mirrorLoop()
		}
		m.loadStores()
		if cfg.SweepInterval > 0 {
			m.stop = make(chan struct{})
			m.sweepWG.Add(1)
			go m.sweepLoop()
		}
	}
	return m
}

// openEncryptor loads or creates the standing key. Any failure disables
// encryption for the session; the cache must keep working.
func (m *manager[V]) openEncryptor() *transform.Encryptor {
	if m.cfg.KeyPath == "" {
		m.log.Warn().Msg("cache: encryption enabled without KeyPath, disabling for this session")
		return nil
	}
	key, err := transform.LoadOrCreateKey(m.cfg.KeyPath)
	if err != nil {
		m.log.Warn().Err(err).Msg("cache: key unavailable, disabling encryption for this session")
		return nil
	}
	enc, err := transform.NewEncryptor(key)
	if err != nil {
		m.log.Warn().Err(err).Msg("cache: encryptor init failed, disabling encryption for this session")
		return nil
	}
	return enc
}

// loadStores hydrates the index from every tier in configuration order;
// later tiers win on key collisions. Memory is authoritative from here on.
func (m *manager[V]) loadStores() {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	now := m.now()
	for _, st := range m.stores {
		recs, err := st.LoadAll(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("cache: tier load failed, continuing without it")
			continue
		}
		for _, rec := range recs {
			if rec.ExpiresAt != 0 && now > rec.ExpiresAt {
				continue
			}
			m.ix.set(entryFromRecord(rec))
		}
	}
}

// ---- Cache[V] implementation ----

func (m *manager[V]) Get(key string) (V, bool) {
	var zero V
	if m.closed.Load() || !m.cfg.Enabled {
		return zero, false
	}
	start := time.Now()

	data, compressed, encrypted, ok := m.ix.get(key, m.now())
	if !ok {
		return zero, false
	}

	plain, err := m.untransform(data, compressed, encrypted)
	if err != nil {
		m.dropCorrupt(key, err)
		return zero, false
	}
	var v V
	if err := json.Unmarshal(plain, &v); err != nil {
		m.dropCorrupt(key, err)
		return zero, false
	}

	m.trk.recordAccess(time.Since(start))
	return v, true
}

func (m *manager[V]) GetOrLoad(ctx context.Context, key string) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}
	var zero V
	if m.closed.Load() {
		return zero, ErrClosed
	}
	if m.opt.Loader == nil {
		return zero, ErrNoLoader
	}
	return m.sf.Do(ctx, key, func() (V, error) {
		// Double-check after joining the flight.
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v, err := m.opt.Loader(ctx, key)
		if err == nil {
			m.Set(key, v)
		}
		return v, err
	})
}

func (m *manager[V]) Set(key string, v V) {
	m.SetWith(key, v, SetOptions{})
}

func (m *manager[V]) SetWithTTL(key string, v V, ttl time.Duration) {
	m.SetWith(key, v, SetOptions{TTL: ttl})
}

func (m *manager[V]) SetWith(key string, v V, opts SetOptions) {
	if m.closed.Load() || !m.cfg.Enabled {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("cache: value not serializable, dropped")
		return
	}

	data, compressed := m.maybeCompress(key, raw, opts.Compress)
	data, encrypted := m.maybeEncrypt(key, data, opts.Encrypt)

	now := m.now()
	var exp int64
	ttl := opts.TTL
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	if ttl > 0 {
		exp = now + int64(ttl)
	}

	e := &entry{
		key:          key,
		data:         data,
		createdAt:    now,
		exp:          exp,
		size:         int64(len(data)),
		rawSize:      int64(len(raw)),
		compressed:   compressed,
		encrypted:    encrypted,
		lastAccessed: now,
		tags:         opts.Tags,
		metadata:     opts.Metadata,
	}

	// Snapshot the record before the entry is installed: once set publishes
	// it, concurrent Gets mutate its access fields under the index lock.
	rec := recordFromEntry(e, now)

	if !m.ix.set(e) {
		m.log.Warn().Str("key", key).Int64("size", e.size).Int64("max", m.cfg.MaxSize).
			Msg("cache: entry exceeds the byte budget on its own, dropped")
		return
	}

	m.trk.recordSet()
	m.mirrorPut(rec)
	m.publish()
}

func (m *manager[V]) Has(key string) bool {
	if m.closed.Load() || !m.cfg.Enabled {
		return false
	}
	return m.ix.has(key, m.now())
}

func (m *manager[V]) TTL(key string) (time.Duration, bool) {
	if m.closed.Load() || !m.cfg.Enabled {
		return 0, false
	}
	ns, ok := m.ix.remainingTTL(key, m.now())
	return time.Duration(ns), ok
}

func (m *manager[V]) Delete(key string) bool {
	if m.closed.Load() || !m.cfg.Enabled {
		return false
	}
	ok := m.ix.remove(key)
	// Tiers are attempted regardless: a key absent from memory may still
	// have a stale mirror.
	m.mirrorDelete(key)
	if ok {
		m.trk.recordDelete(1)
		m.publish()
	}
	return ok
}

func (m *manager[V]) Clear() {
	if m.closed.Load() || !m.cfg.Enabled {
		return
	}
	m.ix.clear()
	m.trk.reset()
	m.enqueueMirror(mirrorOp{kind: mirrorClearOp})
	m.publish()
}

func (m *manager[V]) InvalidateByTag(tag string) int {
	if m.closed.Load() || !m.cfg.Enabled {
		return 0
	}
	n := m.ix.invalidateTag(tag)
	if n > 0 {
		m.trk.recordDelete(int64(n))
		m.publish()
	}
	return n
}

func (m *manager[V]) Preload(ctx context.Context, keys []string, loader func(ctx context.Context, key string) (V, error)) {
	if m.closed.Load() || !m.cfg.Enabled || loader == nil {
		return
	}
	limit := m.cfg.PreloadConcurrency
	if limit <= 0 {
		limit = 4
	}

	var g errgroup.Group
	g.SetLimit(limit)
	now := m.now()
	for _, key := range keys {
		if m.ix.has(key, now) {
			continue
		}
		key := key
		g.Go(func() error {
			v, err := loader(ctx, key)
			if err != nil {
				// Isolated: one bad key never aborts the batch.
				m.log.Warn().Err(err).Str("key", key).Msg("cache: preload failed")
				return nil
			}
			m.SetWith(key, v, SetOptions{Tags: []string{PreloadTag}})
			return nil
		})
	}
	_ = g.Wait()
}

func (m *manager[V]) Warm(ctx context.Context, warmers ...func(ctx context.Context) error) {
	if m.closed.Load() || !m.cfg.Enabled {
		return
	}
	var failed atomic.Int64
	var g errgroup.Group
	for _, w := range warmers {
		w := w
		g.Go(func() error {
			if err := w(ctx); err != nil {
				failed.Add(1)
				m.log.Warn().Err(err).Msg("cache: warmer failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	m.log.Info().Int("warmers", len(warmers)).Int64("failed", failed.Load()).
		Msg("cache: warming finished")
}

func (m *manager[V]) Stats() Stats {
	entries, bytes, compRaw, compStored := m.ix.usage()
	hits := m.ix.hits.Load()
	misses := m.ix.misses.Load()
	sets, deletes, avg := m.trk.snapshot()

	s := Stats{
		Hits:          hits,
		Misses:        misses,
		Sets:          sets,
		Deletes:       deletes,
		Evictions:     m.ix.evicts.Load(),
		TotalEntries:  entries,
		TotalSize:     bytes,
		AvgAccessTime: avg,
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	if compStored > 0 {
		s.CompressionRatio = float64(compRaw) / float64(compStored)
	}
	return s
}

func (m *manager[V]) Subscribe(fn func(Stats)) (cancel func()) {
	return m.obs.add(fn)
}

func (m *manager[V]) Len() int {
	if m.closed.Load() || !m.cfg.Enabled {
		return 0
	}
	return m.ix.len()
}

func (m *manager[V]) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.stop != nil {
		close(m.stop)
	}
	m.sweepWG.Wait()
	if m.mirrorDone != nil {
		m.mirrorMu.Lock()
		m.mirrorCond.Signal()
		m.mirrorMu.Unlock()
		<-m.mirrorDone
	}
	if m.comp != nil {
		_ = m.comp.Close()
	}
	for _, st := range m.stores {
		if err := st.Close(); err != nil {
			m.log.Warn().Err(err).Msg("cache: tier close failed")
		}
	}
	return nil
}

// sweepLoop evicts expired entries on a fixed cadence so entries that are
// set and never read again cannot accumulate.
func (m *manager[V]) sweepLoop() {
	defer m.sweepWG.Done()
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n := m.ix.sweep(m.now()); n > 0 {
				m.publish()
			}
		case <-m.stop:
			return
		}
	}
}

// ---- pipeline helpers ----

// maybeCompress runs the gzip stage when the toggle allows it and the
// payload clears the threshold. A failed or unprofitable stage keeps raw.
func (m *manager[V]) maybeCompress(key string, raw []byte, override *bool) ([]byte, bool) {
	want := m.cfg.Compression
	if override != nil {
		want = *override
	}
	if !want || m.comp == nil || len(raw) < m.cfg.CompressionThreshold {
		return raw, false
	}
	cd, err := m.comp.Compress(context.Background(), raw)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("cache: compression failed, storing raw")
		return raw, false
	}
	if len(cd) >= len(raw) {
		return raw, false
	}
	return cd, true
}

// maybeEncrypt runs the cipher stage. Always after compression: ciphertext
// does not compress. A failed stage keeps the input with the flag cleared.
func (m *manager[V]) maybeEncrypt(key string, data []byte, override *bool) ([]byte, bool) {
	want := m.cfg.Encryption
	if override != nil {
		want = *override
	}
	if !want || m.enc == nil {
		return data, false
	}
	ed, err := m.enc.Seal(data)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("cache: encryption failed, storing untransformed")
		return data, false
	}
	return ed, true
}

// untransform reverses the pipeline in inverse order: decrypt, then
// decompress.
func (m *manager[V]) untransform(data []byte, compressed, encrypted bool) ([]byte, error) {
	var err error
	if encrypted {
		if m.enc == nil {
			return nil, fmt.Errorf("cache: entry is encrypted but encryption is unavailable")
		}
		if data, err = m.enc.Open(data); err != nil {
			return nil, err
		}
	}
	if compressed {
		if data, err = m.comp.Decompress(context.Background(), data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// dropCorrupt removes an entry whose payload failed to reverse-transform or
// decode. The index already counted the lookup as a hit; the skew is
// accepted — the counters are a monitoring signal.
func (m *manager[V]) dropCorrupt(key string, err error) {
	m.log.Warn().Err(err).Str("key", key).Msg("cache: corrupted entry dropped")
	m.ix.remove(key)
	m.mirrorDelete(key)
}

// ---- mirroring ----

func (m *manager[V]) handleEvict(e *entry, reason EvictReason) {
	// Runs under the index lock: only spawn, never block.
	m.mirrorDelete(e.key)
	if m.opt.OnEvict != nil {
		m.opt.OnEvict(e.key, reason)
	}
}

func (m *manager[V]) mirrorPut(rec store.Record) {
	m.enqueueMirror(mirrorOp{kind: mirrorPutOp, key: rec.Key, rec: rec})
}

func (m *manager[V]) mirrorDelete(key string) {
	m.enqueueMirror(mirrorOp{kind: mirrorDeleteOp, key: key})
}

// enqueueMirror hands an op to the mirror worker. Non-blocking: callers may
// hold the index lock.
func (m *manager[V]) enqueueMirror(op mirrorOp) {
	if m.mirrorDone == nil {
		return
	}
	m.mirrorMu.Lock()
	m.mirrorOps = append(m.mirrorOps, op)
	m.mirrorCond.Signal()
	m.mirrorMu.Unlock()
}

// mirrorLoop applies queued tier ops in order. It keeps draining after
// Close is flagged so every accepted op reaches the tiers before Close
// returns; failures are logged and swallowed — the in-memory tier is
// authoritative.
func (m *manager[V]) mirrorLoop() {
	defer close(m.mirrorDone)
	for {
		m.mirrorMu.Lock()
		for len(m.mirrorOps) == 0 && !m.closed.Load() {
			m.mirrorCond.Wait()
		}
		if len(m.mirrorOps) == 0 {
			m.mirrorMu.Unlock()
			return
		}
		op := m.mirrorOps[0]
		m.mirrorOps = m.mirrorOps[1:]
		m.mirrorMu.Unlock()

		m.applyMirror(op)
	}
}

func (m *manager[V]) applyMirror(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	for _, st := range m.stores {
		var err error
		switch op.kind {
		case mirrorPutOp:
			err = st.Put(ctx, op.rec)
		case mirrorDeleteOp:
			err = st.Delete(ctx, op.key)
		case mirrorClearOp:
			err = st.Clear(ctx)
		}
		if err != nil {
			m.log.Warn().Err(err).Str("key", op.key).Msg("cache: tier mirror op failed")
		}
	}
}

// ---- helpers ----

func (m *manager[V]) now() int64 {
	if m.opt.Clock != nil {
		return m.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// publish pushes a Stats snapshot to subscribers after a mutating operation.
func (m *manager[V]) publish() {
	if m.obs.empty() {
		return
	}
	m.obs.notify(m.Stats())
}

func entryFromRecord(rec store.Record) *entry {
	return &entry{
		key:          rec.Key,
		data:         rec.Data,
		createdAt:    rec.CreatedAt,
		exp:          rec.ExpiresAt,
		size:         int64(len(rec.Data)),
		rawSize:      rec.RawSize,
		compressed:   rec.Compressed,
		encrypted:    rec.Encrypted,
		accessCount:  rec.AccessCount,
		lastAccessed: rec.LastAccessed,
		tags:         rec.Tags,
		metadata:     rec.Metadata,
	}
}

// recordFromEntry must only be called on entries not yet visible to the
// index; their fields are still owned by the caller.
func recordFromEntry(e *entry, now int64) store.Record {
	return store.Record{
		Key:          e.key,
		Data:         e.data,
		CreatedAt:    e.createdAt,
		ExpiresAt:    e.exp,
		RawSize:      e.rawSize,
		Compressed:   e.compressed,
		Encrypted:    e.encrypted,
		AccessCount:  e.accessCount,
		LastAccessed: now,
		Tags:         e.tags,
		Metadata:     e.metadata,
	}
}
