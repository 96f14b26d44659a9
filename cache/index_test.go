package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(key string, size int64, now int64) *entry {
	return &entry{
		key:          key,
		data:         make([]byte, size),
		createdAt:    now,
		size:         size,
		rawSize:      size,
		lastAccessed: now,
	}
}

func TestIndex_EvictsFromTailUntilBudgetFits(t *testing.T) {
	t.Parallel()

	var evicted []string
	ix := newIndex(100, NoopMetrics{}, func(e *entry, r EvictReason) {
		assert.Equal(t, EvictCapacity, r)
		evicted = append(evicted, e.key)
	})

	now := time.Now().UnixNano()
	require.True(t, ix.set(testEntry("a", 40, now)))
	require.True(t, ix.set(testEntry("b", 40, now+1)))

	// 90 bytes needed: both residents must go, oldest-access first.
	require.True(t, ix.set(testEntry("c", 90, now+2)))

	assert.Equal(t, []string{"a", "b"}, evicted)
	entries, bytes, _, _ := ix.usage()
	assert.Equal(t, 1, entries)
	assert.Equal(t, int64(90), bytes)
}

func TestIndex_SetRejectsEntryOverBudget(t *testing.T) {
	t.Parallel()

	ix := newIndex(50, NoopMetrics{}, nil)
	now := time.Now().UnixNano()
	require.True(t, ix.set(testEntry("a", 30, now)))
	assert.False(t, ix.set(testEntry("big", 51, now)))

	// The resident entry must be untouched by the rejected set.
	assert.True(t, ix.has("a", now))
}

func TestIndex_ReplaceReleasesOldBytes(t *testing.T) {
	t.Parallel()

	ix := newIndex(100, NoopMetrics{}, nil)
	now := time.Now().UnixNano()
	require.True(t, ix.set(testEntry("a", 80, now)))
	require.True(t, ix.set(testEntry("a", 60, now+1)))

	entries, bytes, _, _ := ix.usage()
	assert.Equal(t, 1, entries)
	assert.Equal(t, int64(60), bytes)
}

func TestIndex_GetPromotesToFront(t *testing.T) {
	t.Parallel()

	ix := newIndex(100, NoopMetrics{}, nil)
	now := time.Now().UnixNano()
	require.True(t, ix.set(testEntry("a", 30, now)))
	require.True(t, ix.set(testEntry("b", 30, now+1)))
	require.True(t, ix.set(testEntry("c", 30, now+2)))

	// Promote a; the next capacity eviction must take b instead.
	_, _, _, ok := ix.get("a", now+3)
	require.True(t, ok)

	require.True(t, ix.set(testEntry("d", 30, now+4)))
	assert.False(t, ix.has("b", now+4))
	assert.True(t, ix.has("a", now+4))
}

func TestIndex_SweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	ix := newIndex(1000, NoopMetrics{}, nil)
	now := time.Now().UnixNano()

	fresh := testEntry("fresh", 10, now)
	fresh.exp = now + int64(time.Hour)
	stale := testEntry("stale", 10, now)
	stale.exp = now + int64(time.Minute)
	forever := testEntry("forever", 10, now) // exp 0: no deadline

	require.True(t, ix.set(fresh))
	require.True(t, ix.set(stale))
	require.True(t, ix.set(forever))

	removed := ix.sweep(now + int64(30*time.Minute))
	assert.Equal(t, 1, removed)
	assert.True(t, ix.has("fresh", now+int64(30*time.Minute)))
	assert.True(t, ix.has("forever", now+int64(30*time.Minute)))
	assert.False(t, ix.has("stale", now+int64(30*time.Minute)))
}

func TestIndex_AccessBookkeeping(t *testing.T) {
	t.Parallel()

	ix := newIndex(1000, NoopMetrics{}, nil)
	now := time.Now().UnixNano()
	e := testEntry("a", 10, now)
	require.True(t, ix.set(e))

	later := now + int64(time.Second)
	_, _, _, ok := ix.get("a", later)
	require.True(t, ok)

	assert.Equal(t, int64(1), e.accessCount)
	assert.Equal(t, later, e.lastAccessed)
	assert.Equal(t, int64(1), ix.hits.Load())

	_, _, _, ok = ix.get("nope", later)
	assert.False(t, ok)
	assert.Equal(t, int64(1), ix.misses.Load())
}

func TestIndex_CompressionAccounting(t *testing.T) {
	t.Parallel()

	ix := newIndex(1000, NoopMetrics{}, nil)
	now := time.Now().UnixNano()

	e := testEntry("z", 40, now)
	e.rawSize = 100
	e.compressed = true
	require.True(t, ix.set(e))

	_, _, compRaw, compStored := ix.usage()
	assert.Equal(t, int64(100), compRaw)
	assert.Equal(t, int64(40), compStored)

	ix.remove("z")
	_, _, compRaw, compStored = ix.usage()
	assert.Zero(t, compRaw)
	assert.Zero(t, compStored)
}
