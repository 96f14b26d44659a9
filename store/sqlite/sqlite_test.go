package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/tiercache/store"
)

func open(t *testing.T, dir, version string) *Store {
	t.Helper()
	s, err := New(Config{Dir: dir, Version: version})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqlite_PutLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := open(t, t.TempDir(), "v1")

	want := store.Record{
		Key:          "user:7",
		Data:         []byte{0x1f, 0x8b, 0x00},
		CreatedAt:    100,
		ExpiresAt:    200,
		RawSize:      512,
		Compressed:   true,
		Encrypted:    true,
		AccessCount:  3,
		LastAccessed: 150,
		Tags:         []string{"users", "hot"},
		Metadata:     map[string]string{"source": "api"},
	}
	require.NoError(t, s.Put(ctx, want))

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, want, recs[0])
}

func TestSqlite_PutReplacesExistingKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := open(t, t.TempDir(), "v1")

	require.NoError(t, s.Put(ctx, store.Record{Key: "k", Data: []byte("old"), RawSize: 3}))
	require.NoError(t, s.Put(ctx, store.Record{Key: "k", Data: []byte("new"), RawSize: 3}))

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("new"), recs[0].Data)
}

// Two versions share one database file but never see each other's rows.
func TestSqlite_VersionNamespacing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	v1 := open(t, dir, "v1")
	v2 := open(t, dir, "v2")

	require.NoError(t, v1.Put(ctx, store.Record{Key: "k", Data: []byte("x"), RawSize: 1}))

	recs, err := v2.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Clearing v2 must not touch v1's rows.
	require.NoError(t, v2.Clear(ctx))
	recs, err = v1.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSqlite_DeleteAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := open(t, t.TempDir(), "v1")

	require.NoError(t, s.Put(ctx, store.Record{Key: "a", Data: []byte("1"), RawSize: 1}))
	require.NoError(t, s.Put(ctx, store.Record{Key: "b", Data: []byte("2"), RawSize: 1}))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].Key)

	require.NoError(t, s.Clear(ctx))
	recs, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSqlite_RowsSurviveReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(Config{Dir: dir, Version: "v1"})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, store.Record{Key: "persisted", Data: []byte("v"), RawSize: 1}))
	require.NoError(t, s.Close())

	s2 := open(t, dir, "v1")
	recs, err := s2.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "persisted", recs[0].Key)
}

func TestSqlite_ConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Version: "v1"})
	assert.Error(t, err)
	_, err = New(Config{Dir: t.TempDir()})
	assert.Error(t, err)
}
