package transform

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptor_SealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(newTestKey(t))
	require.NoError(t, err)

	plain := []byte("the payload under protection")
	sealed, err := enc.Seal(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, sealed)

	back, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, back)
}

// Two seals of the same plaintext must differ: the nonce is fresh per call.
func TestEncryptor_NoncesAreFresh(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(newTestKey(t))
	require.NoError(t, err)

	a, err := enc.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_TamperedCiphertextFailsOpen(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(newTestKey(t))
	require.NoError(t, err)

	sealed, err := enc.Seal([]byte("integrity matters"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0x01

	_, err = enc.Open(sealed)
	assert.Error(t, err)
}

func TestEncryptor_TruncatedCiphertext(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(newTestKey(t))
	require.NoError(t, err)

	_, err = enc.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncryptor_WrongKeySize(t *testing.T) {
	t.Parallel()

	_, err := NewEncryptor(make([]byte, 16))
	assert.Error(t, err)
}

func TestLoadOrCreateKey_StableAcrossSessions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "cache.json")

	key1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Len(t, key1, KeySize)

	key2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// Data sealed under the first load must open under the reload.
	enc1, err := NewEncryptor(key1)
	require.NoError(t, err)
	enc2, err := NewEncryptor(key2)
	require.NoError(t, err)
	sealed, err := enc1.Seal([]byte("persisted"))
	require.NoError(t, err)
	back, err := enc2.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), back)
}

func TestLoadOrCreateKey_CorruptFileIsAnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadOrCreateKey(path)
	assert.Error(t, err)
}
