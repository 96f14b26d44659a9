package transform

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCompressor_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCompressor(CompressorConfig{})
	defer c.Close()

	raw := bytes.Repeat([]byte("tiercache compresses repetitive payloads well. "), 64)
	packed, err := c.Compress(context.Background(), raw)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(raw))

	back, err := c.Decompress(context.Background(), packed)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

// Many goroutines share the pool; every reply must land with the caller that
// issued the request.
func TestCompressor_ConcurrentCallersGetTheirOwnPayloads(t *testing.T) {
	t.Parallel()

	c := NewCompressor(CompressorConfig{Workers: 4})
	defer c.Close()

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		i := i
		g.Go(func() error {
			raw := bytes.Repeat([]byte(fmt.Sprintf("payload-%03d|", i)), 32)
			packed, err := c.Compress(context.Background(), raw)
			if err != nil {
				return err
			}
			back, err := c.Decompress(context.Background(), packed)
			if err != nil {
				return err
			}
			if !bytes.Equal(raw, back) {
				return fmt.Errorf("caller %d got someone else's payload", i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCompressor_GarbageInputFailsDecompress(t *testing.T) {
	t.Parallel()

	c := NewCompressor(CompressorConfig{})
	defer c.Close()

	_, err := c.Decompress(context.Background(), []byte("not a gzip stream"))
	assert.Error(t, err)
}

func TestCompressor_ClosedPoolRejectsWork(t *testing.T) {
	t.Parallel()

	c := NewCompressor(CompressorConfig{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // idempotent

	_, err := c.Compress(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrCompressorClosed)
}
