package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ErrCompressorClosed is returned once Close has been called.
var ErrCompressorClosed = errors.New("transform: compressor closed")

// ErrTimeout is returned when a compression round trip does not complete
// within the configured window. It fails the stage, not the caller's
// operation: the cache falls back to storing the raw payload.
var ErrTimeout = errors.New("transform: compression timed out")

// Op identifies the direction of a compression request.
type Op string

const (
	OpCompress   Op = "compress"
	OpDecompress Op = "decompress"
)

// request/response pairs are correlated by a generated id so a reply can
// never be attributed to the wrong caller, and so failures are traceable
// in logs.
type request struct {
	id   uuid.UUID
	op   Op
	data []byte
	resp chan response
}

type response struct {
	id     uuid.UUID
	result []byte
	err    error
}

// Compressor offloads gzip work to a pool of workers so callers never block
// a hot path on CPU-bound compression. Safe for concurrent use.
type Compressor struct {
	requests chan request
	quit     chan struct{}
	timeout  time.Duration
	level    int
}

// CompressorConfig configures the worker pool. Zero values get defaults:
// one worker, a 5s round-trip timeout, gzip.DefaultCompression.
type CompressorConfig struct {
	Workers int
	Timeout time.Duration
	Level   int
}

// NewCompressor starts the worker pool. Callers must Close it to release
// the workers.
func NewCompressor(cfg CompressorConfig) *Compressor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Level == 0 {
		cfg.Level = gzip.DefaultCompression
	}
	c := &Compressor{
		requests: make(chan request),
		quit:     make(chan struct{}),
		timeout:  cfg.Timeout,
		level:    cfg.Level,
	}
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	return c
}

// Compress returns the gzip-compressed form of data.
func (c *Compressor) Compress(ctx context.Context, data []byte) ([]byte, error) {
	return c.roundTrip(ctx, OpCompress, data)
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(ctx context.Context, data []byte) ([]byte, error) {
	return c.roundTrip(ctx, OpDecompress, data)
}

// Close stops the workers. In-flight round trips fail with
// ErrCompressorClosed.
func (c *Compressor) Close() error {
	select {
	case <-c.quit:
		return nil
	default:
	}
	close(c.quit)
	return nil
}

func (c *Compressor) roundTrip(ctx context.Context, op Op, data []byte) ([]byte, error) {
	req := request{
		id:   uuid.New(),
		op:   op,
		data: data,
		resp: make(chan response, 1),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case c.requests <- req:
	case <-c.quit:
		return nil, ErrCompressorClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%w (request %s not accepted)", ErrTimeout, req.id)
	}

	select {
	case resp := <-req.resp:
		if resp.id != req.id {
			return nil, fmt.Errorf("transform: correlation mismatch: sent %s, got %s", req.id, resp.id)
		}
		return resp.result, resp.err
	case <-c.quit:
		return nil, ErrCompressorClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%w (request %s)", ErrTimeout, req.id)
	}
}

func (c *Compressor) worker() {
	for {
		select {
		case req := <-c.requests:
			result, err := c.apply(req.op, req.data)
			req.resp <- response{id: req.id, result: result, err: err}
		case <-c.quit:
			return
		}
	}
}

func (c *Compressor) apply(op Op, data []byte) ([]byte, error) {
	switch op {
	case OpCompress:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, c.level)
		if err != nil {
			return nil, fmt.Errorf("transform: gzip writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("transform: compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("transform: compress flush: %w", err)
		}
		return buf.Bytes(), nil
	case OpDecompress:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("transform: gzip reader: %w", err)
		}
		out, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("transform: decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("transform: unknown op %q", op)
	}
}
