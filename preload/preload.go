// Package preload schedules fetch-ahead of resources: a priority-ordered
// work queue drained in bounded concurrent batches, debounced hints for
// "probably needed soon" items, and a progressive loader for callers that
// reveal work chunk by chunk.
//
// The package is independent of the cache — loaders decide what to do with
// what they fetch — but is commonly used alongside it.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LoaderFunc performs one unit of fetch-ahead work.
type LoaderFunc func(ctx context.Context) error

// Options configures a Preloader. Zero values get defaults.
type Options struct {
	// BatchSize bounds how many loaders run concurrently per drain batch.
	// Default 4.
	BatchSize int

	// BatchPause is the pause between batches, so draining does not
	// saturate the network or the scheduler. Default 100ms.
	BatchPause time.Duration

	// HintDelay is the debounce window for Hint: the loader is queued only
	// if the hint is not cancelled within the window. Default 150ms.
	HintDelay time.Duration

	// IdleInterval is the cadence at which Start drains the queue in the
	// background. Default 2s.
	IdleInterval time.Duration

	// Logger receives warn records for failed loaders. Nil disables.
	Logger *zerolog.Logger
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 4
	}
	if o.BatchPause <= 0 {
		o.BatchPause = 100 * time.Millisecond
	}
	if o.HintDelay <= 0 {
		o.HintDelay = 150 * time.Millisecond
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 2 * time.Second
	}
}

type item struct {
	id string
	fn LoaderFunc
}

// Preloader maintains a priority-ordered queue of loader callbacks.
// High-priority items go to the front; duplicates (by id) of queued or
// already-completed work are ignored. Safe for concurrent use.
type Preloader struct {
	mu     sync.Mutex
	queue  []item
	seen   map[string]bool // queued or completed ids
	hints  map[string]*time.Timer
	closed bool

	opt Options
	log zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Preloader. Call Start for background draining, or Drain
// to process the queue explicitly.
func New(opt Options) *Preloader {
	opt.defaults()
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}
	return &Preloader{
		seen:  make(map[string]bool),
		hints: make(map[string]*time.Timer),
		opt:   opt,
		log:   log,
		stop:  make(chan struct{}),
	}
}

// Enqueue adds fn under id. High-priority items are inserted at the front
// of the queue, others appended. Ids already queued or completed are
// ignored.
func (p *Preloader) Enqueue(id string, fn LoaderFunc, highPriority bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.seen[id] {
		return
	}
	p.seen[id] = true
	it := item{id: id, fn: fn}
	if highPriority {
		p.queue = append([]item{it}, p.queue...)
	} else {
		p.queue = append(p.queue, it)
	}
}

// Hint schedules fn as high priority after the debounce window. A hint that
// is cancelled (CancelHint) before the window elapses never queues — this
// avoids wasted fetches on transient interest.
func (p *Preloader) Hint(id string, fn LoaderFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.seen[id] || p.hints[id] != nil {
		return
	}
	p.hints[id] = time.AfterFunc(p.opt.HintDelay, func() {
		p.mu.Lock()
		delete(p.hints, id)
		p.mu.Unlock()
		p.Enqueue(id, fn, true)
	})
}

// CancelHint withdraws a pending hint. A no-op once the debounce window has
// elapsed.
func (p *Preloader) CancelHint(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.hints[id]; t != nil {
		t.Stop()
		delete(p.hints, id)
	}
}

// Drain processes the queue in batches of BatchSize, awaiting every member
// of a batch before starting the next, with a pause between batches.
// Loader failures are logged and isolated. Returns when the queue is empty
// or ctx is done.
func (p *Preloader) Drain(ctx context.Context) {
	for {
		batch := p.take(p.opt.BatchSize)
		if len(batch) == 0 {
			return
		}

		var g errgroup.Group
		for _, it := range batch {
			it := it
			g.Go(func() error {
				if err := it.fn(ctx); err != nil {
					p.log.Warn().Err(err).Str("id", it.id).Msg("preload: loader failed")
				}
				return nil
			})
		}
		_ = g.Wait()

		if p.Pending() == 0 {
			return
		}
		select {
		case <-time.After(p.opt.BatchPause):
		case <-ctx.Done():
			return
		}
	}
}

// Start drains the queue in the background on IdleInterval until ctx is
// done or Close is called.
func (p *Preloader) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.opt.IdleInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.Drain(ctx)
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			}
		}
	}()
}

// Pending returns the number of queued items.
func (p *Preloader) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops background draining and pending hints. Queued work is
// discarded.
func (p *Preloader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, t := range p.hints {
		t.Stop()
		delete(p.hints, id)
	}
	p.queue = nil
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()
	return nil
}

func (p *Preloader) take(n int) []item {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.queue) {
		n = len(p.queue)
	}
	batch := make([]item, n)
	copy(batch, p.queue[:n])
	p.queue = p.queue[n:]
	return batch
}
