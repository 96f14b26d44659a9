package preload

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Progress reports how far a Progressive loader has come.
type Progress struct {
	Completed int
	Remaining int
	// Percent is 0-100; 100 when there was nothing to load.
	Percent float64
}

// Progressive drives an ordered list of loaders chunk by chunk — for
// callers that want to reveal work step-by-step (paginated lists, staged
// startup) rather than all at once. Safe for concurrent use, though chunks
// are typically requested sequentially.
type Progressive struct {
	mu      sync.Mutex
	loaders []LoaderFunc
	next    int
	chunk   int
}

// NewProgressive wraps loaders with the given chunk size (minimum 1).
func NewProgressive(loaders []LoaderFunc, chunkSize int) *Progressive {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Progressive{loaders: loaders, chunk: chunkSize}
}

// LoadNext runs the next chunk of loaders concurrently and reports overall
// progress. Loader failures count as attempted — a failing loader is not
// retried by a later chunk. Returns ctx.Err if the context ends first.
func (p *Progressive) LoadNext(ctx context.Context) (Progress, error) {
	p.mu.Lock()
	start := p.next
	end := start + p.chunk
	if end > len(p.loaders) {
		end = len(p.loaders)
	}
	p.next = end
	batch := p.loaders[start:end]
	p.mu.Unlock()

	if len(batch) > 0 {
		var g errgroup.Group
		for _, fn := range batch {
			fn := fn
			g.Go(func() error {
				_ = fn(ctx) // isolated; progress counts attempts
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return p.Progress(), err
	}
	return p.Progress(), nil
}

// Progress returns the current counts without loading anything.
func (p *Progressive) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := len(p.loaders)
	pr := Progress{Completed: p.next, Remaining: total - p.next}
	if total == 0 {
		pr.Percent = 100
	} else {
		pr.Percent = float64(p.next) / float64(total) * 100
	}
	return pr
}

// Done reports whether every loader has been attempted.
func (p *Progressive) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next >= len(p.loaders)
}
