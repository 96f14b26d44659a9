package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Set/Get/SetWithTTL/Delete/InvalidateByTag on
// random keys. Should pass under `-race` without detector reports.
func TestRace_MixedWorkload(t *testing.T) {
	c := New[string](Options[string]{Config: memConfig(1 << 20)})
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 10_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0: // ~1% — tag invalidation
					c.InvalidateByTag("grp:" + strconv.Itoa(r.Intn(8)))
				case 1, 2, 3, 4: // ~4% — Delete
					c.Delete(k)
				case 5, 6, 7, 8, 9: // ~5% — SetWithTTL
					c.SetWithTTL(k, "x", time.Duration(10+r.Intn(20))*time.Millisecond)
				case 10, 11, 12, 13, 14: // ~5% — tagged Set
					c.SetWith(k, "x", SetOptions{Tags: []string{"grp:" + strconv.Itoa(r.Intn(8))}})
				case 15, 16, 17, 18, 19: // ~5% — Set
					c.Set(k, "x")
				default: // ~80% — Get
					c.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// Hammer one key with concurrent Sets and Gets: the Set path snapshots the
// mirror record before the entry becomes visible, so a Get promoting the
// entry and bumping its access fields must never race with it.
func TestRace_SameKeySetGet(t *testing.T) {
	c := New[string](Options[string]{Config: memConfig(1 << 20)})
	t.Cleanup(func() { _ = c.Close() })

	deadline := time.Now().Add(time.Second)
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				c.Set("hot", "v")
			}
		}()
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				c.Get("hot")
			}
		}()
	}
	wg.Wait()
}

// Concurrent Stats/Len/Has readers alongside writers: accounting must never
// race with mutation.
func TestRace_StatsReaders(t *testing.T) {
	c := New[int](Options[int]{Config: memConfig(1 << 20)})
	t.Cleanup(func() { _ = c.Close() })

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
				c.Set("k:"+strconv.Itoa(i%512), i)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = c.Stats()
				_ = c.Len()
				_ = c.Has("k:1")
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(done)
	wg.Wait()
}

// One hundred goroutines call GetOrLoad on the same key concurrently.
// The Loader should run at most once (singleflight coalescing).
func TestRace_GetOrLoad(t *testing.T) {
	var calls int64

	cfg := memConfig(1 << 20)
	c := New[string](Options[string]{
		Config: cfg,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(2 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrLoad(context.Background(), key)
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}

	// Subsequent call should be a pure cache hit.
	if v, err := c.GetOrLoad(context.Background(), key); err != nil || v != "v:"+key {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}
