// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/metrics/prom"
	"github.com/IvanBrykalov/tiercache/store"
	"github.com/IvanBrykalov/tiercache/store/blob"
	"github.com/IvanBrykalov/tiercache/store/sqlite"
)

func main() {
	// ---- Flags ----
	var (
		maxSize  = flag.Int64("max_size", 64<<20, "cache byte budget")
		valSize  = flag.Int("val_size", 256, "value payload size (bytes)")
		compress = flag.Bool("compress", false, "enable the gzip stage")
		tiersDir = flag.String("tiers", "", "mirror to persistent tiers in dir; empty = memory only")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := prom.New(nil, "tiercache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	cfg := cache.Config{
		Enabled:              true,
		Version:              "bench",
		MaxSize:              *maxSize,
		SweepInterval:        time.Minute,
		Compression:          *compress,
		CompressionThreshold: 128,
		CompressionWorkers:   runtime.GOMAXPROCS(0),
		CompressionTimeout:   5 * time.Second,
	}

	var stores []store.Store
	if *tiersDir != "" {
		tierA, err := blob.New(blob.Config{Dir: *tiersDir, Version: cfg.Version})
		if err != nil {
			log.Fatalf("blob tier: %v", err)
		}
		tierB, err := sqlite.New(sqlite.Config{Dir: *tiersDir, Version: cfg.Version})
		if err != nil {
			log.Fatalf("sqlite tier: %v", err)
		}
		stores = []store.Store{tierA, tierB}
	}

	c := cache.New[string](cache.Options[string]{Config: cfg, Stores: stores, Metrics: metrics})
	defer func() { _ = c.Close() }()

	// ---- Preload a slice of the keyspace to get a realistic hit-rate ----
	payload := strings.Repeat("x", *valSize)
	for i := 0; i < *keys/10; i++ {
		c.Set("k:"+strconv.Itoa(i), payload)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					c.Set(keyByZipf(), payload)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	s := c.Stats()
	fmt.Printf("max_size=%d val_size=%d compress=%v tiers=%q workers=%d keys=%d dur=%v seed=%d\n",
		*maxSize, *valSize, *compress, *tiersDir, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Len()=%d  bytes=%d  evictions=%d  compression-ratio=%.2f\n",
		c.Len(), s.TotalSize, s.Evictions, s.CompressionRatio)
}
