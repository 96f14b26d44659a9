// Package util contains internal helpers (hashing, counter padding).
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for modern CPUs. The runtime's own
// constant is unexported; 64 works well in practice.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields into distinct cache lines to
// reduce false sharing.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicInt64 is an atomic int64 padded to exactly one cache line.
// Use for counters that are bumped concurrently from many goroutines.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// PaddedAtomicUint64 is the uint64 counterpart padded to one cache line.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Compile-time size checks: each padded counter must be exactly one line.
var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicInt64{}))]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
)
