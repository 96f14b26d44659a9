package util

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes the concatenation of parts (separated by a NUL byte) using
// 64-bit FNV-1a. Used for deterministic cache-key derivation; not a
// cryptographic hash.
func Fnv64a(parts ...string) uint64 {
	h := uint64(fnvOffset64)
	for i, p := range parts {
		if i > 0 {
			h ^= 0
			h *= fnvPrime64
		}
		for j := 0; j < len(p); j++ {
			h ^= uint64(p[j])
			h *= fnvPrime64
		}
	}
	return h
}
