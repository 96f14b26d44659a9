package cache

import (
	"fmt"
	"strconv"

	"github.com/IvanBrykalov/tiercache/internal/util"
)

// KeyFor derives a deterministic cache key from a prefix and arbitrary
// parts: the parts are stringified, hashed with 64-bit FNV-1a and appended
// to the prefix in hex. Handy for caching function results keyed by their
// arguments.
func KeyFor(prefix string, parts ...any) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = fmt.Sprint(p)
	}
	return prefix + strconv.FormatUint(util.Fnv64a(ss...), 16)
}
