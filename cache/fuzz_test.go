//go:build go1.18

package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Set/Get/Delete semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: We cap key/value lengths to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzCache_SetGetDelete(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		// Cap lengths to keep memory bounded during fuzzing.
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}
		// Values round-trip through JSON, which only preserves valid UTF-8.
		v = strings.ToValidUTF8(v, "�")

		c := New[string](Options[string]{Config: memConfig(1 << 16)})
		t.Cleanup(func() { _ = c.Close() })

		// Set -> Get must return the same value.
		c.Set(k, v)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %q ok=%v", v, got, ok)
		}
		if !c.Has(k) {
			t.Fatalf("Has must report the key after Set")
		}

		// Overwrite must win.
		c.Set(k, v+"!")
		if got2, ok := c.Get(k); !ok || got2 != v+"!" {
			t.Fatalf("after overwrite: want %q, got %q ok=%v", v+"!", got2, ok)
		}

		// Delete must remove and return true once.
		if !c.Delete(k) {
			t.Fatalf("Delete must return true")
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after Delete")
		}
		if c.Delete(k) {
			t.Fatalf("second Delete must return false")
		}
	})
}
