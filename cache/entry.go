package cache

// entry is an intrusive doubly linked list element owned by the index.
// It carries the transformed payload plus the bookkeeping that drives
// eviction, expiry and tag invalidation.
type entry struct {
	key  string
	data []byte // payload after any transforms; never mutated in place

	// Intrusive list links: head is MRU, tail is LRU.
	prev *entry
	next *entry

	createdAt int64 // UnixNano
	// exp is the absolute expiration deadline in UnixNano; zero means no
	// deadline. Entries past it are logically absent.
	exp int64

	size    int64 // len(data); drives the byte budget
	rawSize int64 // serialized size before transforms; feeds the ratio stat

	// The flags must exactly describe the transforms applied to data;
	// a mismatch on read is treated as corruption.
	compressed bool
	encrypted  bool

	// Mutated on every hit, under the index lock.
	accessCount  int64
	lastAccessed int64

	tags     []string
	metadata map[string]string
}

func (e *entry) hasTag(tag string) bool {
	for _, t := range e.tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (e *entry) expired(now int64) bool {
	return e.exp != 0 && now > e.exp
}
