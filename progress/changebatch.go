package progress

// ChangeBatch is a compact multiset of (T, delta) updates, the universal
// currency of progress (spec §3). Compaction merges duplicate timestamps
// and drops zero-deltas as updates arrive; the receiver must still be
// manipulated atomically by its caller — a partial batch must never be
// published (spec §3 invariant b).
//
// Transient negative per-timestamp counts are legal while a batch is being
// accumulated; only the globally settled accumulation, once applied by the
// reachability engine, is required to be non-negative (spec §9).
type ChangeBatch[T comparable] struct {
	updates map[T]int64
}

// NewChangeBatch returns an empty, ready-to-use ChangeBatch.
func NewChangeBatch[T comparable]() *ChangeBatch[T] {
	return &ChangeBatch[T]{updates: make(map[T]int64)}
}

// Update accumulates delta at timestamp t, dropping the entry entirely if
// the running total returns to zero.
func (c *ChangeBatch[T]) Update(t T, delta int64) {
	if delta == 0 {
		return
	}
	if c.updates == nil {
		c.updates = make(map[T]int64)
	}
	next := c.updates[t] + delta
	if next == 0 {
		delete(c.updates, t)
		return
	}
	c.updates[t] = next
}

// IsEmpty reports whether the batch has no non-zero entries.
func (c *ChangeBatch[T]) IsEmpty() bool {
	return len(c.updates) == 0
}

// Len returns the number of distinct timestamps with a non-zero delta.
func (c *ChangeBatch[T]) Len() int {
	return len(c.updates)
}

// Compact is a no-op over Update's own bookkeeping, offered for parity with
// spec §4.2's named operation; Update already compacts on every call, so
// this exists for callers that built a batch by writing the internal map
// directly (e.g. decoding one off the wire) and want the same guarantee
// applied afterward.
func (c *ChangeBatch[T]) Compact() {
	for t, d := range c.updates {
		if d == 0 {
			delete(c.updates, t)
		}
	}
}

// DrainInto moves every entry of the receiver into other, via Update (so
// other's own compaction rules apply), then empties the receiver.
func (c *ChangeBatch[T]) DrainInto(other *ChangeBatch[T]) {
	for t, d := range c.updates {
		other.Update(t, d)
	}
	clear(c.updates)
}

// Entry is a single (timestamp, delta) pair, as returned by Entries.
type Entry[T comparable] struct {
	Timestamp T
	Delta     int64
}

// Entries returns a snapshot of the batch's current contents. The order is
// unspecified.
func (c *ChangeBatch[T]) Entries() []Entry[T] {
	out := make([]Entry[T], 0, len(c.updates))
	for t, d := range c.updates {
		out = append(out, Entry[T]{Timestamp: t, Delta: d})
	}
	return out
}

// Get returns the current accumulated delta for t (zero if absent).
func (c *ChangeBatch[T]) Get(t T) int64 {
	return c.updates[t]
}
