package journal

import (
	"context"
	"maps"
	"sync"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 100

// Ring is an in-memory [Store] keeping the last N entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	lastID  int64
}

var _ Store = (*Ring)(nil)

// NewRing returns a Ring holding up to capacity entries. A capacity <= 0
// means [DefaultCapacity].
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Record implements [Store]. The oldest entry is dropped when full.
func (r *Ring) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	e.ID = r.lastID
	e.Arguments = maps.Clone(e.Arguments)
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent implements [Store].
func (r *Ring) Recent(_ context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out, nil
}

// Ping implements [Store]. A ring is always reachable.
func (r *Ring) Ping(context.Context) error { return nil }

// Close implements [Store].
func (r *Ring) Close() error { return nil }
