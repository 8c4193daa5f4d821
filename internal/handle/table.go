// Package handle implements a generation-checked slot arena.
//
// A [Table] hands out [Handle] values that name a slot by index and
// generation. Removing a record bumps the slot's generation, so a handle
// kept after its record was removed never resolves to a later occupant of
// the same slot. Every table also carries a process-unique identity that is
// baked into its handles, which keeps handles from one table from resolving
// against another.
package handle

import (
	"errors"
	"sync/atomic"
)

// ErrNotFound is returned when a handle does not name a live record.
var ErrNotFound = errors.New("handle: not found")

// nextTableID hands out table identities. Zero is never used so the zero
// Handle is always invalid.
var nextTableID atomic.Uint32

// Handle is an opaque reference to a record in a Table.
type Handle struct {
	table uint32
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle, which never resolves.
func (h Handle) IsZero() bool { return h == Handle{} }

// Index returns the slot index. Only useful for diagnostics.
func (h Handle) Index() uint32 { return h.index }

// Generation returns the slot generation. Only useful for diagnostics.
func (h Handle) Generation() uint32 { return h.gen }

type slot[T any] struct {
	gen      uint32
	occupied bool
	value    T
}

// Table is a generation-checked arena of T records.
//
// Table is not safe for concurrent use.
type Table[T any] struct {
	id    uint32
	slots []slot[T]
	free  []uint32
	live  int
}

// New creates an empty table with room for capacity records before growing.
func New[T any](capacity int) *Table[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Table[T]{
		id:    nextTableID.Add(1),
		slots: make([]slot[T], 0, capacity),
	}
}

// Insert stores v in a free slot and returns its handle. Freed slots are
// reused, in which case the handle carries the slot's bumped generation.
func (t *Table[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{gen: 1})
		idx = uint32(len(t.slots) - 1) //nolint:gosec // slot count is bounded by memory
	}
	s := &t.slots[idx]
	s.occupied = true
	s.value = v
	t.live++
	return Handle{table: t.id, index: idx, gen: s.gen}
}

// lookup returns the live slot for h or nil.
func (t *Table[T]) lookup(h Handle) *slot[T] {
	if h.table != t.id || int(h.index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h.index]
	if !s.occupied || s.gen != h.gen {
		return nil
	}
	return s
}

// Get returns a copy of the record named by h.
func (t *Table[T]) Get(h Handle) (T, error) {
	s := t.lookup(h)
	if s == nil {
		var zero T
		return zero, ErrNotFound
	}
	return s.value, nil
}

// GetMut returns a pointer to the record named by h. The pointer is valid
// until the next Insert or Remove.
func (t *Table[T]) GetMut(h Handle) (*T, error) {
	s := t.lookup(h)
	if s == nil {
		return nil, ErrNotFound
	}
	return &s.value, nil
}

// Contains reports whether h names a live record.
func (t *Table[T]) Contains(h Handle) bool { return t.lookup(h) != nil }

// Remove vacates the slot named by h and returns its record so the caller
// can release whatever it owns.
func (t *Table[T]) Remove(h Handle) (T, error) {
	var zero T
	s := t.lookup(h)
	if s == nil {
		return zero, ErrNotFound
	}
	v := s.value
	s.value = zero
	s.occupied = false
	s.gen++
	t.free = append(t.free, h.index)
	t.live--
	return v, nil
}

// Handles returns the handles of all live records. The order is
// unspecified and may change across Insert and Remove.
func (t *Table[T]) Handles() []Handle {
	out := make([]Handle, 0, t.live)
	for i := range t.slots {
		if s := &t.slots[i]; s.occupied {
			out = append(out, Handle{table: t.id, index: uint32(i), gen: s.gen}) //nolint:gosec // i < len(slots)
		}
	}
	return out
}

// Len returns the number of live records.
func (t *Table[T]) Len() int { return t.live }

// Cap returns the number of slots, live or free.
func (t *Table[T]) Cap() int { return len(t.slots) }

// Reset invalidates every handle issued so far. The table takes a fresh
// identity, so even handles whose slot generations would match again are
// rejected.
func (t *Table[T]) Reset() {
	t.id = nextTableID.Add(1)
	t.slots = t.slots[:0]
	t.free = t.free[:0]
	t.live = 0
}
