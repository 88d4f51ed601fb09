// Package ring provides a fixed-capacity FIFO buffer that evicts its oldest
// element when full.
//
// A Ring is not safe for concurrent use. The decoding session owns every ring
// it uses and serialises access behind its own lock, which also lets it clear
// all rings in one step.
package ring

// Ring is a fixed-capacity circular buffer. Push appends at the tail and, once
// the buffer is full, overwrites the head. Iteration order is insertion order.
type Ring[T any] struct {
	slots []T
	head  int // index of the oldest element
	size  int
	total uint64 // elements pushed since creation or last Clear
}

// New allocates a ring holding at most capacity elements. A capacity below 1
// is treated as 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{slots: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is evicted and
// returned with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	r.total++
	if r.size < len(r.slots) {
		r.slots[(r.head+r.size)%len(r.slots)] = v
		r.size++
		return old, false
	}
	old = r.slots[r.head]
	r.slots[r.head] = v
	r.head = (r.head + 1) % len(r.slots)
	return old, true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Total returns how many elements were pushed since the last Clear,
// including evicted ones.
func (r *Ring[T]) Total() uint64 { return r.total }

// Snapshot copies the contents, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.slots[(r.head+i)%len(r.slots)]
	}
	return out
}

// Clear removes all elements and resets the push counter. Capacity is kept.
func (r *Ring[T]) Clear() {
	clear(r.slots)
	r.head = 0
	r.size = 0
	r.total = 0
}
