// Package fixedring contains a circular queue with a capacity fixed at
// construction time. It never allocates after construction.
package fixedring

import "fmt"

// FixedRing is a fixed-capacity circular queue. Elements are pushed to the
// back and popped from the front; indexed access counts from the front.
//
// Pushing to a full ring and popping from an empty one are protocol
// violations and panic.
type FixedRing[T any] struct {
	ring     []T
	pushIdx  int
	elements int
}

// New creates a FixedRing holding at most capacity elements. capacity must be
// positive.
func New[T any](capacity int) *FixedRing[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ring capacity must be positive, not %d", capacity))
	}
	return &FixedRing[T]{ring: make([]T, 0, capacity)}
}

func (r *FixedRing[T]) frontIndex() int {
	endIdx := r.pushIdx
	if r.pushIdx < r.elements {
		endIdx += cap(r.ring)
	}
	return endIdx - r.elements
}

func (r *FixedRing[T]) nthIndex(n int) int {
	offs := r.elements - n
	if r.pushIdx < offs {
		return r.pushIdx + cap(r.ring) - offs
	}
	return r.pushIdx - offs
}

// PushBack appends an element at the back of the ring. The ring must not be
// full.
func (r *FixedRing[T]) PushBack(v T) {
	if r.Full() {
		panic("push to a full ring")
	}
	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, v)
		r.pushIdx++
		r.elements++
		return
	}
	if r.pushIdx == cap(r.ring) {
		r.pushIdx = 0
	}
	r.ring[r.pushIdx] = v
	r.pushIdx++
	r.elements++
}

// PopFront removes and returns the element at the front of the ring. The ring
// must not be empty.
func (r *FixedRing[T]) PopFront() T {
	if r.Empty() {
		panic("pop from an empty ring")
	}
	frontIdx := r.frontIndex()
	r.elements--
	return r.ring[frontIdx]
}

// Capacity returns the maximum number of elements the ring can hold at once.
func (r *FixedRing[T]) Capacity() int {
	return cap(r.ring)
}

// Available returns the number of elements currently stored in the ring.
func (r *FixedRing[T]) Available() int {
	return r.elements
}

// Free returns the number of slots available for storing additional elements.
func (r *FixedRing[T]) Free() int {
	return cap(r.ring) - r.elements
}

func (r *FixedRing[T]) Empty() bool {
	return r.elements == 0
}

func (r *FixedRing[T]) Full() bool {
	return r.Free() == 0
}

// At returns the index-th element counted from the front. index must be in
// [0, Available()).
func (r *FixedRing[T]) At(index int) T {
	if index < 0 || index >= r.elements {
		panic(fmt.Sprintf("index %d out of range for ring of %d elements", index, r.elements))
	}
	return r.ring[r.nthIndex(index)]
}

// Front returns the element at the front of the ring without removing it.
func (r *FixedRing[T]) Front() T {
	return r.ring[r.frontIndex()]
}

// Back returns the element at the back of the ring without removing it.
func (r *FixedRing[T]) Back() T {
	return r.ring[r.pushIdx-1]
}

// Equal reports whether two rings hold equal elements in the same order.
func Equal[T comparable](lhs, rhs *FixedRing[T]) bool {
	if lhs.elements != rhs.elements {
		return false
	}
	for i := 0; i < lhs.elements; i++ {
		if lhs.ring[lhs.nthIndex(i)] != rhs.ring[rhs.nthIndex(i)] {
			return false
		}
	}
	return true
}
