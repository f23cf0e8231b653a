// Package typed adapts an allocation strategy to hand out values of a single
// Go type instead of raw byte regions.
package typed

import (
	"unsafe"
)

// Strategy is the subset of an allocation strategy's operations the adapter
// forwards to. Every strategy in the arena package satisfies it.
type Strategy interface {
	Allocate(n, alignment int) ([]byte, error)
	Deallocate(p []byte, n int)
}

// Allocator places values of type T into the storage region of an underlying
// allocation strategy. It holds no state of its own beyond the strategy
// reference, so copies of an Allocator are interchangeable.
//
// T must not contain Go pointers: the backing region is opaque bytes to the
// garbage collector, so pointers stored there keep nothing alive.
type Allocator[T any] struct {
	state Strategy
}

// NewAllocator creates an Allocator for T over the provided strategy.
func NewAllocator[T any](state Strategy) Allocator[T] {
	return Allocator[T]{state: state}
}

// New allocates a zeroed T inside the underlying strategy's storage.
func (a Allocator[T]) New() (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	alignment := int(unsafe.Alignof(zero))

	p, err := a.state.Allocate(size, alignment)
	if err != nil {
		return nil, err
	}

	value := (*T)(unsafe.Pointer(unsafe.SliceData(p)))
	*value = zero
	return value, nil
}

// Delete returns a value previously obtained from New to the underlying
// strategy.
func (a Allocator[T]) Delete(value *T) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	span := size
	if span < 1 {
		span = 1
	}

	a.state.Deallocate(unsafe.Slice((*byte)(unsafe.Pointer(value)), span), size)
}

// State returns the underlying strategy. Two Allocators are interchangeable
// exactly when their states are identical.
func (a Allocator[T]) State() Strategy {
	return a.state
}
