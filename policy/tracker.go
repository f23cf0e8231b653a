package policy

import (
	"fmt"
	"unsafe"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// Record describes one active allocation tracked by AllocationTracker.
type Record struct {
	// Pointer is the block returned by the allocation.
	Pointer []byte
	// Alignment is the alignment requested for the allocation.
	Alignment int
	// Size is the size in bytes requested for the allocation.
	Size int
	// ID is assigned by the tracker. IDs are monotonically increasing and
	// unique per tracker up to overflow.
	ID uint64
}

// AllocationTracker maintains a full record of every active allocation, keyed
// by block address. It panics when the same block is allocated twice, when a
// block that was never allocated is deallocated, when a deallocation size does
// not match the allocation size, and when the strategy is reset while
// allocations are still active.
type AllocationTracker struct {
	records *swiss.Map[uintptr, Record]
	counter uint64
}

func NewAllocationTracker() *AllocationTracker {
	return &AllocationTracker{
		records: swiss.NewMap[uintptr, Record](32),
	}
}

func blockKey(p []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

func (t *AllocationTracker) OnAllocate(n, alignment int, p []byte) {
	key := blockKey(p)
	_, ok := t.records.Get(key)
	if ok {
		panic(fmt.Sprintf("same memory block %p was allocated twice", p))
	}

	t.records.Put(key, Record{
		Pointer:   p,
		Alignment: alignment,
		Size:      n,
		ID:        t.counter,
	})
	t.counter++
}

func (t *AllocationTracker) OnDeallocate(p []byte, n int) {
	key := blockKey(p)
	record, ok := t.records.Get(key)
	if !ok {
		panic(fmt.Sprintf("deallocating block %p that was not allocated from this resource", p))
	}
	if record.Size != n {
		panic(fmt.Sprintf("deallocation size %d does not match allocation size %d for block %p", n, record.Size, p))
	}

	t.records.Delete(key)
}

func (t *AllocationTracker) OnReset() {
	if t.records.Count() != 0 {
		panic(fmt.Sprintf("memory resource was reset while %d allocations were still active", t.records.Count()))
	}
}

// CheckDestroy panics if any allocations are still active. Call this before
// releasing the storage the observed strategy lives in.
func (t *AllocationTracker) CheckDestroy() {
	if t.records.Count() != 0 {
		panic(fmt.Sprintf("memory resource was destroyed while %d allocations were still active", t.records.Count()))
	}
}

// Records returns all active allocations, ordered by allocation time.
func (t *AllocationTracker) Records() []Record {
	ret := make([]Record, 0, t.records.Count())
	t.records.Iter(func(key uintptr, record Record) bool {
		ret = append(ret, record)
		return false
	})

	slices.SortFunc(ret, func(a, b Record) bool {
		return a.ID < b.ID
	})
	return ret
}
