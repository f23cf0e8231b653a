package storage

import (
	"fmt"
	"unsafe"
)

// StorageView is a non-owning view on a region of memory used by an allocation
// strategy. It is the interop type between storage providers and strategies:
// each strategy accepts any Storage in its constructor and immediately collapses
// it to a StorageView with MakeStorageView, so strategies never care how the
// region was obtained.
//
// The view never changes size after construction. Block offsets handed around
// by strategies are alignments in offset space, with offset 0 as the alignment
// origin; providers are expected to hand out buffers whose base address is at
// least 8-byte aligned (Go heap allocations are).
type StorageView struct {
	// Memory is the full backing region. Strategies store their bookkeeping
	// headers directly inside it.
	Memory []byte
}

// Size returns the size of the viewed region in bytes.
func (v StorageView) Size() int {
	return len(v.Memory)
}

// Block returns the n-byte sub-region starting at offset off. The returned
// slice has its capacity clamped so callers cannot grow it into neighboring
// regions.
func (v StorageView) Block(off, n int) []byte {
	return v.Memory[off : off+n : off+n]
}

// OffsetOf recovers the offset of a block previously returned by Block from
// slice identity. It returns -1 if p does not alias this view's region.
func (v StorageView) OffsetOf(p []byte) int {
	if len(v.Memory) == 0 {
		return -1
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(v.Memory)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	if addr < base || addr >= base+uintptr(len(v.Memory)) {
		return -1
	}
	return int(addr - base)
}

// MustOffsetOf is OffsetOf for pointers that are known to belong to this view.
// It panics when handed a foreign pointer.
func (v StorageView) MustOffsetOf(p []byte) int {
	off := v.OffsetOf(p)
	if off < 0 {
		panic(fmt.Sprintf("pointer %p does not point into this storage region", p))
	}
	return off
}
