// Package ringpool contains a ring buffer allocator designed for concurrent
// callers:
//
//   - freeing never blocks allocations
//   - allocations never block each other
//   - freeing takes a lock only when it happens out of allocation order
//
// Blocks freed out of order are pushed onto a pending list instead of being
// reclaimed. The pending list is maintained lazily: an element stays on it
// even after the elements blocking it are gone, and it is only drained when an
// out-of-order free has to take the lock anyway, when an allocation fails for
// lack of space, or when the caller asks for it with CleanPendingElements.
package ringpool

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"

	"github.com/strata-mem/strata"
)

// every block is preceded by one word recording the block's total size,
// header included, so Free can find the block's extent without external
// bookkeeping
const blockHeaderSize = 8

// CreateOptions configures a Pool.
type CreateOptions struct {
	// Exhaustion selects the behavior of Allocate when the pool is full. The
	// zero value is ExhaustionReturnNil.
	Exhaustion ExhaustionPolicy
	// Logger receives diagnostic output. When nil, slog.Default() is used.
	Logger *slog.Logger
}

// Pool is a ring buffer allocator over a heap region it owns. Allocation is a
// lock-free compare-and-swap loop; blocks freed in allocation order are
// reclaimed lock-free as well.
//
// The in-order fast path of Free compares the freed block's offset against
// the left edge and then advances the edge in two separate steps. Callers
// must therefore make sure that at most one goroutine at a time frees the
// leftmost live block; concurrent Allocate calls and out-of-order Free calls
// need no coordination.
type Pool struct {
	capacity int
	store    []byte

	// rightPtr is the offset of the beginning of the unallocated region,
	// leftPtr the offset of the beginning of the allocated region
	rightPtr atomic.Int64
	leftPtr  atomic.Int64
	// paddingPtr is nonzero while the most recent wrap left an unusable tail:
	// it records where that tail begins, and the tail extends to capacity
	paddingPtr atomic.Int64

	exhaustion ExhaustionPolicy
	logger     *slog.Logger

	// pendingMutex guards pending and overflow. pending holds the offsets of
	// blocks that were freed out of allocation order and await their turn.
	pendingMutex sync.Mutex
	pending      []int64
	overflow     *swiss.Map[uintptr, []byte]
}

// New creates a Pool with poolCapacity bytes of storage.
func New(poolCapacity int, options CreateOptions) *Pool {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		capacity:   poolCapacity,
		store:      make([]byte, poolCapacity),
		exhaustion: options.Exhaustion,
		logger:     logger,
		overflow:   swiss.NewMap[uintptr, []byte](8),
	}
}

// Capacity returns the pool's storage size in bytes.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Allocate reserves requestedSize bytes from the pool and returns them as a
// slice of the pool's storage. Blocks are reserved at word granularity; there
// is no alignment parameter. The failure behavior is selected by the pool's
// ExhaustionPolicy.
func (p *Pool) Allocate(requestedSize int) ([]byte, error) {
	if requestedSize < 0 {
		return nil, errors.Errorf("requested size %d must not be negative", requestedSize)
	}
	// zero-size requests still consume a byte so every block has a distinct
	// address for Free to recover
	payload := requestedSize
	if payload < 1 {
		payload = 1
	}
	size := int64(payload + blockHeaderSize)

	for {
		right := p.rightPtr.Load()
		left := p.leftPtr.Load()
		if left <= right {
			// the allocated region does not span the ring boundary
			if right+size >= int64(p.capacity) {
				// no room to the right; attempt to wrap around and allocate
				// at the beginning
				if size >= left {
					if p.CleanPendingElements() {
						continue
					}
					return p.allocateFailed(requestedSize)
				}
				if p.rightPtr.CompareAndSwap(right, size) {
					// record the abandoned tail so Free can skip it when the
					// block at the end of the buffer is reclaimed
					if !p.paddingPtr.CompareAndSwap(0, right) {
						panic("a wrap was recorded while an earlier wrap was still pending")
					}
					return p.blockAt(0, size), nil
				}
			} else if p.rightPtr.CompareAndSwap(right, right+size) {
				return p.blockAt(right, size), nil
			}
		} else {
			// the allocated region spans the ring boundary; only the gap up
			// to the left edge is available
			if right+size >= left {
				if p.CleanPendingElements() {
					continue
				}
				return p.allocateFailed(requestedSize)
			}
			if p.rightPtr.CompareAndSwap(right, right+size) {
				return p.blockAt(right, size), nil
			}
		}
	}
}

func (p *Pool) blockAt(offset, size int64) []byte {
	binary.LittleEndian.PutUint64(p.store[offset:], uint64(size))
	return p.store[offset+blockHeaderSize : offset+size : offset+size]
}

func (p *Pool) allocateFailed(requestedSize int) ([]byte, error) {
	switch p.exhaustion {
	case ExhaustionPanic:
		panic(fmt.Sprintf("allocator capacity exceeded: %d bytes requested", requestedSize))
	case ExhaustionError:
		return nil, errors.Wrapf(strata.OutOfMemoryError, "%d bytes requested from a pool of %d bytes", requestedSize, p.capacity)
	case ExhaustionOverflow:
		return p.allocateOverflow(requestedSize)
	default:
		return nil, nil
	}
}

func (p *Pool) allocateOverflow(requestedSize int) ([]byte, error) {
	payload := requestedSize
	if payload < 1 {
		payload = 1
	}
	backing := make([]byte, payload+blockHeaderSize)
	binary.LittleEndian.PutUint64(backing, uint64(len(backing)))
	block := backing[blockHeaderSize:]

	p.pendingMutex.Lock()
	p.overflow.Put(blockAddr(block), backing)
	p.pendingMutex.Unlock()

	p.logger.LogAttrs(context.Background(), slog.LevelDebug,
		"pool capacity exceeded, serving allocation from the heap",
		slog.Int("requestedSize", requestedSize))
	return block, nil
}

func blockAddr(block []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(block)))
}

// offsetOf returns the storage offset of the first byte of block, or -1 when
// block does not alias the pool's storage.
func (p *Pool) offsetOf(block []byte) int64 {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(p.store)))
	addr := blockAddr(block)
	if addr < base || addr >= base+uintptr(p.capacity) {
		return -1
	}
	return int64(addr - base)
}

// Free returns a block previously obtained from Allocate. Freeing nil is a
// no-op. Blocks freed in allocation order are reclaimed immediately without
// locking; blocks freed out of order are parked on the pending list, and the
// list is drained as far as the current left edge allows.
func (p *Pool) Free(block []byte) {
	if block == nil {
		return
	}

	offset := p.offsetOf(block)
	if offset < 0 {
		p.freeOverflow(block)
		return
	}

	base := offset - blockHeaderSize
	elementSize := int64(binary.LittleEndian.Uint64(p.store[base:]))

	if base == p.leftPtr.Load() {
		// block is the element at the left edge; reclaim it immediately. The
		// check above and the advance below are deliberately not one atomic
		// step: leftmost frees are a single caller's responsibility.
		p.leftPtr.Add(elementSize)
		if p.leftPtr.Load() == p.paddingPtr.Load() {
			// the freed element was the last one before the abandoned tail;
			// wrap the left edge and clear the padding
			p.leftPtr.Store(0)
			p.paddingPtr.Store(0)
		}
		return
	}

	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()

	leftOld := p.leftPtr.Load()
	left := leftOld
	padding := p.paddingPtr.Load()
	elementWasFreed := false
	for {
		if !p.tryFreeNextPending(&left, padding) {
			// no pending element at the edge, but the original element may
			// have become the edge in an earlier iteration
			if left == base {
				left += elementSize
				if left == padding {
					left = 0
				}
				elementWasFreed = true
			} else {
				break
			}
		}
	}
	if left != leftOld {
		p.leftPtr.Store(left)
		if left < leftOld {
			p.paddingPtr.Store(0)
		}
	}
	if !elementWasFreed {
		p.pending = append(p.pending, base)
	}
}

func (p *Pool) freeOverflow(block []byte) {
	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()

	addr := blockAddr(block)
	_, ok := p.overflow.Get(addr)
	if !ok {
		panic(fmt.Sprintf("freeing block %p that was not allocated from this pool", block))
	}
	p.overflow.Delete(addr)
}

// tryFreeNextPending advances left past the pending element that starts
// there, if any. Only safe to call while pendingMutex is held.
func (p *Pool) tryFreeNextPending(left *int64, padding int64) bool {
	if padding != 0 && *left == padding {
		// the left edge parked at the abandoned tail; an in-order free raced
		// with a wrap before the padding was recorded. Repair it here.
		*left = 0
	}
	index := slices.Index(p.pending, *left)
	if index < 0 {
		return false
	}

	elementSize := int64(binary.LittleEndian.Uint64(p.store[*left:]))
	*left += elementSize
	if *left == padding {
		*left = 0
	}
	p.pending = slices.Delete(p.pending, index, index+1)
	return true
}

// CleanPendingElements drains every pending element that is eligible for
// reclamation and reports whether the left edge moved. Consider calling this
// when a particular Free is known to unblock a large part of the pending
// list, to pay the cleanup cost now rather than on the next Free or Allocate.
func (p *Pool) CleanPendingElements() bool {
	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()

	leftOld := p.leftPtr.Load()
	left := leftOld
	padding := p.paddingPtr.Load()
	for p.tryFreeNextPending(&left, padding) {
	}
	if left == leftOld {
		return false
	}

	p.leftPtr.Store(left)
	if left < leftOld {
		p.paddingPtr.Store(0)
	}
	return true
}

// PendingElements returns the number of out-of-order frees currently awaiting
// reclamation.
func (p *Pool) PendingElements() int {
	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()
	return len(p.pending)
}

// IsEmpty reports whether no allocations are currently live in the pool's
// storage. Pending out-of-order frees count as live until reclaimed.
func (p *Pool) IsEmpty() bool {
	return p.leftPtr.Load() == p.rightPtr.Load() && p.paddingPtr.Load() == 0
}

// ReportLeaks logs every sign of unreleased memory at error level. Call this
// when the pool is supposed to be empty, typically at teardown.
func (p *Pool) ReportLeaks() {
	left := p.leftPtr.Load()
	right := p.rightPtr.Load()
	if left != right || p.paddingPtr.Load() != 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelError,
			"[UNRELEASED MEMORY] pool storage still has live allocations",
			slog.Int64("leftPtr", left),
			slog.Int64("rightPtr", right),
			slog.Int64("paddingPtr", p.paddingPtr.Load()))
	}

	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()
	if len(p.pending) != 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelError,
			"[UNRELEASED MEMORY] out-of-order frees were never reclaimed",
			slog.Int("pendingElements", len(p.pending)))
	}
	p.overflow.Iter(func(addr uintptr, backing []byte) bool {
		p.logger.LogAttrs(context.Background(), slog.LevelError,
			"[UNRELEASED MEMORY] unfreed overflow block",
			slog.Int("size", len(backing)-blockHeaderSize))
		return false
	})
}

// BuildStatsString returns a json document describing the pool's current
// state.
func (p *Pool) BuildStatsString() string {
	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("Capacity").Int(p.capacity)
	obj.Name("LeftPtr").Int(int(p.leftPtr.Load()))
	obj.Name("RightPtr").Int(int(p.rightPtr.Load()))
	obj.Name("PaddingPtr").Int(int(p.paddingPtr.Load()))
	obj.Name("PendingElements").Int(len(p.pending))
	obj.Name("OverflowBlocks").Int(p.overflow.Count())
	obj.Name("ExhaustionPolicy").String(p.exhaustion.String())
	obj.End()

	return string(writer.Bytes())
}
