package arena

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/policy"
	"github.com/strata-mem/strata/storage"
)

// a ring header is two words: word 0 links to the next header (only valid
// while the block is occupied), word 1 packs the previous-header link with
// the freed flag
const ringHeaderSize = 2 * headerSize

// Ring is a doubly-linked generalization of Stack that reclaims memory from
// either end: LIFO from the top and FIFO from the bottom. When the top of the
// storage runs out of room but space has been freed at the bottom, allocation
// wraps around to the start of the region.
//
// When a wrap leaves an unused gap between the last allocation and the
// physical end of the storage, that gap stays unavailable until the
// allocations occupying the end of the storage are freed.
type Ring struct {
	view  storage.StorageView
	debug policy.Policy

	// topHeader is the most recent live allocation, bottomHeader the oldest;
	// both are noHeader when the ring is empty.
	topHeader        int
	bottomHeader     int
	freeMemoryOffset int
}

var _ Strategy = &Ring{}

// NewRing creates a Ring strategy over the provided storage. debug may be
// nil, which selects policy.NoDebug.
func NewRing(s storage.Storage, debug policy.Policy) *Ring {
	return &Ring{
		view:         storage.MakeStorageView(s),
		debug:        policy.Resolve(debug),
		topHeader:    noHeader,
		bottomHeader: noHeader,
	}
}

func (m *Ring) setNextHeader(header, next int) {
	writeWord(m.view.Memory, header, uint64(next+1))
}

func (m *Ring) nextHeader(header int) int {
	return int(readWord(m.view.Memory, header)) - 1
}

// contiguousLimit returns the end offset of the contiguous free region
// starting at off. off must not point into allocated memory.
func (m *Ring) contiguousLimit(off int) int {
	if m.bottomHeader == noHeader || m.bottomHeader < off {
		// linear case: free space reaches the end of the storage
		return m.view.Size()
	}
	// wrap-around case: free space reaches the bottom header
	return m.bottomHeader
}

func (m *Ring) Allocate(n, alignment int) ([]byte, error) {
	if err := strata.CheckPow2(uint(alignment), "alignment"); err != nil {
		return nil, err
	}
	strata.DebugValidate(m)

	size := clampSize(n)
	align := maxAlignment(uint(alignment), headerAlignment)

	data := strata.AlignUp(m.freeMemoryOffset+ringHeaderSize, align)
	if data+size > m.contiguousLimit(m.freeMemoryOffset) {
		// out of room at the current offset; try to wrap around the ring
		if m.IsWrappedAround() {
			return nil, errors.Wrapf(strata.OutOfMemoryError,
				"%d bytes requested at alignment %d with the ring already wrapped", n, alignment)
		}
		data = strata.AlignUp(ringHeaderSize, align)
		if data+size > m.contiguousLimit(0) {
			// not enough free space at the beginning either
			return nil, errors.Wrapf(strata.OutOfMemoryError,
				"%d bytes requested at alignment %d, which fits neither end of the ring", n, alignment)
		}
	}

	header := data - ringHeaderSize
	m.setNextHeader(header, noHeader)
	writeWord(m.view.Memory, header+headerSize, packHeader(m.topHeader, false))
	if m.topHeader == noHeader {
		m.bottomHeader = header
	} else {
		m.setNextHeader(m.topHeader, header)
	}
	m.topHeader = header
	m.freeMemoryOffset = data + size

	p := m.view.Block(data, size)
	m.debug.OnAllocate(n, alignment, p)
	return p, nil
}

func (m *Ring) Deallocate(p []byte, n int) {
	m.debug.OnDeallocate(p, n)

	// mark the deallocated block as freed in its header
	header := m.view.MustOffsetOf(p) - ringHeaderSize
	writeWord(m.view.Memory, header+headerSize, readWord(m.view.Memory, header+headerSize)|0x01)

	// retract the top header to the left until it no longer points to a
	// freed header
	for m.topHeader != noHeader && headerFreed(readWord(m.view.Memory, m.topHeader+headerSize)) {
		reclaimed := m.topHeader
		m.topHeader = headerLink(readWord(m.view.Memory, reclaimed+headerSize))
		if m.topHeader != noHeader {
			m.setNextHeader(m.topHeader, noHeader)
			m.freeMemoryOffset = reclaimed
		} else {
			m.bottomHeader = noHeader
			m.freeMemoryOffset = 0
		}
	}

	// advance the bottom header to the right until it no longer points to a
	// freed header
	for m.bottomHeader != noHeader && headerFreed(readWord(m.view.Memory, m.bottomHeader+headerSize)) {
		reclaimed := m.bottomHeader
		m.bottomHeader = m.nextHeader(reclaimed)
		if m.bottomHeader != noHeader {
			// drop the new bottom's previous link, keeping its freed flag
			freed := headerFreed(readWord(m.view.Memory, m.bottomHeader+headerSize))
			writeWord(m.view.Memory, m.bottomHeader+headerSize, packHeader(noHeader, freed))
		}
	}
}

// FreeMemoryOffset returns the offset in bytes from the start of the storage
// to the start of the free memory region in the current allocation direction.
func (m *Ring) FreeMemoryOffset() int {
	return m.freeMemoryOffset
}

// FreeMemoryContiguous returns the size in bytes of the biggest contiguous
// free block starting at the current free memory offset.
func (m *Ring) FreeMemoryContiguous() int {
	return m.contiguousLimit(m.freeMemoryOffset) - m.freeMemoryOffset
}

// FreeMemory returns the size of the contiguous free region at the current
// allocation offset. Freed space on the other side of the ring boundary is
// not included.
func (m *Ring) FreeMemory() int {
	return m.FreeMemoryContiguous()
}

// IsWrappedAround reports whether new allocations are currently placed
// physically to the left of the oldest live allocation.
func (m *Ring) IsWrappedAround() bool {
	return m.bottomHeader != noHeader && m.freeMemoryOffset <= m.bottomHeader
}

// Validate performs internal consistency checks on the strategy state. When
// the implementation is functioning correctly this cannot return an error.
func (m *Ring) Validate() error {
	if m.freeMemoryOffset < 0 || m.freeMemoryOffset > m.view.Size() {
		return errors.Errorf("free memory offset %d is outside the storage region of %d bytes", m.freeMemoryOffset, m.view.Size())
	}
	if (m.topHeader == noHeader) != (m.bottomHeader == noHeader) {
		return errors.Errorf("top header %d and bottom header %d disagree about the ring being empty", m.topHeader, m.bottomHeader)
	}
	if m.topHeader == noHeader {
		if m.freeMemoryOffset != 0 {
			return errors.Errorf("the ring is empty, but the free memory offset is %d", m.freeMemoryOffset)
		}
		return nil
	}

	steps := 0
	maxSteps := m.view.Size() / ringHeaderSize
	for header := m.bottomHeader; ; header = m.nextHeader(header) {
		if header < 0 || header+ringHeaderSize > m.view.Size() {
			return errors.Errorf("header offset %d is outside the storage region of %d bytes", header, m.view.Size())
		}
		if header == m.topHeader {
			return nil
		}
		steps++
		if steps > maxSteps {
			return errors.Errorf("walked %d headers from the bottom without reaching the top, the chain must be cyclic", steps)
		}
	}
}

func (m *Ring) liveAllocations() int {
	if m.topHeader == noHeader {
		return 0
	}
	var count int
	for header := m.bottomHeader; ; header = m.nextHeader(header) {
		if !headerFreed(readWord(m.view.Memory, header+headerSize)) {
			count++
		}
		if header == m.topHeader {
			return count
		}
	}
}

// AddStatistics sums this strategy's usage into the provided statistics
// object. AllocationBytes includes header and padding overhead and any
// wrap-around gap, as individual block sizes are not recorded in the headers.
func (m *Ring) AddStatistics(stats *strata.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += m.view.Size()
	stats.AllocationBytes += m.view.Size() - m.FreeMemoryContiguous()
	stats.AllocationCount += m.liveAllocations()
}

// BlockJsonData populates a json object with information about this strategy.
func (m *Ring) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(m.view.Size())
	json.Name("FreeBytes").Int(m.FreeMemoryContiguous())
	json.Name("FreeMemoryOffset").Int(m.freeMemoryOffset)
	json.Name("WrappedAround").Bool(m.IsWrappedAround())
	json.Name("Allocations").Int(m.liveAllocations())
}
