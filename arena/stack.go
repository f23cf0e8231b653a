package arena

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/policy"
	"github.com/strata-mem/strata/storage"
)

// Stack allocates from the end of the used region like Monotonic, but also
// reclaims memory in LIFO order. Every block is preceded by a one-word header
// linking it to the header of the previous allocation, with the freed flag
// packed into the link word.
//
// Deallocation tolerates out-of-order frees: freeing a block that is not the
// most recent one only marks its header. The memory is reclaimed lazily, in
// one pass, once the chain of freed headers above it is unbroken back to the
// top. Padding bytes inserted for alignments stricter than the header's are
// not individually tracked; they are reclaimed together with the block below
// them.
type Stack struct {
	view  storage.StorageView
	debug policy.Policy

	// topHeader is the offset of the most recent live allocation's header,
	// noHeader when the stack is empty.
	topHeader        int
	freeMemoryOffset int
}

var _ Strategy = &Stack{}

// NewStack creates a Stack strategy over the provided storage. debug may be
// nil, which selects policy.NoDebug.
func NewStack(s storage.Storage, debug policy.Policy) *Stack {
	return &Stack{
		view:      storage.MakeStorageView(s),
		debug:     policy.Resolve(debug),
		topHeader: noHeader,
	}
}

func (m *Stack) Allocate(n, alignment int) ([]byte, error) {
	if err := strata.CheckPow2(uint(alignment), "alignment"); err != nil {
		return nil, err
	}
	strata.DebugValidate(m)

	size := clampSize(n)
	// the alignment has to be at least the header's so the header lands at
	// its natural alignment
	align := maxAlignment(uint(alignment), headerAlignment)
	data := strata.AlignUp(m.freeMemoryOffset+headerSize, align)
	if data+size > m.view.Size() {
		return nil, errors.Wrapf(strata.OutOfMemoryError,
			"%d bytes requested at alignment %d, but only %d bytes remain", n, alignment, m.FreeMemory())
	}

	header := data - headerSize
	writeWord(m.view.Memory, header, packHeader(m.topHeader, false))
	m.topHeader = header
	m.freeMemoryOffset = data + size

	p := m.view.Block(data, size)
	m.debug.OnAllocate(n, alignment, p)
	return p, nil
}

func (m *Stack) Deallocate(p []byte, n int) {
	m.debug.OnDeallocate(p, n)

	// mark the deallocated block as freed in its header
	header := m.view.MustOffsetOf(p) - headerSize
	writeWord(m.view.Memory, header, readWord(m.view.Memory, header)|0x01)

	// retract the top header to the left until it no longer points to a
	// freed header
	for m.topHeader != noHeader && headerFreed(readWord(m.view.Memory, m.topHeader)) {
		reclaimed := m.topHeader
		m.topHeader = headerLink(readWord(m.view.Memory, reclaimed))
		if m.topHeader == noHeader {
			m.freeMemoryOffset = 0
		} else {
			m.freeMemoryOffset = reclaimed
		}
	}
}

// FreeMemoryOffset returns the offset in bytes from the start of the storage
// to the start of the free memory region.
func (m *Stack) FreeMemoryOffset() int {
	return m.freeMemoryOffset
}

// FreeMemory returns the size of the free memory region in bytes.
func (m *Stack) FreeMemory() int {
	return m.view.Size() - m.freeMemoryOffset
}

// Validate performs internal consistency checks on the strategy state. When
// the implementation is functioning correctly this cannot return an error.
func (m *Stack) Validate() error {
	if m.freeMemoryOffset < 0 || m.freeMemoryOffset > m.view.Size() {
		return errors.Errorf("free memory offset %d is outside the storage region of %d bytes", m.freeMemoryOffset, m.view.Size())
	}
	if m.topHeader == noHeader {
		return nil
	}

	limit := m.freeMemoryOffset
	for header := m.topHeader; header != noHeader; header = headerLink(readWord(m.view.Memory, header)) {
		if header < 0 || header+headerSize > m.view.Size() {
			return errors.Errorf("header offset %d is outside the storage region of %d bytes", header, m.view.Size())
		}
		if header+headerSize > limit {
			return errors.Errorf("header at offset %d overlaps the region above it at offset %d", header, limit)
		}
		limit = header
	}
	return nil
}

// AddStatistics sums this strategy's usage into the provided statistics
// object. AllocationBytes includes header and padding overhead, as individual
// block sizes are not recorded in the headers.
func (m *Stack) AddStatistics(stats *strata.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += m.view.Size()
	stats.AllocationBytes += m.freeMemoryOffset
	stats.AllocationCount += m.liveAllocations()
}

func (m *Stack) liveAllocations() int {
	var count int
	for header := m.topHeader; header != noHeader; header = headerLink(readWord(m.view.Memory, header)) {
		if !headerFreed(readWord(m.view.Memory, header)) {
			count++
		}
	}
	return count
}

// BlockJsonData populates a json object with information about this strategy.
func (m *Stack) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(m.view.Size())
	json.Name("FreeBytes").Int(m.FreeMemory())
	json.Name("FreeMemoryOffset").Int(m.freeMemoryOffset)
	json.Name("Allocations").Int(m.liveAllocations())
}
