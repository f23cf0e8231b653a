package arena

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/policy"
	"github.com/strata-mem/strata/storage"
)

// Pool partitions its storage into equally sized chunks and hands out a
// complete chunk with every allocation, regardless of how much was requested.
// A singly-linked list of free chunks threads through the chunk headers, with
// the most recently deallocated chunk at the front. Initially the list is
// ordered so that subsequent allocations are handed out in order of ascending
// offsets.
//
// Unlike Stack and Ring, alignment padding is inserted between the header and
// the returned block, so every header has a deterministic start offset.
// Padding does not grow the chunk: alignments stricter than the header's
// shrink the maximum satisfiable request accordingly.
//
// A pool header is a single word. An occupied chunk's header is zero; a free
// chunk's header carries the link to the next free chunk with the freed bit
// set.
type Pool struct {
	view      storage.StorageView
	debug     policy.Policy
	chunkSize int

	// firstFree is the offset of the first free chunk's header, noHeader when
	// the pool is exhausted.
	firstFree int
}

var _ Strategy = &Pool{}

// CalculateStorageSize returns the storage size suitable for storing
// numberOfChunks chunks of chunkSize bytes each. Storage regions that are not
// an exact multiple of the chunk stride leave their trailing bytes
// unavailable; size buffers with this helper to avoid the waste.
func CalculateStorageSize(chunkSize, numberOfChunks int) int {
	return (chunkSize + headerSize) * numberOfChunks
}

// NewPool creates a Pool strategy over the provided storage, handing out
// chunks of chunkSize bytes. chunkSize must be positive. debug may be nil,
// which selects policy.NoDebug.
func NewPool(s storage.Storage, chunkSize int, debug policy.Policy) *Pool {
	if chunkSize <= 0 {
		panic(fmt.Sprintf("chunk size must be positive, not %d", chunkSize))
	}
	m := &Pool{
		view:      storage.MakeStorageView(s),
		debug:     policy.Resolve(debug),
		chunkSize: chunkSize,
	}
	m.writeHeaders()
	return m
}

func (m *Pool) chunkStride() int {
	return m.chunkSize + headerSize
}

func (m *Pool) chunkCount() int {
	return m.view.Size() / m.chunkStride()
}

// writeHeaders threads every whole chunk into the free list. Chunks are
// visited from the highest offset to the lowest so the final link order
// ascends.
func (m *Pool) writeHeaders() {
	stride := m.chunkStride()
	next := noHeader
	for i := m.chunkCount() - 1; i >= 0; i-- {
		header := i * stride
		writeWord(m.view.Memory, header, packHeader(next, true))
		next = header
	}
	m.firstFree = next
}

func (m *Pool) Allocate(n, alignment int) ([]byte, error) {
	if err := strata.CheckPow2(uint(alignment), "alignment"); err != nil {
		return nil, err
	}
	strata.DebugValidate(m)

	if m.firstFree == noHeader {
		return nil, errors.Wrapf(strata.OutOfMemoryError, "%d bytes requested, but no chunks are free", n)
	}

	header := m.firstFree
	size := clampSize(n)
	data := strata.AlignUp(header+headerSize, uint(alignment))
	if data+size > header+headerSize+m.chunkSize {
		// chunk size is fixed; a request that does not fit one chunk fails
		// even while chunks are free
		return nil, errors.Wrapf(strata.OutOfMemoryError,
			"%d bytes requested at alignment %d, which does not fit a chunk of %d bytes", n, alignment, m.chunkSize)
	}

	m.firstFree = headerLink(readWord(m.view.Memory, header))
	writeWord(m.view.Memory, header, 0)

	p := m.view.Block(data, size)
	m.debug.OnAllocate(n, alignment, p)
	return p, nil
}

func (m *Pool) Deallocate(p []byte, n int) {
	m.debug.OnDeallocate(p, n)

	// alignment may have inserted padding between the header and p, so the
	// owning chunk is found by integer division rather than a fixed offset
	stride := m.chunkStride()
	chunkIndex := m.view.MustOffsetOf(p) / stride
	header := chunkIndex * stride
	writeWord(m.view.Memory, header, packHeader(m.firstFree, true))
	m.firstFree = header
}

// ChunkSize returns the size of a chunk in bytes. Each allocation always
// consumes a complete chunk, no matter how much memory was requested.
func (m *Pool) ChunkSize() int {
	return m.chunkSize
}

// NumberOfFreeChunks returns the number of chunks currently available for
// allocation.
func (m *Pool) NumberOfFreeChunks() int {
	var count int
	for header := m.firstFree; header != noHeader; header = headerLink(readWord(m.view.Memory, header)) {
		count++
	}
	return count
}

// FreeMemory returns the total payload capacity of all free chunks in bytes.
func (m *Pool) FreeMemory() int {
	return m.NumberOfFreeChunks() * m.chunkSize
}

// Reset rebuilds the free list in its original ascending order. It must only
// be called after every previous allocation has been deallocated.
func (m *Pool) Reset() {
	m.debug.OnReset()
	m.writeHeaders()
}

// Validate performs internal consistency checks on the strategy state. When
// the implementation is functioning correctly this cannot return an error.
func (m *Pool) Validate() error {
	stride := m.chunkStride()
	seen := 0
	for header := m.firstFree; header != noHeader; header = headerLink(readWord(m.view.Memory, header)) {
		if header < 0 || header%stride != 0 || header/stride >= m.chunkCount() {
			return errors.Errorf("free list contains offset %d, which is not a chunk header", header)
		}
		if !headerFreed(readWord(m.view.Memory, header)) {
			return errors.Errorf("free list contains occupied chunk header at offset %d", header)
		}
		seen++
		if seen > m.chunkCount() {
			return errors.Errorf("free list contains more than %d entries, it must be cyclic", m.chunkCount())
		}
	}
	return nil
}

// AddStatistics sums this strategy's usage into the provided statistics
// object.
func (m *Pool) AddStatistics(stats *strata.Statistics) {
	occupied := m.chunkCount() - m.NumberOfFreeChunks()
	stats.BlockCount++
	stats.BlockBytes += m.view.Size()
	stats.AllocationCount += occupied
	stats.AllocationBytes += occupied * m.chunkSize
}

// AddDetailedStatistics sums this strategy's usage into the provided detailed
// statistics object. Sizes are reported at chunk granularity.
func (m *Pool) AddDetailedStatistics(stats *strata.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.view.Size()

	stride := m.chunkStride()
	for i := 0; i < m.chunkCount(); i++ {
		if readWord(m.view.Memory, i*stride) == 0 {
			stats.AddAllocation(m.chunkSize)
		} else {
			stats.AddUnusedRange(m.chunkSize)
		}
	}
}

// BlockJsonData populates a json object with information about this strategy.
func (m *Pool) BlockJsonData(json jwriter.ObjectState) {
	free := m.NumberOfFreeChunks()
	json.Name("TotalBytes").Int(m.view.Size())
	json.Name("ChunkSize").Int(m.chunkSize)
	json.Name("Chunks").Int(m.chunkCount())
	json.Name("FreeChunks").Int(free)
	json.Name("Allocations").Int(m.chunkCount() - free)
}
