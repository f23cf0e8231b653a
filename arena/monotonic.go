package arena

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/policy"
	"github.com/strata-mem/strata/storage"
)

// Monotonic keeps giving out blocks from its storage region but never
// reclaims any memory. Its entire state is a single offset indicating the
// start of the free region; deallocation only notifies the debug policy. Once
// the caller has ensured that all previous allocations have been returned,
// the whole region can be reclaimed at once with Reset.
type Monotonic struct {
	view        storage.StorageView
	debug       policy.Policy
	offset      int
	allocations int
}

var _ Strategy = &Monotonic{}

// NewMonotonic creates a Monotonic strategy over the provided storage. debug
// may be nil, which selects policy.NoDebug.
func NewMonotonic(s storage.Storage, debug policy.Policy) *Monotonic {
	return &Monotonic{
		view:  storage.MakeStorageView(s),
		debug: policy.Resolve(debug),
	}
}

func (m *Monotonic) Allocate(n, alignment int) ([]byte, error) {
	if err := strata.CheckPow2(uint(alignment), "alignment"); err != nil {
		return nil, err
	}
	strata.DebugValidate(m)

	size := clampSize(n)
	aligned := strata.AlignUp(m.offset, uint(alignment))
	if aligned+size > m.view.Size() {
		return nil, errors.Wrapf(strata.OutOfMemoryError,
			"%d bytes requested at alignment %d, but only %d bytes remain", n, alignment, m.FreeMemory())
	}

	p := m.view.Block(aligned, size)
	m.offset = aligned + size
	m.allocations++
	m.debug.OnAllocate(n, alignment, p)
	return p, nil
}

// Deallocate never reclaims memory on a Monotonic strategy; it exists so that
// debug policies can verify the allocation protocol.
func (m *Monotonic) Deallocate(p []byte, n int) {
	m.debug.OnDeallocate(p, n)
	m.allocations--
}

// FreeMemory returns the number of bytes between the current offset and the
// end of the storage region.
func (m *Monotonic) FreeMemory() int {
	return m.view.Size() - m.offset
}

// Reset discards all previously allocated blocks and returns the strategy to
// its initial state. It must only be called after every previous allocation
// has been deallocated.
func (m *Monotonic) Reset() {
	m.debug.OnReset()
	m.offset = 0
	m.allocations = 0
}

// Validate performs internal consistency checks on the strategy state. When
// the implementation is functioning correctly this cannot return an error.
func (m *Monotonic) Validate() error {
	if m.offset < 0 || m.offset > m.view.Size() {
		return errors.Errorf("free memory offset %d is outside the storage region of %d bytes", m.offset, m.view.Size())
	}
	return nil
}

// AddStatistics sums this strategy's usage into the provided statistics
// object. AllocationBytes includes padding overhead, as individual block
// sizes are not recorded.
func (m *Monotonic) AddStatistics(stats *strata.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += m.view.Size()
	stats.AllocationBytes += m.offset
	stats.AllocationCount += m.allocations
}

// BlockJsonData populates a json object with information about this strategy.
func (m *Monotonic) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(m.view.Size())
	json.Name("FreeBytes").Int(m.FreeMemory())
	json.Name("Offset").Int(m.offset)
	json.Name("Allocations").Int(m.allocations)
}
