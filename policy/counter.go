package policy

import "fmt"

// AllocationCounter counts allocations and deallocations. The counter is
// incremented on every allocate and decremented on every deallocate. The
// policy panics when deallocations outnumber allocations and when the
// strategy is reset while allocations are still active. It does not track
// whether a deallocate call actually matches an earlier allocate call; use
// AllocationTracker for that.
type AllocationCounter struct {
	count int
}

func (c *AllocationCounter) OnAllocate(n, alignment int, p []byte) {
	c.count++
}

func (c *AllocationCounter) OnDeallocate(p []byte, n int) {
	if c.count == 0 {
		panic("deallocate called with no allocations active")
	}
	c.count--
}

func (c *AllocationCounter) OnReset() {
	if c.count != 0 {
		panic(fmt.Sprintf("memory resource was reset while %d allocations were still active", c.count))
	}
}

// Count returns the number of currently active allocations.
func (c *AllocationCounter) Count() int {
	return c.count
}

// CheckDestroy panics if any allocations are still active. Call this before
// releasing the storage the observed strategy lives in.
func (c *AllocationCounter) CheckDestroy() {
	if c.count != 0 {
		panic(fmt.Sprintf("memory resource was destroyed while %d allocations were still active", c.count))
	}
}
