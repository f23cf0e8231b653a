// Package policy contains the debug instrumentation policies that allocation
// strategies invoke on every allocate, deallocate and reset event. Policies
// are pure observers: they never affect a strategy's control flow except by
// panicking when they detect a protocol violation such as a double free or a
// mismatched deallocation size.
package policy

// Policy observes the allocation protocol of a single strategy instance.
//
// OnAllocate receives the requested size and alignment along with the block
// that was handed out (the block may be larger than the request). OnDeallocate
// receives the block being returned and the size the caller claims for it.
// OnReset is invoked by strategies that support discarding all bookkeeping at
// once.
//
// Policies are not safe for concurrent use unless documented otherwise; they
// share the serialization requirements of the strategy they observe.
type Policy interface {
	OnAllocate(n, alignment int, p []byte)
	OnDeallocate(p []byte, n int)
	OnReset()
}

// NoDebug is the zero-overhead policy. It does nothing.
type NoDebug struct{}

func (NoDebug) OnAllocate(n, alignment int, p []byte) {}

func (NoDebug) OnDeallocate(p []byte, n int) {}

func (NoDebug) OnReset() {}

// Resolve maps a nil policy to NoDebug so strategies can accept nil at
// construction.
func Resolve(p Policy) Policy {
	if p == nil {
		return NoDebug{}
	}
	return p
}
