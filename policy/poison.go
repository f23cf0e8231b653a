package policy

const (
	// AllocatedPattern is the byte written across freshly allocated blocks by
	// PoisonMemory.
	AllocatedPattern byte = 0xcd
	// FreedPattern is the byte written across deallocated blocks by
	// PoisonMemory.
	FreedPattern byte = 0xdd
)

// PoisonMemory fills allocated and freed blocks with recognizable bit
// patterns so use-after-free and uninitialized reads stand out in a debugger
// or a test assertion.
type PoisonMemory struct{}

func (PoisonMemory) OnAllocate(n, alignment int, p []byte) {
	fill(p, AllocatedPattern)
}

func (PoisonMemory) OnDeallocate(p []byte, n int) {
	fill(p, FreedPattern)
}

func (PoisonMemory) OnReset() {}

func fill(p []byte, pattern byte) {
	for i := range p {
		p[i] = pattern
	}
}
