package ringpool

// ExhaustionPolicy selects a Pool's behavior when no region of its storage can
// satisfy an allocation, after an attempt to drain the pending free list.
type ExhaustionPolicy uint32

const (
	// ExhaustionReturnNil makes Allocate return a nil block and no error.
	ExhaustionReturnNil ExhaustionPolicy = iota
	// ExhaustionPanic makes Allocate panic.
	ExhaustionPanic
	// ExhaustionError makes Allocate return an error wrapping
	// strata.OutOfMemoryError.
	ExhaustionError
	// ExhaustionOverflow makes Allocate serve the request from the Go heap
	// instead. Overflow blocks are tracked so Free recognizes them.
	ExhaustionOverflow
)

var exhaustionPolicyMapping = map[ExhaustionPolicy]string{
	ExhaustionReturnNil: "ExhaustionReturnNil",
	ExhaustionPanic:     "ExhaustionPanic",
	ExhaustionError:     "ExhaustionError",
	ExhaustionOverflow:  "ExhaustionOverflow",
}

func (p ExhaustionPolicy) String() string {
	return exhaustionPolicyMapping[p]
}
