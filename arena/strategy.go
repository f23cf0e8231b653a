// Package arena contains four single-threaded allocation strategies that
// partition a caller-supplied storage region: Monotonic, Stack, Pool and
// Ring. Each strategy keeps all of its bookkeeping inside the region it
// allocates from and never obtains memory of its own.
//
// Strategies provide no internal synchronization; callers must serialize all
// calls to a given instance.
package arena

import (
	"github.com/strata-mem/strata"
)

// Strategy is the operation set shared by every allocation strategy in this
// package.
//
// Allocate hands out a block of at least n bytes whose offset within the
// storage region is a multiple of alignment. alignment must be a power of
// two. Zero-size requests receive a one-byte block, so successive allocations
// always return distinct addresses. The returned slice aliases the storage
// region; it is never empty. Allocate returns an error wrapping
// strata.OutOfMemoryError when no region satisfies the request.
//
// Deallocate returns a block previously obtained from Allocate on the same
// instance, with the size that was requested for it. Double frees, foreign
// pointers and mismatched sizes are undefined behavior unless a sufficiently
// strict debug policy is attached.
//
// FreeMemory reports the strategy's current capacity metric in bytes; see the
// individual strategies for the exact meaning.
type Strategy interface {
	strata.Validatable

	Allocate(n, alignment int) ([]byte, error)
	Deallocate(p []byte, n int)
	FreeMemory() int
}
