package strata

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is the error returned from an allocation strategy when no region of the
// backing storage can satisfy the requested size and alignment. It is a recoverable
// failure: the storage is left untouched and other allocations may still succeed.
var OutOfMemoryError error = errors.New("no free region of the backing storage satisfies the request")
