package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// Error kinds shared by the physical memory and heap layers. Call sites wrap these with
// operation, size and address context; errors.Is continues to match the kind.
var (
	// ErrHeapBadSize is returned for zero-sized allocation requests and unusable arenas
	ErrHeapBadSize error = errors.New("heap: bad allocation size")
	// ErrHeapNoFreeMem is returned when an arena is exhausted even after consolidation
	ErrHeapNoFreeMem error = errors.New("heap: no free memory")
	// ErrHeapNotInUse is returned when freeing a block that is already free
	ErrHeapNotInUse error = errors.New("heap: block not in use")
	// ErrHeapBadBlock is returned when freeing a pointer whose block header is corrupt or unknown
	ErrHeapBadBlock error = errors.New("heap: bad block")

	// ErrFrameStackExhausted is returned when pushing onto a frame stack that has reached its limit
	ErrFrameStackExhausted error = errors.New("frame stack: exhausted")
	// ErrFrameStackUnderflow is returned when popping from an empty frame stack
	ErrFrameStackUnderflow error = errors.New("frame stack: underflow")

	// ErrMapFailed is returned when a virtual mapping request is rejected
	ErrMapFailed error = errors.New("physmem: virtual mapping failed")
	// ErrInitFailed is returned for generic physical memory discovery failures
	ErrInitFailed error = errors.New("physmem: initialization failed")
)
