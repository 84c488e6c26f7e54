package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64 | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T Number](value T, alignment T) T {
	DebugCheckPow2(alignment, "alignment")
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to the previous multiple of alignment, which must be a power of two
func AlignDown[T Number](value T, alignment T) T {
	DebugCheckPow2(alignment, "alignment")
	return value &^ (alignment - 1)
}

// DivRoundUp returns value / divisor, rounding any remainder up
func DivRoundUp[T Number](value T, divisor T) T {
	return (value + divisor - 1) / divisor
}
