//go:build debug_mem_utils

package memutils

import "unsafe"

const (
	// DebugEnabled reports whether the debug_mem_utils build tag is present
	DebugEnabled = true
	// poisonMagicValue is a 4-byte pattern written over the payload of freed heap blocks
	poisonMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue writes an easy-to-identify marker across size bytes at the provided pointer. Trailing
// bytes that do not fill a whole marker are left alone.
// This method no-ops unless the debug_mem_utils build tag is present.
func WriteMagicValue(data unsafe.Pointer, size int) {
	count := size / int(unsafe.Sizeof(uint32(0)))
	for i := 0; i < count; i++ {
		*(*uint32)(data) = poisonMagicValue
		data = unsafe.Add(data, unsafe.Sizeof(uint32(0)))
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
