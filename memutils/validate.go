package memutils

// Validatable is implemented by the allocator structures that can check their own internal
// consistency. DebugValidate acts on it after each mutation in debug builds.
type Validatable interface {
	Validate() error
}
