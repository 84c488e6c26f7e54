//go:build !unix

package arena

// MmapProvider falls back to Go heap memory on platforms without mmap
type MmapProvider struct {
	*SliceProvider
}

var _ Provider = &MmapProvider{}
var _ Closer = &MmapProvider{}

func NewMmapProvider(size int) (*MmapProvider, error) {
	p, err := NewSliceProvider(size)
	if err != nil {
		return nil, err
	}

	return &MmapProvider{SliceProvider: p}, nil
}
