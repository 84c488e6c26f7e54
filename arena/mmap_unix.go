//go:build unix

package arena

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// MmapProvider backs each arena with a private anonymous mapping, so that heap memory lives
// outside the Go heap and is never moved or scanned by the collector
type MmapProvider struct {
	*pool
}

var _ Provider = &MmapProvider{}
var _ Closer = &MmapProvider{}

func NewMmapProvider(size int) (*MmapProvider, error) {
	p, err := newPool(size, mapAnonymous, unmap)
	if err != nil {
		return nil, err
	}

	return &MmapProvider{pool: p}, nil
}

func mapAnonymous(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap failed")
	}
	return data, nil
}

func unmap(data []byte) error {
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}
