// Package arena supplies the backing memory for each core's heap.
package arena

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/memutils"
	"github.com/dolthub/swiss"
)

// Provider hands out one arena per core. Asking twice for the same core returns the same
// memory.
type Provider interface {
	Arena(core cpu.CoreID) ([]byte, error)
}

// Closer is implemented by providers that hold memory which must be released explicitly
type Closer interface {
	Close() error
}

type allocateFunc func(size int) ([]byte, error)
type releaseFunc func(data []byte) error

// pool tracks the arenas created for each core
type pool struct {
	mutex    sync.Mutex
	size     int
	arenas   *swiss.Map[cpu.CoreID, []byte]
	allocate allocateFunc
	release  releaseFunc
	closed   bool
}

func newPool(size int, allocate allocateFunc, release releaseFunc) (*pool, error) {
	if size < 64 || size%8 != 0 {
		return nil, errors.Wrapf(memutils.ErrHeapBadSize, "arena size %d must be a multiple of 8 and at least 64 bytes", size)
	}

	return &pool{
		size:     size,
		arenas:   swiss.NewMap[cpu.CoreID, []byte](8),
		allocate: allocate,
		release:  release,
	}, nil
}

func (p *pool) Arena(core cpu.CoreID) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil, errors.Newf("cannot create an arena for %s: the provider is closed", core)
	}

	data, ok := p.arenas.Get(core)
	if ok {
		return data, nil
	}

	data, err := p.allocate(p.size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a %d byte arena for %s", p.size, core)
	}

	p.arenas.Put(core, data)
	return data, nil
}

func (p *pool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	p.arenas.Iter(func(core cpu.CoreID, data []byte) bool {
		if p.release != nil {
			err = errors.CombineErrors(err, p.release(data))
		}
		return false
	})
	p.arenas = swiss.NewMap[cpu.CoreID, []byte](8)

	return err
}

// SliceProvider backs each arena with Go heap memory
type SliceProvider struct {
	*pool
}

var _ Provider = &SliceProvider{}
var _ Closer = &SliceProvider{}

func NewSliceProvider(size int) (*SliceProvider, error) {
	p, err := newPool(size, func(size int) ([]byte, error) {
		// Back the arena with uint64s so that the first byte is 8-byte aligned
		words := make([]uint64, size/8)
		return unsafeBytes(words), nil
	}, nil)
	if err != nil {
		return nil, err
	}

	return &SliceProvider{pool: p}, nil
}
