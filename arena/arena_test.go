package arena_test

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/arena"
	"github.com/corekernel/hvmem/memutils"
	"github.com/stretchr/testify/require"
)

type closingProvider interface {
	arena.Provider
	arena.Closer
}

var providerTestCases = map[string]func(size int) (closingProvider, error){
	"Slice": func(size int) (closingProvider, error) { return arena.NewSliceProvider(size) },
	"Mmap":  func(size int) (closingProvider, error) { return arena.NewMmapProvider(size) },
}

func TestProviderArenas(t *testing.T) {
	for name, create := range providerTestCases {
		t.Run(name, func(t *testing.T) {
			provider, err := create(64 * 1024)
			require.NoError(t, err)

			first, err := provider.Arena(0)
			require.NoError(t, err)
			require.Len(t, first, 64*1024)
			require.Equal(t, uintptr(0), uintptr(unsafe.Pointer(&first[0]))%8)

			second, err := provider.Arena(1)
			require.NoError(t, err)
			require.Len(t, second, 64*1024)
			require.NotEqual(t, unsafe.Pointer(&first[0]), unsafe.Pointer(&second[0]))

			again, err := provider.Arena(0)
			require.NoError(t, err)
			require.Equal(t, unsafe.Pointer(&first[0]), unsafe.Pointer(&again[0]))

			first[0] = 0xaa
			first[len(first)-1] = 0x55
			require.Equal(t, byte(0), second[0])

			require.NoError(t, provider.Close())
			require.NoError(t, provider.Close())

			_, err = provider.Arena(2)
			require.Error(t, err)
		})
	}
}

func TestProviderBadSize(t *testing.T) {
	for name, create := range providerTestCases {
		t.Run(name, func(t *testing.T) {
			_, err := create(32)
			require.True(t, errors.Is(err, memutils.ErrHeapBadSize))

			_, err = create(100)
			require.True(t, errors.Is(err, memutils.ErrHeapBadSize))
		})
	}
}
