package heap

import (
	"io"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/memutils"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestBlockBeingFreedIsNotReused(t *testing.T) {
	h, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cpu.BootCore, make([]byte, 120))
	require.NoError(t, err)

	ptr, err := h.AllocBytes(40)
	require.NoError(t, err)

	// A remote core has claimed the block and is still poisoning its payload
	block := h.header(0)
	require.True(t, atomic.CompareAndSwapUint32(&block.magic, magicInUse, magicFreeing))

	_, err = h.AllocBytes(40)
	require.True(t, errors.Is(err, memutils.ErrHeapNoFreeMem), "unexpected error: %v", err)
	require.Equal(t, 0, h.Consolidate())

	err = h.FreeBytes(ptr)
	require.True(t, errors.Is(err, memutils.ErrHeapNotInUse), "unexpected error: %v", err)
	require.NoError(t, h.Validate())

	atomic.StoreUint32(&block.magic, magicFree)

	reused, err := h.AllocBytes(40)
	require.NoError(t, err)
	require.Equal(t, ptr, reused)
}

func TestFreeReleasesBlockAfterPoisoning(t *testing.T) {
	h, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cpu.BootCore, make([]byte, 120))
	require.NoError(t, err)

	ptr, err := h.AllocBytes(40)
	require.NoError(t, err)
	require.NoError(t, h.FreeBytes(ptr))

	require.Equal(t, magicFree, atomic.LoadUint32(&h.header(0).magic))
	if memutils.DebugEnabled {
		require.Equal(t, uint32(0x7F84E666), *(*uint32)(ptr))
	}
}
