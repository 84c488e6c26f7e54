package framestack_test

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/framestack"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackPushPop(t *testing.T) {
	stack := framestack.New(0x400000)
	require.NoError(t, stack.SetLimit(4))

	require.NoError(t, stack.Push(0x500000))
	require.NoError(t, stack.Push(0x501000))
	require.Equal(t, 2, stack.Len())

	addr, err := stack.Pop()
	require.NoError(t, err)
	require.Equal(t, layout.PhysAddr(0x501000), addr)

	addr, err = stack.Pop()
	require.NoError(t, err)
	require.Equal(t, layout.PhysAddr(0x500000), addr)

	_, err = stack.Pop()
	require.True(t, errors.Is(err, memutils.ErrFrameStackUnderflow))
}

func TestStackExhausted(t *testing.T) {
	stack := framestack.New(0x400000)
	require.NoError(t, stack.SetLimit(1))

	require.NoError(t, stack.Push(0x500000))
	err := stack.Push(0x501000)
	require.True(t, errors.Is(err, memutils.ErrFrameStackExhausted))

	err = stack.SetLimit(0)
	require.True(t, errors.Is(err, memutils.ErrFrameStackExhausted))
}

func TestStackPushWithoutLimit(t *testing.T) {
	stack := framestack.New(0x400000)

	err := stack.Push(0x500000)
	require.True(t, errors.Is(err, memutils.ErrFrameStackExhausted))
}

func TestStackRejectsUnalignedAndDuplicate(t *testing.T) {
	stack := framestack.New(0x400000)
	require.NoError(t, stack.SetLimit(4))

	require.Error(t, stack.Push(0x500010))

	require.NoError(t, stack.Push(0x500000))
	require.Error(t, stack.Push(0x500000))
	require.Equal(t, 1, stack.Len())
}

func TestStackCollision(t *testing.T) {
	stack := framestack.New(0x400000)
	// 1024 entries of 8 bytes fill two frames
	require.NoError(t, stack.SetLimit(1024))

	require.Equal(t, layout.Range{Start: 0x400000, End: 0x402000}, stack.StorageRange())
	require.True(t, stack.CheckCollision(0x400000))
	require.True(t, stack.CheckCollision(0x401000))
	require.False(t, stack.CheckCollision(0x402000))
	require.False(t, stack.CheckCollision(0x3ff000))

	require.NoError(t, stack.Push(0x600000))
	require.True(t, stack.CheckCollision(0x600000))

	require.Error(t, stack.Push(0x401000))
	require.Equal(t, 1, stack.Len())

	_, err := stack.Pop()
	require.NoError(t, err)
	require.False(t, stack.CheckCollision(0x600000))
}

func TestStackValidate(t *testing.T) {
	stack := framestack.New(0x400000)
	require.NoError(t, stack.SetLimit(1024))
	require.NoError(t, stack.Validate())

	require.NoError(t, stack.Push(0x600000))
	require.NoError(t, stack.Push(0x3ff000))
	require.NoError(t, stack.Validate())

	// Growing the limit extends the storage over frames that are already stacked
	require.NoError(t, stack.SetLimit(1<<20))
	require.Error(t, stack.Validate())
}

func TestStackTranslationOffset(t *testing.T) {
	stack := framestack.New(0x400000)
	require.Equal(t, layout.VirtAddr(0x400000), stack.StorageVirtualBase())

	stack.SetTranslationOffset(layout.KernelVirtualUpperBase)
	require.Equal(t, layout.PhysToKernel(0x400000), stack.StorageVirtualBase())
}

func TestStackConcurrentAccess(t *testing.T) {
	stack := framestack.New(0)
	require.NoError(t, stack.SetLimit(4096))

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				addr := layout.PhysAddr(0x1000000 + (worker*256+i)*layout.SmallPageSize)
				assert.NoError(t, stack.Push(addr))
			}
		}(worker)
	}
	wg.Wait()

	require.Equal(t, 2048, stack.Len())

	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				_, err := stack.Pop()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 0, stack.Len())
}
