package layout_test

import (
	"testing"

	"github.com/corekernel/hvmem/layout"
	"github.com/stretchr/testify/require"
)

func TestPhysToKernel(t *testing.T) {
	virt := layout.PhysToKernel(0x400000)
	require.Equal(t, layout.VirtAddr(0xffff800000400000), virt)
	require.Equal(t, layout.PhysAddr(0x400000), layout.KernelToPhys(virt))
}

func TestFrameAlignment(t *testing.T) {
	require.True(t, layout.PhysAddr(0x120000).IsFrameAligned())
	require.False(t, layout.PhysAddr(0x120010).IsFrameAligned())
	require.Equal(t, uintptr(0x120), layout.PhysAddr(0x120000).Frame())
}

func TestRange(t *testing.T) {
	kernel := layout.Range{Start: 0x120000, End: 0x130000}

	require.True(t, kernel.Contains(0x120000))
	require.True(t, kernel.Contains(0x12f000))
	require.False(t, kernel.Contains(0x130000))
	require.False(t, kernel.Contains(0x11f000))
	require.Equal(t, uintptr(0x10000), kernel.Size())

	require.Equal(t, uintptr(0), layout.Range{Start: 10, End: 5}.Size())
}
