// Package layout describes the physical and virtual memory layout shared by the
// hypervisor's memory subsystem and its callers.
//
// Physical memory map:
//
//	0 ........ 1MB     legacy firmware areas
//	1MB ...... 4MB     kernel image and boot modules
//	4MB ...... end     frame stack bookkeeping, then free RAM and device windows
//
// Virtual memory map:
//
//	0x0000000000000000 ... lower kernel space
//	0xffff800000000000 ... upper kernel space, a mirror of all physical memory
package layout

// PhysAddr is a physical memory address.
type PhysAddr uintptr

// VirtAddr is a kernel virtual memory address.
type VirtAddr uintptr

const (
	// SmallPageShift is equal to log2(SmallPageSize)
	SmallPageShift = 12
	// SmallPageSize is the size of a physical page frame
	SmallPageSize = 1 << SmallPageShift

	// LargePageShift is equal to log2(LargePageSize)
	LargePageShift = 21
	// LargePageSize is the size of the pages used to map physical memory into the upper window
	LargePageSize = 1 << LargePageShift

	// KernelVirtualUpperBase is added to a physical address to find its mirror in the upper
	// kernel window.
	KernelVirtualUpperBase VirtAddr = 0xffff800000000000
)

// PhysToKernel translates a physical address into its upper-window kernel virtual address.
func PhysToKernel(addr PhysAddr) VirtAddr {
	return VirtAddr(addr) + KernelVirtualUpperBase
}

// KernelToPhys translates an upper-window kernel virtual address back into a physical address.
// The result is meaningless for addresses below KernelVirtualUpperBase.
func KernelToPhys(addr VirtAddr) PhysAddr {
	return PhysAddr(addr - KernelVirtualUpperBase)
}

// IsFrameAligned returns true if addr sits on a SmallPageSize boundary.
func (addr PhysAddr) IsFrameAligned() bool {
	return addr&(SmallPageSize-1) == 0
}

// Frame returns the index of the page frame containing addr.
func (addr PhysAddr) Frame() uintptr {
	return uintptr(addr) >> SmallPageShift
}

// Range is a half-open span [Start, End) of physical memory.
type Range struct {
	Start PhysAddr
	End   PhysAddr
}

// Contains returns true if addr lies inside the range.
func (r Range) Contains(addr PhysAddr) bool {
	return addr >= r.Start && addr < r.End
}

// Size returns the length of the range in bytes.
func (r Range) Size() uintptr {
	if r.End <= r.Start {
		return 0
	}
	return uintptr(r.End - r.Start)
}
