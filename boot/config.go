package boot

import (
	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/arena"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/kalloc"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/corekernel/hvmem/physmem"
)

// ConfigFlags selects optional boot behaviors
type ConfigFlags int32

const (
	// ConfigUseAnonymousMappings backs the per-core heap arenas with anonymous memory mappings
	// instead of Go heap memory when the platform does not supply an arena provider
	ConfigUseAnonymousMappings ConfigFlags = 1 << iota
)

// DefaultArenaSize is the per-core heap arena size used when Config.ArenaSize is zero
const DefaultArenaSize = 1 << 20

// Config describes the machine being brought up
type Config struct {
	// KernelStart and KernelEnd bound the loaded kernel image in physical memory
	KernelStart layout.PhysAddr
	KernelEnd   layout.PhysAddr

	// CoreCount is the number of cores that will receive a heap. Cores are numbered from
	// cpu.BootCore up to CoreCount-1.
	CoreCount int
	// ArenaSize is the size in bytes of each core's heap arena. DefaultArenaSize is used if
	// it is left zero.
	ArenaSize int
	// UpperBase is the virtual offset of the upper kernel window.
	// layout.KernelVirtualUpperBase is used if it is left zero.
	UpperBase layout.VirtAddr

	Flags ConfigFlags
}

func (c Config) Validate() error {
	if c.CoreCount < 1 {
		return errors.Newf("at least one core is required, got %d", c.CoreCount)
	}
	if c.KernelEnd < c.KernelStart {
		return errors.Newf("kernel image end 0x%x is below its start 0x%x", c.KernelEnd, c.KernelStart)
	}
	if c.ArenaSize != 0 && (c.ArenaSize < 64 || c.ArenaSize%8 != 0) {
		return errors.Wrapf(memutils.ErrHeapBadSize, "arena size %d must be a multiple of 8 and at least 64 bytes", c.ArenaSize)
	}

	return nil
}

func (c Config) arenaSize() int {
	if c.ArenaSize == 0 {
		return DefaultArenaSize
	}
	return c.ArenaSize
}

func (c Config) upperBase() layout.VirtAddr {
	if c.UpperBase == 0 {
		return layout.KernelVirtualUpperBase
	}
	return c.UpperBase
}

// Platform supplies the machine-specific services used during boot. Regions is required;
// every other field has a default.
type Platform struct {
	// Regions enumerates the physical memory map
	Regions physmem.RegionEnumerator
	// Frames receives every free page frame. Defaults to a framestack.Stack whose
	// bookkeeping starts at the first frame after the kernel image.
	Frames physmem.FrameStack
	// Mapper installs the upper kernel window. Defaults to a pagemap.Table.
	Mapper physmem.VirtualMapper
	// Arenas supplies each core's heap memory. Defaults to an arena.SliceProvider, or an
	// arena.MmapProvider with ConfigUseAnonymousMappings.
	Arenas arena.Provider
	// Identity reports the calling core. Defaults to a cpu.Switchable set to the boot core.
	Identity cpu.Identity
	// Halt is called when an allocation fails before the system is released
	Halt kalloc.HaltFunc
}
