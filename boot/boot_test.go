package boot_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/boot"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/framestack"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/corekernel/hvmem/pagemap"
	"github.com/corekernel/hvmem/physmem"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pcRegions() *physmem.StaticRegions {
	return physmem.NewStaticRegions(
		physmem.Region{BaseAddr: 0, Length: 0x9f000, Type: physmem.RegionUsable},
		physmem.Region{BaseAddr: 0x9f000, Length: 0x61000, Type: physmem.RegionReserved},
		physmem.Region{BaseAddr: 0x100000, Length: 0x3f00000, Type: physmem.RegionUsable},
		physmem.Region{BaseAddr: 0xfffc0000, Length: 0x40000, Type: physmem.RegionReserved},
	)
}

var pcConfig = boot.Config{
	KernelStart: 0x100000,
	KernelEnd:   0x200000,
	CoreCount:   4,
	ArenaSize:   64 * 1024,
	Flags:       boot.ConfigUseAnonymousMappings,
}

func TestRun(t *testing.T) {
	identity := cpu.NewSwitchable(cpu.BootCore)
	frames := framestack.New(0x200000)
	table := pagemap.New(pagemap.Options{})

	system, err := boot.Run(testLogger(), pcConfig, boot.Platform{
		Regions:  pcRegions(),
		Frames:   frames,
		Mapper:   table,
		Identity: identity,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	report := system.Report
	require.Equal(t, uint64(0x9f000+0x3f00000), report.MemTotal)
	require.Equal(t, 256, report.FramesSkippedKernel)
	// 16287 entries of 8 bytes occupy 32 frames from 0x200000
	require.Equal(t, 32, report.FramesSkippedCollision)
	require.Equal(t, 159+16128-256-32, report.FramesStacked)
	require.Equal(t, frames.Len(), report.FramesStacked)
	require.Equal(t, 16287, frames.Limit())
	require.Equal(t, layout.PhysToKernel(0x200000), frames.StorageVirtualBase())

	// The first region's large page is shared with the second region
	require.Equal(t, 32, report.LargePagesMapped)
	require.Equal(t, 32, table.Count())

	for core := cpu.CoreID(0); core < 4; core++ {
		h, ok := system.Allocator.Heap(core)
		require.True(t, ok)
		require.Equal(t, 64*1024, h.Size())
	}
	_, ok := system.Allocator.Heap(4)
	require.False(t, ok)
}

func TestRunDefaults(t *testing.T) {
	system, err := boot.Run(testLogger(), boot.Config{
		KernelStart: 0x100000,
		KernelEnd:   0x1ff800,
		CoreCount:   1,
	}, boot.Platform{Regions: pcRegions()})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	require.Equal(t, cpu.BootCore, system.Identity.Current())

	h, ok := system.Allocator.Heap(cpu.BootCore)
	require.True(t, ok)
	require.Equal(t, boot.DefaultArenaSize, h.Size())

	frames, ok := system.Frames.(*framestack.Stack)
	require.True(t, ok)
	require.Equal(t, layout.Range{Start: 0x200000, End: 0x220000}, frames.StorageRange())
	require.Equal(t, layout.PhysToKernel(0x200000), frames.StorageVirtualBase())

	table, ok := system.Mapper.(*pagemap.Table)
	require.True(t, ok)
	phys, err := table.Translate(layout.KernelVirtualUpperBase + 0x3ff0123)
	require.NoError(t, err)
	require.Equal(t, layout.PhysAddr(0x3ff0123), phys)
}

func TestRunCustomUpperBase(t *testing.T) {
	const upperBase = layout.VirtAddr(0xffffc00000000000)

	frames := framestack.New(0x200000)
	config := pcConfig
	config.UpperBase = upperBase

	system, err := boot.Run(testLogger(), config, boot.Platform{
		Regions: pcRegions(),
		Frames:  frames,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	require.Equal(t, upperBase+0x200000, frames.StorageVirtualBase())
}

func TestAllocatorAfterBoot(t *testing.T) {
	identity := cpu.NewSwitchable(cpu.BootCore)
	system, err := boot.Run(testLogger(), pcConfig, boot.Platform{
		Regions:  pcRegions(),
		Identity: identity,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	identity.Set(2)
	ptr := system.Allocator.Allocate(512)
	require.NotNil(t, ptr)

	owner, ok := system.Allocator.Heap(2)
	require.True(t, ok)
	require.True(t, owner.Owns(ptr))

	identity.Set(0)
	system.Allocator.Deallocate(ptr)

	var stats memutils.Statistics
	owner.AddStatistics(&stats)
	require.Equal(t, 0, stats.InUseCount)
}

func TestReleaseAndWaitReady(t *testing.T) {
	var halted error
	system, err := boot.Run(testLogger(), pcConfig, boot.Platform{
		Regions: pcRegions(),
		Halt: func(err error) {
			halted = err
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	require.Nil(t, system.Allocator.Allocate(1<<20))
	require.True(t, errors.Is(halted, memutils.ErrHeapNoFreeMem))

	var ready sync.WaitGroup
	for i := 0; i < 3; i++ {
		ready.Add(1)
		go func() {
			defer ready.Done()
			system.WaitReady()
		}()
	}

	done := make(chan struct{})
	go func() {
		ready.Wait()
		close(done)
	}()

	select {
	case <-done:
		require.Fail(t, "secondary cores continued before release")
	case <-time.After(20 * time.Millisecond):
	}

	system.Release()
	system.Release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.Fail(t, "secondary cores were never released")
	}

	halted = nil
	require.Nil(t, system.Allocator.Allocate(1<<20))
	require.Nil(t, halted)
	require.False(t, system.Allocator.Bootstrapping())
}

func TestClaimFrame(t *testing.T) {
	system, err := boot.Run(testLogger(), pcConfig, boot.Platform{Regions: pcRegions()})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, system.Close())
	}()

	phys, virt, err := system.ClaimFrame(nil)
	require.NoError(t, err)
	require.Equal(t, layout.PhysAddr(0x3fff000), phys)
	require.Equal(t, layout.PhysToKernel(phys), virt)

	translated, err := system.Mapper.(*pagemap.Table).Translate(virt)
	require.NoError(t, err)
	require.Equal(t, phys, translated)

	_, _, err = system.ClaimFrame(func(phys layout.PhysAddr, virt layout.VirtAddr) error {
		return errors.New("vmx region rejected")
	})
	require.Error(t, err)

	again, _, err := system.ClaimFrame(nil)
	require.NoError(t, err)
	require.Equal(t, layout.PhysAddr(0x3ffe000), again)
}

var runFailureTestCases = map[string]struct {
	config   boot.Config
	platform func() boot.Platform
	kind     error
}{
	"NoRegions": {
		config:   pcConfig,
		platform: func() boot.Platform { return boot.Platform{} },
		kind:     memutils.ErrInitFailed,
	},
	"NoCores": {
		config: boot.Config{KernelStart: 0x100000, KernelEnd: 0x200000},
		platform: func() boot.Platform {
			return boot.Platform{Regions: pcRegions()}
		},
		kind: memutils.ErrInitFailed,
	},
	"BadArenaSize": {
		config: boot.Config{KernelStart: 0x100000, KernelEnd: 0x200000, CoreCount: 1, ArenaSize: 100},
		platform: func() boot.Platform {
			return boot.Platform{Regions: pcRegions()}
		},
		kind: memutils.ErrHeapBadSize,
	},
	"HeapsExceedMemory": {
		config: boot.Config{KernelStart: 0x100000, KernelEnd: 0x200000, CoreCount: 4, ArenaSize: 32 << 20},
		platform: func() boot.Platform {
			return boot.Platform{Regions: pcRegions()}
		},
		kind: memutils.ErrInitFailed,
	},
	"MappingOccupied": {
		config: pcConfig,
		platform: func() boot.Platform {
			table := pagemap.New(pagemap.Options{})
			err := table.MapLargePage(layout.KernelVirtualUpperBase+0x400000, 0x400000, physmem.FlagPresent|physmem.FlagHugePage)
			if err != nil {
				panic(err)
			}
			return boot.Platform{Regions: pcRegions(), Mapper: table}
		},
		kind: memutils.ErrMapFailed,
	},
}

func TestRunFailures(t *testing.T) {
	for name, testCase := range runFailureTestCases {
		t.Run(name, func(t *testing.T) {
			system, err := boot.Run(testLogger(), testCase.config, testCase.platform())
			require.Nil(t, system)
			require.True(t, errors.Is(err, testCase.kind), "unexpected error: %v", err)
		})
	}
}
