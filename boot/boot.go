// Package boot runs the boot core's memory bring-up: physical memory discovery, then one
// heap per core, then the kernel allocator that serves them.
package boot

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/arena"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/framestack"
	"github.com/corekernel/hvmem/heap"
	"github.com/corekernel/hvmem/kalloc"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/corekernel/hvmem/pagemap"
	"github.com/corekernel/hvmem/physmem"
	"golang.org/x/exp/slog"
)

// System is the memory subsystem after a successful boot
type System struct {
	logger    *slog.Logger
	upperBase layout.VirtAddr

	Report    physmem.DiscoveryReport
	Frames    physmem.FrameStack
	Mapper    physmem.VirtualMapper
	Allocator *kalloc.Adapter
	Identity  cpu.Identity

	// arenas is set when Run created the arena provider itself
	arenas      arena.Closer
	released    chan struct{}
	releaseOnce sync.Once
}

// Run brings up physical memory management on the boot core. Any error is fatal: the
// machine has no usable memory management and must not continue.
func Run(logger *slog.Logger, config Config, platform Platform) (*System, error) {
	err := config.Validate()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid boot configuration"), memutils.ErrInitFailed)
	}
	if platform.Regions == nil {
		return nil, errors.Wrap(memutils.ErrInitFailed, "the platform did not supply a memory region enumerator")
	}

	ownsArenas := platform.Arenas == nil
	platform, err = withDefaults(config, platform)
	if err != nil {
		return nil, err
	}

	system, err := run(logger, config, platform)
	if err != nil {
		if closer, ok := platform.Arenas.(arena.Closer); ok && ownsArenas {
			err = errors.CombineErrors(err, closer.Close())
		}
		return nil, err
	}

	if ownsArenas {
		system.arenas, _ = platform.Arenas.(arena.Closer)
	}
	return system, nil
}

func withDefaults(config Config, platform Platform) (Platform, error) {
	if platform.Frames == nil {
		storage := memutils.AlignUp(config.KernelEnd, layout.SmallPageSize)
		platform.Frames = framestack.New(storage)
	}

	if platform.Mapper == nil {
		platform.Mapper = pagemap.New(pagemap.Options{})
	}

	if platform.Identity == nil {
		platform.Identity = cpu.NewSwitchable(cpu.BootCore)
	}

	if platform.Arenas == nil {
		var err error
		if config.Flags&ConfigUseAnonymousMappings != 0 {
			platform.Arenas, err = arena.NewMmapProvider(config.arenaSize())
		} else {
			platform.Arenas, err = arena.NewSliceProvider(config.arenaSize())
		}
		if err != nil {
			return platform, errors.Mark(errors.Wrap(err, "creating the arena provider"), memutils.ErrInitFailed)
		}
	}

	return platform, nil
}

// translatable is implemented by frame stacks whose storage moves to a new virtual address
// once the upper kernel window is mapped
type translatable interface {
	SetTranslationOffset(offset layout.VirtAddr)
}

func run(logger *slog.Logger, config Config, platform Platform) (*System, error) {
	discoverer, err := physmem.NewDiscoverer(logger, physmem.DiscovererOptions{
		KernelStart: config.KernelStart,
		KernelEnd:   config.KernelEnd,
		UpperBase:   config.UpperBase,
	}, platform.Regions, platform.Frames, platform.Mapper)
	if err != nil {
		return nil, err
	}

	memTotal, err := discoverer.Discover()
	if err != nil {
		return nil, errors.Wrap(err, "physical memory discovery failed")
	}

	// The stack's storage is now reachable through the upper window
	if relocatable, ok := platform.Frames.(translatable); ok {
		relocatable.SetTranslationOffset(config.upperBase())
	}

	logger.Info("total physical memory available",
		slog.Uint64("MB", memTotal>>20),
		slog.Uint64("KernelReservedBytes", discoverer.Report().KernelReserved()),
	)

	heapBytes := uint64(config.arenaSize()) * uint64(config.CoreCount)
	if heapBytes > memTotal {
		return nil, errors.Wrapf(memutils.ErrInitFailed, "%d core heaps of %d bytes need more than the %d bytes of physical memory found", config.CoreCount, config.arenaSize(), memTotal)
	}

	allocator := kalloc.New(logger, platform.Identity, kalloc.Options{Halt: platform.Halt})
	for i := 0; i < config.CoreCount; i++ {
		core := cpu.CoreID(i)

		data, err := platform.Arenas.Arena(core)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "obtaining the %s heap arena", core), memutils.ErrInitFailed)
		}

		h, err := heap.New(logger, core, data)
		if err != nil {
			return nil, errors.Wrapf(err, "creating the %s heap", core)
		}

		err = allocator.Install(h)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "installing the %s heap", core), memutils.ErrInitFailed)
		}
	}

	logger.Info("per-core heaps installed",
		slog.Int("Cores", config.CoreCount),
		slog.Int("ArenaSize", config.arenaSize()),
	)

	return &System{
		logger:    logger,
		upperBase: config.upperBase(),
		Report:    discoverer.Report(),
		Frames:    platform.Frames,
		Mapper:    platform.Mapper,
		Allocator: allocator,
		Identity:  platform.Identity,
		released:  make(chan struct{}),
	}, nil
}

// Release ends single-core boot: the allocator stops halting on failure and every core
// blocked in WaitReady continues
func (s *System) Release() {
	s.releaseOnce.Do(func() {
		s.Allocator.FinishBootstrap()
		s.logger.Info("releasing secondary cores")
		close(s.released)
	})
}

// WaitReady blocks a secondary core until the boot core calls Release
func (s *System) WaitReady() {
	<-s.released
}

// ClaimFrame pops a free frame for the caller's exclusive use, returning its physical and
// upper window addresses. See physmem.ClaimFrame.
func (s *System) ClaimFrame(init func(phys layout.PhysAddr, virt layout.VirtAddr) error) (layout.PhysAddr, layout.VirtAddr, error) {
	return physmem.ClaimFrame(s.Frames, s.upperBase, init)
}

// Close releases the heap arenas if Run created them. No pointer handed out by the
// allocator may be used afterward.
func (s *System) Close() error {
	if s.arenas == nil {
		return nil
	}
	return s.arenas.Close()
}
