// Package kalloc connects the per-core heaps to the hypervisor's general purpose allocation
// interface. Allocations are served from the calling core's heap; frees are routed to
// whichever heap owns the pointer.
package kalloc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/heap"
	"github.com/corekernel/hvmem/memutils"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// HaltFunc stops the machine after an allocation failure that cannot be survived
type HaltFunc func(err error)

// Options contains optional settings for an Adapter
type Options struct {
	// Halt is called when an allocation fails before FinishBootstrap has been called. It
	// defaults to panicking with the allocation error.
	Halt HaltFunc
}

// Adapter is the allocation interface used by the rest of the hypervisor. Its methods never
// return errors: failures are logged and reported as a nil pointer, except during bootstrap
// when a failed allocation halts the machine.
type Adapter struct {
	logger   *slog.Logger
	identity cpu.Identity
	halt     HaltFunc

	bootstrapping atomic.Bool

	mutex sync.RWMutex
	heaps *swiss.Map[cpu.CoreID, *heap.Heap]
	// byBase holds the installed heaps ordered by arena address
	byBase []*heap.Heap
	cores  []cpu.CoreID
}

func New(logger *slog.Logger, identity cpu.Identity, options Options) *Adapter {
	halt := options.Halt
	if halt == nil {
		halt = func(err error) {
			panic(err)
		}
	}

	adapter := &Adapter{
		logger:   logger,
		identity: identity,
		halt:     halt,
		heaps:    swiss.NewMap[cpu.CoreID, *heap.Heap](8),
	}
	adapter.bootstrapping.Store(true)

	return adapter
}

// Install makes h the heap for its core. Each core may have only one heap, and no two heaps
// may share arena memory.
func (a *Adapter) Install(h *heap.Heap) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.heaps.Has(h.Core()) {
		return errors.Newf("a heap is already installed for %s", h.Core())
	}

	index, _ := slices.BinarySearchFunc(a.byBase, h.Base(), compareBase)
	if index > 0 {
		prev := a.byBase[index-1]
		if prev.Base()+uintptr(prev.Size()) > h.Base() {
			return errors.Newf("the %s heap arena at 0x%x overlaps the %s heap arena", h.Core(), h.Base(), prev.Core())
		}
	}
	if index < len(a.byBase) {
		next := a.byBase[index]
		if h.Base()+uintptr(h.Size()) > next.Base() {
			return errors.Newf("the %s heap arena at 0x%x overlaps the %s heap arena", h.Core(), h.Base(), next.Core())
		}
	}

	a.heaps.Put(h.Core(), h)
	a.byBase = slices.Insert(a.byBase, index, h)

	coreIndex, _ := slices.BinarySearch(a.cores, h.Core())
	a.cores = slices.Insert(a.cores, coreIndex, h.Core())

	a.logger.Debug("Adapter::Install",
		slog.String("Core", h.Core().String()),
		slog.String("Base", fmt.Sprintf("0x%x", h.Base())),
		slog.Int("Size", h.Size()),
	)

	return nil
}

func compareBase(h *heap.Heap, addr uintptr) int {
	switch {
	case h.Base() < addr:
		return -1
	case h.Base() > addr:
		return 1
	default:
		return 0
	}
}

// Heap returns the heap installed for core
func (a *Adapter) Heap(core cpu.CoreID) (*heap.Heap, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.heaps.Get(core)
}

// Owner returns the heap whose arena contains ptr
func (a *Adapter) Owner(ptr unsafe.Pointer) (*heap.Heap, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	index, found := slices.BinarySearchFunc(a.byBase, uintptr(ptr), compareBase)
	if found {
		return a.byBase[index], true
	}
	if index > 0 && a.byBase[index-1].Owns(ptr) {
		return a.byBase[index-1], true
	}

	return nil, false
}

// Bootstrapping returns true until FinishBootstrap is called
func (a *Adapter) Bootstrapping() bool {
	return a.bootstrapping.Load()
}

// FinishBootstrap marks the end of single-core boot. From here on allocation failures are
// reported to the caller instead of halting.
func (a *Adapter) FinishBootstrap() {
	if a.bootstrapping.Swap(false) {
		a.logger.Info("kernel allocator leaving bootstrap mode")
	}
}

// Allocate returns size bytes from the calling core's heap, or nil on failure
func (a *Adapter) Allocate(size int) unsafe.Pointer {
	core := a.identity.Current()

	a.logger.Debug("Adapter::Allocate", slog.String("Core", core.String()), slog.Int("Size", size))

	var ptr unsafe.Pointer
	var err error
	h, ok := a.Heap(core)
	if !ok {
		err = errors.Newf("no heap is installed for %s", core)
	} else {
		ptr, err = h.AllocBytes(size)
	}

	if err != nil {
		a.logger.Error("kernel allocation failed",
			slog.String("Core", core.String()),
			slog.Int("Size", size),
			slog.Any("Error", err),
		)

		if a.bootstrapping.Load() {
			a.halt(errors.Wrapf(err, "allocation of %d bytes failed during bootstrap", size))
		}
		return nil
	}

	return ptr
}

// Deallocate returns ptr to the heap it came from. The calling core's own heap is tried
// first; pointers that belong to another core's heap are freed there.
func (a *Adapter) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	core := a.identity.Current()

	a.logger.Debug("Adapter::Deallocate",
		slog.String("Core", core.String()),
		slog.String("Address", fmt.Sprintf("0x%x", uintptr(ptr))),
	)

	h, ok := a.Heap(core)
	if !ok || !h.Owns(ptr) {
		h, ok = a.Owner(ptr)
	}

	var err error
	if !ok {
		err = errors.Wrapf(memutils.ErrHeapBadBlock, "pointer 0x%x does not belong to any heap", uintptr(ptr))
	} else {
		err = h.FreeBytes(ptr)
	}

	if err != nil {
		a.logger.Error("kernel free failed",
			slog.String("Core", core.String()),
			slog.String("Address", fmt.Sprintf("0x%x", uintptr(ptr))),
			slog.Any("Error", err),
		)
	}
}
