// Package heap implements the per-core kernel heap: a single linked list of blocks carved
// out of one arena of memory. Only the owning core allocates from a heap, but any core may
// free a block back into it.
package heap

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/memutils"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Granularity is the unit blocks are sized in, header included
const Granularity = 64

const (
	magicFree  uint32 = 0x0deadded
	magicInUse uint32 = 0x0d10c0de
	// magicFreeing marks a block whose payload is being poisoned by the core that freed it.
	// The owner neither allocates nor merges it until the tag becomes magicFree.
	magicFreeing uint32 = 0x0defaced

	noBlock uint64 = math.MaxUint64
)

// blockHeader sits at the start of every block. Offsets are relative to the arena base.
type blockHeader struct {
	next  uint64
	size  uint64
	magic uint32
	_     uint32
}

const headerSize = int(unsafe.Sizeof(blockHeader{}))

// Heap manages one core's arena. Alloc, Consolidate and the diagnostic methods must only be
// called by the owning core. FreeBytes is safe from any core: it touches nothing but the
// block's magic word, which is updated with a compare-and-swap.
type Heap struct {
	logger *slog.Logger
	core   cpu.CoreID
	arena  []byte
	base   uintptr
	head   uint64
}

var _ memutils.Validatable = &Heap{}

// New builds a heap over arena, starting with a single free block that covers all of it. The
// arena must be 8-byte aligned, a multiple of 8 bytes long and at least Granularity bytes.
func New(logger *slog.Logger, core cpu.CoreID, arena []byte) (*Heap, error) {
	if len(arena) < Granularity || len(arena)%8 != 0 {
		return nil, errors.Wrapf(memutils.ErrHeapBadSize, "%s heap arena of %d bytes must be a multiple of 8 bytes and at least %d bytes", core, len(arena), Granularity)
	}

	base := uintptr(unsafe.Pointer(&arena[0]))
	if base%8 != 0 {
		return nil, errors.Wrapf(memutils.ErrHeapBadSize, "%s heap arena at 0x%x is not 8-byte aligned", core, base)
	}

	h := &Heap{
		logger: logger,
		core:   core,
		arena:  arena,
		base:   base,
		head:   0,
	}

	first := h.header(0)
	first.next = noBlock
	first.size = uint64(len(arena))
	atomic.StoreUint32(&first.magic, magicFree)

	logger.Debug("Heap::New",
		slog.String("Core", core.String()),
		slog.String("Base", fmt.Sprintf("0x%x", base)),
		slog.Int("Size", len(arena)),
	)

	return h, nil
}

func (h *Heap) header(offset uint64) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&h.arena[offset]))
}

func (h *Heap) payload(offset uint64) unsafe.Pointer {
	return unsafe.Pointer(&h.arena[offset+uint64(headerSize)])
}

// Core returns the core that owns this heap
func (h *Heap) Core() cpu.CoreID { return h.core }

// Size returns the size of the arena in bytes
func (h *Heap) Size() int { return len(h.arena) }

// HeaderSize returns the number of bytes each block spends on its header
func (h *Heap) HeaderSize() int { return headerSize }

// Base returns the address of the first byte of the arena
func (h *Heap) Base() uintptr { return h.base }

// Owns returns true if ptr points into this heap's arena
func (h *Heap) Owns(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return addr >= h.base && addr < h.base+uintptr(len(h.arena))
}

// Alloc reserves room for count values of T and returns a pointer to the first one. The
// memory is not zeroed.
func Alloc[T any](h *Heap, count int) (*T, error) {
	if count <= 0 {
		return nil, errors.Wrapf(memutils.ErrHeapBadSize, "cannot allocate %d objects", count)
	}

	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize > 0 && count > len(h.arena)/elemSize {
		return nil, errors.Wrapf(memutils.ErrHeapNoFreeMem, "%s heap of %d bytes cannot hold %d objects of %d bytes", h.core, len(h.arena), count, elemSize)
	}

	ptr, err := h.alloc(elemSize * count)
	if err != nil {
		return nil, err
	}
	return (*T)(ptr), nil
}

// Free returns memory obtained from Alloc to the heap that owns it
func Free[T any](h *Heap, ptr *T) error {
	return h.FreeBytes(unsafe.Pointer(ptr))
}

// AllocBytes reserves size bytes and returns a pointer to the first one. The memory is not
// zeroed.
func (h *Heap) AllocBytes(size int) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrHeapBadSize, "cannot allocate %d bytes", size)
	}
	if size > len(h.arena) {
		return nil, errors.Wrapf(memutils.ErrHeapNoFreeMem, "%s heap of %d bytes cannot hold %d bytes", h.core, len(h.arena), size)
	}

	return h.alloc(size)
}

func (h *Heap) alloc(size int) (unsafe.Pointer, error) {
	sizeReq := uint64(memutils.AlignUp(headerSize+size, Granularity))

	h.logger.Debug("Heap::Alloc",
		slog.String("Core", h.core.String()),
		slog.Int("Size", size),
		slog.Uint64("BlockSize", sizeReq),
	)

	ptr := h.allocFirstFit(sizeReq)
	if ptr == nil && h.Consolidate() >= Granularity {
		ptr = h.allocFirstFit(sizeReq)
	}

	if ptr == nil {
		return nil, errors.Wrapf(memutils.ErrHeapNoFreeMem, "%s heap has no free block of %d bytes for a %d byte request", h.core, sizeReq, size)
	}

	memutils.DebugValidate(h)
	return ptr, nil
}

func (h *Heap) allocFirstFit(sizeReq uint64) unsafe.Pointer {
	offset := h.head
	for offset != noBlock {
		block := h.header(offset)

		if atomic.LoadUint32(&block.magic) == magicFree && block.size >= sizeReq {
			leftover := block.size - sizeReq
			if leftover < Granularity {
				atomic.StoreUint32(&block.magic, magicInUse)
				return h.payload(offset)
			}

			// Carve the tail off and push it on the front of the list
			block.size = leftover
			carvedOffset := offset + leftover
			carved := h.header(carvedOffset)
			carved.next = h.head
			carved.size = sizeReq
			atomic.StoreUint32(&carved.magic, magicInUse)
			h.head = carvedOffset

			return h.payload(carvedOffset)
		}

		offset = block.next
	}

	return nil
}

// FreeBytes marks the block containing ptr as free. It may be called from any core. Freeing
// a block that is already free fails with memutils.ErrHeapNotInUse; a pointer that was not
// returned by this heap fails with memutils.ErrHeapBadBlock.
func (h *Heap) FreeBytes(ptr unsafe.Pointer) error {
	addr := uintptr(ptr)
	if addr < h.base+uintptr(headerSize) || addr >= h.base+uintptr(len(h.arena)) {
		return errors.Wrapf(memutils.ErrHeapBadBlock, "pointer 0x%x is outside the %s heap arena", addr, h.core)
	}

	offset := uint64(addr - h.base - uintptr(headerSize))
	if offset%8 != 0 {
		return errors.Wrapf(memutils.ErrHeapBadBlock, "pointer 0x%x is not a block payload in the %s heap", addr, h.core)
	}

	block := h.header(offset)
	switch atomic.LoadUint32(&block.magic) {
	case magicInUse:
	case magicFree, magicFreeing:
		return errors.Wrapf(memutils.ErrHeapNotInUse, "block at 0x%x in the %s heap", addr, h.core)
	default:
		return errors.Wrapf(memutils.ErrHeapBadBlock, "block at 0x%x in the %s heap has a corrupt header", addr, h.core)
	}

	released := magicFree
	if memutils.DebugEnabled {
		released = magicFreeing
	}
	if !atomic.CompareAndSwapUint32(&block.magic, magicInUse, released) {
		return errors.Wrapf(memutils.ErrHeapNotInUse, "block at 0x%x in the %s heap was freed concurrently", addr, h.core)
	}
	if released == magicFreeing {
		memutils.WriteMagicValue(ptr, int(block.size)-headerSize)
		atomic.StoreUint32(&block.magic, magicFree)
	}

	h.logger.Debug("Heap::Free",
		slog.String("Core", h.core.String()),
		slog.String("Address", fmt.Sprintf("0x%x", addr)),
	)

	return nil
}

// Consolidate makes one pass over the block list merging free neighbors that are also
// physically adjacent, then tries to merge the head of the list into its last entry. It
// returns the size of the largest block it created, or 0 if nothing was merged.
func (h *Heap) Consolidate() int {
	var largest uint64

	offset := h.head
	for offset != noBlock {
		block := h.header(offset)
		if block.next == noBlock {
			break
		}

		next := h.header(block.next)
		if h.isFree(block) && h.isFree(next) && offset+block.size == block.next {
			block.size += next.size
			block.next = next.next

			if block.size > largest {
				largest = block.size
			}
		}

		offset = block.next
	}

	if merged := h.consolidateEnds(); merged > largest {
		largest = merged
	}

	h.logger.Debug("Heap::Consolidate",
		slog.String("Core", h.core.String()),
		slog.Uint64("LargestMerged", largest),
	)

	memutils.DebugValidate(h)
	return int(largest)
}

// consolidateEnds merges the list head into the last block when both are free and the last
// block ends where the head begins. The block at offset 0 is never carved away or absorbed, so
// it always ends the list, while tail carving leaves the newest blocks in front of it.
func (h *Heap) consolidateEnds() uint64 {
	headOffset := h.head
	head := h.header(headOffset)
	if head.next == noBlock || !h.isFree(head) {
		return 0
	}

	lastOffset := head.next
	for h.header(lastOffset).next != noBlock {
		lastOffset = h.header(lastOffset).next
	}

	last := h.header(lastOffset)
	if !h.isFree(last) || lastOffset+last.size != headOffset {
		return 0
	}

	last.size += head.size
	h.head = head.next
	return last.size
}

func (h *Heap) isFree(block *blockHeader) bool {
	return atomic.LoadUint32(&block.magic) == magicFree
}

// VisitAllBlocks calls handleBlock once for each block, in list order. Visiting stops at the
// first error, which is returned.
func (h *Heap) VisitAllBlocks(handleBlock func(offset int, size int, free bool) error) error {
	for offset := h.head; offset != noBlock; {
		block := h.header(offset)
		err := handleBlock(int(offset), int(block.size), h.isFree(block))
		if err != nil {
			return err
		}
		offset = block.next
	}

	return nil
}

// Validate performs internal consistency checks on the block list: every block carries a known
// tag, and the blocks tile the arena exactly, with no gaps or overlaps. It walks the whole
// list and is intended for diagnostics and debug builds.
func (h *Heap) Validate() error {
	maxBlocks := len(h.arena)/8 + 1
	spans := swiss.NewMap[uint64, uint64](uint32(maxBlocks/Granularity + 1))
	offsets := make([]uint64, 0, maxBlocks/Granularity+1)

	for offset := h.head; offset != noBlock; {
		if len(offsets) >= maxBlocks {
			return errors.Newf("%s heap block list has more than %d entries and is probably cyclic", h.core, maxBlocks)
		}
		if offset%8 != 0 || offset+uint64(headerSize) > uint64(len(h.arena)) {
			return errors.Newf("%s heap block list refers to invalid offset %d", h.core, offset)
		}

		block := h.header(offset)
		magic := atomic.LoadUint32(&block.magic)
		if magic != magicFree && magic != magicInUse && magic != magicFreeing {
			return errors.Newf("%s heap block at offset %d has unknown tag 0x%08x", h.core, offset, magic)
		}
		if block.size < uint64(headerSize) || block.size%8 != 0 {
			return errors.Newf("%s heap block at offset %d has invalid size %d", h.core, offset, block.size)
		}
		if spans.Has(offset) {
			return errors.Newf("%s heap block at offset %d appears twice in the block list", h.core, offset)
		}

		spans.Put(offset, block.size)
		offsets = append(offsets, offset)
		offset = block.next
	}

	slices.Sort(offsets)

	var expected uint64
	for _, offset := range offsets {
		if offset != expected {
			return errors.Newf("%s heap expected a block at offset %d but the next block starts at %d", h.core, expected, offset)
		}
		size, _ := spans.Get(offset)
		expected = offset + size
	}

	if expected != uint64(len(h.arena)) {
		return errors.Newf("%s heap blocks cover %d bytes but the arena is %d bytes", h.core, expected, len(h.arena))
	}

	return nil
}

// AddStatistics sums this heap's figures into stats
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	stats.ArenaCount++
	stats.ArenaBytes += len(h.arena)

	_ = h.VisitAllBlocks(func(offset int, size int, free bool) error {
		if !free {
			stats.InUseCount++
			stats.InUseBytes += size
		}
		return nil
	})
}

// AddDetailedStatistics sums this heap's figures, including block size extremes, into stats
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += len(h.arena)

	_ = h.VisitAllBlocks(func(offset int, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddInUseBlock(size)
		}
		return nil
	})
}

// PrintDetailedMap writes a json object describing the arena and every block in it
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	h.WriteJson(obj)
}

// WriteJson adds this heap's fields to an object that is already open, for callers that
// describe several heaps in one document
func (h *Heap) WriteJson(obj jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	obj.Name("Core").Int(int(h.core))
	obj.Name("Base").String(fmt.Sprintf("0x%x", h.base))
	obj.Name("TotalBytes").Int(stats.ArenaBytes)
	obj.Name("UnusedBytes").Int(stats.FreeBytes())
	obj.Name("Allocations").Int(stats.InUseCount)
	obj.Name("UnusedRanges").Int(stats.FreeBlockCount)

	blocks := obj.Name("Blocks").Array()
	defer blocks.End()

	_ = h.VisitAllBlocks(func(offset int, size int, free bool) error {
		blockObj := blocks.Object()
		defer blockObj.End()

		blockObj.Name("Offset").Int(offset)
		blockObj.Name("Size").Int(size)
		if free {
			blockObj.Name("Type").String("Free")
		} else {
			blockObj.Name("Type").String("InUse")
		}
		return nil
	})
}
