// Package framestack implements the system's stack of free physical page frames.
//
// The stack's own entries occupy physical memory starting at a fixed storage base, so the
// frames holding the bookkeeping must never be pushed onto the stack. CheckCollision reports
// those frames, along with any frame that is already stacked.
package framestack

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/dolthub/swiss"
)

const entrySize = int(unsafe.Sizeof(layout.PhysAddr(0)))

var _ memutils.Validatable = (*Stack)(nil)

type Stack struct {
	mutex sync.Mutex

	storageBase       layout.PhysAddr
	translationOffset layout.VirtAddr

	limit   int
	frames  []layout.PhysAddr
	members *swiss.Map[layout.PhysAddr, struct{}]
}

// New creates an empty stack whose bookkeeping lives at storageBase in physical memory. The
// stack cannot accept frames until SetLimit has been called.
func New(storageBase layout.PhysAddr) *Stack {
	return &Stack{
		storageBase: storageBase,
		members:     swiss.NewMap[layout.PhysAddr, struct{}](42),
	}
}

// SetLimit fixes the capacity of the stack to pages entries. It fails if the stack already
// holds more frames than the new limit.
func (s *Stack) SetLimit(pages int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if pages < 0 {
		return errors.Newf("frame stack limit must not be negative, got %d", pages)
	}
	if pages < len(s.frames) {
		return errors.Wrapf(memutils.ErrFrameStackExhausted, "cannot shrink limit to %d pages while holding %d frames", pages, len(s.frames))
	}

	s.limit = pages
	if cap(s.frames) < pages {
		frames := make([]layout.PhysAddr, len(s.frames), pages)
		copy(frames, s.frames)
		s.frames = frames
	}

	return nil
}

// Limit returns the capacity of the stack in frames
func (s *Stack) Limit() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.limit
}

// Len returns the number of frames currently stacked
func (s *Stack) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.frames)
}

// StorageRange returns the physical span holding the stack's entries, rounded up to whole frames
func (s *Stack) StorageRange() layout.Range {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.storageRange()
}

func (s *Stack) storageRange() layout.Range {
	size := memutils.AlignUp(uintptr(s.limit*entrySize), layout.SmallPageSize)
	return layout.Range{Start: s.storageBase, End: s.storageBase + layout.PhysAddr(size)}
}

// SetTranslationOffset records the virtual offset at which the stack's storage is reachable once
// the upper kernel window has been mapped.
func (s *Stack) SetTranslationOffset(offset layout.VirtAddr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.translationOffset = offset
}

// StorageVirtualBase returns the kernel virtual address of the stack's storage
func (s *Stack) StorageVirtualBase() layout.VirtAddr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return layout.VirtAddr(s.storageBase) + s.translationOffset
}

// CheckCollision returns true if addr lies in a frame holding the stack's own entries or
// is already on the stack.
func (s *Stack) CheckCollision(addr layout.PhysAddr) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.storageRange().Contains(addr) {
		return true
	}

	return s.members.Has(addr)
}

func (s *Stack) Push(addr layout.PhysAddr) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !addr.IsFrameAligned() {
		return errors.Newf("frame address 0x%x is not aligned to %d bytes", addr, layout.SmallPageSize)
	}

	if len(s.frames) >= s.limit {
		return errors.Wrapf(memutils.ErrFrameStackExhausted, "pushing frame 0x%x onto a stack of %d frames", addr, s.limit)
	}

	if s.members.Has(addr) {
		return errors.AssertionFailedf("frame 0x%x is already on the stack", addr)
	}

	if s.storageRange().Contains(addr) {
		return errors.AssertionFailedf("frame 0x%x holds the stack's own entries", addr)
	}

	s.frames = append(s.frames, addr)
	s.members.Put(addr, struct{}{})

	return nil
}

func (s *Stack) Pop() (layout.PhysAddr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.frames) == 0 {
		return 0, errors.WithStack(memutils.ErrFrameStackUnderflow)
	}

	last := len(s.frames) - 1
	addr := s.frames[last]
	s.frames = s.frames[:last]
	s.members.Delete(addr)

	return addr, nil
}

// Validate checks that every stacked frame is aligned, unique, outside the stack's own
// storage and within the limit
func (s *Stack) Validate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.frames) > s.limit {
		return errors.Newf("frame stack holds %d frames but its limit is %d", len(s.frames), s.limit)
	}
	if s.members.Count() != len(s.frames) {
		return errors.Newf("frame stack holds %d frames but tracks %d members", len(s.frames), s.members.Count())
	}

	storage := s.storageRange()
	for index, addr := range s.frames {
		if !addr.IsFrameAligned() {
			return errors.Newf("frame %d at 0x%x is not aligned", index, addr)
		}
		if storage.Contains(addr) {
			return errors.Newf("frame %d at 0x%x lies inside the stack storage", index, addr)
		}
		if !s.members.Has(addr) {
			return errors.Newf("frame %d at 0x%x is missing from the member set", index, addr)
		}
	}

	return nil
}
