// Package pagemap provides an in-memory stand-in for the boot page tables: it records the
// large page mappings requested for the upper kernel window and refuses to map a virtual
// page twice.
package pagemap

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/internal/utils"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/corekernel/hvmem/physmem"
	"github.com/dolthub/swiss"
)

// Options contains optional settings for a Table
type Options struct {
	// ExternallySynchronized disables the internal lock. Only set this when the table is
	// used from a single core, as during discovery.
	ExternallySynchronized bool
}

// Mapping is one large page installed in a Table
type Mapping struct {
	Virt  layout.VirtAddr
	Phys  layout.PhysAddr
	Flags physmem.PageFlag
}

type Table struct {
	mutex    utils.OptionalRWMutex
	mappings *swiss.Map[layout.VirtAddr, Mapping]
}

var _ physmem.VirtualMapper = &Table{}

func New(options Options) *Table {
	return &Table{
		mutex:    utils.OptionalRWMutex{UseMutex: !options.ExternallySynchronized},
		mappings: swiss.NewMap[layout.VirtAddr, Mapping](42),
	}
}

// MapLargePage installs a 2 MiB mapping. Both addresses must be large page aligned, the
// mapping must carry FlagHugePage, and the virtual page must not already be mapped.
func (t *Table) MapLargePage(virt layout.VirtAddr, phys layout.PhysAddr, flags physmem.PageFlag) error {
	if memutils.AlignDown(virt, layout.LargePageSize) != virt || memutils.AlignDown(phys, layout.LargePageSize) != phys {
		return errors.Wrapf(memutils.ErrMapFailed, "large page mapping 0x%x -> 0x%x is not aligned to %d bytes", virt, phys, layout.LargePageSize)
	}
	if !flags.HasFlags(physmem.FlagPresent | physmem.FlagHugePage) {
		return errors.Wrapf(memutils.ErrMapFailed, "large page mapping 0x%x requires Present and HugePage flags, got %s", virt, flags)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	existing, ok := t.mappings.Get(virt)
	if ok {
		return errors.Wrapf(memutils.ErrMapFailed, "virtual page 0x%x is already mapped to 0x%x", virt, existing.Phys)
	}

	t.mappings.Put(virt, Mapping{Virt: virt, Phys: phys, Flags: flags})
	return nil
}

// Translate resolves a virtual address through the recorded large pages
func (t *Table) Translate(virt layout.VirtAddr) (layout.PhysAddr, error) {
	page := memutils.AlignDown(virt, layout.LargePageSize)

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	mapping, ok := t.mappings.Get(page)
	if !ok {
		return 0, errors.Newf("virtual address 0x%x does not point to a mapped physical page", virt)
	}

	return mapping.Phys + layout.PhysAddr(virt-page), nil
}

// Lookup returns the mapping installed for the large page containing virt
func (t *Table) Lookup(virt layout.VirtAddr) (Mapping, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.mappings.Get(memutils.AlignDown(virt, layout.LargePageSize))
}

// Count returns the number of large pages mapped
func (t *Table) Count() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.mappings.Count()
}

func (m Mapping) String() string {
	return fmt.Sprintf("0x%x -> 0x%x [%s]", m.Virt, m.Phys, m.Flags)
}
