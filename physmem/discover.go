// Package physmem discovers the machine's physical RAM, stacks its free page frames and
// mirrors it into the kernel's upper virtual window.
package physmem

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/layout"
	"github.com/corekernel/hvmem/memutils"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// DiscovererOptions contains the kernel image location and optional settings for a Discoverer
type DiscovererOptions struct {
	// KernelStart and KernelEnd bound the loaded kernel image. Frames in [KernelStart, KernelEnd)
	// are never stacked.
	KernelStart layout.PhysAddr
	KernelEnd   layout.PhysAddr

	// UpperBase is the virtual offset of the upper kernel window. layout.KernelVirtualUpperBase
	// is used when it is left zero.
	UpperBase layout.VirtAddr
}

// Discoverer walks the platform's memory regions twice: first to size the frame stack, then
// to stack every free frame and map each region into the upper kernel window. It is meant
// to run exactly once, on the boot core, before any other core touches the frame stack.
type Discoverer struct {
	logger     *slog.Logger
	kernel     layout.Range
	upperBase  layout.VirtAddr
	enumerator RegionEnumerator
	stack      FrameStack
	mapper     VirtualMapper

	mappedPages *swiss.Map[layout.VirtAddr, struct{}]
	done        bool
	report      DiscoveryReport
}

func NewDiscoverer(logger *slog.Logger, options DiscovererOptions, enumerator RegionEnumerator, stack FrameStack, mapper VirtualMapper) (*Discoverer, error) {
	if enumerator == nil || stack == nil || mapper == nil {
		return nil, errors.Wrap(memutils.ErrInitFailed, "a region enumerator, frame stack and virtual mapper are all required")
	}
	if options.KernelEnd < options.KernelStart {
		return nil, errors.Wrapf(memutils.ErrInitFailed, "kernel image end 0x%x is below its start 0x%x", options.KernelEnd, options.KernelStart)
	}

	upperBase := options.UpperBase
	if upperBase == 0 {
		upperBase = layout.KernelVirtualUpperBase
	}

	return &Discoverer{
		logger:      logger,
		kernel:      layout.Range{Start: options.KernelStart, End: options.KernelEnd},
		upperBase:   upperBase,
		enumerator:  enumerator,
		stack:       stack,
		mapper:      mapper,
		mappedPages: swiss.NewMap[layout.VirtAddr, struct{}](42),
	}, nil
}

// Discover registers all usable physical RAM and returns the number of usable bytes found.
// Any failure leaves physical memory management unusable and must abort the boot.
func (d *Discoverer) Discover() (uint64, error) {
	if d.done {
		return 0, errors.Wrap(memutils.ErrInitFailed, "physical memory discovery has already run")
	}
	d.done = true

	d.logger.Info("initializing physical memory",
		slog.String("KernelStart", fmt.Sprintf("0x%x", d.kernel.Start)),
		slog.String("KernelEnd", fmt.Sprintf("0x%x", d.kernel.End)),
		slog.Int("KernelKB", int(d.kernel.Size()>>10)),
	)

	// The stack's capacity must be fixed before any frame is pushed, so that the frames
	// holding its own entries are known and can be skipped on the second pass.
	memTotal, err := d.sizePass()
	if err != nil {
		return 0, err
	}

	pages := int(memTotal / layout.SmallPageSize)
	d.logger.Debug("found physical pages", slog.Int("Pages", pages))
	err = d.stack.SetLimit(pages)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "sizing the frame stack to %d pages", pages), memutils.ErrInitFailed)
	}

	d.report.MemTotal = memTotal
	err = d.stackPass()
	if err != nil {
		return 0, err
	}

	if validatable, ok := d.stack.(memutils.Validatable); ok {
		memutils.DebugValidate(validatable)
	}

	d.logger.Info(d.Summary())
	return memTotal, nil
}

func (d *Discoverer) sizePass() (uint64, error) {
	err := d.enumerator.Init()
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "starting the sizing pass"), memutils.ErrInitFailed)
	}

	var memTotal uint64
	for region, ok := d.enumerator.Enumerate(); ok; region, ok = d.enumerator.Enumerate() {
		if region.Usable() {
			memTotal += region.Length
		}
	}

	return memTotal, nil
}

func (d *Discoverer) stackPass() error {
	err := d.enumerator.Init()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "starting the stacking pass"), memutils.ErrInitFailed)
	}

	for region, ok := d.enumerator.Enumerate(); ok; region, ok = d.enumerator.Enumerate() {
		if !region.Usable() {
			d.logger.Debug("skipping unusable region",
				slog.String("BaseAddr", fmt.Sprintf("0x%x", region.BaseAddr)),
				slog.Uint64("Length", region.Length),
				slog.String("Type", region.Type.String()),
			)
			continue
		}

		d.logger.Debug("RAM region found",
			slog.String("BaseAddr", fmt.Sprintf("0x%x", region.BaseAddr)),
			slog.Uint64("KB", region.Length>>10),
		)

		entry := RegionReport{Region: region}
		entry.FramesStacked = d.addRegion(region)

		entry.LargePagesMapped, err = d.mapRegion(region)
		if err != nil {
			return err
		}

		d.report.Regions = append(d.report.Regions, entry)
	}

	return nil
}

// addRegion breaks a region into frames and pushes each one that is not part of the
// kernel image or already reserved by the stack. It returns the number of frames pushed.
func (d *Discoverer) addRegion(region Region) int {
	frames := region.frameRange()
	stacked := 0

	for addr := frames.Start; addr < frames.End; addr += layout.SmallPageSize {
		if d.kernel.Contains(addr) {
			d.report.FramesSkippedKernel++
			continue
		}

		if d.stack.CheckCollision(addr) {
			d.report.FramesSkippedCollision++
			continue
		}

		err := d.stack.Push(addr)
		if err != nil {
			d.report.FramesPushFailed++
			d.logger.Warn("could not stack physical frame",
				slog.String("Frame", fmt.Sprintf("0x%x", addr)),
				slog.Any("error", err),
			)
			continue
		}

		stacked++
	}

	d.report.FramesStacked += stacked
	d.report.MemStacked += uint64(stacked) * layout.SmallPageSize
	return stacked
}

// mapRegion mirrors a region into the upper kernel window with 2 MiB pages. The base is
// aligned down to a large page boundary and the page count rounded up, so every byte of
// the region is covered. Large pages already mapped for an earlier region are not requested
// again.
func (d *Discoverer) mapRegion(region Region) (int, error) {
	if region.Length == 0 {
		return 0, nil
	}

	base := memutils.AlignDown(layout.PhysAddr(region.BaseAddr), layout.LargePageSize)
	end := layout.PhysAddr(region.BaseAddr + region.Length)
	pages := int(memutils.DivRoundUp(uintptr(end-base), layout.LargePageSize))

	mapped := 0
	for pageNr := 0; pageNr < pages; pageNr++ {
		phys := base + layout.PhysAddr(pageNr*layout.LargePageSize)
		virt := layout.VirtAddr(phys) + d.upperBase

		if d.mappedPages.Has(virt) {
			continue
		}

		err := d.mapper.MapLargePage(virt, phys, upperWindowFlags)
		if err != nil {
			return mapped, errors.Mark(
				errors.Wrapf(err, "mapping large page 0x%x -> 0x%x", virt, phys),
				memutils.ErrMapFailed,
			)
		}

		d.mappedPages.Put(virt, struct{}{})
		mapped++
	}

	d.report.LargePagesMapped += mapped
	return mapped, nil
}

// Report returns the figures gathered by Discover
func (d *Discoverer) Report() DiscoveryReport {
	report := d.report
	report.Regions = append([]RegionReport(nil), d.report.Regions...)
	return report
}
