package physmem

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RegionReport records what discovery did with one usable region
type RegionReport struct {
	Region           Region
	FramesStacked    int
	LargePagesMapped int
}

// DiscoveryReport holds the figures gathered by Discoverer.Discover
type DiscoveryReport struct {
	// MemTotal is the number of usable bytes reported by the platform
	MemTotal uint64
	// MemStacked is the number of bytes pushed onto the frame stack
	MemStacked uint64

	FramesStacked          int
	FramesSkippedKernel    int
	FramesSkippedCollision int
	FramesPushFailed       int
	LargePagesMapped       int

	Regions []RegionReport
}

// KernelReserved is the usable memory that was not stacked: the kernel image, the frame
// stack's bookkeeping and any partial frames. A non-zero value is expected.
func (r DiscoveryReport) KernelReserved() uint64 {
	if r.MemStacked > r.MemTotal {
		return 0
	}
	return r.MemTotal - r.MemStacked
}

// WriteReport populates a json object with the discovery figures and the per-region breakdown
func (d *Discoverer) WriteReport(writer *jwriter.Writer) {
	report := d.report

	obj := writer.Object()
	defer obj.End()

	obj.Name("TotalBytes").Float64(float64(report.MemTotal))
	obj.Name("StackedBytes").Float64(float64(report.MemStacked))
	obj.Name("KernelReservedBytes").Float64(float64(report.KernelReserved()))
	obj.Name("FramesStacked").Int(report.FramesStacked)
	obj.Name("FramesSkippedKernel").Int(report.FramesSkippedKernel)
	obj.Name("FramesSkippedCollision").Int(report.FramesSkippedCollision)
	obj.Name("FramesPushFailed").Int(report.FramesPushFailed)
	obj.Name("LargePagesMapped").Int(report.LargePagesMapped)

	regions := obj.Name("Regions").Array()
	defer regions.End()

	for _, entry := range report.Regions {
		regionObj := regions.Object()
		regionObj.Name("BaseAddr").String(fmt.Sprintf("0x%x", entry.Region.BaseAddr))
		regionObj.Name("Length").Float64(float64(entry.Region.Length))
		regionObj.Name("Type").String(entry.Region.Type.String())
		regionObj.Name("FramesStacked").Int(entry.FramesStacked)
		regionObj.Name("LargePagesMapped").Int(entry.LargePagesMapped)
		regionObj.End()
	}
}

// Summary renders the discovery result as a single human-readable line
func (d *Discoverer) Summary() string {
	printer := message.NewPrinter(language.English)
	return printer.Sprintf("%d MB RAM available (%d bytes reserved for kernel use), %d frames stacked, %d large pages mapped",
		d.report.MemTotal>>20,
		d.report.KernelReserved(),
		d.report.FramesStacked,
		d.report.LargePagesMapped,
	)
}
