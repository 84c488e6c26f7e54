package physmem

import "github.com/corekernel/hvmem/layout"

// RegionType classifies a memory region reported by the platform. The values follow the
// multiboot memory map encoding.
type RegionType uint32

const (
	RegionUsable RegionType = iota + 1
	RegionReserved
	RegionACPIReclaimable
	RegionNVS
	RegionBadMemory
)

var regionTypeMapping = map[RegionType]string{
	RegionUsable:          "Usable",
	RegionReserved:        "Reserved",
	RegionACPIReclaimable: "ACPIReclaimable",
	RegionNVS:             "NVS",
	RegionBadMemory:       "BadMemory",
}

func (t RegionType) String() string {
	str, ok := regionTypeMapping[t]
	if !ok {
		return "Unknown"
	}
	return str
}

// Region is a span of physical memory reported by a RegionEnumerator.
type Region struct {
	BaseAddr uint64
	Length   uint64
	Type     RegionType
}

// Usable returns true if the region may be handed to the frame stack
func (r Region) Usable() bool {
	return r.Type == RegionUsable
}

// frameRange returns the whole frames that lie inside the region. Unaligned edges are
// trimmed: the start is rounded up and the end rounded down to a frame boundary.
func (r Region) frameRange() layout.Range {
	start := layout.PhysAddr((r.BaseAddr + layout.SmallPageSize - 1) &^ (layout.SmallPageSize - 1))
	end := layout.PhysAddr((r.BaseAddr + r.Length) &^ (layout.SmallPageSize - 1))
	if end < start {
		end = start
	}
	return layout.Range{Start: start, End: end}
}

// StaticRegions is a RegionEnumerator over a fixed list of regions. Init rewinds it, so
// it can be walked any number of times.
type StaticRegions struct {
	regions     []Region
	next        int
	initialized bool
}

var _ RegionEnumerator = &StaticRegions{}

func NewStaticRegions(regions ...Region) *StaticRegions {
	return &StaticRegions{regions: regions}
}

func (e *StaticRegions) Init() error {
	e.next = 0
	e.initialized = true
	return nil
}

func (e *StaticRegions) Enumerate() (Region, bool) {
	if !e.initialized || e.next >= len(e.regions) {
		return Region{}, false
	}

	region := e.regions[e.next]
	e.next++
	return region, true
}
