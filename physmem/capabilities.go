package physmem

import "github.com/corekernel/hvmem/layout"

// FrameStack is the system's lock-protected stack of free physical page frames.
// framestack.Stack is the reference implementation.
type FrameStack interface {
	Pop() (layout.PhysAddr, error)
	Push(addr layout.PhysAddr) error
	// SetLimit fixes the number of entries the stack can hold
	SetLimit(pages int) error
	// CheckCollision returns true if the frame at addr is reserved and must not be pushed
	CheckCollision(addr layout.PhysAddr) bool
}

// RegionEnumerator produces the platform's physical memory regions. Each call to Init
// starts a fresh, finite sequence that Enumerate walks until it returns false.
type RegionEnumerator interface {
	Init() error
	Enumerate() (Region, bool)
}

// VirtualMapper installs 2 MiB mappings in the kernel's page tables.
type VirtualMapper interface {
	MapLargePage(virt layout.VirtAddr, phys layout.PhysAddr, flags PageFlag) error
}

//go:generate mockgen -destination mocks/mocks.go -package mock_physmem github.com/corekernel/hvmem/physmem FrameStack,RegionEnumerator,VirtualMapper

// PageFlag describes a flag applied to a page table entry. Values follow the amd64
// page table entry encoding.
type PageFlag uintptr

const (
	FlagPresent PageFlag = 1 << iota
	FlagRW
	FlagUserAccessible
	FlagWriteThroughCaching
	FlagDoNotCache
	FlagAccessed
	FlagDirty
	FlagHugePage
	FlagGlobal

	FlagNoExecute PageFlag = 1 << 63
)

// upperWindowFlags are applied to every large page of the upper kernel window: writable,
// global, non-executable and supervisor-only.
const upperWindowFlags = FlagPresent | FlagRW | FlagHugePage | FlagGlobal | FlagNoExecute

var pageFlagNames = []struct {
	flag PageFlag
	name string
}{
	{FlagPresent, "Present"},
	{FlagRW, "RW"},
	{FlagUserAccessible, "UserAccessible"},
	{FlagWriteThroughCaching, "WriteThroughCaching"},
	{FlagDoNotCache, "DoNotCache"},
	{FlagAccessed, "Accessed"},
	{FlagDirty, "Dirty"},
	{FlagHugePage, "HugePage"},
	{FlagGlobal, "Global"},
	{FlagNoExecute, "NoExecute"},
}

// HasFlags returns true if all of the input flags are set
func (f PageFlag) HasFlags(flags PageFlag) bool {
	return f&flags == flags
}

func (f PageFlag) String() string {
	if f == 0 {
		return "None"
	}

	str := ""
	for _, entry := range pageFlagNames {
		if f&entry.flag == 0 {
			continue
		}
		if str != "" {
			str += "|"
		}
		str += entry.name
	}
	return str
}
