package physmem_test

import (
	"testing"

	"github.com/corekernel/hvmem/physmem"
	"github.com/stretchr/testify/require"
)

func TestStaticRegionsRestart(t *testing.T) {
	regions := physmem.NewStaticRegions(
		physmem.Region{BaseAddr: 0, Length: 0x9f000, Type: physmem.RegionUsable},
		physmem.Region{BaseAddr: 0x9f000, Length: 0x1000, Type: physmem.RegionReserved},
	)

	_, ok := regions.Enumerate()
	require.False(t, ok, "enumerating before Init must yield nothing")

	for pass := 0; pass < 2; pass++ {
		require.NoError(t, regions.Init())

		region, ok := regions.Enumerate()
		require.True(t, ok)
		require.True(t, region.Usable())

		region, ok = regions.Enumerate()
		require.True(t, ok)
		require.False(t, region.Usable())

		_, ok = regions.Enumerate()
		require.False(t, ok)
	}
}

func TestRegionTypeString(t *testing.T) {
	require.Equal(t, "Usable", physmem.RegionUsable.String())
	require.Equal(t, "ACPIReclaimable", physmem.RegionACPIReclaimable.String())
	require.Equal(t, "Unknown", physmem.RegionType(42).String())
}

func TestPageFlagString(t *testing.T) {
	flags := physmem.FlagPresent | physmem.FlagRW | physmem.FlagNoExecute
	require.Equal(t, "Present|RW|NoExecute", flags.String())
	require.True(t, flags.HasFlags(physmem.FlagPresent|physmem.FlagRW))
	require.False(t, flags.HasFlags(physmem.FlagUserAccessible))
	require.Equal(t, "None", physmem.PageFlag(0).String())
}
