package kalloc

import (
	"strconv"

	"github.com/corekernel/hvmem/cpu"
	"github.com/corekernel/hvmem/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// AllocatorStatistics summarizes every installed heap
type AllocatorStatistics struct {
	// Cores holds one entry per installed heap, ordered by core
	Cores []CoreStatistics
	Total memutils.DetailedStatistics
}

type CoreStatistics struct {
	Core  cpu.CoreID
	Stats memutils.DetailedStatistics
}

// CalculateStatistics walks every installed heap. Each heap's block list is read without
// stopping its owner, so the figures are only exact while the machine is quiescent.
func (a *Adapter) CalculateStatistics(stats *AllocatorStatistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.Cores = stats.Cores[:0]
	stats.Total.Clear()

	for _, core := range a.cores {
		h, _ := a.heaps.Get(core)

		entry := CoreStatistics{Core: core}
		entry.Stats.Clear()
		h.AddDetailedStatistics(&entry.Stats)

		stats.Total.AddDetailedStatistics(&entry.Stats)
		stats.Cores = append(stats.Cores, entry)
	}
}

// PrintDetailedMap writes a json document describing every installed heap and its blocks
func (a *Adapter) PrintDetailedMap(writer *jwriter.Writer) {
	var stats AllocatorStatistics
	a.CalculateStatistics(&stats)

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	obj := writer.Object()
	defer obj.End()

	total := obj.Name("Total").Object()
	total.Name("Heaps").Int(stats.Total.ArenaCount)
	total.Name("TotalBytes").Int(stats.Total.ArenaBytes)
	total.Name("UnusedBytes").Int(stats.Total.FreeBytes())
	total.Name("Allocations").Int(stats.Total.InUseCount)
	total.Name("UnusedRanges").Int(stats.Total.FreeBlockCount)
	total.End()

	heaps := obj.Name("Heaps").Object()
	defer heaps.End()

	for _, core := range a.cores {
		h, _ := a.heaps.Get(core)

		heapObj := heaps.Name(strconv.Itoa(int(core))).Object()
		h.WriteJson(heapObj)
		heapObj.End()
	}
}
