package memutils

import "math"

// Statistics summarizes one or more heap arenas. Sizes include block headers.
type Statistics struct {
	ArenaCount int
	InUseCount int
	ArenaBytes int
	InUseBytes int
}

func (s *Statistics) Clear() {
	s.ArenaCount = 0
	s.InUseCount = 0
	s.ArenaBytes = 0
	s.InUseBytes = 0
}

// FreeBytes is the number of arena bytes not covered by in-use blocks
func (s *Statistics) FreeBytes() int {
	return s.ArenaBytes - s.InUseBytes
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ArenaCount += other.ArenaCount
	s.InUseCount += other.InUseCount
	s.ArenaBytes += other.ArenaBytes
	s.InUseBytes += other.InUseBytes
}

// DetailedStatistics extends Statistics with per-block size extremes. Call Clear before the first
// accumulation so that the minimums start at math.MaxInt.
type DetailedStatistics struct {
	Statistics
	FreeBlockCount   int
	InUseSizeMin     int
	InUseSizeMax     int
	FreeBlockSizeMin int
	FreeBlockSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeBlockCount = 0
	s.InUseSizeMin = math.MaxInt
	s.InUseSizeMax = 0
	s.FreeBlockSizeMin = math.MaxInt
	s.FreeBlockSizeMax = 0
}

func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.FreeBlockCount++

	if size < s.FreeBlockSizeMin {
		s.FreeBlockSizeMin = size
	}

	if size > s.FreeBlockSizeMax {
		s.FreeBlockSizeMax = size
	}
}

func (s *DetailedStatistics) AddInUseBlock(size int) {
	s.InUseCount++
	s.InUseBytes += size

	if size < s.InUseSizeMin {
		s.InUseSizeMin = size
	}

	if size > s.InUseSizeMax {
		s.InUseSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount

	if other.FreeBlockSizeMin < s.FreeBlockSizeMin {
		s.FreeBlockSizeMin = other.FreeBlockSizeMin
	}

	if other.FreeBlockSizeMax > s.FreeBlockSizeMax {
		s.FreeBlockSizeMax = other.FreeBlockSizeMax
	}

	if other.InUseSizeMin < s.InUseSizeMin {
		s.InUseSizeMin = other.InUseSizeMin
	}

	if other.InUseSizeMax > s.InUseSizeMax {
		s.InUseSizeMax = other.InUseSizeMax
	}
}
