// Package cpu identifies the physical core a caller is running on.
package cpu

import (
	"strconv"
	"sync/atomic"
)

// CoreID numbers the physical cores from zero. The boot core is always core 0.
type CoreID uint32

const BootCore CoreID = 0

func (c CoreID) String() string {
	return "core" + strconv.FormatUint(uint64(c), 10)
}

// Identity reports which core the caller is executing on
type Identity interface {
	Current() CoreID
}

// Fixed is an Identity that always reports the same core
type Fixed CoreID

func (f Fixed) Current() CoreID {
	return CoreID(f)
}

// Switchable is an Identity whose core can be changed at any time, for platforms that
// migrate a single thread of execution between cores
type Switchable struct {
	current atomic.Uint32
}

var _ Identity = &Switchable{}
var _ Identity = Fixed(0)

func NewSwitchable(initial CoreID) *Switchable {
	s := &Switchable{}
	s.current.Store(uint32(initial))
	return s
}

func (s *Switchable) Current() CoreID {
	return CoreID(s.current.Load())
}

func (s *Switchable) Set(core CoreID) {
	s.current.Store(uint32(core))
}
