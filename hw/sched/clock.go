package sched

import (
	"math"

	"emucore/emu/log"
)

// Time is a point in virtual time, counted in master-clock ticks.
type Time uint64

// Never is a deadline that is never reached.
const Never Time = math.MaxUint64

// Clock is a device clock domain derived from the master clock.
type Clock struct {
	Hz     uint64
	Period Time // master ticks per cycle
}

// Cycles returns the number of whole cycles in d.
func (c Clock) Cycles(d Time) uint64 { return uint64(d / c.Period) }

// Duration returns the virtual time taken by n cycles.
func (c Clock) Duration(n uint64) Time { return Time(n) * c.Period }

// CyclesCeil returns the number of cycles needed to cover d.
func (c Clock) CyclesCeil(d Time) uint64 {
	return uint64((d + c.Period - 1) / c.Period)
}

// Clock derives a clock domain of hz from the master clock. The period is
// rounded down when hz doesn't divide the master frequency.
func (s *Scheduler) Clock(hz uint64) Clock {
	if hz == 0 {
		log.ModSched.WarnZ("zero clock, using master clock").
			Uint64("master", s.masterHz).
			End()
		hz = s.masterHz
	}
	if hz > s.masterHz {
		log.ModSched.WarnZ("clock faster than master clock, clamped").
			Uint64("hz", hz).
			Uint64("master", s.masterHz).
			End()
		hz = s.masterHz
	}
	if s.masterHz%hz != 0 {
		log.ModSched.WarnZ("clock period rounded down").
			Uint64("hz", hz).
			Uint64("master", s.masterHz).
			Uint64("period", s.masterHz/hz).
			End()
	}
	return Clock{Hz: hz, Period: Time(s.masterHz / hz)}
}
