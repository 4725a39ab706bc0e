// Package sched implements the virtual time base shared by all devices of a
// machine: timers ordered by deadline and cooperative timeslicing of
// executors.
package sched

import (
	"container/heap"
	"fmt"

	"emucore/emu/log"
	"emucore/hw/save"
)

// Scheduler owns virtual time. It is not safe for concurrent use: each
// machine runs on a single goroutine.
type Scheduler struct {
	masterHz uint64
	quantum  Time
	now      Time

	all    []*Timer // allocation order
	timers timerHeap

	execs   []Executor
	current *Exec
	target  Time
}

// New returns a scheduler for a master clock of masterHz. The default
// quantum is 100µs of virtual time.
func New(masterHz uint64) *Scheduler {
	if masterHz == 0 {
		panic("sched: zero master clock")
	}
	return &Scheduler{
		masterHz: masterHz,
		quantum:  Time(max(masterHz/10000, 1)),
	}
}

func (s *Scheduler) MasterHz() uint64 { return s.masterHz }
func (s *Scheduler) Quantum() Time    { return s.quantum }

// SetQuantum sets the maximum length of a timeslice.
func (s *Scheduler) SetQuantum(q Time) {
	if q == 0 {
		log.ModSched.WarnZ("zero quantum, clamped to 1").End()
		q = 1
	}
	s.quantum = q
}

// Now returns the current virtual time. While an executor runs, this is the
// executor's local time.
func (s *Scheduler) Now() Time {
	if s.current != nil {
		return s.current.LocalTime()
	}
	return s.now
}

// Current returns the executing executor, or nil between timeslices and
// while timers fire.
func (s *Scheduler) Current() Executor {
	if s.current == nil {
		return nil
	}
	for _, ex := range s.execs {
		if ex.ExecState() == s.current {
			return ex
		}
	}
	return nil
}

// AddExecutor registers an executor. Executors run in registration order
// within each timeslice.
func (s *Scheduler) AddExecutor(name string, ex Executor) {
	e := ex.ExecState()
	if e.Clock.Period == 0 {
		panic(fmt.Sprintf("sched: executor %s has no clock", name))
	}
	e.name = name
	e.s = s
	e.local = s.now
	s.execs = append(s.execs, ex)
}

// Synchronize ends the current timeslice after the instruction in progress
// so that other devices catch up.
func (s *Scheduler) Synchronize() {
	if s.current != nil {
		s.current.AbortTimeslice()
	}
}

// Run advances virtual time up to until.
func (s *Scheduler) Run(until Time) {
	for s.now < until {
		s.timeslice(until)
	}
}

// RunFor advances virtual time by d.
func (s *Scheduler) RunFor(d Time) {
	s.Run(s.now + d)
}

func (s *Scheduler) timeslice(limit Time) {
	target := min(s.nextDeadline(), s.now+s.quantum, limit)
	s.target = target

	for _, ex := range s.execs {
		e := ex.ExecState()
		if e.local >= s.target {
			continue
		}
		if e.suspend != 0 {
			e.local = s.target
			continue
		}

		cycles := int64(e.Clock.CyclesCeil(s.target - e.local))
		e.budget, e.ICount = cycles, cycles
		e.aborted = false
		s.current = e
		ex.ExecuteRun()
		s.current = nil

		ran := e.budget - e.ICount
		if ran < 0 {
			ran = 0
		}
		e.total += uint64(ran)
		e.local += e.Clock.Duration(uint64(ran))
		e.budget, e.ICount = 0, 0

		if e.aborted {
			e.aborted = false
			if e.local < s.target {
				s.target = e.local
			}
		}
	}

	s.fireTimers(s.target)
	s.now = s.target
}

// RegisterState adds the scheduler state (time, timers, executors) to reg.
// It must be called once every timer and executor has been created.
func (s *Scheduler) RegisterState(reg *save.Registry) error {
	if err := reg.Register("sched/now", &s.now); err != nil {
		return err
	}
	for _, t := range s.all {
		prefix := "timer/" + t.Name() + "/"
		for _, it := range []struct {
			name string
			ptr  any
		}{
			{"deadline", &t.deadline},
			{"period", &t.period},
			{"param", &t.param},
			{"enabled", &t.enabled},
		} {
			if err := reg.Register(prefix+it.name, it.ptr); err != nil {
				return err
			}
		}
	}
	for _, ex := range s.execs {
		e := ex.ExecState()
		prefix := "exec/" + e.name + "/"
		if err := reg.Register(prefix+"total", &e.total); err != nil {
			return err
		}
		if err := reg.Register(prefix+"local", &e.local); err != nil {
			return err
		}
		if err := reg.Register(prefix+"suspend", &e.suspend); err != nil {
			return err
		}
	}
	return nil
}

// PostLoad rebuilds the timer queue after a state load.
func (s *Scheduler) PostLoad() {
	for _, t := range s.timers {
		t.index = -1
	}
	s.timers = s.timers[:0]
	for _, t := range s.all {
		if t.enabled {
			s.timers.Push(t)
		}
	}
	heap.Init(&s.timers)
}

// Unwind closes a timeslice interrupted by a panic escaping an executor, so
// that the scheduler remains consistent.
func (s *Scheduler) Unwind() {
	e := s.current
	if e == nil {
		return
	}
	ran := max(e.budget-e.ICount, 0)
	e.total += uint64(ran)
	e.local += e.Clock.Duration(uint64(ran))
	e.budget, e.ICount = 0, 0
	e.aborted = false
	s.current = nil
}
