package sched

// Executor is a device that executes instructions (a CPU).
type Executor interface {
	// ExecuteRun executes until ExecState().ICount drops to zero or below.
	ExecuteRun()
	ExecState() *Exec
}

// Suspend reasons.
const (
	SuspendHalt uint32 = 1 << iota
	SuspendEjected
	SuspendDebug
)

// Exec holds the scheduling state of an executor. CPUs embed it and decrement
// ICount as they consume cycles.
type Exec struct {
	ICount int64
	Clock  Clock

	name    string
	s       *Scheduler
	budget  int64
	total   uint64
	local   Time
	suspend uint32
	aborted bool
}

func (e *Exec) ExecState() *Exec { return e }

// Name of the executor, as registered with the scheduler.
func (e *Exec) Name() string { return e.name }

func (e *Exec) executing() bool { return e.s != nil && e.s.current == e }

// TotalCycles returns the number of cycles executed since power on,
// including those of the instruction in progress.
func (e *Exec) TotalCycles() uint64 {
	if e.executing() {
		return e.total + uint64(e.budget-e.ICount)
	}
	return e.total
}

// LocalTime returns the executor's position in virtual time.
func (e *Exec) LocalTime() Time {
	if e.executing() {
		return e.local + e.Clock.Duration(uint64(e.budget-e.ICount))
	}
	return e.local
}

// AbortTimeslice ends the current slice after the instruction in progress.
func (e *Exec) AbortTimeslice() {
	if !e.executing() {
		return
	}
	if e.ICount > 0 {
		e.budget -= e.ICount
		e.ICount = 0
	}
	e.aborted = true
}

func (e *Exec) Suspend(reason uint32) {
	e.suspend |= reason
	e.AbortTimeslice()
}

func (e *Exec) Resume(reason uint32) {
	e.suspend &^= reason
}

func (e *Exec) Suspended() bool { return e.suspend != 0 }

// SuspendedBy reports whether reason is one of the suspend reasons.
func (e *Exec) SuspendedBy(reason uint32) bool { return e.suspend&reason != 0 }

// ResetTotal clears the cycle counters, for a hard reset.
func (e *Exec) ResetTotal() {
	e.total = 0
}
