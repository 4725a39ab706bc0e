package sched

import (
	"container/heap"

	"emucore/emu/log"
)

// TimerFunc is called when a timer fires, with the parameter given when it
// was armed.
type TimerFunc func(param int)

// Timer is a one-shot or periodic callback in virtual time.
type Timer struct {
	s     *Scheduler
	owner string
	name  string
	cb    TimerFunc

	deadline Time
	period   Time // 0 for one-shot
	param    int
	enabled  bool

	seq   uint64 // allocation order, breaks deadline ties
	index int    // heap index, -1 when not queued
}

// NewTimer allocates a disabled timer.
func (s *Scheduler) NewTimer(owner, name string, cb TimerFunc) *Timer {
	t := &Timer{
		s:     s,
		owner: owner,
		name:  name,
		cb:    cb,
		seq:   uint64(len(s.all)),
		index: -1,
	}
	s.all = append(s.all, t)
	return t
}

func (t *Timer) Name() string  { return t.owner + "/" + t.name }
func (t *Timer) Enabled() bool { return t.enabled }
func (t *Timer) Param() int    { return t.param }
func (t *Timer) Period() Time  { return t.period }

// Deadline returns the time at which the timer fires, or Never.
func (t *Timer) Deadline() Time {
	if !t.enabled {
		return Never
	}
	return t.deadline
}

// Remaining returns the time left before the timer fires, or Never.
func (t *Timer) Remaining() Time {
	if !t.enabled {
		return Never
	}
	now := t.s.Now()
	if t.deadline <= now {
		return 0
	}
	return t.deadline - now
}

// Adjust arms the timer to fire delay ticks from now, then every period ticks
// if period is not zero.
func (t *Timer) Adjust(delay Time, param int, period Time) {
	t.period = period
	t.AdjustAt(t.s.Now()+delay, param)
}

// AdjustAt arms the timer to fire at an absolute time. A deadline in the
// past fires at the current time.
func (t *Timer) AdjustAt(deadline Time, param int) {
	now := t.s.Now()
	if deadline < now {
		deadline = now
	}
	t.param = param
	t.deadline = deadline
	t.enabled = true
	t.s.queue(t)
}

// Disable cancels the timer.
func (t *Timer) Disable() {
	t.enabled = false
	t.period = 0
	t.s.dequeue(t)
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (s *Scheduler) queue(t *Timer) {
	if t.index >= 0 {
		heap.Fix(&s.timers, t.index)
	} else {
		heap.Push(&s.timers, t)
	}

	// An event inside the running slice must stop the executor early so
	// that it is processed on time.
	if s.current != nil && t.deadline < s.target {
		log.ModSched.DebugZ("timer inside timeslice").
			String("timer", t.Name()).
			Uint64("deadline", uint64(t.deadline)).
			Uint64("target", uint64(s.target)).
			End()
		s.current.AbortTimeslice()
	}
}

func (s *Scheduler) dequeue(t *Timer) {
	if t.index >= 0 {
		heap.Remove(&s.timers, t.index)
	}
}

// nextDeadline returns the deadline of the first timer in the queue.
func (s *Scheduler) nextDeadline() Time {
	if len(s.timers) == 0 {
		return Never
	}
	return s.timers[0].deadline
}

// fireTimers runs all timers due at or before limit, in deadline order.
func (s *Scheduler) fireTimers(limit Time) {
	for len(s.timers) > 0 && s.timers[0].deadline <= limit {
		t := s.timers[0]
		s.now = t.deadline
		if t.period != 0 {
			t.deadline += t.period
			heap.Fix(&s.timers, 0)
		} else {
			t.enabled = false
			heap.Pop(&s.timers)
		}
		log.ModSched.DebugZ("fire").
			String("timer", t.Name()).
			Uint64("now", uint64(s.now)).
			Int("param", t.param).
			End()
		t.cb(t.param)
	}
}
