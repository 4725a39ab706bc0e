package periph

import (
	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/sched"
)

// Driver hosts peripherals on a device without an execution core, such as a
// slot card. The next event is mapped onto a scheduler timer.
type Driver struct {
	*Hub

	s     *sched.Scheduler
	clock sched.Clock
	timer *sched.Timer
}

// NewDriver creates a driver ticking at the clock of owner. It must be
// called from the owner's Start.
func NewDriver(owner *device.Device, s *sched.Scheduler) *Driver {
	d := &Driver{
		Hub:   NewHub(owner),
		s:     s,
		clock: s.Clock(owner.ClockHz()),
	}
	d.timer = s.NewTimer(owner.Tag(), "periph", func(int) { d.InternalUpdate() })
	return d
}

func (d *Driver) Clock() sched.Clock { return d.clock }

// TotalCycles returns the current time in driver cycles.
func (d *Driver) TotalCycles() uint64 {
	return d.clock.Cycles(d.s.Now())
}

// InternalUpdate updates all peripherals and re-arms the event timer.
func (d *Driver) InternalUpdate() {
	next := d.Update(d.TotalCycles())
	if next == 0 {
		d.timer.Disable()
		return
	}
	log.ModPeriph.DebugZ("next event").
		String("host", d.owner.Tag()).
		Uint64("cycle", next).
		End()
	d.timer.AdjustAt(d.clock.Duration(next), 0)
}

// CatchUp brings all peripherals up to date. Call it before accessing
// peripheral registers.
func (d *Driver) CatchUp() {
	if d.Due(d.TotalCycles()) {
		d.InternalUpdate()
	}
}

func (d *Driver) Synchronize() {
	d.s.Synchronize()
}

// Stop cancels the pending event, for instance when the card is ejected.
func (d *Driver) Stop() {
	d.timer.Disable()
}

// PostLoad resynchronizes the pending event with the restored timer.
func (d *Driver) PostLoad() {
	d.next = 0
	if d.timer.Enabled() {
		d.next = d.clock.Cycles(d.timer.Deadline())
	}
}
