// Package watchdog implements a watchdog timer: unless kicked, it resets
// the machine, or stops it with a fatal error, once its period elapses.
package watchdog

import (
	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/sched"
)

var modWDT = log.NewModule("wdt")

// Register offsets.
const (
	KICK   = 0
	CTRL   = 1
	STATUS = 2

	Size = 3
)

// CTRL bits.
const (
	CtrlEnable = 0x01
	CtrlFatal  = 0x02
)

type Watchdog struct {
	device.Device

	KICK   hwio.Reg8 `hwio:"offset=0,writeonly,wcb"`
	CTRL   hwio.Reg8 `hwio:"offset=1,rwmask=0x03,wcb"`
	STATUS hwio.Reg8 `hwio:"offset=2,readonly"`

	period uint64 // in device cycles
	ctx    device.Context
	clock  sched.Clock
	timer  *sched.Timer
}

// New returns a watchdog expiring period cycles of clock after the last
// kick.
func New(tag string, clock, period uint64) *Watchdog {
	w := &Watchdog{period: max(period, 1)}
	w.Init(tag, "watchdog", clock)
	hwio.MustInitRegs(w)
	return w
}

func (w *Watchdog) Start(ctx device.Context) error {
	w.ctx = ctx
	w.clock = ctx.Scheduler().Clock(w.ClockHz())
	w.timer = ctx.Scheduler().NewTimer(w.Tag(), "expire", func(int) { w.expire() })
	w.SaveItem("ctrl", &w.CTRL.Value)
	w.SaveItem("status", &w.STATUS.Value)
	return nil
}

// Reset keeps the configuration and the expiry count over a soft reset, so
// that software can find out why it restarted.
func (w *Watchdog) Reset(soft bool) {
	if !soft {
		w.CTRL.Value = 0
		w.STATUS.Value = 0
	}
	w.arm()
}

func (w *Watchdog) InstallMap(t *hwio.Table, base uint16) {
	t.MapBank(base, w, 0)
}

func (w *Watchdog) Enabled() bool         { return w.CTRL.Value&CtrlEnable != 0 }
func (w *Watchdog) Expirations() uint8    { return w.STATUS.Value }
func (w *Watchdog) Period() uint64        { return w.period }
func (w *Watchdog) Remaining() sched.Time { return w.timer.Remaining() }

// Kick restarts the countdown.
func (w *Watchdog) Kick() { w.arm() }

func (w *Watchdog) arm() {
	if !w.Enabled() {
		w.timer.Disable()
		return
	}
	w.timer.Adjust(w.clock.Duration(w.period), 0, 0)
}

func (w *Watchdog) WriteKICK(_, _ uint8) { w.arm() }

func (w *Watchdog) WriteCTRL(old, val uint8) {
	if old&CtrlEnable != val&CtrlEnable {
		modWDT.DebugZ("enable").
			String("tag", w.Tag()).
			Bool("on", val&CtrlEnable != 0).
			End()
	}
	w.arm()
}

func (w *Watchdog) expire() {
	w.STATUS.Value++
	modWDT.WarnZ("expired").
		String("tag", w.Tag()).
		Uint8("count", w.STATUS.Value).
		Bool("fatal", w.CTRL.Value&CtrlFatal != 0).
		End()
	if w.CTRL.Value&CtrlFatal != 0 {
		w.Fatalf("watchdog expired")
	}
	w.ctx.Reset(hwdefs.SoftReset)
}
