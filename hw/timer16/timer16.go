// Package timer16 implements the 16-bit integrated timer unit of H8
// microcontrollers: up to five counters sharing a start register.
package timer16

import (
	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwio"
	"emucore/hw/periph"
)

var modTimer = log.NewModule("timer16")

// Unit register offsets. Channel n registers start at ChannelBase +
// n*ChannelSize.
const (
	TSTR        = 0x00
	TSNC        = 0x01
	TMDR        = 0x02
	TFCR        = 0x03
	ChannelBase = 0x04
	TOER        = 0x36
	TOCR        = 0x37

	Size        = 0x38
	MaxChannels = 5
)

// Timer is the timer unit. Only TSTR has an effect, the other unit
// registers are kept for the software that programs them.
type Timer struct {
	device.Device

	TSTR hwio.Reg8 `hwio:"offset=0x00,wcb"`
	TSNC hwio.Reg8 `hwio:"offset=0x01"`
	TMDR hwio.Reg8 `hwio:"offset=0x02,reset=0x80,rwmask=0x7f"`
	TFCR hwio.Reg8 `hwio:"offset=0x03,reset=0xc0,rwmask=0x3f"`
	TOER hwio.Reg8 `hwio:"offset=0x36,reset=0xff,rwmask=0x3f"`
	TOCR hwio.Reg8 `hwio:"offset=0x37,reset=0xff,rwmask=0x13"`

	Channels []*Channel

	host    periph.Host
	catchUp func()
	inputs  [4]bool
	unused  uint8 // TSTR/TSNC bits without a channel
}

// New returns a unit with n channels, clocked by its host.
func New(tag string, clock uint64, n int) *Timer {
	if n < 1 || n > MaxChannels {
		panic("timer16: invalid channel count")
	}
	t := &Timer{}
	t.Init(tag, "timer16", clock)
	hwio.MustInitRegs(t)
	t.unused = 0xff << n
	t.TSTR.RoMask = t.unused
	t.TSNC.RoMask = t.unused
	for i := range n {
		t.Channels = append(t.Channels, newChannel(t, i))
	}
	return t
}

// Attach sets the device hosting the unit; see sci.SCI.Attach.
func (t *Timer) Attach(host periph.Host) {
	t.host = host
	t.catchUp = func() {}
	if c, ok := host.(interface{ CatchUp() }); ok {
		t.catchUp = c.CatchUp
	}
}

func (t *Timer) Start(device.Context) error {
	if t.host == nil {
		return errors.Errorf("%s: no host attached", t.Tag())
	}
	t.SaveItem("tstr", &t.TSTR.Value)
	t.SaveItem("tsnc", &t.TSNC.Value)
	t.SaveItem("tmdr", &t.TMDR.Value)
	t.SaveItem("tfcr", &t.TFCR.Value)
	t.SaveItem("toer", &t.TOER.Value)
	t.SaveItem("tocr", &t.TOCR.Value)
	t.SaveItem("inputs", &t.inputs)
	for _, c := range t.Channels {
		c.saveItems()
	}
	return nil
}

func (t *Timer) Reset(bool) {
	for _, c := range t.Channels {
		c.reset()
	}
	t.TSTR.Value = t.unused
	t.TSNC.Value = t.unused
	t.TMDR.Value = 0x80
	t.TFCR.Value = 0xc0
	t.TOER.Value = 0xff
	t.TOCR.Value = 0xff
	for _, c := range t.Channels {
		c.setEnable(false)
		c.updateIRQ()
	}
}

func (t *Timer) PostLoad() {
	for _, c := range t.Channels {
		c.restoreIRQ()
	}
}

func (t *Timer) InstallMap(tbl *hwio.Table, base uint16) {
	tbl.MapBank(base, t, 0)
	for i, c := range t.Channels {
		tbl.MapBank(base+ChannelBase+uint16(i*ChannelSize), c, 0)
	}
}

func (t *Timer) InterruptLines() []device.Signal {
	var lines []device.Signal
	for _, c := range t.Channels {
		lines = append(lines, c.IMIA, c.IMIB, c.OVI)
	}
	return lines
}

// InternalUpdate updates the channels whose event is due and returns the
// closest next event.
func (t *Timer) InternalUpdate(now uint64) uint64 {
	var next uint64
	for _, c := range t.Channels {
		ev := c.internalUpdate(now)
		c.updateIRQ()
		if ev != 0 && (next == 0 || ev < next) {
			next = ev
		}
	}
	return next
}

func (t *Timer) WriteTSTR(_, val uint8) {
	t.catchUp()
	modTimer.DebugZ("tstr").
		String("tag", t.Tag()).
		Hex8("val", val).
		End()
	for i, c := range t.Channels {
		c.setEnable(val&(1<<i) != 0)
	}
}

// ClockInput drives the external clock input n (0 for TCLKA to 3 for
// TCLKD). Channels counting that input advance on the edges selected in
// their TCR.
func (t *Timer) ClockInput(n int, level bool) {
	if t.inputs[n] == level {
		return
	}
	t.catchUp()
	t.inputs[n] = level
	for _, c := range t.Channels {
		if !c.active || c.clockType != clockInputA+uint8(n) || !c.edgeMatches(level) {
			continue
		}
		c.tick()
		c.updateIRQ()
	}
}
