package timer16

import (
	"fmt"
	"math"

	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
)

// Channel register offsets, relative to the channel base.
const (
	TCR  = 0x0
	TIOR = 0x1
	TIER = 0x2
	TSR  = 0x3
	TCNT = 0x4
	GRA  = 0x6
	GRB  = 0x8

	ChannelSize = 0xa
)

// Interrupt sources, as TIER/TSR bits.
const (
	IrqA = 0x01 // compare match A
	IrqB = 0x02 // compare match B
	IrqV = 0x04 // overflow
)

// counter clock source
const (
	clockDiv uint8 = iota
	clockInputA
	clockInputB
	clockInputC
	clockInputD
)

// counter clearing source
const (
	clearNone int8 = -1
	clearExt  int8 = -2
)

// Channel is one 16-bit counter with two general registers.
type Channel struct {
	TCR  hwio.Reg8  `hwio:"offset=0x0,reset=0x80,rwmask=0x7f,wcb"`
	TIOR hwio.Reg8  `hwio:"offset=0x1,reset=0x88,rwmask=0x77"`
	TIER hwio.Reg8  `hwio:"offset=0x2,reset=0xf8,wcb"`
	TSR  hwio.Reg8  `hwio:"offset=0x3,reset=0xf8,rcb,wcb"`
	TCNT hwio.Reg16 `hwio:"offset=0x4,rcb,pcb,wcb"`
	GRA  hwio.Reg16 `hwio:"offset=0x6,reset=0xffff,wcb"`
	GRB  hwio.Reg16 `hwio:"offset=0x8,reset=0xffff,wcb"`

	// Interrupt outputs, asserted while their TSR flag and TIER enable bit
	// are both set.
	IMIA, IMIB, OVI *irq.Line

	unit  *Timer
	index int

	ier        uint8
	clearing   int8
	clockType  uint8
	divider    uint8
	phase      uint64
	cycle      uint32
	lastUpdate uint64
	event      uint64
	active     bool
}

func newChannel(unit *Timer, index int) *Channel {
	c := &Channel{
		unit:  unit,
		index: index,
		IMIA:  irq.NewLine(fmt.Sprintf("imia%d", index), irq.ActiveHigh, irq.Level),
		IMIB:  irq.NewLine(fmt.Sprintf("imib%d", index), irq.ActiveHigh, irq.Level),
		OVI:   irq.NewLine(fmt.Sprintf("ovi%d", index), irq.ActiveHigh, irq.Level),
	}
	hwio.MustInitRegs(c)
	return c
}

func (c *Channel) saveItems() {
	p := fmt.Sprintf("ch%d/", c.index)
	d := &c.unit.Device
	d.SaveItem(p+"tcr", &c.TCR.Value)
	d.SaveItem(p+"tior", &c.TIOR.Value)
	d.SaveItem(p+"tier", &c.TIER.Value)
	d.SaveItem(p+"tsr", &c.TSR.Value)
	d.SaveItem(p+"tcnt", &c.TCNT.Value)
	d.SaveItem(p+"gra", &c.GRA.Value)
	d.SaveItem(p+"grb", &c.GRB.Value)
	d.SaveItem(p+"tcnt_temp", c.TCNT.Latch())
	d.SaveItem(p+"gra_temp", c.GRA.Latch())
	d.SaveItem(p+"grb_temp", c.GRB.Latch())
	d.SaveItem(p+"ier", &c.ier)
	d.SaveItem(p+"clearing", &c.clearing)
	d.SaveItem(p+"clock_type", &c.clockType)
	d.SaveItem(p+"divider", &c.divider)
	d.SaveItem(p+"phase", &c.phase)
	d.SaveItem(p+"cycle", &c.cycle)
	d.SaveItem(p+"last_update", &c.lastUpdate)
	d.SaveItem(p+"event", &c.event)
	d.SaveItem(p+"active", &c.active)
}

// reset leaves the enable state alone, it belongs to TSTR.
func (c *Channel) reset() {
	c.TCR.Value = 0x80
	c.TIOR.Value = 0x88
	c.TIER.Value = 0xf8
	c.TSR.Value = 0xf8
	c.TCNT.Value = 0
	c.GRA.Value = 0xffff
	c.GRB.Value = 0xffff
	c.ier = 0
	c.clearing = clearNone
	c.clockType = clockDiv
	c.divider = 0
	c.phase = 0
	c.cycle = 0x10000
	c.lastUpdate = 0
	c.event = 0
}

// Counter returns the current counter value without side effects.
func (c *Channel) Counter() uint16 {
	return c.PeekTCNT(c.TCNT.Value)
}

func (c *Channel) Active() bool  { return c.active }
func (c *Channel) Event() uint64 { return c.event }

func (c *Channel) isr() uint8 { return c.TSR.Value & (IrqA | IrqB | IrqV) }

func (c *Channel) gr(i int8) uint16 {
	if i == 0 {
		return c.GRA.Value
	}
	return c.GRB.Value
}

func (c *Channel) now() uint64 { return c.unit.host.TotalCycles() }

func (c *Channel) setEnable(enable bool) {
	now := c.now()
	c.updateCounter(now)
	c.active = enable
	c.recalc(now)
}

// updateCounter brings the counter from the last update to now.
func (c *Channel) updateCounter(now uint64) {
	if c.clockType != clockDiv {
		return
	}
	if !c.active {
		c.lastUpdate = now
		return
	}
	base, cur := c.lastUpdate, now
	if c.divider != 0 {
		base = (base + c.phase) >> c.divider
		cur = (cur + c.phase) >> c.divider
	}
	if cur > base {
		c.count(cur - base)
	}
	c.lastUpdate = now
}

// count advances the counter by delta ticks. Compare matches are checked on
// both the unwrapped and the wrapped value, so a match on the clearing
// register and an overflow can both fire on the same tick.
func (c *Channel) count(delta uint64) {
	tt := uint64(c.TCNT.Value) + delta
	c.TCNT.Value = uint16(tt % uint64(c.cycle))
	for i := range int8(2) {
		gr := c.gr(i)
		if c.ier&(1<<i) != 0 && (tt == uint64(gr) || c.TCNT.Value == gr) {
			c.TSR.Value |= 1 << i
		}
	}
	if tt >= 0x10000 && c.ier&IrqV != 0 {
		c.TSR.Value |= IrqV
	}
}

// recalc computes the next event and tells the host if it moved.
func (c *Channel) recalc(now uint64) {
	old := c.event
	c.event = c.nextEvent(now)
	if old != c.event {
		c.unit.host.InternalUpdate()
	}
}

func (c *Channel) nextEvent(now uint64) uint64 {
	if !c.active {
		return 0
	}

	const never = math.MaxUint32
	delay := uint32(never)
	tcnt := uint32(c.TCNT.Value)
	if c.clearing >= 0 && c.gr(c.clearing) != 0 {
		c.cycle = uint32(c.gr(c.clearing))
	} else {
		c.cycle = 0x10000
		if c.ier&IrqV != 0 {
			delay = c.cycle - tcnt
			if delay == 0 {
				delay = c.cycle
			}
		}
	}
	if c.clockType != clockDiv {
		return 0
	}

	for i := range int8(2) {
		if c.ier&(1<<i) == 0 {
			continue
		}
		gr := uint32(c.gr(i))
		d := uint32(never)
		switch {
		case gr > tcnt:
			if tcnt >= c.cycle || gr <= c.cycle {
				d = gr - tcnt
			}
		case gr <= c.cycle:
			if tcnt < c.cycle {
				d = c.cycle - tcnt + gr
			} else {
				d = 0x10000 - tcnt + gr
			}
		}
		delay = min(delay, d)
	}
	if delay == never {
		return 0
	}

	div := c.divider
	return ((((now + 1<<div - c.phase) >> div) + uint64(delay) - 1) << div) + c.phase
}

func (c *Channel) internalUpdate(now uint64) uint64 {
	if c.event != 0 && now >= c.event {
		c.updateCounter(now)
		old := c.event
		c.event = c.nextEvent(now)
		if c.event == old {
			// the counter did not reach the event, retry on the next tick
			c.event = now + 1
		}
	}
	return c.event
}

// tick counts one edge of an external clock input.
func (c *Channel) tick() {
	now := c.now()
	c.count(1)
	c.recalc(now)
}

func (c *Channel) updateIRQ() {
	isr := c.isr() & c.ier
	c.IMIA.SetBool(isr&IrqA != 0)
	c.IMIB.SetBool(isr&IrqB != 0)
	c.OVI.SetBool(isr&IrqV != 0)
}

func (c *Channel) restoreIRQ() {
	isr := c.isr() & c.ier
	c.IMIA.Restore(hwdefs.StateOf(isr&IrqA != 0))
	c.IMIB.Restore(hwdefs.StateOf(isr&IrqB != 0))
	c.OVI.Restore(hwdefs.StateOf(isr&IrqV != 0))
}

// tcrUpdate decodes the clearing source and the counter clock from TCR.
func (c *Channel) tcrUpdate() {
	tcr := c.TCR.Value
	switch tcr & 0x60 {
	case 0x00:
		c.clearing = clearNone
	case 0x20:
		c.clearing = 0
	case 0x40:
		c.clearing = 1
	case 0x60:
		c.clearing = clearExt
	}

	sel := tcr & 7
	if sel >= 4 {
		c.clockType = clockInputA + (sel - 4)
		c.divider = 0
		c.phase = 0
		return
	}
	c.clockType = clockDiv
	c.divider = sel
	c.phase = 0
	if sel >= 2 {
		switch tcr & 0x18 {
		case 0x08: // 180
			c.phase = 1 << (c.divider - 1)
		case 0x10, 0x18: // 0+180
			c.divider--
		}
	}
}

// edgeMatches reports whether an external clock edge counts, according to
// the edge selection of TCR.
func (c *Channel) edgeMatches(rising bool) bool {
	switch c.TCR.Value & 0x18 {
	case 0x00:
		return rising
	case 0x08:
		return !rising
	}
	return true
}

func (c *Channel) catchUp() { c.unit.catchUp() }

func (c *Channel) WriteTCR(old, val uint8) {
	c.catchUp()
	now := c.now()
	c.TCR.Value = old
	c.updateCounter(now)
	c.TCR.Value = val
	c.tcrUpdate()
	c.recalc(now)
}

func (c *Channel) WriteTIER(_, val uint8) {
	c.catchUp()
	now := c.now()
	c.updateCounter(now)
	c.TIER.Value = val | 0xf8
	c.ier = val & (IrqA | IrqB | IrqV)
	c.recalc(now)
	c.updateIRQ()
}

func (c *Channel) ReadTSR(val uint8) uint8 {
	c.catchUp()
	c.updateCounter(c.now())
	c.updateIRQ()
	return c.TSR.Value
}

// WriteTSR clears the flags written as 0.
func (c *Channel) WriteTSR(old, val uint8) {
	c.TSR.Value = old & (val | 0xf8)
	c.updateIRQ()
}

func (c *Channel) ReadTCNT(uint16) uint16 {
	c.catchUp()
	c.updateCounter(c.now())
	c.updateIRQ()
	return c.TCNT.Value
}

func (c *Channel) PeekTCNT(val uint16) uint16 {
	if c.clockType != clockDiv || !c.active {
		return val
	}
	base, cur := c.lastUpdate, c.now()
	if c.divider != 0 {
		base = (base + c.phase) >> c.divider
		cur = (cur + c.phase) >> c.divider
	}
	if cur <= base {
		return val
	}
	return uint16((uint64(val) + cur - base) % uint64(c.cycle))
}

func (c *Channel) WriteTCNT(old, val uint16) {
	c.writeCounted(&c.TCNT, old, val)
}

func (c *Channel) WriteGRA(old, val uint16) {
	c.writeCounted(&c.GRA, old, val)
}

func (c *Channel) WriteGRB(old, val uint16) {
	c.writeCounted(&c.GRB, old, val)
}

// writeCounted catches the counter up with the old register value before
// the write takes effect.
func (c *Channel) writeCounted(reg *hwio.Reg16, old, val uint16) {
	c.catchUp()
	now := c.now()
	reg.Value = old
	c.updateCounter(now)
	reg.Value = val
	c.recalc(now)
	c.updateIRQ()
}
