package cards

import (
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
	"emucore/hw/periph"
	"emucore/hw/slot"
	"emucore/hw/timer16"
)

// TimerCard is a two channel 16-bit timer unit in the IO window. The
// compare match and overflow interrupts are ORed on the slot IRQ, except
// the overflow of channel 1 which drives the slot NMI.
type TimerCard struct {
	device.Device

	Timer *timer16.Timer
	irq   *irq.Merger

	drv  *periph.Driver
	regs *hwio.Table
	host slot.Host
}

func NewTimerCard(tag string, clock uint64) *TimerCard {
	c := &TimerCard{
		Timer: timer16.New("timer", clock, 2),
		irq:   irq.NewMerger("irq", []string{"imia0", "imib0", "ovi0", "imia1", "imib1"}, irq.ActiveHigh),
		regs:  hwio.NewTable(tag),
	}
	c.Init(tag, "timercard", clock)
	c.regs.Default = 0xff

	ch0, ch1 := c.Timer.Channels[0], c.Timer.Channels[1]
	for i, l := range []*irq.Line{ch0.IMIA, ch0.IMIB, ch0.OVI, ch1.IMIA, ch1.IMIB} {
		l.Connect(c.irq.Input(i))
	}
	c.irq.Output().Connect(func(s hwdefs.LineState) {
		if c.host != nil {
			c.host.IrqW(s.Bool())
		}
	})
	ch1.OVI.Connect(func(s hwdefs.LineState) {
		if c.host != nil {
			c.host.NmiW(s.Bool())
		}
	})
	return c
}

func (c *TimerCard) Parts() []device.Interface {
	return []device.Interface{c.Timer, c.irq}
}

func (c *TimerCard) Start(ctx device.Context) error {
	c.drv = periph.NewDriver(&c.Device, ctx.Scheduler())
	c.drv.Add(c.Timer)
	c.Timer.Attach(c.drv)
	c.Timer.InstallMap(c.regs, 0)
	return nil
}

func (c *TimerCard) PostLoad() { c.drv.PostLoad() }

func (c *TimerCard) Plug(h slot.Host) { c.host = h }
func (c *TimerCard) Unplug()          { c.host = nil }

func (c *TimerCard) ReadIO(off uint16) uint8       { return c.regs.Read8(off) }
func (c *TimerCard) PeekIO(off uint16) uint8       { return c.regs.Peek8(off) }
func (c *TimerCard) WriteIO(off uint16, val uint8) { c.regs.Write8(off, val) }

// ClockInput drives one of the external clock pins of the timer.
func (c *TimerCard) ClockInput(n int, level bool) { c.Timer.ClockInput(n, level) }
