package cards

import (
	"io"

	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
	"emucore/hw/periph"
	"emucore/hw/sci"
	"emucore/hw/slot"
)

// SerialCard is an SCI in the IO window. Transmitted bytes are written to
// an io.Writer; in loopback mode the transmit pin also feeds the receiver.
type SerialCard struct {
	device.Device

	SCI *sci.SCI
	irq *irq.Merger

	drv  *periph.Driver
	regs *hwio.Table
	out  io.Writer
	host slot.Host
}

func NewSerialCard(tag string, clock uint64, out io.Writer, loopback bool) *SerialCard {
	c := &SerialCard{
		SCI:  sci.New("sci", clock),
		irq:  irq.NewMerger("irq", []string{"eri", "rxi", "txi", "tei"}, irq.ActiveHigh),
		regs: hwio.NewTable(tag),
		out:  out,
	}
	c.Init(tag, "serialcard", clock)
	c.regs.Default = 0xff

	for i, l := range []*irq.Line{c.SCI.ERI, c.SCI.RXI, c.SCI.TXI, c.SCI.TEI} {
		l.Connect(c.irq.Input(i))
	}
	c.irq.Output().Connect(func(s hwdefs.LineState) {
		if c.host != nil {
			c.host.IrqW(s.Bool())
		}
	})
	if loopback {
		c.SCI.TX = c.SCI.RxW
	}
	c.SCI.Sent = c.sent
	return c
}

func (c *SerialCard) Parts() []device.Interface {
	return []device.Interface{c.SCI, c.irq}
}

func (c *SerialCard) Start(ctx device.Context) error {
	c.drv = periph.NewDriver(&c.Device, ctx.Scheduler())
	c.drv.Add(c.SCI)
	c.SCI.Attach(c.drv)
	c.SCI.InstallMap(c.regs, 0)
	return nil
}

func (c *SerialCard) PostLoad() { c.drv.PostLoad() }

func (c *SerialCard) Plug(h slot.Host) { c.host = h }
func (c *SerialCard) Unplug()          { c.host = nil }

func (c *SerialCard) ReadIO(off uint16) uint8       { return c.regs.Read8(off) }
func (c *SerialCard) PeekIO(off uint16) uint8       { return c.regs.Peek8(off) }
func (c *SerialCard) WriteIO(off uint16, val uint8) { c.regs.Write8(off, val) }

func (c *SerialCard) sent(data uint8) {
	if c.out == nil {
		return
	}
	if _, err := c.out.Write([]byte{data}); err != nil {
		modCards.WarnZ("serial output").
			String("tag", c.Tag()).
			Error("err", err).
			End()
		c.out = nil
	}
}
