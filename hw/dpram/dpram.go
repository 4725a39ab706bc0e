// Package dpram implements the MB8421 dual-port static RAM. Its last two
// bytes are mailboxes: writing one from a side interrupts the other side,
// which acknowledges by reading it.
package dpram

import (
	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
)

var modDPRAM = log.NewModule("dpram")

const (
	Size = 0x800

	// MailboxR is written by the left side to interrupt the right side.
	MailboxR = 0x7ff
	// MailboxL is written by the right side to interrupt the left side.
	MailboxL = 0x7fe
)

type side uint8

const (
	left side = iota
	right
)

func (s side) String() string {
	if s == left {
		return "left"
	}
	return "right"
}

// Port is one side of the RAM. Accesses from both ports are serialized by
// the scheduler, so when both sides write the same byte the last write
// wins.
type Port struct {
	d    *DPRAM
	side side
}

func (p *Port) IOName() string { return p.d.Tag() + "/" + p.side.String() }

func (p *Port) Read8(off uint16, peek bool) uint8 {
	off &= Size - 1
	val := p.d.ram[off]
	if peek {
		return val
	}
	switch {
	case p.side == left && off == MailboxL:
		p.d.INTL.SetBool(false)
	case p.side == right && off == MailboxR:
		p.d.INTR.SetBool(false)
	}
	return val
}

func (p *Port) Write8(off uint16, val uint8) {
	off &= Size - 1
	p.d.ram[off] = val
	switch {
	case p.side == left && off == MailboxR:
		p.d.mailbox(p.d.INTR, val)
	case p.side == right && off == MailboxL:
		p.d.mailbox(p.d.INTL, val)
	}
}

// DPRAM is the chip. INTL and INTR are its interrupt outputs towards the
// left and the right side.
type DPRAM struct {
	device.Device

	Left, Right Port
	INTL, INTR  *irq.Line

	ram [Size]uint8
	irq [2]bool // INTL, INTR for save states
}

func New(tag string) *DPRAM {
	d := &DPRAM{
		INTL: irq.NewLine("intl", irq.ActiveLow, irq.Level),
		INTR: irq.NewLine("intr", irq.ActiveLow, irq.Level),
	}
	d.Left = Port{d: d, side: left}
	d.Right = Port{d: d, side: right}
	d.Init(tag, "mb8421", 0)
	return d
}

func (d *DPRAM) Start(device.Context) error {
	d.SaveItem("ram", &d.ram)
	d.SaveItem("int", &d.irq)
	return nil
}

// Reset only clears the interrupts, the RAM contents are kept.
func (d *DPRAM) Reset(bool) {
	d.INTL.SetBool(false)
	d.INTR.SetBool(false)
}

func (d *DPRAM) PreSave() {
	d.irq = [2]bool{d.INTL.Asserted(), d.INTR.Asserted()}
}

func (d *DPRAM) PostLoad() {
	d.INTL.Restore(hwdefs.StateOf(d.irq[0]))
	d.INTR.Restore(hwdefs.StateOf(d.irq[1]))
}

// InstallMap maps the left port. The right port is installed by the
// device on the other side with InstallRight.
func (d *DPRAM) InstallMap(t *hwio.Table, base uint16) {
	t.Install(base, base+Size-1, Size-1, &d.Left)
}

func (d *DPRAM) InstallRight(t *hwio.Table, base uint16) {
	t.Install(base, base+Size-1, Size-1, &d.Right)
}

func (d *DPRAM) InterruptLines() []device.Signal {
	return []device.Signal{d.INTL, d.INTR}
}

// Bytes gives direct access to the RAM, for loaders and the debugger.
func (d *DPRAM) Bytes() []byte { return d.ram[:] }

func (d *DPRAM) mailbox(l *irq.Line, val uint8) {
	modDPRAM.DebugZ("mailbox").
		String("tag", d.Tag()).
		String("line", l.Name()).
		Hex8("val", val).
		End()
	l.SetBool(true)
}
