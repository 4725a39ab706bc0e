package cards

import (
	"github.com/go-faster/errors"

	"emucore/hw/device"
	"emucore/hw/dpram"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/m6502"
	"emucore/hw/sched"
	"emucore/hw/slot"
)

// Size of the 6502 private RAM, mapped right after the DPRAM.
const MailboxRAMSize = 0x800

// MailboxCard carries a 6502 talking to the host through a dual port RAM.
// The host sees the left port in the memory window; the 6502 sees the
// right port at 0000, followed by a private RAM, and its ROM at the top of
// its address space. The mailbox interrupt towards the right side drives
// the 6502 IRQ, the one towards the left side the slot IRQ.
//
// The 6502 only runs while the card is plugged.
type MailboxCard struct {
	device.Device

	DPRAM *dpram.DPRAM
	CPU   *m6502.CPU
	Bus   *hwio.Table

	rom  []byte
	ram  [MailboxRAMSize]uint8
	host slot.Host
}

// NewMailboxCard builds the card; rom is mapped to end at ffff and must fit
// in the upper half of the 6502 address space.
func NewMailboxCard(tag string, clock uint64, rom []byte) (*MailboxCard, error) {
	if len(rom) == 0 || len(rom) > 0x8000 {
		return nil, errors.Errorf("%s: rom size %#x out of range", tag, len(rom))
	}
	c := &MailboxCard{
		DPRAM: dpram.New("dpram"),
		Bus:   hwio.NewTable(tag + "/cpu"),
		rom:   rom,
	}
	c.CPU = m6502.New("cpu", clock, c.Bus)
	c.Init(tag, "mailboxcard", clock)

	c.DPRAM.INTR.Connect(func(s hwdefs.LineState) {
		c.CPU.SetInputLine(hwdefs.InputLineIRQ0, s)
	})
	c.DPRAM.INTL.Connect(func(s hwdefs.LineState) {
		if c.host != nil {
			c.host.IrqW(s.Bool())
		}
	})
	return c, nil
}

func (c *MailboxCard) Parts() []device.Interface {
	return []device.Interface{c.DPRAM, c.CPU}
}

func (c *MailboxCard) Start(device.Context) error {
	c.DPRAM.InstallRight(c.Bus, 0)
	c.Bus.MapMemorySlice(dpram.Size, dpram.Size+MailboxRAMSize-1, c.ram[:], false)
	c.Bus.MapMemorySlice(uint16(0x10000-len(c.rom)), 0xffff, c.rom, true)
	c.SaveItem("ram", &c.ram)
	return nil
}

// Reset holds the 6502 while the card is out of its slot.
func (c *MailboxCard) Reset(bool) {
	if c.host == nil {
		c.CPU.Suspend(sched.SuspendEjected)
	}
}

func (c *MailboxCard) Plug(h slot.Host) {
	c.host = h
	c.CPU.Resume(sched.SuspendEjected)
}

func (c *MailboxCard) Unplug() {
	c.host = nil
	c.CPU.Suspend(sched.SuspendEjected)
}

func (c *MailboxCard) ReadMem(off uint16) uint8       { return c.DPRAM.Left.Read8(off%dpram.Size, false) }
func (c *MailboxCard) PeekMem(off uint16) uint8       { return c.DPRAM.Left.Read8(off%dpram.Size, true) }
func (c *MailboxCard) WriteMem(off uint16, val uint8) { c.DPRAM.Left.Write8(off%dpram.Size, val) }
