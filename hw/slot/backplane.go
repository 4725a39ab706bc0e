package slot

import (
	"fmt"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwio"
	"emucore/hw/irq"
)

// Adder adds devices to a machine; *machine.Machine implements it.
type Adder interface {
	MustAdd(owner, impl device.Interface)
}

// Composite cards are built from other devices, which become their
// children in the machine.
type Composite interface {
	Parts() []device.Interface
}

// AddCard adds card and its parts to the machine as a child of the slot,
// and registers it as an option.
func (s *Slot) AddCard(m Adder, card device.Interface) {
	m.MustAdd(s, card)
	addParts(m, card)
	s.AddOption(card)
}

func addParts(m Adder, d device.Interface) {
	c, ok := d.(Composite)
	if !ok {
		return
	}
	for _, p := range c.Parts() {
		m.MustAdd(d, p)
		addParts(m, p)
	}
}

// Backplane connects several slots to a single host connector. All IO
// windows are visible at once, one every stride bytes, followed by the
// SELECT register; the low two bits of SELECT choose the slot whose memory
// window is visible. The IRQ and NMI outputs of the slots are wire-ORed.
type Backplane struct {
	device.Device

	SELECT hwio.Reg8 `hwio:"offset=0,reset=0xff,wcb"`

	Slots    []*Slot
	IRQ, NMI *irq.Merger

	stride uint16
}

func NewBackplane(tag string, n int, memSize, ioSize, stride uint16) *Backplane {
	if n < 1 || n > 4 {
		panic("slot: a backplane has 1 to 4 slots")
	}
	if stride < ioSize {
		panic("slot: io stride smaller than the io window")
	}
	b := &Backplane{stride: stride}
	b.Init(tag, "backplane", 0)
	hwio.MustInitRegs(b)

	names := make([]string, n)
	for i := range n {
		names[i] = fmt.Sprintf("slot%d", i+1)
		b.Slots = append(b.Slots, New(names[i], memSize, ioSize))
	}
	b.IRQ = irq.NewMerger("irq", names, irq.ActiveHigh)
	b.NMI = irq.NewMerger("nmi", names, irq.ActiveHigh)
	for i, s := range b.Slots {
		s.IRQ.Connect(b.IRQ.Input(i))
		s.NMI.Connect(b.NMI.Input(i))
	}
	return b
}

// AddTo adds the backplane, its slots and its mergers to the machine.
func (b *Backplane) AddTo(m Adder, owner device.Interface) {
	m.MustAdd(owner, b)
	m.MustAdd(b, b.IRQ)
	m.MustAdd(b, b.NMI)
	for _, s := range b.Slots {
		m.MustAdd(b, s)
	}
}

func (b *Backplane) Start(device.Context) error {
	b.SaveItem("select", &b.SELECT.Value)
	return nil
}

func (b *Backplane) Reset(bool) {
	b.SELECT.Value = 0xff
}

// Selected returns the index of the slot whose memory window is visible.
func (b *Backplane) Selected() int {
	return min(int(b.SELECT.Value&3), len(b.Slots)-1)
}

func (b *Backplane) WriteSELECT(old, val uint8) {
	if old&3 != val&3 {
		log.ModSlot.DebugZ("select").
			String("tag", b.Tag()).
			Int("slot", b.Selected()).
			End()
	}
}

// InstallMap maps the memory window of the selected slot at base.
func (b *Backplane) InstallMap(t *hwio.Table, base uint16) {
	size := b.Slots[0].memSize
	if size == 0 {
		return
	}
	t.Install(base, base+size-1, 0xffff, &window{
		name:  b.Tag() + "/mem",
		read:  func(off uint16, peek bool) uint8 { return b.Slots[b.Selected()].readMem(off, peek) },
		write: func(off uint16, val uint8) { b.Slots[b.Selected()].writeMem(off, val) },
	})
}

// InstallIO maps the IO windows of all slots from base, then SELECT.
func (b *Backplane) InstallIO(t *hwio.Table, base uint16) {
	for i, s := range b.Slots {
		s.InstallIO(t, base+uint16(i)*b.stride)
	}
	t.MapBank(base+uint16(len(b.Slots))*b.stride, b, 0)
}
