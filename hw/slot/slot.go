// Package slot implements expansion slots. A slot offers a memory window
// and an IO window to at most one card, and forwards the card's interrupt
// requests to its own IRQ and NMI lines.
package slot

import (
	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
)

// Card capabilities. A card implements any subset of them; a missing one
// behaves as an unconnected bus.
type (
	MemReader interface{ ReadMem(off uint16) uint8 }
	MemWriter interface{ WriteMem(off uint16, val uint8) }
	IOReader  interface{ ReadIO(off uint16) uint8 }
	IOWriter  interface{ WriteIO(off uint16, val uint8) }

	// Peekers read without side effects, for the debugger.
	MemPeeker interface{ PeekMem(off uint16) uint8 }
	IOPeeker  interface{ PeekIO(off uint16) uint8 }

	// Plugger is told when the card is inserted in or ejected from a slot.
	Plugger interface {
		Plug(h Host)
		Unplug()
	}
)

// Host is what a card sees of its slot.
type Host interface {
	IrqW(asserted bool)
	NmiW(asserted bool)
}

type caps struct {
	mr   MemReader
	mw   MemWriter
	mp   MemPeeker
	ir   IOReader
	iw   IOWriter
	ip   IOPeeker
	plug Plugger
}

func resolve(card device.Interface) caps {
	var c caps
	c.mr, _ = card.(MemReader)
	c.mw, _ = card.(MemWriter)
	c.mp, _ = card.(MemPeeker)
	c.ir, _ = card.(IOReader)
	c.iw, _ = card.(IOWriter)
	c.ip, _ = card.(IOPeeker)
	c.plug, _ = card.(Plugger)
	return c
}

// Slot is a card slot. Every card option is a child device of the slot, so
// that all of them are started with the machine and the save state layout
// doesn't depend on which card is inserted.
type Slot struct {
	device.Device

	IRQ, NMI *irq.Line

	// Default is read from the windows when no card answers.
	Default uint8

	memSize, ioSize uint16

	options []device.Interface
	card    device.Interface
	caps    caps
	active  int8 // option index, -1 if empty
	lines   [2]bool
}

// New returns an empty slot with windows of the given sizes.
func New(tag string, memSize, ioSize uint16) *Slot {
	s := &Slot{
		IRQ:     irq.NewLine(tag+"/irq", irq.ActiveHigh, irq.Level),
		NMI:     irq.NewLine(tag+"/nmi", irq.ActiveHigh, irq.Level),
		Default: 0xff,
		memSize: memSize,
		ioSize:  ioSize,
		active:  -1,
	}
	s.Init(tag, "slot", 0)
	return s
}

// AddOption registers a card that can be inserted. Cards are devices: the
// caller must also add them to the machine, as children of the slot.
func (s *Slot) AddOption(card device.Interface) {
	s.options = append(s.options, card)
}

func (s *Slot) Options() []device.Interface { return s.options }

// Card returns the inserted card.
func (s *Slot) Card() (device.Interface, bool) {
	return s.card, s.card != nil
}

func (s *Slot) Start(device.Context) error {
	s.SaveItem("active", &s.active)
	s.SaveItem("lines", &s.lines)
	return nil
}

func (s *Slot) PostLoad() {
	if s.card != nil && s.caps.plug != nil {
		s.caps.plug.Unplug()
	}
	s.card, s.caps = nil, caps{}
	if s.active >= 0 {
		s.plug(int(s.active))
	}
	s.IRQ.Restore(hwdefs.StateOf(s.lines[0]))
	s.NMI.Restore(hwdefs.StateOf(s.lines[1]))
}

func (s *Slot) InterruptLines() []device.Signal {
	return []device.Signal{s.IRQ, s.NMI}
}

// Insert plugs the card option named name. Once the machine is running,
// the card (and only the card) is reset.
func (s *Slot) Insert(name string) error {
	if s.card != nil {
		return errors.Errorf("%s: slot occupied by %s", s.Tag(), s.card.Dev().BaseTag())
	}
	idx := -1
	for i, opt := range s.options {
		if opt.Dev().BaseTag() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Errorf("%s: no card option %q", s.Tag(), name)
	}

	s.active = int8(idx)
	s.plug(idx)
	log.ModSlot.InfoZ("card inserted").
		String("slot", s.Tag()).
		String("card", name).
		End()
	if s.Started() {
		s.card.Dev().Walk(func(d *device.Device) {
			if r, ok := d.Impl().(device.Resetter); ok {
				r.Reset(hwdefs.HardReset)
			}
		})
	}
	return nil
}

func (s *Slot) plug(idx int) {
	s.card = s.options[idx]
	s.caps = resolve(s.card)
	if s.caps.plug != nil {
		s.caps.plug.Plug(&host{s: s, card: s.card})
	}
}

// Eject removes the card and withdraws its interrupt requests.
func (s *Slot) Eject() {
	if s.card == nil {
		return
	}
	log.ModSlot.InfoZ("card ejected").
		String("slot", s.Tag()).
		String("card", s.card.Dev().BaseTag()).
		End()
	if s.caps.plug != nil {
		s.caps.plug.Unplug()
	}
	s.card, s.caps, s.active = nil, caps{}, -1
	s.setLine(0, false)
	s.setLine(1, false)
}

func (s *Slot) setLine(i int, asserted bool) {
	s.lines[i] = asserted
	if i == 0 {
		s.IRQ.SetBool(asserted)
	} else {
		s.NMI.SetBool(asserted)
	}
}

// host is handed to a card when it is plugged. Requests from a card that
// has since been ejected are dropped.
type host struct {
	s    *Slot
	card device.Interface
}

func (h *host) IrqW(asserted bool) {
	if h.s.card == h.card {
		h.s.setLine(0, asserted)
	}
}

func (h *host) NmiW(asserted bool) {
	if h.s.card == h.card {
		h.s.setLine(1, asserted)
	}
}

func (s *Slot) readMem(off uint16, peek bool) uint8 {
	switch {
	case peek && s.caps.mp != nil:
		return s.caps.mp.PeekMem(off)
	case !peek && s.caps.mr != nil:
		return s.caps.mr.ReadMem(off)
	}
	return s.Default
}

func (s *Slot) writeMem(off uint16, val uint8) {
	if s.caps.mw != nil {
		s.caps.mw.WriteMem(off, val)
	}
}

func (s *Slot) readIO(off uint16, peek bool) uint8 {
	switch {
	case peek && s.caps.ip != nil:
		return s.caps.ip.PeekIO(off)
	case !peek && s.caps.ir != nil:
		return s.caps.ir.ReadIO(off)
	}
	return s.Default
}

func (s *Slot) writeIO(off uint16, val uint8) {
	if s.caps.iw != nil {
		s.caps.iw.WriteIO(off, val)
	}
}

// window adapts one of the slot windows to hwio.BankIO8.
type window struct {
	name  string
	read  func(off uint16, peek bool) uint8
	write func(off uint16, val uint8)
}

func (w *window) IOName() string                    { return w.name }
func (w *window) Read8(off uint16, peek bool) uint8 { return w.read(off, peek) }
func (w *window) Write8(off uint16, val uint8)      { w.write(off, val) }

// InstallMap maps the memory window at base.
func (s *Slot) InstallMap(t *hwio.Table, base uint16) {
	if s.memSize == 0 {
		return
	}
	t.Install(base, base+s.memSize-1, 0xffff, &window{s.Tag() + "/mem", s.readMem, s.writeMem})
}

// InstallIO maps the IO window at base.
func (s *Slot) InstallIO(t *hwio.Table, base uint16) {
	if s.ioSize == 0 {
		return
	}
	t.Install(base, base+s.ioSize-1, 0xffff, &window{s.Tag() + "/io", s.readIO, s.writeIO})
}

func (s *Slot) MemSize() uint16 { return s.memSize }
func (s *Slot) IOSize() uint16  { return s.ioSize }
