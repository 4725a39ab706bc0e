package slot

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/machine"
)

// memCard only answers in the memory window.
type memCard struct {
	device.Device
	mem    [0x100]uint8
	reads  int
	resets int
	host   Host
}

func newMemCard(tag string) *memCard {
	c := &memCard{}
	c.Init(tag, "memcard", 0)
	return c
}

func (c *memCard) Start(device.Context) error {
	c.SaveItem("mem", &c.mem)
	return nil
}

func (c *memCard) ReadMem(off uint16) uint8 {
	c.reads++
	return c.mem[off&0xff]
}

func (c *memCard) Reset(bool)                     { c.resets++ }
func (c *memCard) PeekMem(off uint16) uint8       { return c.mem[off&0xff] }
func (c *memCard) WriteMem(off uint16, val uint8) { c.mem[off&0xff] = val }
func (c *memCard) Plug(h Host)                    { c.host = h }
func (c *memCard) Unplug()                        { c.host = nil }

// ioCard only has an IO register.
type ioCard struct {
	device.Device
	reg uint8
}

func newIOCard(tag string) *ioCard {
	c := &ioCard{}
	c.Init(tag, "iocard", 0)
	return c
}

func (c *ioCard) ReadIO(off uint16) uint8       { return c.reg + uint8(off) }
func (c *ioCard) WriteIO(off uint16, val uint8) { c.reg = val }

type bench struct {
	m    *machine.Machine
	slot *Slot
	mem  *memCard
	io   *ioCard
	bus  *hwio.Table
}

func newBench(t *testing.T) *bench {
	t.Helper()

	b := &bench{
		m:    machine.New("slot", 1_000_000),
		slot: New("slot", 0x100, 0x10),
		mem:  newMemCard("mem"),
		io:   newIOCard("io"),
		bus:  hwio.NewTable("bus"),
	}
	b.m.MustAdd(nil, b.slot)
	b.slot.AddCard(b.m, b.mem)
	b.slot.AddCard(b.m, b.io)
	b.m.Map(b.bus, ":slot", 0xc000)
	if err := b.m.Start(); err != nil {
		t.Fatal(err)
	}
	b.slot.InstallIO(b.bus, 0xff40)
	return b
}

func TestEmptySlot(t *testing.T) {
	b := newBench(t)
	b.bus.Write8(0xc010, 0x12)
	b.bus.Write8(0xff41, 0x34)
	got := []uint8{b.bus.Read8(0xc010), b.bus.Peek8(0xc0ff), b.bus.Read8(0xff41), b.bus.Peek8(0xff4f)}
	if diff := cmp.Diff([]uint8{0xff, 0xff, 0xff, 0xff}, got); diff != "" {
		t.Errorf("empty slot reads mismatch (-want +got):\n%s", diff)
	}
	if _, ok := b.slot.Card(); ok {
		t.Errorf("empty slot has a card")
	}
}

func TestMissingCapability(t *testing.T) {
	b := newBench(t)
	if err := b.slot.Insert("mem"); err != nil {
		t.Fatal(err)
	}
	b.bus.Write8(0xc010, 0x12)
	if got := b.bus.Read8(0xc010); got != 0x12 {
		t.Errorf("mem read = %02x, want 12", got)
	}
	if got := b.bus.Read8(0xff40); got != 0xff {
		t.Errorf("io read on a card without io = %02x, want ff", got)
	}
	// peeks have no side effect
	reads := b.mem.reads
	b.bus.Peek8(0xc010)
	if b.mem.reads != reads {
		t.Errorf("peek went through ReadMem")
	}

	b.slot.Eject()
	if err := b.slot.Insert("io"); err != nil {
		t.Fatal(err)
	}
	b.bus.Write8(0xff40, 0x20)
	if got := b.bus.Read8(0xff43); got != 0x23 {
		t.Errorf("io read = %02x, want 23", got)
	}
	if got := b.bus.Peek8(0xff43); got != 0xff {
		t.Errorf("io peek without IOPeeker = %02x, want ff", got)
	}
	if got := b.bus.Read8(0xc010); got != 0xff {
		t.Errorf("mem read on a card without memory = %02x, want ff", got)
	}
}

func TestInsertErrors(t *testing.T) {
	b := newBench(t)
	if err := b.slot.Insert("nope"); err == nil {
		t.Errorf("Insert(nope) succeeded")
	}
	if err := b.slot.Insert("mem"); err != nil {
		t.Fatal(err)
	}
	if err := b.slot.Insert("io"); err == nil {
		t.Errorf("Insert in an occupied slot succeeded")
	}
	if card, _ := b.slot.Card(); card != b.mem {
		t.Errorf("card = %v, want mem", card)
	}
}

func TestInsertResetsOnlyTheCard(t *testing.T) {
	b := newBench(t)
	resets := b.mem.resets
	if err := b.slot.Insert("mem"); err != nil {
		t.Fatal(err)
	}
	if b.mem.resets != resets+1 {
		t.Errorf("card reset %d times on insert, want 1", b.mem.resets-resets)
	}
}

func TestCardLines(t *testing.T) {
	b := newBench(t)
	var irqs []hwdefs.LineState
	b.slot.IRQ.Connect(func(s hwdefs.LineState) { irqs = append(irqs, s) })

	if err := b.slot.Insert("mem"); err != nil {
		t.Fatal(err)
	}
	h := b.mem.host
	h.IrqW(true)
	h.NmiW(true)
	if !b.slot.IRQ.Asserted() || !b.slot.NMI.Asserted() {
		t.Fatalf("card requests not forwarded")
	}

	// ejecting releases the lines, and the stale host is ignored
	b.slot.Eject()
	if b.slot.IRQ.Asserted() || b.slot.NMI.Asserted() {
		t.Errorf("lines still asserted after eject")
	}
	if b.mem.host != nil {
		t.Errorf("card still plugged after eject")
	}
	h.IrqW(true)
	if b.slot.IRQ.Asserted() {
		t.Errorf("ejected card drove the slot irq")
	}

	want := []hwdefs.LineState{hwdefs.LineAssert, hwdefs.LineClear}
	if diff := cmp.Diff(want, irqs); diff != "" {
		t.Errorf("irq notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestSlotSaveRestore(t *testing.T) {
	b := newBench(t)
	if err := b.slot.Insert("mem"); err != nil {
		t.Fatal(err)
	}
	b.mem.host.IrqW(true)
	b.bus.Write8(0xc001, 0x5a)

	var buf bytes.Buffer
	if err := b.m.SaveState(&buf); err != nil {
		t.Fatal(err)
	}
	b.slot.Eject()
	if err := b.slot.Insert("io"); err != nil {
		t.Fatal(err)
	}
	if err := b.m.LoadState(&buf); err != nil {
		t.Fatal(err)
	}

	if card, _ := b.slot.Card(); card != b.mem {
		t.Fatalf("card after load = %v, want mem", card)
	}
	if b.mem.host == nil {
		t.Errorf("card not plugged after load")
	}
	if !b.slot.IRQ.Asserted() {
		t.Errorf("slot irq not restored")
	}
	if got := b.bus.Read8(0xc001); got != 0x5a {
		t.Errorf("mem read after load = %02x, want 5a", got)
	}
}

func newBackplane(t *testing.T) (*machine.Machine, *Backplane, []*memCard, *hwio.Table) {
	t.Helper()

	m := machine.New("multi", 1_000_000)
	bp := NewBackplane("multi", 3, 0x100, 0x10, 0x20)
	bp.AddTo(m, nil)
	var cards []*memCard
	for _, s := range bp.Slots {
		c := newMemCard("card")
		s.AddCard(m, c)
		cards = append(cards, c)
	}
	bus := hwio.NewTable("bus")
	m.Map(bus, ":multi", 0xc000)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	bp.InstallIO(bus, 0xff00)
	for _, s := range bp.Slots {
		if err := s.Insert("card"); err != nil {
			t.Fatal(err)
		}
	}
	return m, bp, cards, bus
}

func TestBackplaneWireOR(t *testing.T) {
	_, bp, cards, _ := newBackplane(t)
	out := bp.IRQ.Output()

	cards[0].host.IrqW(true)
	cards[2].host.IrqW(true)
	if !out.Asserted() || bp.IRQ.Sources() != 0b101 {
		t.Fatalf("merged irq = %v from %v, want asserted from 0|2", out.Asserted(), bp.IRQ.Sources())
	}
	cards[0].host.IrqW(false)
	if !out.Asserted() {
		t.Errorf("merged irq cleared while slot 3 still asserts it")
	}
	cards[2].host.IrqW(false)
	if out.Asserted() {
		t.Errorf("merged irq still asserted")
	}
	if got := out.Notifications(); got != 2 {
		t.Errorf("%d merged notifications, want 2", got)
	}

	cards[1].host.NmiW(true)
	if !bp.NMI.Output().Asserted() || bp.IRQ.Output().Asserted() {
		t.Errorf("nmi routed to the wrong merger")
	}
}

func TestBackplaneWindows(t *testing.T) {
	m, bp, cards, bus := newBackplane(t)
	for i, c := range cards {
		c.mem[0] = uint8(0x10 * (i + 1))
	}

	// SELECT resets to ff: the last slot
	if got := bus.Read8(0xc000); got != 0x30 {
		t.Errorf("mem window after reset = %02x, want 30", got)
	}
	if got := bus.Peek8(0xff60); got != 0xff {
		t.Errorf("select = %02x, want ff", got)
	}
	bus.Write8(0xff60, 0x01)
	if got := bus.Read8(0xc000); got != 0x20 {
		t.Errorf("mem window with slot 2 selected = %02x, want 20", got)
	}
	if bp.Selected() != 1 {
		t.Errorf("selected = %d, want 1", bp.Selected())
	}
	// io windows are unanswered: the cards have no io
	if got := bus.Read8(0xff25); got != 0xff {
		t.Errorf("io read = %02x, want ff", got)
	}

	m.Reset(hwdefs.SoftReset)
	if bp.Selected() != 2 {
		t.Errorf("selected after reset = %d, want 2", bp.Selected())
	}
}
