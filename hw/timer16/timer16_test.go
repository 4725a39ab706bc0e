package timer16

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/device"
	"emucore/hw/hwio"
	"emucore/hw/machine"
	"emucore/hw/periph"
)

// host is a periph.Host whose time only moves through advance.
type host struct {
	hub *periph.Hub
	now uint64
}

func (h *host) TotalCycles() uint64 { return h.now }
func (h *host) InternalUpdate()     { h.hub.Update(h.now) }
func (h *host) Synchronize()        {}

func (h *host) advance(t uint64) {
	for {
		next := h.hub.Next()
		if next == 0 || next > t {
			break
		}
		h.now = next
		h.hub.Update(next)
	}
	h.now = t
}

type bench struct {
	*host
	tmr *Timer
	tbl *hwio.Table
}

func newBench(t *testing.T, n int) *bench {
	t.Helper()

	tmr := New("tmr", 1_000_000, n)
	b := &bench{tmr: tmr, host: &host{hub: periph.NewHub(&tmr.Device)}, tbl: hwio.NewTable("bus")}
	b.hub.Add(tmr)
	tmr.Attach(b.host)
	tmr.InstallMap(b.tbl, 0)
	if err := tmr.Start(nil); err != nil {
		t.Fatal(err)
	}
	tmr.Reset(false)
	return b
}

func ch(i int, reg uint16) uint16 { return ChannelBase + uint16(i*ChannelSize) + reg }

func (b *bench) w16(addr, val uint16) {
	b.tbl.Write8(addr, uint8(val>>8))
	b.tbl.Write8(addr+1, uint8(val))
}

// setup programs channel 0 and starts it.
func (b *bench) setup(tcr, tier uint8, gra, grb uint16) {
	b.tbl.Write8(ch(0, TCR), tcr)
	b.w16(ch(0, GRA), gra)
	b.w16(ch(0, GRB), grb)
	b.tbl.Write8(ch(0, TIER), tier)
	b.tbl.Write8(TSTR, 0x01)
}

func wantTSR(t *testing.T, b *bench, want uint8) {
	t.Helper()
	if got := b.tbl.Peek8(ch(0, TSR)) & 7; got != want {
		t.Errorf("tsr at %d = %d, want %d", b.now, got, want)
	}
}

func TestReset(t *testing.T) {
	b := newBench(t, 3)
	var got []uint8
	for addr := range uint16(ChannelBase + ChannelSize) {
		got = append(got, b.tbl.Peek8(addr))
	}
	want := []uint8{
		0xf8, 0xf8, 0x80, 0xc0,
		0x80, 0x88, 0xf8, 0xf8, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("registers mismatch (-want +got):\n%s", diff)
	}
	if got := len(b.tmr.InterruptLines()); got != 9 {
		t.Errorf("%d interrupt lines, want 9", got)
	}
}

func TestStartRegister(t *testing.T) {
	b := newBench(t, 3)
	b.tbl.Write8(TSTR, 0x05)
	if got := b.tbl.Peek8(TSTR); got != 0xfd {
		t.Errorf("tstr = %02x, want fd", got)
	}
	var active []bool
	for _, c := range b.tmr.Channels {
		active = append(active, c.Active())
	}
	if diff := cmp.Diff([]bool{true, false, true}, active); diff != "" {
		t.Errorf("active channels mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareMatch(t *testing.T) {
	b := newBench(t, 1)
	b.setup(0x00, IrqA, 100, 0xffff)
	c := b.tmr.Channels[0]
	if c.Event() != 100 {
		t.Fatalf("event = %d, want 100", c.Event())
	}

	b.advance(99)
	wantTSR(t, b, 0)
	if c.IMIA.Asserted() {
		t.Errorf("imia asserted before the match")
	}
	b.advance(100)
	wantTSR(t, b, IrqA)
	if !c.IMIA.Asserted() {
		t.Errorf("imia not asserted on the match")
	}
	if got := c.Counter(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
	// next match after a full wrap
	if got, want := c.Event(), uint64(100+0x10000); got != want {
		t.Errorf("next event = %d, want %d", got, want)
	}
}

func TestDisabledInterruptHasNoFlag(t *testing.T) {
	b := newBench(t, 1)
	b.setup(0x00, IrqB, 10, 20)
	b.advance(15)
	wantTSR(t, b, 0)
	b.advance(20)
	wantTSR(t, b, IrqB)
}

func TestClearOnCompare(t *testing.T) {
	b := newBench(t, 1)
	b.setup(0x20, IrqA, 10, 0xffff)
	c := b.tmr.Channels[0]

	b.advance(10)
	wantTSR(t, b, IrqA)
	if got := c.Counter(); got != 0 {
		t.Errorf("counter at the match = %d, want 0", got)
	}
	b.advance(25)
	if got := c.Counter(); got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	if got := c.Event(); got != 30 {
		t.Errorf("next event = %d, want 30", got)
	}
}

func TestOverflow(t *testing.T) {
	b := newBench(t, 1)
	b.w16(ch(0, TCNT), 0xfff0)
	b.setup(0x00, IrqV, 0xffff, 0xffff)
	c := b.tmr.Channels[0]

	b.advance(15)
	wantTSR(t, b, 0)
	b.advance(16)
	wantTSR(t, b, IrqV)
	if !c.OVI.Asserted() || c.Counter() != 0 {
		t.Errorf("ovi = %v, counter = %d, want asserted and 0", c.OVI.Asserted(), c.Counter())
	}
}

func TestMatchAndOverflowSameTick(t *testing.T) {
	b := newBench(t, 1)
	b.w16(ch(0, TCNT), 0xfffe)
	b.setup(0x00, IrqB|IrqV, 0xffff, 0)

	b.advance(1)
	wantTSR(t, b, 0)
	b.advance(2)
	wantTSR(t, b, IrqB|IrqV)
}

func TestPrescaler(t *testing.T) {
	tests := []struct {
		name  string
		tcr   uint8
		event uint64
	}{
		{"phi", 0x00, 3},
		{"phi/2", 0x01, 6},
		{"phi/4", 0x02, 12},
		{"phi/8", 0x03, 24},
		{"phi/4 180", 0x0a, 10},
		{"phi/4 0+180", 0x12, 6},
		{"phi/8 180", 0x0b, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t, 1)
			b.setup(tt.tcr, IrqA, 3, 0xffff)
			if got := b.tmr.Channels[0].Event(); got != tt.event {
				t.Fatalf("event = %d, want %d", got, tt.event)
			}
			b.advance(tt.event - 1)
			wantTSR(t, b, 0)
			b.advance(tt.event)
			wantTSR(t, b, IrqA)
		})
	}
}

func TestByteAccess(t *testing.T) {
	b := newBench(t, 1)
	tcnt := ch(0, TCNT)

	// the high byte is held until the low byte is written
	b.tbl.Write8(tcnt, 0x12)
	if got := b.tmr.Channels[0].TCNT.Value; got != 0 {
		t.Errorf("tcnt after high byte = %04x, want 0000", got)
	}
	b.tbl.Write8(tcnt+1, 0x34)
	if got := b.tmr.Channels[0].TCNT.Value; got != 0x1234 {
		t.Errorf("tcnt = %04x, want 1234", got)
	}

	// reading the high byte latches the low byte
	b.tbl.Write8(TSTR, 0x01)
	b.advance(0x100)
	hi := b.tbl.Read8(tcnt)
	b.advance(0x180)
	lo := b.tbl.Read8(tcnt + 1)
	if hi != 0x13 || lo != 0x34 {
		t.Errorf("tcnt read %02x%02x, want 1334", hi, lo)
	}
	if got := b.tmr.Channels[0].Counter(); got != 0x13b4 {
		t.Errorf("counter = %04x, want 13b4", got)
	}
}

func TestFlagClear(t *testing.T) {
	b := newBench(t, 1)
	b.setup(0x00, IrqA|IrqB, 10, 10)
	c := b.tmr.Channels[0]
	b.advance(10)
	wantTSR(t, b, IrqA|IrqB)

	// writing 1 keeps a flag
	b.tbl.Write8(ch(0, TSR), 0xff)
	wantTSR(t, b, IrqA|IrqB)

	b.tbl.Write8(ch(0, TSR), 0xfe)
	wantTSR(t, b, IrqB)
	if c.IMIA.Asserted() || !c.IMIB.Asserted() {
		t.Errorf("imia = %v, imib = %v, want false, true", c.IMIA.Asserted(), c.IMIB.Asserted())
	}

	// a write cannot set a flag
	b.tbl.Write8(ch(0, TSR), 0xfd)
	b.tbl.Write8(ch(0, TSR), 0xff)
	wantTSR(t, b, 0)
}

func TestEnableMasksFlags(t *testing.T) {
	b := newBench(t, 1)
	b.setup(0x00, IrqA, 10, 0xffff)
	c := b.tmr.Channels[0]
	b.advance(10)
	if !c.IMIA.Asserted() {
		t.Fatalf("imia not asserted")
	}
	b.tbl.Write8(ch(0, TIER), 0)
	if c.IMIA.Asserted() {
		t.Errorf("imia asserted with the interrupt disabled")
	}
	if got := b.tbl.Peek8(ch(0, TIER)); got != 0xf8 {
		t.Errorf("tier = %02x, want f8", got)
	}
}

func TestExternalClock(t *testing.T) {
	tests := []struct {
		name  string
		tcr   uint8
		edges int // edges needed to reach 2
	}{
		{"rising", 0x04, 3},
		{"falling", 0x0c, 4},
		{"both", 0x14, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t, 1)
			b.setup(tt.tcr, IrqA, 2, 0xffff)
			c := b.tmr.Channels[0]
			if c.Event() != 0 {
				t.Errorf("event = %d with an external clock", c.Event())
			}
			level := false
			for i := range tt.edges {
				if c.TSR.Value&IrqA != 0 {
					t.Fatalf("match after %d edges", i)
				}
				level = !level
				b.tmr.ClockInput(0, level)
			}
			if got := c.Counter(); got != 2 {
				t.Errorf("counter = %d, want 2", got)
			}
			wantTSR(t, b, IrqA)

			// other inputs are ignored
			b.tmr.ClockInput(1, true)
			b.tmr.ClockInput(1, false)
			if got := c.Counter(); got != 2 {
				t.Errorf("counter after TCLKB = %d, want 2", got)
			}
		})
	}
}

func TestStoppedChannel(t *testing.T) {
	b := newBench(t, 2)
	b.setup(0x00, IrqA, 10, 0xffff)
	b.advance(5)
	b.tbl.Write8(TSTR, 0x00)
	b.advance(50)
	c := b.tmr.Channels[0]
	if got := c.Counter(); got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	if c.Event() != 0 {
		t.Errorf("event = %d on a stopped channel", c.Event())
	}
	b.tbl.Write8(TSTR, 0x01)
	if got := c.Event(); got != 55 {
		t.Errorf("event after restart = %d, want 55", got)
	}
}

func TestInternalUpdateIdempotent(t *testing.T) {
	b := newBench(t, 2)
	b.setup(0x02, IrqA|IrqV, 7, 0xffff)
	b.advance(40)
	first := b.tmr.InternalUpdate(40)
	if second := b.tmr.InternalUpdate(40); second != first {
		t.Errorf("InternalUpdate(40) = %d then %d", first, second)
	}
	if first <= 40 {
		t.Errorf("next event %d is not in the future", first)
	}
}

// board hosts a timer unit on a periph.Driver.
type board struct {
	device.Device
	tmr *Timer
	drv *periph.Driver
}

func (b *board) Start(ctx device.Context) error {
	b.drv = periph.NewDriver(&b.Device, ctx.Scheduler())
	b.drv.Add(b.tmr)
	b.tmr.Attach(b.drv)
	return nil
}

func (b *board) PostLoad() { b.drv.PostLoad() }

func TestSaveRestore(t *testing.T) {
	m := machine.New("timer", 1_000_000)
	b := &board{tmr: New("tmr", 1_000_000, 2)}
	b.Init("board", "board", 1_000_000)
	m.MustAdd(nil, b)
	m.MustAdd(b, b.tmr)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	tbl := hwio.NewTable("bus")
	b.tmr.InstallMap(tbl, 0)
	tbl.Write8(ch(0, TCR), 0x20)
	tbl.Write8(ch(0, GRA), 0x00)
	tbl.Write8(ch(0, GRA)+1, 50)
	tbl.Write8(ch(0, TIER), IrqA)
	tbl.Write8(TSTR, 0x01)
	if err := m.Run(120); err != nil {
		t.Fatal(err)
	}

	type snapshot struct {
		Counter uint16
		TSR     uint8
		IMIA    bool
		Event   uint64
	}
	snap := func() snapshot {
		c := b.tmr.Channels[0]
		return snapshot{c.Counter(), tbl.Peek8(ch(0, TSR)), c.IMIA.Asserted(), c.Event()}
	}

	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(333); err != nil {
		t.Fatal(err)
	}
	want := snap()

	tbl.Write8(TSTR, 0x00)
	tbl.Write8(ch(0, TSR), 0x00)
	if err := m.LoadState(&buf); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(333); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, snap()); diff != "" {
		t.Errorf("continuation mismatch (-want +got):\n%s", diff)
	}
}
