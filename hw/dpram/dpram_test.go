package dpram

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/machine"
)

func newBuses(d *DPRAM) (l, r *hwio.Table) {
	l, r = hwio.NewTable("left"), hwio.NewTable("right")
	d.InstallMap(l, 0x4000)
	d.InstallRight(r, 0x0000)
	return l, r
}

func wantLines(t *testing.T, d *DPRAM, intl, intr bool) {
	t.Helper()
	if d.INTL.Asserted() != intl || d.INTR.Asserted() != intr {
		t.Errorf("intl, intr = %v, %v, want %v, %v", d.INTL.Asserted(), d.INTR.Asserted(), intl, intr)
	}
}

func TestSharedRAM(t *testing.T) {
	d := New("dpram")
	l, r := newBuses(d)

	l.Write8(0x4123, 0xaa)
	if got := r.Read8(0x0123); got != 0xaa {
		t.Errorf("right read = %02x, want aa", got)
	}
	r.Write8(0x0123, 0x55)
	if got := l.Read8(0x4123); got != 0x55 {
		t.Errorf("left read after right write = %02x, want 55", got)
	}
	wantLines(t, d, false, false)
}

func TestMailboxes(t *testing.T) {
	d := New("dpram")
	l, r := newBuses(d)

	var rightIRQ []hwdefs.LineState
	d.INTR.Connect(func(s hwdefs.LineState) { rightIRQ = append(rightIRQ, s) })

	l.Write8(0x4000+MailboxR, 0x42)
	wantLines(t, d, false, true)
	if d.INTR.Level() {
		t.Errorf("asserted intr is high, want low")
	}

	// a write from the wrong side, or to the other mailbox, does nothing
	r.Write8(MailboxR, 0x43)
	l.Write8(0x4000+MailboxL, 0x01)
	wantLines(t, d, false, true)

	if got := r.Peek8(MailboxR); got != 0x43 {
		t.Errorf("mailbox = %02x, want 43", got)
	}
	wantLines(t, d, false, true)
	r.Read8(MailboxR)
	wantLines(t, d, false, false)

	r.Write8(MailboxL, 0x99)
	wantLines(t, d, true, false)
	l.Read8(0x4000 + MailboxR)
	wantLines(t, d, true, false)
	if got := l.Read8(0x4000 + MailboxL); got != 0x99 {
		t.Errorf("left mailbox = %02x, want 99", got)
	}
	wantLines(t, d, false, false)

	want := []hwdefs.LineState{hwdefs.LineAssert, hwdefs.LineClear}
	if diff := cmp.Diff(want, rightIRQ); diff != "" {
		t.Errorf("intr notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestResetKeepsRAM(t *testing.T) {
	d := New("dpram")
	l, _ := newBuses(d)
	l.Write8(0x4010, 0x77)
	l.Write8(0x4000+MailboxR, 1)
	d.Reset(false)
	wantLines(t, d, false, false)
	if got := d.Bytes()[0x10]; got != 0x77 {
		t.Errorf("ram[10] = %02x after reset, want 77", got)
	}
}

func TestSaveRestore(t *testing.T) {
	m := machine.New("dpram", 1_000_000)
	d := New("dpram")
	m.MustAdd(nil, d)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	l, r := newBuses(d)
	l.Write8(0x4020, 0x12)
	r.Write8(MailboxL, 0x34)

	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatal(err)
	}
	l.Write8(0x4020, 0)
	l.Read8(0x4000 + MailboxL)
	if err := m.LoadState(&buf); err != nil {
		t.Fatal(err)
	}
	wantLines(t, d, true, false)
	if got := l.Peek8(0x4020); got != 0x12 {
		t.Errorf("ram[20] = %02x after load, want 12", got)
	}
}
