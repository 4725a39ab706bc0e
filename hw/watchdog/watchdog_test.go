package watchdog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/device"
	"emucore/hw/hwio"
	"emucore/hw/machine"
	"emucore/hw/sched"
)

// resets records the resets of the machine.
type resets struct {
	device.Device
	log []bool
}

func (r *resets) Reset(soft bool) { r.log = append(r.log, soft) }

type bench struct {
	m   *machine.Machine
	wdt *Watchdog
	rec *resets
	bus *hwio.Table
}

func newBench(t *testing.T, period uint64) *bench {
	t.Helper()

	b := &bench{
		m:   machine.New("wdt", 1_000_000),
		wdt: New("wdt", 1_000_000, period),
		rec: &resets{},
		bus: hwio.NewTable("bus"),
	}
	b.rec.Init("rec", "recorder", 0)
	b.m.MustAdd(nil, b.rec)
	b.m.MustAdd(nil, b.wdt)
	b.m.Map(b.bus, ":wdt", 0x40)
	if err := b.m.Start(); err != nil {
		t.Fatal(err)
	}
	b.rec.log = nil
	return b
}

func (b *bench) run(t *testing.T, d uint64) {
	t.Helper()
	if err := b.m.Run(sched.Time(d)); err != nil {
		t.Fatal(err)
	}
}

func TestDisabledByDefault(t *testing.T) {
	b := newBench(t, 100)
	b.run(t, 1000)
	if len(b.rec.log) != 0 || b.wdt.Expirations() != 0 {
		t.Errorf("resets = %v, expirations = %d with the watchdog disabled", b.rec.log, b.wdt.Expirations())
	}
}

func TestExpiryResets(t *testing.T) {
	b := newBench(t, 100)
	b.bus.Write8(0x40+CTRL, CtrlEnable)

	b.run(t, 99)
	if len(b.rec.log) != 0 {
		t.Fatalf("reset after 99 cycles")
	}
	b.run(t, 1)
	if diff := cmp.Diff([]bool{true}, b.rec.log); diff != "" {
		t.Errorf("resets mismatch (-want +got):\n%s", diff)
	}
	if got := b.bus.Peek8(0x40 + STATUS); got != 1 {
		t.Errorf("status = %d, want 1", got)
	}
	// still enabled after a soft reset
	b.run(t, 100)
	if got := b.wdt.Expirations(); got != 2 {
		t.Errorf("expirations = %d, want 2", got)
	}
}

func TestKick(t *testing.T) {
	b := newBench(t, 100)
	b.bus.Write8(0x40+CTRL, CtrlEnable)
	for range 5 {
		b.run(t, 80)
		b.bus.Write8(0x40+KICK, 0x5a)
	}
	if len(b.rec.log) != 0 {
		t.Fatalf("reset despite kicks")
	}
	if got := b.bus.Peek8(0x40 + CTRL); got != CtrlEnable {
		t.Errorf("ctrl = %02x after kicks, want %02x", got, CtrlEnable)
	}
	b.run(t, 100)
	if len(b.rec.log) != 1 {
		t.Errorf("%d resets, want 1", len(b.rec.log))
	}
}

func TestDisable(t *testing.T) {
	b := newBench(t, 100)
	b.bus.Write8(0x40+CTRL, CtrlEnable)
	b.run(t, 50)
	b.bus.Write8(0x40+CTRL, 0)
	b.run(t, 500)
	if len(b.rec.log) != 0 {
		t.Errorf("reset after disabling")
	}
}

func TestExpiryFatal(t *testing.T) {
	b := newBench(t, 100)
	b.bus.Write8(0x40+CTRL, CtrlEnable|CtrlFatal)

	err := b.m.Run(sched.Time(1000))
	var ferr *device.FatalError
	if !errors.As(err, &ferr) {
		t.Fatalf("Run() = %v, want a fatal error", err)
	}
	if ferr.Tag != ":wdt" {
		t.Errorf("fatal error tag = %q, want :wdt", ferr.Tag)
	}
	if len(b.rec.log) != 0 {
		t.Errorf("machine reset on a fatal expiry")
	}
}

func TestHardResetClears(t *testing.T) {
	b := newBench(t, 10)
	b.bus.Write8(0x40+CTRL, CtrlEnable)
	b.run(t, 10)
	b.m.Reset(false)
	if b.wdt.Enabled() || b.wdt.Expirations() != 0 {
		t.Errorf("enabled = %v, expirations = %d after a hard reset", b.wdt.Enabled(), b.wdt.Expirations())
	}
}
