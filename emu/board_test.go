package emu

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/irq"
	"emucore/hw/sci"
)

func newBoard(t *testing.T, cfg Config) *Board {
	t.Helper()
	if err := cfg.Check(); err != nil {
		t.Fatal(err)
	}
	b, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func (b *Board) runCycles(t *testing.T, n uint64) {
	t.Helper()
	clock := b.M.Scheduler().Clock(b.CPU.Dev().ClockHz())
	if err := b.M.Run(clock.Duration(n)); err != nil {
		t.Fatal(err)
	}
}

func (b *Board) merger(t *testing.T, line string) *irq.Merger {
	t.Helper()
	m, ok := b.M.Device(":board:" + line).(*irq.Merger)
	if !ok {
		t.Fatalf("no %s merger", line)
	}
	return m
}

func (b *Board) wantRead8(t *testing.T, addr uint16, want uint8) {
	t.Helper()
	if got := b.Bus.Read8(addr); got != want {
		t.Errorf("read %04x = %02x, want %02x", addr, got, want)
	}
}

func TestBuildDefault(t *testing.T) {
	b := newBoard(t, DefaultConfig())

	for _, tag := range []string{
		":board", ":cpu", ":sci0", ":timer", ":wdt", ":dpram",
		":slot", ":slot:rom", ":board:irq", ":board:firq", ":board:nmi",
	} {
		if b.M.Device(tag) == nil {
			t.Errorf("no device %s", tag)
		}
	}
	if len(b.Slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(b.Slots))
	}
	card, ok := b.Slots[0].Card()
	if !ok || card.Dev().BaseTag() != "rom" {
		t.Errorf("slot card = %v, %v, want rom", card, ok)
	}

	b.wantRead8(t, 0xf000, 0x10)
	b.wantRead8(t, 0xfffe, 0xf0)
	b.wantRead8(t, 0xc000, 'R')
	b.wantRead8(t, 0xc002, 'M')
	// bank register of the rom card
	b.wantRead8(t, 0xe080, 0)
	b.Bus.Write8(0xe080, 1)
	b.wantRead8(t, 0xc000, 0xff)
	b.Bus.Write8(0xe080, 0)

	b.Bus.Write8(0x1234, 0x42)
	if got := b.RAM("ram")[0x1234]; got != 0x42 {
		t.Errorf("ram[1234] = %02x, want 42", got)
	}
	// rom is read-only
	b.Bus.Write8(0xf000, 0)
	b.wantRead8(t, 0xf000, 0x10)
}

func TestDPRAMRouting(t *testing.T) {
	b := newBoard(t, DefaultConfig())
	firq := b.merger(t, "firq")

	var names []string
	for i := range firq.NumInputs() {
		names = append(names, firq.InputName(i))
	}
	if diff := cmp.Diff([]string{"dpram/intl", "dpram/intr"}, names); diff != "" {
		t.Errorf("firq sources mismatch (-want +got):\n%s", diff)
	}

	// left side writes the right mailbox
	b.Bus.Write8(0xd7ff, 0x5a)
	if !firq.Output().Asserted() {
		t.Fatalf("firq not asserted after mailbox write")
	}
	b.wantRead8(t, 0xdfff, 0x5a)
	if firq.Output().Asserted() {
		t.Errorf("firq still asserted after mailbox read")
	}
}

func TestDPRAMRightPortUnmapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DPRAM[0].RightBase = 0
	b := newBoard(t, cfg)
	firq := b.merger(t, "firq")
	if n := firq.NumInputs(); n != 1 {
		t.Errorf("firq has %d sources, want 1", n)
	}
	b.Bus.Write8(0xd7ff, 1)
	if firq.Output().Asserted() {
		t.Errorf("unmapped right port interrupts the cpu")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"duplicate tag", func(c *Config) {
			c.SCI = append(c.SCI, SCIConfig{Name: "sci0", Base: 0xe008})
		}},
		{"missing image", func(c *Config) {
			c.Memory[1].Hex = ""
			c.Memory[1].Image = "missing.bin"
		}},
		{"image and hex", func(c *Config) { c.Memory[1].Image = "rom.bin" }},
		{"hex out of range", func(c *Config) { c.Memory[1].Hex = "1000: 00" }},
		{"sizeless card", func(c *Config) {
			c.Slot[0].Cards = append(c.Slot[0].Cards, CardConfig{Name: "mb", Type: "mailbox", Hex: "0000: 00"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			if err := cfg.Check(); err != nil {
				t.Fatal(err)
			}
			b, err := Build(cfg)
			if err == nil {
				b.Close()
				t.Fatalf("Build() succeeded")
			}
		})
	}
}

// The 6502 can't host peripherals, the board drives them.
const idle6502 = `
# f000: JMP $f000
0000: 4c 00 f0
0ffa: 00 f0 00 f0 00 f0
`

func config6502() Config {
	return Config{
		Machine: MachineConfig{Name: "nes-ish", ClockHz: 1_000_000},
		CPU:     CPUConfig{Type: "m6502", ClockHz: 1_000_000},
		Memory: []MemoryConfig{
			{Name: "ram", Kind: "ram", Base: 0x0000, Size: 0x0800},
			{Name: "rom", Kind: "rom", Base: 0xf000, Size: 0x1000, Hex: idle6502},
		},
		SCI: []SCIConfig{{Name: "sci", Base: 0x8000, IRQ: "irq", Loopback: true}},
	}
}

func TestBoard6502(t *testing.T) {
	b := newBoard(t, config6502())
	if b.drv == nil {
		t.Fatalf("board has no peripheral driver")
	}
	irqs := b.merger(t, "irq")

	b.Bus.Write8(0x8000+sci.BRR, 0)
	b.Bus.Write8(0x8000+sci.SCR, sci.ScrTE|sci.ScrRE|sci.ScrRIE)
	b.Bus.Write8(0x8000+sci.TDR, 'A')
	b.Bus.Write8(0x8000+sci.SSR, b.Bus.Read8(0x8000+sci.SSR)&^sci.SsrTDRE)
	b.runCycles(t, 12*32)

	if !irqs.Output().Asserted() {
		t.Errorf("irq not asserted after receiving")
	}
	b.wantRead8(t, 0x8000+sci.RDR, 'A')
	if pc := b.CPU.CurrentPC(); pc < 0xf000 || pc > 0xf002 {
		t.Errorf("cpu left its loop: pc = %04x", pc)
	}
}
