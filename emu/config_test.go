package emu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const benchTOML = `
[machine]
name = "bench"
clock_hz = 2_000_000

[cpu]
type = "m6502"
clock_hz = 1_000_000

[[memory]]
name = "ram"
kind = "ram"
base = 0x0000
size = 0x2000

[[memory]]
name = "rom"
kind = "rom"
base = 0xf000
size = 0x1000
image = "rom.bin"

[[sci]]
name = "sci0"
base = 0x8000
irq = "firq"

[[slot]]
name = "multi"
mem_base = 0xc000
mem_size = 0x800
io_base = 0x9000
io_size = 0x10
count = 2
irq = "irq"
nmi = "nmi"

  [[slot.card]]
  name = "rom"
  type = "rom"
  slot = 2
  hex = "0000: 01 02"
  size = 0x100
  insert = true
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bench.toml", benchTOML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Machine: MachineConfig{Name: "bench", ClockHz: 2_000_000},
		CPU:     CPUConfig{Type: "m6502", ClockHz: 1_000_000},
		Memory: []MemoryConfig{
			{Name: "ram", Kind: "ram", Base: 0x0000, Size: 0x2000},
			{Name: "rom", Kind: "rom", Base: 0xf000, Size: 0x1000, Image: "rom.bin"},
		},
		// firq doesn't exist on a 6502
		SCI: []SCIConfig{{Name: "sci0", Base: 0x8000, IRQ: "irq"}},
		Slot: []SlotConfig{{
			Name:    "multi",
			MemBase: 0xc000,
			MemSize: 0x800,
			IOBase:  0x9000,
			IOSize:  0x10,
			IRQ:     "irq",
			NMI:     "nmi",
			Count:   2,
			Stride:  0x10,
			Cards: []CardConfig{{
				Name:     "rom",
				Type:     "rom",
				Position: 2,
				Insert:   true,
				Hex:      "0000: 01 02",
				Size:     0x100,
				Window:   0x800,
			}},
		}},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.path("rom.bin"); got != filepath.Join(dir, "rom.bin") {
		t.Errorf("image path = %s, want it relative to the config", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("missing file loaded")
	}
	path := writeFile(t, dir, "bad.toml", "[machine\nname=")
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("malformed file loaded")
	}
}

func TestCheckClamps(t *testing.T) {
	cfg := Config{
		CPU:      CPUConfig{Type: "m6809", ClockHz: 8_000_000},
		Timer16:  []Timer16Config{{Name: "t", Channels: 9, IRQ: "bogus"}},
		Watchdog: &WatchdogConfig{},
		Slot: []SlotConfig{{
			Name:   "s",
			IOSize: 0x20,
			Count:  7,
			Stride: 0x10,
			Cards:  []CardConfig{{Name: "c", Type: "timer"}},
		}},
	}
	if err := cfg.Check(); err != nil {
		t.Fatal(err)
	}

	type clamped struct {
		Name             string
		MasterHz, CPUHz  uint64
		Channels         int
		TimerIRQ         string
		WdtHz, WdtPeriod uint64
		Count            int
		Stride           uint16
		CardHz           uint64
	}
	got := clamped{
		cfg.Machine.Name, cfg.Machine.ClockHz, cfg.CPU.ClockHz,
		cfg.Timer16[0].Channels, cfg.Timer16[0].IRQ,
		cfg.Watchdog.ClockHz, cfg.Watchdog.Period,
		cfg.Slot[0].Count, cfg.Slot[0].Stride, cfg.Slot[0].Cards[0].ClockHz,
	}
	want := clamped{
		"board", 1_000_000, 1_000_000,
		5, "irq",
		1_000_000, 1,
		4, 0x20, 1_000_000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("clamped values mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"cpu", func(c *Config) { c.CPU.Type = "z80" }},
		{"memory kind", func(c *Config) { c.Memory[0].Kind = "flash" }},
		{"memory overflow", func(c *Config) { c.Memory[1].Size = 0x1001 }},
		{"memory empty", func(c *Config) { c.Memory[0].Size = 0 }},
		{"ram image", func(c *Config) { c.Memory[0].Hex = "0000: 00" }},
		{"slot name", func(c *Config) { c.Slot[0].Name = "" }},
		{"card type", func(c *Config) { c.Slot[0].Cards[0].Type = "floppy" }},
		{"card position", func(c *Config) { c.Slot[0].Cards[0].Position = 2 }},
		{"double insert", func(c *Config) {
			c.Slot[0].Cards = append(c.Slot[0].Cards, CardConfig{Name: "t", Type: "timer", Insert: true})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			if err := cfg.Check(); err == nil {
				t.Errorf("Check() succeeded")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Check(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("default config needed clamping (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "default.toml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, loaded, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Errorf("saved config mismatch (-want +got):\n%s", diff)
	}
}
