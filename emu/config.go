package emu

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"

	"emucore/emu/log"
)

// Config describes a machine: its clocks, CPU, memories, on-chip
// peripherals and slots.
type Config struct {
	Machine  MachineConfig   `toml:"machine"`
	CPU      CPUConfig       `toml:"cpu"`
	Memory   []MemoryConfig  `toml:"memory"`
	SCI      []SCIConfig     `toml:"sci"`
	Timer16  []Timer16Config `toml:"timer16"`
	Watchdog *WatchdogConfig `toml:"watchdog"`
	DPRAM    []DPRAMConfig   `toml:"dpram"`
	Slot     []SlotConfig    `toml:"slot"`

	// dir is where relative image paths are resolved from.
	dir string
}

type MachineConfig struct {
	Name    string `toml:"name"`
	ClockHz uint64 `toml:"clock_hz"`
	Quantum uint64 `toml:"quantum"` // master ticks, 0 for the default
}

type CPUConfig struct {
	Type    string `toml:"type"` // m6809 or m6502
	ClockHz uint64 `toml:"clock_hz"`
}

type MemoryConfig struct {
	Name  string `toml:"name"`
	Kind  string `toml:"kind"` // ram or rom
	Base  uint16 `toml:"base"`
	Size  uint32 `toml:"size"`
	Image string `toml:"image,omitempty"`
	Hex   string `toml:"hex,omitempty"`
}

// Interrupt outputs are routed by CPU line name: irq, firq, nmi, or the
// empty string to leave them unconnected.

// On-chip peripherals count CPU cycles.

type SCIConfig struct {
	Name     string `toml:"name"`
	Base     uint16 `toml:"base"`
	IRQ      string `toml:"irq"`
	Output   string `toml:"output,omitempty"` // stdout, stderr or a file
	Loopback bool   `toml:"loopback,omitempty"`
}

type Timer16Config struct {
	Name     string `toml:"name"`
	Base     uint16 `toml:"base"`
	Channels int    `toml:"channels"`
	IRQ      string `toml:"irq"`
}

type WatchdogConfig struct {
	Base    uint16 `toml:"base"`
	ClockHz uint64 `toml:"clock_hz"`
	Period  uint64 `toml:"period"` // device cycles
}

type DPRAMConfig struct {
	Name      string `toml:"name"`
	Base      uint16 `toml:"base"`
	RightBase uint16 `toml:"right_base,omitempty"` // 0: right port not mapped
	IRQ       string `toml:"irq"`
}

type SlotConfig struct {
	Name    string `toml:"name"`
	MemBase uint16 `toml:"mem_base"`
	MemSize uint16 `toml:"mem_size"`
	IOBase  uint16 `toml:"io_base"`
	IOSize  uint16 `toml:"io_size"`
	Default *uint8 `toml:"default,omitempty"`
	IRQ     string `toml:"irq"`
	NMI     string `toml:"nmi"`

	// Count > 1 builds a backplane of Count slots, their IO windows Stride
	// bytes apart.
	Count  int    `toml:"count,omitempty"`
	Stride uint16 `toml:"stride,omitempty"`

	Cards []CardConfig `toml:"card"`
}

type CardConfig struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`           // rom, serial, timer or mailbox
	Position int    `toml:"slot,omitempty"` // 1-based position on a backplane
	Insert   bool   `toml:"insert,omitempty"`

	Image string `toml:"image,omitempty"` // rom, mailbox
	Hex   string `toml:"hex,omitempty"`
	Size  uint32 `toml:"size,omitempty"` // image buffer size for hex images

	Window    uint16 `toml:"window,omitempty"` // rom
	RAMOffset uint16 `toml:"ram_offset,omitempty"`
	RAMSize   uint16 `toml:"ram_size,omitempty"`

	ClockHz  uint64 `toml:"clock_hz,omitempty"` // serial, timer, mailbox
	Output   string `toml:"output,omitempty"`   // serial
	Loopback bool   `toml:"loopback,omitempty"`
}

var (
	cpuTypes  = []string{"m6809", "m6502"}
	cardTypes = []string{"rom", "serial", "timer", "mailbox"}
)

func (cfg *Config) lines() []string {
	if cfg.CPU.Type == "m6502" {
		return []string{"", "irq", "nmi"}
	}
	return []string{"", "irq", "firq", "nmi"}
}

// Check validates the configuration. Values that can be fixed are clamped
// with a warning; the others are reported as errors.
func (cfg *Config) Check() error {
	warn := func(what string, fixed any) {
		log.ModEmu.WarnZ("config value clamped").
			String("field", what).
			String("value", fmt.Sprint(fixed)).
			End()
	}

	if cfg.Machine.Name == "" {
		cfg.Machine.Name = "board"
	}
	if cfg.Machine.ClockHz == 0 {
		cfg.Machine.ClockHz = 1_000_000
		warn("machine.clock_hz", cfg.Machine.ClockHz)
	}
	if !slices.Contains(cpuTypes, cfg.CPU.Type) {
		return errors.Errorf("cpu.type: unknown cpu %q", cfg.CPU.Type)
	}
	cfg.CPU.ClockHz = cfg.clampClock("cpu.clock_hz", cfg.CPU.ClockHz, warn)

	lines := cfg.lines()
	checkLine := func(what string, l *string) {
		if !slices.Contains(lines, *l) {
			warn(what, "irq")
			*l = "irq"
		}
	}

	for i := range cfg.Memory {
		m := &cfg.Memory[i]
		if m.Kind != "ram" && m.Kind != "rom" {
			return errors.Errorf("memory %q: unknown kind %q", m.Name, m.Kind)
		}
		if m.Size == 0 || int(m.Base)+int(m.Size) > 0x10000 {
			return errors.Errorf("memory %q: region %04x+%x out of the address space", m.Name, m.Base, m.Size)
		}
		if m.Kind == "ram" && (m.Image != "" || m.Hex != "") {
			return errors.Errorf("memory %q: ram can't have an image", m.Name)
		}
	}
	for i := range cfg.SCI {
		checkLine("sci.irq", &cfg.SCI[i].IRQ)
	}
	for i := range cfg.Timer16 {
		t := &cfg.Timer16[i]
		if t.Channels < 1 || t.Channels > 5 {
			t.Channels = min(max(t.Channels, 1), 5)
			warn("timer16.channels", t.Channels)
		}
		checkLine("timer16.irq", &t.IRQ)
	}
	if w := cfg.Watchdog; w != nil {
		w.ClockHz = cfg.clampClock("watchdog.clock_hz", w.ClockHz, warn)
		if w.Period == 0 {
			w.Period = 1
			warn("watchdog.period", w.Period)
		}
	}
	for i := range cfg.DPRAM {
		checkLine("dpram.irq", &cfg.DPRAM[i].IRQ)
	}
	for i := range cfg.Slot {
		if err := cfg.checkSlot(&cfg.Slot[i], warn, checkLine); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) checkSlot(s *SlotConfig, warn func(string, any), checkLine func(string, *string)) error {
	if s.Name == "" {
		return errors.New("slot: missing name")
	}
	checkLine("slot.irq", &s.IRQ)
	checkLine("slot.nmi", &s.NMI)
	if s.Count == 0 {
		s.Count = 1
	}
	if s.Count < 1 || s.Count > 4 {
		s.Count = min(max(s.Count, 1), 4)
		warn("slot.count", s.Count)
	}
	if s.Count > 1 && s.Stride < s.IOSize {
		s.Stride = s.IOSize
		warn("slot.stride", s.Stride)
	}

	inserted := make(map[int]string)
	for i := range s.Cards {
		c := &s.Cards[i]
		if !slices.Contains(cardTypes, c.Type) {
			return errors.Errorf("slot %s: card %q: unknown type %q", s.Name, c.Name, c.Type)
		}
		if c.Position == 0 {
			c.Position = 1
		}
		if c.Position < 1 || c.Position > s.Count {
			return errors.Errorf("slot %s: card %q: no slot %d", s.Name, c.Name, c.Position)
		}
		if c.Insert {
			if prev, dup := inserted[c.Position]; dup {
				return errors.Errorf("slot %s: cards %q and %q both inserted in slot %d", s.Name, prev, c.Name, c.Position)
			}
			inserted[c.Position] = c.Name
		}
		if c.Type != "rom" {
			c.ClockHz = cfg.clampClock("card.clock_hz", c.ClockHz, warn)
		}
		if c.Type == "rom" && c.Window == 0 {
			c.Window = s.MemSize
		}
	}
	return nil
}

// clampClock defaults a zero clock to the machine clock and limits clocks
// to it.
func (cfg *Config) clampClock(what string, hz uint64, warn func(string, any)) uint64 {
	switch {
	case hz == 0:
		warn(what, cfg.Machine.ClockHz)
		return cfg.Machine.ClockHz
	case hz > cfg.Machine.ClockHz:
		warn(what, cfg.Machine.ClockHz)
		return cfg.Machine.ClockHz
	}
	return hz
}

// path resolves an image path relative to the configuration file.
func (cfg *Config) path(p string) string {
	if filepath.IsAbs(p) || cfg.dir == "" {
		return p
	}
	return filepath.Join(cfg.dir, p)
}

// LoadConfig reads and checks a machine description.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	for _, key := range md.Undecoded() {
		log.ModEmu.WarnZ("unknown config key").
			String("file", path).
			String("key", key.String()).
			End()
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.Check(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path.
func SaveConfig(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return os.WriteFile(path, buf, 0o644)
}

// The default machine is a 6809 test bench: RAM, a ROM idling with
// interrupts enabled, one serial port, a timer unit, a watchdog, a
// dual-port RAM and a slot holding a ROM card.
const defaultROM = `
# f000: LDS #$7f00 / ANDCC #$af / BRA *
0000: 10 ce 7f 00 1c af 20 fe
# f008: RTI
0008: 3b
# vectors
0ff6: f0 08 f0 08 f0 08 f0 08 f0 00
`

func DefaultConfig() Config {
	def := uint8(0xff)
	return Config{
		Machine: MachineConfig{Name: "bench", ClockHz: 4_000_000},
		CPU:     CPUConfig{Type: "m6809", ClockHz: 1_000_000},
		Memory: []MemoryConfig{
			{Name: "ram", Kind: "ram", Base: 0x0000, Size: 0x8000},
			{Name: "rom", Kind: "rom", Base: 0xf000, Size: 0x1000, Hex: defaultROM},
		},
		SCI: []SCIConfig{
			{Name: "sci0", Base: 0xe000, IRQ: "irq"},
		},
		Timer16: []Timer16Config{
			{Name: "timer", Base: 0xe010, Channels: 2, IRQ: "irq"},
		},
		Watchdog: &WatchdogConfig{Base: 0xe050, ClockHz: 1_000_000, Period: 100_000},
		DPRAM: []DPRAMConfig{
			{Name: "dpram", Base: 0xd000, RightBase: 0xd800, IRQ: "firq"},
		},
		Slot: []SlotConfig{{
			Name:    "slot",
			MemBase: 0xc000,
			MemSize: 0x800,
			IOBase:  0xe080,
			IOSize:  0x10,
			Default: &def,
			IRQ:     "irq",
			NMI:     "nmi",
			Count:   1,
			Cards: []CardConfig{
				{Name: "rom", Type: "rom", Position: 1, Hex: "0000: 52 4f 4d", Size: 0x1000, Window: 0x800, Insert: true},
			},
		}},
	}
}
