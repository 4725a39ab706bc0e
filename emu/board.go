package emu

import (
	"io"
	"os"

	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/dpram"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
	"emucore/hw/m6502"
	"emucore/hw/m6809"
	"emucore/hw/machine"
	"emucore/hw/periph"
	"emucore/hw/sched"
	"emucore/hw/sci"
	"emucore/hw/slot"
	"emucore/hw/slot/cards"
	"emucore/hw/timer16"
	"emucore/hw/watchdog"
)

// Core is what a board needs of its CPU.
type Core interface {
	device.Interface
	sched.Executor
	CurrentPC() uint16
	SetInputLine(line int, state hwdefs.LineState)
	SetTraceOutput(w io.Writer)
	Disasm(pc uint16) (string, int)
}

var cpuLines = map[string]int{
	"irq":  hwdefs.InputLineIRQ0,
	"firq": hwdefs.InputLineIRQ1,
	"nmi":  hwdefs.InputLineNMI,
}

// Board is a machine built from a Config. It is itself a device, owning the
// memories, and hosting the on-chip peripherals when the CPU can't.
type Board struct {
	device.Device

	M   *machine.Machine
	CPU Core
	Bus *hwio.Table

	SCI        []*sci.SCI
	Timers     []*timer16.Timer
	Watchdog   *watchdog.Watchdog
	DPRAM      []*dpram.DPRAM
	Slots      []*slot.Slot
	Backplanes []*slot.Backplane

	ram     map[string][]byte
	ramTags []string
	onchip  []periph.EventSource
	drv     *periph.Driver
	sources map[string][]source
	insert  []insertion
	closers []io.Closer
	err     error
}

type source struct {
	name string
	line *irq.Line
}

type insertion struct {
	slot *slot.Slot
	card string
}

// Build creates the machine described by cfg and starts it. cfg must have
// been checked.
func Build(cfg Config) (*Board, error) {
	b := &Board{
		M:       machine.New(cfg.Machine.Name, cfg.Machine.ClockHz),
		Bus:     hwio.NewTable(cfg.Machine.Name),
		ram:     make(map[string][]byte),
		sources: make(map[string][]source),
	}
	if err := b.build(cfg); err != nil {
		b.Close()
		return nil, err
	}
	log.ModEmu.InfoZ("board built").
		String("name", cfg.Machine.Name).
		String("cpu", cfg.CPU.Type).
		Int("memories", len(cfg.Memory)).
		Int("slots", len(b.Slots)).
		End()
	return b, nil
}

func (b *Board) build(cfg Config) error {
	if cfg.Machine.Quantum != 0 {
		b.M.Scheduler().SetQuantum(sched.Time(cfg.Machine.Quantum))
	}
	b.Init("board", "board", cfg.CPU.ClockHz)
	b.add(nil, b)

	switch cfg.CPU.Type {
	case "m6809":
		b.CPU = m6809.New("cpu", cfg.CPU.ClockHz, b.Bus)
	case "m6502":
		b.CPU = m6502.New("cpu", cfg.CPU.ClockHz, b.Bus)
	default:
		return errors.Errorf("unknown cpu %q", cfg.CPU.Type)
	}
	b.add(nil, b.CPU)

	for _, mc := range cfg.Memory {
		if err := b.buildMemory(cfg, mc); err != nil {
			return err
		}
	}
	for _, sc := range cfg.SCI {
		if err := b.buildSCI(sc); err != nil {
			return err
		}
	}
	for _, tc := range cfg.Timer16 {
		t := timer16.New(tc.Name, cfg.CPU.ClockHz, tc.Channels)
		b.add(nil, t)
		b.hostOnChip(t, t)
		b.M.Map(b.Bus, ":"+tc.Name, tc.Base)
		for _, ch := range t.Channels {
			b.route(tc.IRQ, tc.Name, ch.IMIA, ch.IMIB, ch.OVI)
		}
		b.Timers = append(b.Timers, t)
	}
	if wc := cfg.Watchdog; wc != nil {
		b.Watchdog = watchdog.New("wdt", wc.ClockHz, wc.Period)
		b.add(nil, b.Watchdog)
		b.M.Map(b.Bus, ":wdt", wc.Base)
	}
	for _, dc := range cfg.DPRAM {
		d := dpram.New(dc.Name)
		b.add(nil, d)
		b.M.Map(b.Bus, ":"+dc.Name, dc.Base)
		b.route(dc.IRQ, dc.Name, d.INTL)
		if dc.RightBase != 0 {
			d.InstallRight(b.Bus, dc.RightBase)
			b.route(dc.IRQ, dc.Name, d.INTR)
		}
		b.DPRAM = append(b.DPRAM, d)
	}
	for _, sc := range cfg.Slot {
		if err := b.buildSlot(cfg, sc); err != nil {
			return err
		}
	}
	b.connectLines()
	if b.err != nil {
		return b.err
	}

	if err := b.M.Start(); err != nil {
		return errors.Wrap(err, "start machine")
	}
	for _, ins := range b.insert {
		if err := ins.slot.Insert(ins.card); err != nil {
			return err
		}
	}
	return nil
}

// add attaches a device, remembering the first error.
func (b *Board) add(owner, impl device.Interface) {
	if b.err != nil {
		return
	}
	if err := b.M.Add(owner, impl); err != nil {
		b.err = err
	}
}

// adder lets the slot package add devices through Board.add.
type adder struct{ b *Board }

func (a adder) MustAdd(owner, impl device.Interface) { a.b.add(owner, impl) }

func (b *Board) buildMemory(cfg Config, mc MemoryConfig) error {
	end := uint16(uint32(mc.Base) + mc.Size - 1)
	if mc.Kind == "ram" {
		buf := make([]byte, mc.Size)
		b.ram[mc.Name] = buf
		b.ramTags = append(b.ramTags, mc.Name)
		b.Bus.MapMemorySlice(mc.Base, end, buf, false)
		return nil
	}
	img, err := loadImage(cfg, mc.Image, mc.Hex, mc.Size)
	if err != nil {
		return errors.Wrapf(err, "memory %s", mc.Name)
	}
	b.Bus.MapMemorySlice(mc.Base, end, img, true)
	return nil
}

func (b *Board) buildSCI(sc SCIConfig) error {
	s := sci.New(sc.Name, b.ClockHz())
	out, err := b.output(sc.Output)
	if err != nil {
		return errors.Wrapf(err, "sci %s", sc.Name)
	}
	if out != nil {
		s.Sent = func(data uint8) { writeByte(s.Tag(), out, data) }
	}
	if sc.Loopback {
		s.TX = s.RxW
	}
	b.add(nil, s)
	b.hostOnChip(s, s)
	b.M.Map(b.Bus, ":"+sc.Name, sc.Base)
	b.route(sc.IRQ, sc.Name, s.ERI, s.RXI, s.TXI, s.TEI)
	b.SCI = append(b.SCI, s)
	return nil
}

func (b *Board) buildSlot(cfg Config, sc SlotConfig) error {
	var slots []*slot.Slot
	if sc.Count > 1 {
		bp := slot.NewBackplane(sc.Name, sc.Count, sc.MemSize, sc.IOSize, sc.Stride)
		bp.AddTo(adder{b}, nil)
		bp.InstallIO(b.Bus, sc.IOBase)
		b.route(sc.IRQ, sc.Name, bp.IRQ.Output())
		b.route(sc.NMI, sc.Name, bp.NMI.Output())
		slots = bp.Slots
		b.Backplanes = append(b.Backplanes, bp)
	} else {
		s := slot.New(sc.Name, sc.MemSize, sc.IOSize)
		b.add(nil, s)
		s.InstallIO(b.Bus, sc.IOBase)
		b.route(sc.IRQ, sc.Name, s.IRQ)
		b.route(sc.NMI, sc.Name, s.NMI)
		slots = []*slot.Slot{s}
	}
	if sc.MemSize != 0 {
		b.M.Map(b.Bus, ":"+sc.Name, sc.MemBase)
	}
	for _, s := range slots {
		if sc.Default != nil {
			s.Default = *sc.Default
		}
	}

	for _, cc := range sc.Cards {
		card, err := b.buildCard(cfg, cc)
		if err != nil {
			return errors.Wrapf(err, "slot %s", sc.Name)
		}
		s := slots[cc.Position-1]
		s.AddCard(adder{b}, card)
		if cc.Insert {
			b.insert = append(b.insert, insertion{s, cc.Name})
		}
	}
	b.Slots = append(b.Slots, slots...)
	return nil
}

func (b *Board) buildCard(cfg Config, cc CardConfig) (device.Interface, error) {
	switch cc.Type {
	case "rom":
		img, err := loadImage(cfg, cc.Image, cc.Hex, cc.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "card %s", cc.Name)
		}
		return cards.NewROMCard(cc.Name, img, cc.Window, cc.RAMOffset, cc.RAMSize), nil
	case "serial":
		out, err := b.output(cc.Output)
		if err != nil {
			return nil, errors.Wrapf(err, "card %s", cc.Name)
		}
		return cards.NewSerialCard(cc.Name, cc.ClockHz, out, cc.Loopback), nil
	case "timer":
		return cards.NewTimerCard(cc.Name, cc.ClockHz), nil
	case "mailbox":
		img, err := loadImage(cfg, cc.Image, cc.Hex, cc.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "card %s", cc.Name)
		}
		card, err := cards.NewMailboxCard(cc.Name, cc.ClockHz, img)
		if err != nil {
			return nil, err
		}
		return card, nil
	}
	return nil, errors.Errorf("card %s: unknown type %q", cc.Name, cc.Type)
}

type attacher interface {
	Attach(host periph.Host)
}

// hostOnChip attaches an on-chip peripheral to the CPU when it can host
// peripherals, or to the board otherwise.
func (b *Board) hostOnChip(p attacher, src periph.EventSource) {
	if cpu, ok := b.CPU.(*m6809.CPU); ok {
		cpu.AddPeripheral(src)
		p.Attach(cpu)
		return
	}
	b.onchip = append(b.onchip, src)
	p.Attach(lazyHost{b})
}

// lazyHost forwards to the board driver, which only exists once the board
// has started.
type lazyHost struct{ b *Board }

func (h lazyHost) TotalCycles() uint64 { return h.b.drv.TotalCycles() }
func (h lazyHost) InternalUpdate()     { h.b.drv.InternalUpdate() }
func (h lazyHost) Synchronize()        { h.b.drv.Synchronize() }
func (h lazyHost) CatchUp()            { h.b.drv.CatchUp() }

// route connects interrupt outputs to a CPU line. An empty line name
// leaves them unconnected.
func (b *Board) route(line, owner string, lines ...*irq.Line) {
	if line == "" {
		return
	}
	for _, l := range lines {
		b.sources[line] = append(b.sources[line], source{owner + "/" + l.Name(), l})
	}
}

// connectLines merges the sources of each CPU line.
func (b *Board) connectLines() {
	for _, name := range []string{"irq", "firq", "nmi"} {
		srcs := b.sources[name]
		if len(srcs) == 0 {
			continue
		}
		names := make([]string, len(srcs))
		for i, s := range srcs {
			names[i] = s.name
		}
		m := irq.NewMerger(name, names, irq.ActiveHigh)
		b.add(b, m)
		for i, s := range srcs {
			s.line.Connect(m.Input(i))
		}
		input := cpuLines[name]
		m.Output().Connect(func(st hwdefs.LineState) {
			b.CPU.SetInputLine(input, st)
		})
	}
}

func (b *Board) Start(ctx device.Context) error {
	for _, name := range b.ramTags {
		b.SaveItem("ram/"+name, b.ram[name])
	}
	if len(b.onchip) != 0 {
		b.drv = periph.NewDriver(&b.Device, ctx.Scheduler())
		for _, src := range b.onchip {
			b.drv.Add(src)
		}
	}
	return nil
}

func (b *Board) PostLoad() {
	if b.drv != nil {
		b.drv.PostLoad()
	}
}

// RAM returns the contents of a RAM region.
func (b *Board) RAM(name string) []byte { return b.ram[name] }

// Close stops the machine and closes the serial outputs.
func (b *Board) Close() error {
	if b.M.Started() {
		b.M.Stop()
	}
	var err error
	for _, c := range b.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	b.closers = nil
	return err
}

// output opens a serial output: stdout, stderr or a file. The empty name
// discards the output.
func (b *Board) output(name string) (io.Writer, error) {
	switch name {
	case "":
		return nil, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, f)
	return f, nil
}

func writeByte(tag string, w io.Writer, data uint8) {
	if _, err := w.Write([]byte{data}); err != nil {
		log.ModEmu.WarnZ("serial output").
			String("tag", tag).
			Error("err", err).
			End()
	}
}

// loadImage returns a buffer of size bytes (or the image size if size is
// zero) holding a raw image file or an inline hex dump. The rest of the
// buffer is filled with ff.
func loadImage(cfg Config, path, hex string, size uint32) ([]byte, error) {
	var img []byte
	switch {
	case path != "" && hex != "":
		return nil, errors.New("both an image file and a hex dump")
	case path != "":
		data, err := os.ReadFile(cfg.path(path))
		if err != nil {
			return nil, errors.Wrap(err, "read image")
		}
		if size == 0 {
			size = uint32(len(data))
		}
		if uint32(len(data)) > size {
			return nil, errors.Errorf("image %s: %d bytes, doesn't fit in %d", path, len(data), size)
		}
		img = make([]byte, size)
		fill(img)
		copy(img, data)
	default:
		if size == 0 {
			return nil, errors.New("hex image without a size")
		}
		img = make([]byte, size)
		fill(img)
		if err := hwio.LoadHexDump(img, hex); err != nil {
			return nil, errors.Wrap(err, "hex image")
		}
	}
	return img, nil
}

func fill(buf []byte) {
	for i := range buf {
		buf[i] = 0xff
	}
}
