// Package m6502 implements the NMOS 6502, cycle by cycle: every bus access
// costs one cycle and interrupt lines are sampled at the end of each cycle.
package m6502

import (
	"io"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/sched"
	"emucore/hw/trace"
)

// Locations reserved for vector pointers.
const (
	NMIVector   = uint16(0xFFFA) // Non-Maskable Interrupt
	ResetVector = uint16(0xFFFC) // Reset
	IRQVector   = uint16(0xFFFE) // Interrupt Request
)

// Number of cycles burnt after reset, before the first opcode fetch.
const resetCycles = 7

// State entry indices.
const (
	StatePC = iota + 1
	StateSP
	StateA
	StateX
	StateY
	StateP
)

type CPU struct {
	device.Device
	sched.Exec

	Bus *hwio.Table

	// cpu registers
	A, X, Y, SP uint8
	PC          uint16
	P           P

	ppc     uint16 // address of the instruction in progress
	startup uint8  // cycles left to burn after reset

	// interrupt handling
	irqFlag              uint8 // one bit per asserted IRQ input
	nmiFlag, prevNmiFlag bool
	needNmi, prevNeedNmi bool
	runIRQ, prevRunIRQ   bool

	tracer *trace.Tracer

	breaks  *hwio.AddrSet
	onBreak func(pc uint16)
	skipBrk bool
}

// New creates a 6502 executing from bus.
func New(tag string, clock uint64, bus *hwio.Table) *CPU {
	c := &CPU{Bus: bus, SP: 0xFD, P: Reserved | Interrupt}
	c.Init(tag, "m6502", clock)
	return c
}

func (c *CPU) Start(ctx device.Context) error {
	c.Clock = ctx.Scheduler().Clock(c.ClockHz())

	c.StateAdd(device.StateGenPC, "CURPC", &c.PC).NoShow()
	c.StateAdd(device.StateGenPCBase, "CURPCBASE", &c.ppc).NoShow()
	c.StateAdd(device.StateGenFlags, "CURFLAGS", &c.P).Format("%s").NoShow()
	c.StateAdd(device.StateGenSP, "CURSP", &c.SP).NoShow()
	c.StateAdd(StatePC, "PC", &c.PC).CallImport()
	c.StateAdd(StateSP, "SP", &c.SP)
	c.StateAdd(StateA, "A", &c.A)
	c.StateAdd(StateX, "X", &c.X)
	c.StateAdd(StateY, "Y", &c.Y)
	c.StateAdd(StateP, "P", &c.P)

	c.SaveItem("pc", &c.PC)
	c.SaveItem("ppc", &c.ppc)
	c.SaveItem("a", &c.A)
	c.SaveItem("x", &c.X)
	c.SaveItem("y", &c.Y)
	c.SaveItem("sp", &c.SP)
	c.SaveItem("p", &c.P)
	c.SaveItem("startup", &c.startup)
	c.SaveItem("irq", &c.irqFlag)
	c.SaveItem("nmi", &c.nmiFlag)
	c.SaveItem("prev_nmi", &c.prevNmiFlag)
	c.SaveItem("need_nmi", &c.needNmi)
	c.SaveItem("prev_need_nmi", &c.prevNeedNmi)
	c.SaveItem("run_irq", &c.runIRQ)
	c.SaveItem("prev_run_irq", &c.prevRunIRQ)
	return nil
}

func (c *CPU) Reset(soft bool) {
	if soft {
		c.SP -= 0x03
		c.P.set(Interrupt, true)
	} else {
		c.A = 0x00
		c.X = 0x00
		c.Y = 0x00
		c.SP = 0xFD
		c.P = Reserved | Interrupt
	}
	c.runIRQ, c.prevRunIRQ = false, false
	c.needNmi, c.prevNeedNmi = false, false
	c.prevNmiFlag = c.nmiFlag

	// Directly read from the bus to avoid side effects.
	c.PC = uint16(c.Bus.Peek8(ResetVector)) | uint16(c.Bus.Peek8(ResetVector+1))<<8
	c.ppc = c.PC
	c.startup = resetCycles
	c.skipBrk = false
}

// StateImport keeps the instruction pointer in sync when the debugger
// changes PC.
func (c *CPU) StateImport(e *device.StateEntry) {
	if e.Index() == StatePC {
		c.ppc = c.PC
	}
}

func (c *CPU) StateFormat(e *device.StateEntry) string {
	return c.P.Flags()
}

// CurrentPC returns the address of the instruction in progress.
func (c *CPU) CurrentPC() uint16 { return c.ppc }

// SetInputLine drives one of the CPU inputs: IRQ lines (level), NMI (edge)
// or HALT.
func (c *CPU) SetInputLine(line int, state hwdefs.LineState) {
	switch {
	case line == hwdefs.InputLineNMI:
		c.nmiFlag = state.Bool()
	case line == hwdefs.InputLineHalt:
		if state.Bool() {
			c.Suspend(sched.SuspendHalt)
		} else {
			c.Resume(sched.SuspendHalt)
		}
	case line >= 0 && line < 8:
		if state.Bool() {
			c.irqFlag |= 1 << line
		} else {
			c.irqFlag &^= 1 << line
		}
	default:
		log.ModCPU.WarnZ("unknown input line").
			String("tag", c.Tag()).
			Int("line", line).
			End()
	}
}

// IrqW and NmiW can be connected to interrupt lines.
func (c *CPU) IrqW(state hwdefs.LineState) { c.SetInputLine(hwdefs.InputLineIRQ0, state) }
func (c *CPU) NmiW(state hwdefs.LineState) { c.SetInputLine(hwdefs.InputLineNMI, state) }

// SetBreakpoints makes the CPU suspend itself, with sched.SuspendDebug,
// before executing an instruction whose address is in set. fn is then
// called with that address.
func (c *CPU) SetBreakpoints(set *hwio.AddrSet, fn func(pc uint16)) {
	c.breaks, c.onBreak = set, fn
}

func (c *CPU) traceOp() {
	c.tracer.Write(c.PC, []trace.Reg{
		{Name: "A", Val: uint16(c.A)},
		{Name: "X", Val: uint16(c.X)},
		{Name: "Y", Val: uint16(c.Y)},
		{Name: "P", Val: uint16(c.P)},
		{Name: "S", Val: uint16(c.SP)},
	}, c.TotalCycles())
}

func (c *CPU) breakpoint() bool {
	if c.skipBrk {
		c.skipBrk = false
		return false
	}
	if !c.breaks.Has(c.PC) {
		return false
	}
	c.skipBrk = true
	c.Suspend(sched.SuspendDebug)
	if c.onBreak != nil {
		c.onBreak(c.PC)
	}
	return true
}

func (c *CPU) ExecuteRun() {
	for c.startup > 0 && c.ICount > 0 {
		c.ICount--
		c.handleInterrupts()
		c.startup--
	}

	for c.ICount > 0 {
		if c.breaks != nil && c.breakpoint() {
			break
		}
		if c.tracer != nil {
			c.traceOp()
		}

		c.ppc = c.PC
		opcode := c.Read8(c.PC)
		c.PC++
		ops[opcode](c)

		if c.prevRunIRQ || c.prevNeedNmi {
			c.IRQ()
		}
	}
}

func (c *CPU) illegal() {
	opcode := c.Bus.Peek8(c.ppc)
	c.FatalfPC(c.ppc, "illegal opcode %02X", opcode)
}

func (c *CPU) Read8(addr uint16) uint8 {
	c.ICount--
	val := c.Bus.Read8(addr)
	c.handleInterrupts()
	return val
}

func (c *CPU) Write8(addr uint16, val uint8) {
	c.ICount--
	c.Bus.Write8(addr, val)
	c.handleInterrupts()
}

func (c *CPU) Read16(addr uint16) uint16 {
	lo := c.Read8(addr)
	hi := c.Read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

/* stack operations */

func (c *CPU) push8(val uint8) {
	top := uint16(c.SP) + 0x0100
	c.Write8(top, val)
	c.SP -= 1
}

func (c *CPU) push16(val uint16) {
	c.push8(uint8(val >> 8))
	c.push8(uint8(val & 0xff))
}

func (c *CPU) pull8() uint8 {
	c.SP++
	top := uint16(c.SP) + 0x0100
	return c.Read8(top)
}

func (c *CPU) pull16() uint16 {
	lo := c.pull8()
	hi := c.pull8()
	return uint16(hi)<<8 | uint16(lo)
}

/* interrupt handling */

func (c *CPU) handleInterrupts() {
	// The internal signal goes high during φ1 of the cycle that follows the one
	// where the edge is detected and stays high until the NMI has been handled.
	c.prevNeedNmi = c.needNmi

	// This edge detector polls the status of the NMI line during φ2 of each CPU
	// cycle (i.e. during the second half of each cycle) and raises an internal
	// signal if the input goes from being high during one cycle to being low
	// during the next.
	if !c.prevNmiFlag && c.nmiFlag {
		c.needNmi = true
	}
	c.prevNmiFlag = c.nmiFlag

	// It's really the status of the interrupt lines at the end of the
	// second-to-last cycle that matters. Keep the IRQ lines values from the
	// previous cycle. The before-to-last cycle's values will be used.
	c.prevRunIRQ = c.runIRQ
	c.runIRQ = c.irqFlag != 0 && !c.P.has(Interrupt)
}

// IRQ runs the interrupt sequence, NMI taking precedence over IRQ.
func (c *CPU) IRQ() {
	c.Read8(c.PC) // dummy reads
	c.Read8(c.PC)

	c.push16(c.PC)

	vector := IRQVector
	if c.needNmi {
		c.needNmi = false
		vector = NMIVector
	}
	c.push8(uint8(c.P&^Break | Reserved))
	c.P.set(Interrupt, true)
	c.PC = c.Read16(vector)

	log.ModCPU.DebugZ("interrupt").
		String("tag", c.Tag()).
		Hex16("from", c.ppc).
		Hex16("to", c.PC).
		Bool("nmi", vector == NMIVector).
		End()
}

/* tracing / debugging */

func (c *CPU) SetTraceOutput(w io.Writer) {
	if w == nil {
		c.tracer = nil
		return
	}
	c.tracer = trace.New(c, w)
}
