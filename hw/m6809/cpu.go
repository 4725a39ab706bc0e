// Package m6809 implements the Motorola 6809. Instructions are dispatched
// through flat tables, one per opcode page, and charged their documented
// cycle count.
package m6809

import (
	"io"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/periph"
	"emucore/hw/sched"
	"emucore/hw/trace"
)

// Interrupt vectors.
const (
	vecSWI3  = uint16(0xFFF2)
	vecSWI2  = uint16(0xFFF4)
	vecFIRQ  = uint16(0xFFF6)
	vecIRQ   = uint16(0xFFF8)
	vecSWI   = uint16(0xFFFA)
	vecNMI   = uint16(0xFFFC)
	vecReset = uint16(0xFFFE)
)

// Input lines.
const (
	InputLineIRQ  = hwdefs.InputLineIRQ0
	InputLineFIRQ = hwdefs.InputLineIRQ1
	InputLineNMI  = hwdefs.InputLineNMI
)

// State entry indices.
const (
	StatePC = iota + 1
	StateS
	StateCC
	StateDP
	StateA
	StateB
	StateD
	StateX
	StateY
	StateU
)

// Policy selects what happens on an undefined opcode.
type Policy uint8

const (
	// PolicyLogNop logs the opcode and skips it.
	PolicyLogNop Policy = iota
	// PolicyFatal stops the emulation.
	PolicyFatal
)

// wait states entered by CWAI and SYNC.
const (
	waitNone uint8 = iota
	waitCWAI
	waitSync
)

// cycles charged to leave CWAI, the state being already stacked.
const cwaiVectorCycles = 2

type CPU struct {
	device.Device
	sched.Exec

	Bus    *hwio.Table
	Policy Policy

	A, B      uint8
	DP, CC    uint8
	X, Y      uint16
	U, S      uint16
	PC        uint16
	ppc       uint16 // address of the instruction in progress
	d         uint16 // D, as seen by the debugger
	mode      mode   // addressing mode of the instruction in progress
	wait      uint8
	nmiLine   bool
	nmiAssert bool
	firqLine  bool
	irqLine   bool
	ldsSeen   bool // NMI is disabled until S has been loaded

	s      *sched.Scheduler
	hub    *periph.Hub
	tracer *trace.Tracer

	breaks  *hwio.AddrSet
	onBreak func(pc uint16)
	skipBrk bool
}

// New creates a 6809 executing from bus.
func New(tag string, clock uint64, bus *hwio.Table) *CPU {
	c := &CPU{Bus: bus}
	c.Init(tag, "m6809", clock)
	c.hub = periph.NewHub(&c.Device)
	return c
}

func (c *CPU) Start(ctx device.Context) error {
	c.s = ctx.Scheduler()
	c.Clock = c.s.Clock(c.ClockHz())

	c.StateAdd(device.StateGenPC, "GENPC", &c.PC).NoShow()
	c.StateAdd(device.StateGenPCBase, "CURPC", &c.ppc).CallImport().NoShow()
	c.StateAdd(device.StateGenFlags, "CURFLAGS", &c.CC).Format("%s").NoShow()
	c.StateAdd(device.StateGenSP, "GENSP", &c.S).NoShow()
	c.StateAdd(StatePC, "PC", &c.PC).CallImport().Mask(0xffff)
	c.StateAdd(StateS, "S", &c.S).Mask(0xffff)
	c.StateAdd(StateCC, "CC", &c.CC).Mask(0xff)
	c.StateAdd(StateDP, "DP", &c.DP).Mask(0xff)
	c.StateAdd(StateA, "A", &c.A).Mask(0xff)
	c.StateAdd(StateB, "B", &c.B).Mask(0xff)
	c.StateAdd(StateD, "D", &c.d).Mask(0xffff).CallImport().CallExport()
	c.StateAdd(StateX, "X", &c.X).Mask(0xffff)
	c.StateAdd(StateY, "Y", &c.Y).Mask(0xffff)
	c.StateAdd(StateU, "U", &c.U).Mask(0xffff)

	c.SaveItem("pc", &c.PC)
	c.SaveItem("ppc", &c.ppc)
	c.SaveItem("a", &c.A)
	c.SaveItem("b", &c.B)
	c.SaveItem("dp", &c.DP)
	c.SaveItem("cc", &c.CC)
	c.SaveItem("x", &c.X)
	c.SaveItem("y", &c.Y)
	c.SaveItem("u", &c.U)
	c.SaveItem("s", &c.S)
	c.SaveItem("wait", &c.wait)
	c.SaveItem("nmi_line", &c.nmiLine)
	c.SaveItem("nmi_asserted", &c.nmiAssert)
	c.SaveItem("firq_line", &c.firqLine)
	c.SaveItem("irq_line", &c.irqLine)
	c.SaveItem("lds_encountered", &c.ldsSeen)
	c.hub.RegisterState(&c.Device)
	return nil
}

func (c *CPU) Reset(soft bool) {
	c.nmiLine = false
	c.nmiAssert = false
	c.firqLine = false
	c.irqLine = false
	c.ldsSeen = false
	c.wait = waitNone
	c.DP = 0x00
	c.CC |= ccI | ccF

	// Directly read from the bus to avoid side effects.
	c.PC = uint16(c.Bus.Peek8(vecReset))<<8 | uint16(c.Bus.Peek8(vecReset+1))
	c.ppc = c.PC
	c.skipBrk = false
}

// D returns the A:B register pair.
func (c *CPU) D() uint16 { return uint16(c.A)<<8 | uint16(c.B) }

func (c *CPU) setD(v uint16) {
	c.A = uint8(v >> 8)
	c.B = uint8(v)
}

func (c *CPU) StateImport(e *device.StateEntry) {
	switch e.Index() {
	case StatePC:
		c.ppc = c.PC
	case device.StateGenPCBase:
		c.PC = c.ppc
	case StateD:
		c.setD(c.d)
	}
}

func (c *CPU) StateExport(e *device.StateEntry) {
	if e.Index() == StateD {
		c.d = c.D()
	}
}

func (c *CPU) StateFormat(e *device.StateEntry) string {
	const letters = "EFHINZVC"

	s := []byte(letters)
	for i := range s {
		if c.CC&(0x80>>i) == 0 {
			s[i] = '.'
		}
	}
	return string(s)
}

// CurrentPC returns the address of the instruction in progress.
func (c *CPU) CurrentPC() uint16 { return c.ppc }

// SetInputLine latches the state of an input line. Interrupts are taken at
// the next instruction boundary.
func (c *CPU) SetInputLine(line int, state hwdefs.LineState) {
	asserted := state.Bool()
	switch line {
	case InputLineNMI:
		// NMI is edge triggered, and only armed once S has been set.
		c.nmiAssert = c.nmiAssert || (asserted && !c.nmiLine && c.ldsSeen)
		c.nmiLine = asserted
	case InputLineFIRQ:
		c.firqLine = asserted
	case InputLineIRQ:
		c.irqLine = asserted
	case hwdefs.InputLineHalt:
		if asserted {
			c.Suspend(sched.SuspendHalt)
		} else {
			c.Resume(sched.SuspendHalt)
		}
	default:
		log.ModCPU.WarnZ("unknown input line").
			String("tag", c.Tag()).
			Int("line", line).
			End()
	}
}

// IrqW, FirqW and NmiW can be connected to interrupt lines.
func (c *CPU) IrqW(state hwdefs.LineState)  { c.SetInputLine(InputLineIRQ, state) }
func (c *CPU) FirqW(state hwdefs.LineState) { c.SetInputLine(InputLineFIRQ, state) }
func (c *CPU) NmiW(state hwdefs.LineState)  { c.SetInputLine(InputLineNMI, state) }

/* peripherals */

// AddPeripheral makes the CPU host an on-chip peripheral. Its events are
// serviced at instruction boundaries.
func (c *CPU) AddPeripheral(src periph.EventSource) {
	c.hub.Add(src)
}

// InternalUpdate recomputes the next peripheral event.
func (c *CPU) InternalUpdate() {
	c.hub.Update(c.TotalCycles())
}

// Synchronize ends the timeslice after the current instruction so that other
// executors can catch up.
func (c *CPU) Synchronize() {
	c.s.Synchronize()
}

func (c *CPU) serviceHub() {
	if c.hub.Due(c.TotalCycles()) {
		c.InternalUpdate()
	}
}

// idle burns cycles while waiting for an interrupt, stopping at the next
// peripheral event.
func (c *CPU) idle() {
	n := c.ICount
	if next := c.hub.Next(); next != 0 {
		now := c.TotalCycles()
		if next > now && int64(next-now) < n {
			n = int64(next - now)
		}
	}
	c.ICount -= n
}

/* execution */

// SetBreakpoints suspends the CPU with sched.SuspendDebug before it executes
// an instruction at an address in set, then calls fn.
func (c *CPU) SetBreakpoints(set *hwio.AddrSet, fn func(pc uint16)) {
	c.breaks, c.onBreak = set, fn
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

func (c *CPU) traceOp() {
	c.tracer.Write(c.PC, []trace.Reg{
		{Name: "A", Val: uint16(c.A)},
		{Name: "B", Val: uint16(c.B)},
		{Name: "X", Val: c.X, Wide: true},
		{Name: "Y", Val: c.Y, Wide: true},
		{Name: "U", Val: c.U, Wide: true},
		{Name: "S", Val: c.S, Wide: true},
		{Name: "DP", Val: uint16(c.DP)},
		{Name: "CC", Val: uint16(c.CC)},
	}, c.TotalCycles())
}

func (c *CPU) ExecuteRun() {
	for c.ICount > 0 {
		c.serviceHub()

		if c.wait == waitSync && (c.nmiAssert || c.firqLine || c.irqLine) {
			c.wait = waitNone
		}
		if c.checkInterrupts() {
			continue
		}
		if c.wait != waitNone {
			c.idle()
			continue
		}

		if c.breaks != nil && c.breakpoint() {
			break
		}
		if c.tracer != nil {
			c.traceOp()
		}
		c.ppc = c.PC
		c.execute()
	}
}

func (c *CPU) execute() {
	table := &page1
	opcode := c.fetch8()
	switch opcode {
	case 0x10:
		table = &page2
		opcode = c.fetch8()
	case 0x11:
		table = &page3
		opcode = c.fetch8()
	}

	def := &table[opcode]
	if def.f == nil {
		c.illegal(table != &page1)
		return
	}
	c.mode = def.m
	c.ICount -= int64(def.c)
	def.f(c)
}

func (c *CPU) illegal(prefixed bool) {
	if c.Policy == PolicyFatal {
		c.FatalfPC(c.ppc, "illegal opcode %s", c.opcodeBytes())
	}
	log.ModCPU.WarnZ("illegal opcode").
		String("tag", c.Tag()).
		Hex16("pc", c.ppc).
		String("opcode", c.opcodeBytes()).
		End()
	c.ICount -= 2
	if prefixed {
		c.ICount--
	}
}

/* interrupts */

// checkInterrupts takes the highest priority pending interrupt, if any.
func (c *CPU) checkInterrupts() bool {
	switch {
	case c.nmiAssert:
		c.nmiAssert = false
		c.interrupt(vecNMI, ccI|ccF, true)
	case c.firqLine && c.CC&ccF == 0:
		c.interrupt(vecFIRQ, ccI|ccF, false)
	case c.irqLine && c.CC&ccI == 0:
		c.interrupt(vecIRQ, ccI, true)
	default:
		return false
	}
	return true
}

func (c *CPU) interrupt(vector uint16, mask uint8, entire bool) {
	from := c.PC
	switch {
	case c.wait == waitCWAI:
		// CWAI has already stacked the entire state.
		c.ICount -= cwaiVectorCycles
	case entire:
		c.CC |= ccE
		c.pushRegs(0xff, &c.S, c.U)
		c.ICount -= 19
	default:
		c.CC &^= ccE
		c.pushRegs(0x81, &c.S, c.U)
		c.ICount -= 10
	}
	c.wait = waitNone
	c.CC |= mask
	c.PC = c.read16(vector)

	log.ModCPU.DebugZ("interrupt").
		String("tag", c.Tag()).
		Hex16("from", from).
		Hex16("vector", vector).
		Hex16("to", c.PC).
		End()
}

/* bus */

// read8 and write8 service due peripheral events before the access.
func (c *CPU) read8(addr uint16) uint8 {
	c.serviceHub()
	return c.Bus.Read8(addr)
}

func (c *CPU) write8(addr uint16, val uint8) {
	c.serviceHub()
	c.Bus.Write8(addr, val)
}

func (c *CPU) read16(addr uint16) uint16 {
	hi := c.read8(addr)
	lo := c.read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) write16(addr uint16, val uint16) {
	c.write8(addr, uint8(val>>8))
	c.write8(addr+1, uint8(val))
}

func (c *CPU) fetch8() uint8 {
	val := c.read8(c.PC)
	c.PC++
	return val
}

func (c *CPU) fetch16() uint16 {
	val := c.read16(c.PC)
	c.PC += 2
	return val
}

/* stacks */

func (c *CPU) push8(sp *uint16, val uint8) {
	*sp--
	c.write8(*sp, val)
}

func (c *CPU) push16(sp *uint16, val uint16) {
	c.push8(sp, uint8(val))
	c.push8(sp, uint8(val>>8))
}

func (c *CPU) pull8(sp *uint16) uint8 {
	val := c.read8(*sp)
	*sp++
	return val
}

func (c *CPU) pull16(sp *uint16) uint16 {
	hi := c.pull8(sp)
	lo := c.pull8(sp)
	return uint16(hi)<<8 | uint16(lo)
}

// pushRegs pushes the registers selected by a PSHS/PSHU postbyte and
// returns the number of bytes pushed. other is the other stack pointer.
func (c *CPU) pushRegs(post uint8, sp *uint16, other uint16) int {
	n := 0
	if post&0x80 != 0 {
		c.push16(sp, c.PC)
		n += 2
	}
	if post&0x40 != 0 {
		c.push16(sp, other)
		n += 2
	}
	if post&0x20 != 0 {
		c.push16(sp, c.Y)
		n += 2
	}
	if post&0x10 != 0 {
		c.push16(sp, c.X)
		n += 2
	}
	if post&0x08 != 0 {
		c.push8(sp, c.DP)
		n++
	}
	if post&0x04 != 0 {
		c.push8(sp, c.B)
		n++
	}
	if post&0x02 != 0 {
		c.push8(sp, c.A)
		n++
	}
	if post&0x01 != 0 {
		c.push8(sp, c.CC)
		n++
	}
	return n
}

// pullRegs is the reverse of pushRegs.
func (c *CPU) pullRegs(post uint8, sp *uint16, other *uint16) int {
	n := 0
	if post&0x01 != 0 {
		c.CC = c.pull8(sp)
		n++
	}
	if post&0x02 != 0 {
		c.A = c.pull8(sp)
		n++
	}
	if post&0x04 != 0 {
		c.B = c.pull8(sp)
		n++
	}
	if post&0x08 != 0 {
		c.DP = c.pull8(sp)
		n++
	}
	if post&0x10 != 0 {
		c.X = c.pull16(sp)
		n += 2
	}
	if post&0x20 != 0 {
		c.Y = c.pull16(sp)
		n += 2
	}
	if post&0x40 != 0 {
		*other = c.pull16(sp)
		n += 2
	}
	if post&0x80 != 0 {
		c.PC = c.pull16(sp)
		n += 2
	}
	return n
}

/* tracing / debugging */

func (c *CPU) SetTraceOutput(w io.Writer) {
	if w == nil {
		c.tracer = nil
		return
	}
	c.tracer = trace.New(c, w)
}
