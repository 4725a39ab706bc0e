package device

import (
	"emucore/hw/hwio"
	"emucore/hw/sched"
)

// MemoryMapped devices expose a register block that the machine installs in
// an address space.
type MemoryMapped interface {
	InstallMap(t *hwio.Table, base uint16)
}

// Signal is an output line, as seen by the debugger.
type Signal interface {
	Name() string
	Asserted() bool
}

// InterruptSource devices drive interrupt lines.
type InterruptSource interface {
	InterruptLines() []Signal
}

// CardSlot devices host a pluggable card.
type CardSlot interface {
	Card() (Interface, bool)
}

// Disassembler devices can decode their own instructions.
type Disassembler interface {
	// Disasm decodes the instruction at pc and returns its text and length.
	Disasm(pc uint16) (string, int)
}

// Caps is the capability record of a device. Missing capabilities are nil.
type Caps struct {
	Memory     MemoryMapped
	Interrupts InterruptSource
	Slot       CardSlot
	Exec       sched.Executor
	Disasm     Disassembler
}

// Resolve computes the capability record of the device. The result is
// cached, so capabilities must not change after the first call.
func (d *Device) Resolve() *Caps {
	if d.caps != nil {
		return d.caps
	}
	caps := &Caps{}
	caps.Memory, _ = d.impl.(MemoryMapped)
	caps.Interrupts, _ = d.impl.(InterruptSource)
	caps.Slot, _ = d.impl.(CardSlot)
	caps.Exec, _ = d.impl.(sched.Executor)
	caps.Disasm, _ = d.impl.(Disassembler)
	d.caps = caps
	return caps
}
