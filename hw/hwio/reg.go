package hwio

import (
	"fmt"

	"emucore/emu/log"
)

type RWFlags uint8

const (
	ReadWriteFlag RWFlags = 0
	ReadOnlyFlag  RWFlags = (1 << iota)
	WriteOnlyFlag
)

// Reg8 is an 8-bit register. Bits set in RoMask are preserved on write. Read
// and write side effects are implemented through the optional callbacks; a
// peek never triggers the read callback.
type Reg8 struct {
	Name   string
	Value  uint8
	RoMask uint8

	Flags   RWFlags
	ReadCb  func(val uint8) uint8
	PeekCb  func(val uint8) uint8
	WriteCb func(old uint8, val uint8)
}

func (reg Reg8) String() string {
	s := fmt.Sprintf("%s{%02x", reg.Name, reg.Value)
	if reg.ReadCb != nil {
		s += ",r!"
	}
	if reg.PeekCb != nil {
		s += ",p!"
	}
	if reg.WriteCb != nil {
		s += ",w!"
	}
	return s + "}"
}

func (reg *Reg8) IOName() string { return reg.Name }

func (reg *Reg8) write(val uint8) {
	old := reg.Value
	reg.Value = (reg.Value & reg.RoMask) | (val &^ reg.RoMask)
	if reg.WriteCb != nil {
		reg.WriteCb(old, reg.Value)
	}
}

func (reg *Reg8) Write8(_ uint16, val uint8) {
	if reg.Flags&ReadOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Write8 to readonly reg").
			String("name", reg.Name).
			Hex8("val", val).
			End()
		return
	}
	reg.write(val)
}

func (reg *Reg8) Read8(_ uint16, peek bool) uint8 {
	if peek {
		if reg.PeekCb != nil {
			return reg.PeekCb(reg.Value)
		}
		return reg.Value
	}
	if reg.Flags&WriteOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Read8 from writeonly reg").
			String("name", reg.Name).
			End()
		return 0
	}
	if reg.ReadCb != nil {
		return reg.ReadCb(reg.Value)
	}
	return reg.Value
}

// Reg16 is a 16-bit register exposed on an 8-bit bus, most significant byte
// first. Byte accesses go through a TEMP latch: reading the high byte reads
// the whole register and latches the low byte, writing the high byte only
// latches it and the register is written when the low byte is.
type Reg16 struct {
	Name   string
	Value  uint16
	RoMask uint16

	Flags   RWFlags
	ReadCb  func(val uint16) uint16
	PeekCb  func(val uint16) uint16
	WriteCb func(old uint16, val uint16)

	temp uint8
}

func (reg Reg16) String() string {
	return fmt.Sprintf("%s{%04x}", reg.Name, reg.Value)
}

func (reg *Reg16) IOName() string { return reg.Name }

// Latch returns the TEMP latch, so that it can be saved with the device.
func (reg *Reg16) Latch() *uint8 { return &reg.temp }

// Read16 reads the whole register, with side effects.
func (reg *Reg16) Read16() uint16 {
	if reg.Flags&WriteOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Read16 from writeonly reg").
			String("name", reg.Name).
			End()
		return 0
	}
	if reg.ReadCb != nil {
		return reg.ReadCb(reg.Value)
	}
	return reg.Value
}

func (reg *Reg16) Peek16() uint16 {
	if reg.PeekCb != nil {
		return reg.PeekCb(reg.Value)
	}
	return reg.Value
}

// Write16 writes the whole register.
func (reg *Reg16) Write16(val uint16) {
	if reg.Flags&ReadOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Write16 to readonly reg").
			String("name", reg.Name).
			Hex16("val", val).
			End()
		return
	}
	old := reg.Value
	reg.Value = (reg.Value & reg.RoMask) | (val &^ reg.RoMask)
	if reg.WriteCb != nil {
		reg.WriteCb(old, reg.Value)
	}
}

func (reg *Reg16) Read8(off uint16, peek bool) uint8 {
	if peek {
		v := reg.Peek16()
		if off&1 == 0 {
			return uint8(v >> 8)
		}
		return uint8(v)
	}
	if off&1 == 0 {
		v := reg.Read16()
		reg.temp = uint8(v)
		return uint8(v >> 8)
	}
	return reg.temp
}

func (reg *Reg16) Write8(off uint16, val uint8) {
	if off&1 == 0 {
		reg.temp = val
		return
	}
	reg.Write16(uint16(reg.temp)<<8 | uint16(val))
}
