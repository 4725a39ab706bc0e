package m6502

import (
	"fmt"

	"emucore/hw/trace"
)

var modeLen = [...]int{
	imp: 1, acc: 1, imm: 2, zpg: 2, zpx: 2, zpy: 2,
	abs: 3, abx: 3, aby: 3, ind: 3, izx: 2, izy: 2, rel: 2,
}

// DisasmOp decodes the instruction at pc, without side effects.
func (c *CPU) DisasmOp(pc uint16) trace.Op {
	opcode := c.Bus.Peek8(pc)
	def := &defs[opcode]
	if def.n == "" {
		return trace.Op{Opcode: "???", Oper: fmt.Sprintf("$%02X", opcode), Buf: []byte{opcode}, PC: pc}
	}

	n := modeLen[def.m]
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = c.Bus.Peek8(pc + uint16(i))
	}
	var op8 uint8
	var op16 uint16
	if n > 1 {
		op8 = buf[1]
	}
	if n > 2 {
		op16 = uint16(buf[2])<<8 | uint16(buf[1])
	}

	var oper string
	switch def.m {
	case acc:
		oper = "A"
	case imm:
		oper = fmt.Sprintf("#$%02X", op8)
	case zpg:
		oper = fmt.Sprintf("$%02X", op8)
	case zpx:
		oper = fmt.Sprintf("$%02X,X", op8)
	case zpy:
		oper = fmt.Sprintf("$%02X,Y", op8)
	case abs:
		oper = fmt.Sprintf("$%04X", op16)
	case abx:
		oper = fmt.Sprintf("$%04X,X", op16)
	case aby:
		oper = fmt.Sprintf("$%04X,Y", op16)
	case ind:
		oper = fmt.Sprintf("($%04X)", op16)
	case izx:
		oper = fmt.Sprintf("($%02X,X)", op8)
	case izy:
		oper = fmt.Sprintf("($%02X),Y", op8)
	case rel:
		oper = fmt.Sprintf("$%04X", pc+2+uint16(int8(op8)))
	}
	return trace.Op{Opcode: def.n, Oper: oper, Buf: buf, PC: pc}
}

// Disasm returns the text and length of the instruction at pc.
func (c *CPU) Disasm(pc uint16) (string, int) {
	op := c.DisasmOp(pc)
	return op.String(), len(op.Buf)
}
