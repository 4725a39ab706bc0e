package m6809

import (
	"fmt"
	"strings"

	"emucore/hw/trace"
)

var exgNames = [16]string{
	0: "D", 1: "X", 2: "Y", 3: "U", 4: "S", 5: "PC",
	8: "A", 9: "B", 10: "CC", 11: "DP",
}

func exgName(code uint8) string {
	if n := exgNames[code&0x0f]; n != "" {
		return n
	}
	return "?"
}

// stackList renders a PSHS/PULS postbyte. other is the name of the other
// stack pointer.
func stackList(post uint8, other string) string {
	names := [8]string{"CC", "A", "B", "DP", "X", "Y", other, "PC"}
	var sb strings.Builder
	for i, n := range names {
		if post&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(n)
	}
	return sb.String()
}

func signed8(v uint8) string {
	if int8(v) < 0 {
		return fmt.Sprintf("-$%02X", -int(int8(v)))
	}
	return fmt.Sprintf("$%02X", v)
}

// disasmIndexed decodes the indexed operand starting at the postbyte at pc.
// It returns the operand text and its length in bytes, postbyte included.
func disasmIndexed(pc uint16, peek func(uint16) uint8) (string, uint16) {
	post := peek(pc)
	r := string("XYUS"[(post>>5)&3])

	if post&0x80 == 0 {
		return fmt.Sprintf("%d,%s", int8(post<<3)>>3, r), 1
	}

	n := uint16(1)
	var s string
	switch post & 0x0f {
	case 0x0:
		s = "," + r + "+"
	case 0x1:
		s = "," + r + "++"
	case 0x2:
		s = ",-" + r
	case 0x3:
		s = ",--" + r
	case 0x4:
		s = "," + r
	case 0x5:
		s = "B," + r
	case 0x6:
		s = "A," + r
	case 0x8:
		s = signed8(peek(pc+1)) + "," + r
		n++
	case 0x9:
		s = fmt.Sprintf("$%02X%02X,%s", peek(pc+1), peek(pc+2), r)
		n += 2
	case 0xB:
		s = "D," + r
	case 0xC:
		s = signed8(peek(pc+1)) + ",PCR"
		n++
	case 0xD:
		s = fmt.Sprintf("$%02X%02X,PCR", peek(pc+1), peek(pc+2))
		n += 2
	case 0xF:
		s = fmt.Sprintf("$%02X%02X", peek(pc+1), peek(pc+2))
		n += 2
	default:
		s = "???"
	}
	if post&0x10 != 0 {
		s = "[" + s + "]"
	}
	return s, n
}

// DisasmOp decodes the instruction at pc, without side effects.
func (c *CPU) DisasmOp(pc uint16) trace.Op {
	peek := c.Bus.Peek8

	table := &page1
	n := uint16(1)
	opcode := peek(pc)
	switch opcode {
	case 0x10:
		table = &page2
		opcode = peek(pc + 1)
		n++
	case 0x11:
		table = &page3
		opcode = peek(pc + 1)
		n++
	}

	def := &table[opcode]
	var oper string
	switch {
	case def.f == nil:
		def = &opdef{n: "???"}
	case def.m == imm8:
		oper = fmt.Sprintf("#$%02X", peek(pc+n))
		n++
	case def.m == imm16:
		oper = fmt.Sprintf("#$%02X%02X", peek(pc+n), peek(pc+n+1))
		n += 2
	case def.m == dir:
		oper = fmt.Sprintf("<$%02X", peek(pc+n))
		n++
	case def.m == ext:
		oper = fmt.Sprintf("$%02X%02X", peek(pc+n), peek(pc+n+1))
		n += 2
	case def.m == idx:
		var k uint16
		oper, k = disasmIndexed(pc+n, peek)
		n += k
	case def.m == rel8:
		off := uint16(int8(peek(pc + n)))
		n++
		oper = fmt.Sprintf("$%04X", pc+n+off)
	case def.m == rel16:
		off := uint16(peek(pc+n))<<8 | uint16(peek(pc+n+1))
		n += 2
		oper = fmt.Sprintf("$%04X", pc+n+off)
	case def.m == regs:
		post := peek(pc + n)
		n++
		oper = exgName(post>>4) + "," + exgName(post)
	case def.m == stackS:
		oper = stackList(peek(pc+n), "U")
		n++
	case def.m == stackU:
		oper = stackList(peek(pc+n), "S")
		n++
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = peek(pc + uint16(i))
	}
	return trace.Op{Opcode: def.n, Oper: oper, Buf: buf, PC: pc}
}

// Disasm returns the text and length of the instruction at pc.
func (c *CPU) Disasm(pc uint16) (string, int) {
	op := c.DisasmOp(pc)
	return op.String(), len(op.Buf)
}

// opcodeBytes formats the opcode of the instruction in progress, prefix
// included.
func (c *CPU) opcodeBytes() string {
	op := c.DisasmOp(c.ppc)
	return fmt.Sprintf("% X", op.Buf)
}
