package m6502

// addressing modes
type mode uint8

const (
	imp mode = iota
	acc
	imm
	zpg
	zpx
	zpy
	abs
	abx
	aby
	ind
	izx
	izy
	rel
)

// opdef describes an opcode. Exactly one of the function fields is set: read
// instructions receive the operand, read-modify-write ones return the value
// to write back, stores return the value to store and the others handle
// their own addressing.
type opdef struct {
	n     string
	m     mode
	read  func(*CPU, uint8)
	rmw   func(*CPU, uint8) uint8
	store func(*CPU) uint8
	impl  func(*CPU)
}

var defs = [256]opdef{
	0x00: {n: "BRK", m: imp, impl: BRK},
	0x01: {n: "ORA", m: izx, read: ORA},
	0x05: {n: "ORA", m: zpg, read: ORA},
	0x06: {n: "ASL", m: zpg, rmw: ASL},
	0x08: {n: "PHP", m: imp, impl: PHP},
	0x09: {n: "ORA", m: imm, read: ORA},
	0x0A: {n: "ASL", m: acc, rmw: ASL},
	0x0D: {n: "ORA", m: abs, read: ORA},
	0x0E: {n: "ASL", m: abs, rmw: ASL},
	0x10: {n: "BPL", m: rel, impl: branch(Negative, false)},
	0x11: {n: "ORA", m: izy, read: ORA},
	0x15: {n: "ORA", m: zpx, read: ORA},
	0x16: {n: "ASL", m: zpx, rmw: ASL},
	0x18: {n: "CLC", m: imp, impl: flag(Carry, false)},
	0x19: {n: "ORA", m: aby, read: ORA},
	0x1D: {n: "ORA", m: abx, read: ORA},
	0x1E: {n: "ASL", m: abx, rmw: ASL},
	0x20: {n: "JSR", m: abs, impl: JSR},
	0x21: {n: "AND", m: izx, read: AND},
	0x24: {n: "BIT", m: zpg, read: BIT},
	0x25: {n: "AND", m: zpg, read: AND},
	0x26: {n: "ROL", m: zpg, rmw: ROL},
	0x28: {n: "PLP", m: imp, impl: PLP},
	0x29: {n: "AND", m: imm, read: AND},
	0x2A: {n: "ROL", m: acc, rmw: ROL},
	0x2C: {n: "BIT", m: abs, read: BIT},
	0x2D: {n: "AND", m: abs, read: AND},
	0x2E: {n: "ROL", m: abs, rmw: ROL},
	0x30: {n: "BMI", m: rel, impl: branch(Negative, true)},
	0x31: {n: "AND", m: izy, read: AND},
	0x35: {n: "AND", m: zpx, read: AND},
	0x36: {n: "ROL", m: zpx, rmw: ROL},
	0x38: {n: "SEC", m: imp, impl: flag(Carry, true)},
	0x39: {n: "AND", m: aby, read: AND},
	0x3D: {n: "AND", m: abx, read: AND},
	0x3E: {n: "ROL", m: abx, rmw: ROL},
	0x40: {n: "RTI", m: imp, impl: RTI},
	0x41: {n: "EOR", m: izx, read: EOR},
	0x45: {n: "EOR", m: zpg, read: EOR},
	0x46: {n: "LSR", m: zpg, rmw: LSR},
	0x48: {n: "PHA", m: imp, impl: PHA},
	0x49: {n: "EOR", m: imm, read: EOR},
	0x4A: {n: "LSR", m: acc, rmw: LSR},
	0x4C: {n: "JMP", m: abs, impl: JMP},
	0x4D: {n: "EOR", m: abs, read: EOR},
	0x4E: {n: "LSR", m: abs, rmw: LSR},
	0x50: {n: "BVC", m: rel, impl: branch(Overflow, false)},
	0x51: {n: "EOR", m: izy, read: EOR},
	0x55: {n: "EOR", m: zpx, read: EOR},
	0x56: {n: "LSR", m: zpx, rmw: LSR},
	0x58: {n: "CLI", m: imp, impl: flag(Interrupt, false)},
	0x59: {n: "EOR", m: aby, read: EOR},
	0x5D: {n: "EOR", m: abx, read: EOR},
	0x5E: {n: "LSR", m: abx, rmw: LSR},
	0x60: {n: "RTS", m: imp, impl: RTS},
	0x61: {n: "ADC", m: izx, read: ADC},
	0x65: {n: "ADC", m: zpg, read: ADC},
	0x66: {n: "ROR", m: zpg, rmw: ROR},
	0x68: {n: "PLA", m: imp, impl: PLA},
	0x69: {n: "ADC", m: imm, read: ADC},
	0x6A: {n: "ROR", m: acc, rmw: ROR},
	0x6C: {n: "JMP", m: ind, impl: JMPind},
	0x6D: {n: "ADC", m: abs, read: ADC},
	0x6E: {n: "ROR", m: abs, rmw: ROR},
	0x70: {n: "BVS", m: rel, impl: branch(Overflow, true)},
	0x71: {n: "ADC", m: izy, read: ADC},
	0x75: {n: "ADC", m: zpx, read: ADC},
	0x76: {n: "ROR", m: zpx, rmw: ROR},
	0x78: {n: "SEI", m: imp, impl: flag(Interrupt, true)},
	0x79: {n: "ADC", m: aby, read: ADC},
	0x7D: {n: "ADC", m: abx, read: ADC},
	0x7E: {n: "ROR", m: abx, rmw: ROR},
	0x81: {n: "STA", m: izx, store: STA},
	0x84: {n: "STY", m: zpg, store: STY},
	0x85: {n: "STA", m: zpg, store: STA},
	0x86: {n: "STX", m: zpg, store: STX},
	0x88: {n: "DEY", m: imp, impl: DEY},
	0x8A: {n: "TXA", m: imp, impl: TXA},
	0x8C: {n: "STY", m: abs, store: STY},
	0x8D: {n: "STA", m: abs, store: STA},
	0x8E: {n: "STX", m: abs, store: STX},
	0x90: {n: "BCC", m: rel, impl: branch(Carry, false)},
	0x91: {n: "STA", m: izy, store: STA},
	0x94: {n: "STY", m: zpx, store: STY},
	0x95: {n: "STA", m: zpx, store: STA},
	0x96: {n: "STX", m: zpy, store: STX},
	0x98: {n: "TYA", m: imp, impl: TYA},
	0x99: {n: "STA", m: aby, store: STA},
	0x9A: {n: "TXS", m: imp, impl: TXS},
	0x9D: {n: "STA", m: abx, store: STA},
	0xA0: {n: "LDY", m: imm, read: LDY},
	0xA1: {n: "LDA", m: izx, read: LDA},
	0xA2: {n: "LDX", m: imm, read: LDX},
	0xA4: {n: "LDY", m: zpg, read: LDY},
	0xA5: {n: "LDA", m: zpg, read: LDA},
	0xA6: {n: "LDX", m: zpg, read: LDX},
	0xA8: {n: "TAY", m: imp, impl: TAY},
	0xA9: {n: "LDA", m: imm, read: LDA},
	0xAA: {n: "TAX", m: imp, impl: TAX},
	0xAC: {n: "LDY", m: abs, read: LDY},
	0xAD: {n: "LDA", m: abs, read: LDA},
	0xAE: {n: "LDX", m: abs, read: LDX},
	0xB0: {n: "BCS", m: rel, impl: branch(Carry, true)},
	0xB1: {n: "LDA", m: izy, read: LDA},
	0xB4: {n: "LDY", m: zpx, read: LDY},
	0xB5: {n: "LDA", m: zpx, read: LDA},
	0xB6: {n: "LDX", m: zpy, read: LDX},
	0xB8: {n: "CLV", m: imp, impl: flag(Overflow, false)},
	0xB9: {n: "LDA", m: aby, read: LDA},
	0xBA: {n: "TSX", m: imp, impl: TSX},
	0xBC: {n: "LDY", m: abx, read: LDY},
	0xBD: {n: "LDA", m: abx, read: LDA},
	0xBE: {n: "LDX", m: aby, read: LDX},
	0xC0: {n: "CPY", m: imm, read: CPY},
	0xC1: {n: "CMP", m: izx, read: CMP},
	0xC4: {n: "CPY", m: zpg, read: CPY},
	0xC5: {n: "CMP", m: zpg, read: CMP},
	0xC6: {n: "DEC", m: zpg, rmw: DEC},
	0xC8: {n: "INY", m: imp, impl: INY},
	0xC9: {n: "CMP", m: imm, read: CMP},
	0xCA: {n: "DEX", m: imp, impl: DEX},
	0xCC: {n: "CPY", m: abs, read: CPY},
	0xCD: {n: "CMP", m: abs, read: CMP},
	0xCE: {n: "DEC", m: abs, rmw: DEC},
	0xD0: {n: "BNE", m: rel, impl: branch(Zero, false)},
	0xD1: {n: "CMP", m: izy, read: CMP},
	0xD5: {n: "CMP", m: zpx, read: CMP},
	0xD6: {n: "DEC", m: zpx, rmw: DEC},
	0xD8: {n: "CLD", m: imp, impl: flag(Decimal, false)},
	0xD9: {n: "CMP", m: aby, read: CMP},
	0xDD: {n: "CMP", m: abx, read: CMP},
	0xDE: {n: "DEC", m: abx, rmw: DEC},
	0xE0: {n: "CPX", m: imm, read: CPX},
	0xE1: {n: "SBC", m: izx, read: SBC},
	0xE4: {n: "CPX", m: zpg, read: CPX},
	0xE5: {n: "SBC", m: zpg, read: SBC},
	0xE6: {n: "INC", m: zpg, rmw: INC},
	0xE8: {n: "INX", m: imp, impl: INX},
	0xE9: {n: "SBC", m: imm, read: SBC},
	0xEA: {n: "NOP", m: imp, impl: NOP},
	0xEC: {n: "CPX", m: abs, read: CPX},
	0xED: {n: "SBC", m: abs, read: SBC},
	0xEE: {n: "INC", m: abs, rmw: INC},
	0xF0: {n: "BEQ", m: rel, impl: branch(Zero, true)},
	0xF1: {n: "SBC", m: izy, read: SBC},
	0xF5: {n: "SBC", m: zpx, read: SBC},
	0xF6: {n: "INC", m: zpx, rmw: INC},
	0xF8: {n: "SED", m: imp, impl: flag(Decimal, true)},
	0xF9: {n: "SBC", m: aby, read: SBC},
	0xFD: {n: "SBC", m: abx, read: SBC},
	0xFE: {n: "INC", m: abx, rmw: INC},
}

// 6502 opcodes table, built from defs.
var ops [256]func(*CPU)

func init() {
	for code, def := range defs {
		ops[code] = def.compile()
	}
}

func (def opdef) compile() func(*CPU) {
	switch {
	case def.impl != nil:
		return def.impl
	case def.read != nil && def.m == imm:
		return func(cpu *CPU) {
			def.read(cpu, cpu.fetch8())
		}
	case def.read != nil:
		return func(cpu *CPU) {
			oper := cpu.operand(def.m, false)
			def.read(cpu, cpu.Read8(oper))
		}
	case def.rmw != nil && def.m == acc:
		return func(cpu *CPU) {
			cpu.imp()
			cpu.A = def.rmw(cpu, cpu.A)
		}
	case def.rmw != nil:
		return func(cpu *CPU) {
			oper := cpu.operand(def.m, true)
			val := cpu.Read8(oper)
			cpu.Write8(oper, val) // dummy write
			cpu.Write8(oper, def.rmw(cpu, val))
		}
	case def.store != nil:
		return func(cpu *CPU) {
			oper := cpu.operand(def.m, true)
			cpu.Write8(oper, def.store(cpu))
		}
	}
	return (*CPU).illegal
}

//
// addressing modes
//

func (c *CPU) fetch8() uint8 {
	val := c.Read8(c.PC)
	c.PC++
	return val
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

// imp performs the dummy read of implied and accumulator instructions.
func (c *CPU) imp() {
	_ = c.Read8(c.PC)
}

// operand computes the effective address for mode m. Indexed modes do a
// dummy read at the unfixed address when a page is crossed, or always if
// dummy is set (writes and read-modify-writes).
func (c *CPU) operand(m mode, dummy bool) uint16 {
	switch m {
	case zpg:
		return uint16(c.fetch8())
	case zpx:
		zp := c.fetch8()
		_ = c.Read8(uint16(zp)) // dummy read
		return uint16(zp + c.X)
	case zpy:
		zp := c.fetch8()
		_ = c.Read8(uint16(zp)) // dummy read
		return uint16(zp + c.Y)
	case abs:
		return c.fetch16()
	case abx:
		return c.indexed(c.fetch16(), c.X, dummy)
	case aby:
		return c.indexed(c.fetch16(), c.Y, dummy)
	case izx:
		zp := c.fetch8()
		_ = c.Read8(uint16(zp)) // dummy read
		zp += c.X
		lo := c.Read8(uint16(zp))
		hi := c.Read8(uint16(zp + 1))
		return uint16(hi)<<8 | uint16(lo)
	case izy:
		zp := c.fetch8()
		lo := c.Read8(uint16(zp))
		hi := c.Read8(uint16(zp + 1))
		return c.indexed(uint16(hi)<<8|uint16(lo), c.Y, dummy)
	}
	panic("m6502: no operand for mode")
}

func (c *CPU) indexed(base uint16, idx uint8, dummy bool) uint16 {
	addr := base + uint16(idx)
	if dummy || pageCrossed(base, addr) {
		_ = c.Read8(base&0xff00 | addr&0x00ff) // dummy read
	}
	return addr
}

func pageCrossed(a, b uint16) bool {
	return a&0xff00 != b&0xff00
}

//
// instructions
//

func (c *CPU) setreg(reg *uint8, val uint8) {
	*reg = val
	c.P.checkNZ(val)
}

func (c *CPU) compare(reg, val uint8) {
	c.P.checkNZ(reg - val)
	c.P.set(Carry, val <= reg)
}

func (c *CPU) add(val uint8) {
	sum := uint16(c.A) + uint16(val) + uint16(c.P.carry())
	c.P.checkCV(c.A, val, sum)
	c.setreg(&c.A, uint8(sum))
}

// Decimal mode flags follow the NMOS behaviour: N, V and Z are computed
// from intermediate binary results.
func (c *CPU) addDecimal(val uint8) {
	a := c.A
	carry := c.P.carry()
	c.P &^= Negative | Overflow | Zero | Carry

	al := a&0x0f + val&0x0f + carry
	if al > 9 {
		al += 6
	}
	ah := a>>4 + val>>4
	if al > 0x0f {
		ah++
	}
	if a+val+carry == 0 {
		c.P |= Zero
	} else if ah&0x08 != 0 {
		c.P |= Negative
	}
	if ^(a^val)&(a^(ah<<4))&0x80 != 0 {
		c.P |= Overflow
	}
	if ah > 9 {
		ah += 6
	}
	if ah > 0x0f {
		c.P |= Carry
	}
	c.A = ah<<4 | al&0x0f
}

func (c *CPU) subDecimal(val uint8) {
	a := c.A
	borrow := 1 - c.P.carry()
	c.P &^= Negative | Overflow | Zero | Carry

	diff := uint16(a) - uint16(val) - uint16(borrow)
	al := a&0x0f - val&0x0f - borrow
	if int8(al) < 0 {
		al -= 6
	}
	ah := a>>4 - val>>4
	if int8(al) < 0 {
		ah--
	}
	if uint8(diff) == 0 {
		c.P |= Zero
	} else if diff&0x80 != 0 {
		c.P |= Negative
	}
	if (uint16(a^val)&(uint16(a)^diff))&0x80 != 0 {
		c.P |= Overflow
	}
	if diff&0xff00 == 0 {
		c.P |= Carry
	}
	if int8(ah) < 0 {
		ah -= 6
	}
	c.A = ah<<4 | al&0x0f
}

func ADC(cpu *CPU, val uint8) {
	if cpu.P.has(Decimal) {
		cpu.addDecimal(val)
		return
	}
	cpu.add(val)
}

func SBC(cpu *CPU, val uint8) {
	if cpu.P.has(Decimal) {
		cpu.subDecimal(val)
		return
	}
	cpu.add(val ^ 0xff)
}

func AND(cpu *CPU, val uint8) { cpu.setreg(&cpu.A, cpu.A&val) }
func ORA(cpu *CPU, val uint8) { cpu.setreg(&cpu.A, cpu.A|val) }
func EOR(cpu *CPU, val uint8) { cpu.setreg(&cpu.A, cpu.A^val) }
func LDA(cpu *CPU, val uint8) { cpu.setreg(&cpu.A, val) }
func LDX(cpu *CPU, val uint8) { cpu.setreg(&cpu.X, val) }
func LDY(cpu *CPU, val uint8) { cpu.setreg(&cpu.Y, val) }
func CMP(cpu *CPU, val uint8) { cpu.compare(cpu.A, val) }
func CPX(cpu *CPU, val uint8) { cpu.compare(cpu.X, val) }
func CPY(cpu *CPU, val uint8) { cpu.compare(cpu.Y, val) }

func BIT(cpu *CPU, val uint8) {
	cpu.P.set(Zero, cpu.A&val == 0)
	cpu.P = cpu.P&^(Negative|Overflow) | P(val)&(Negative|Overflow)
}

func ASL(cpu *CPU, val uint8) uint8 {
	cpu.P.set(Carry, val&0x80 != 0)
	val <<= 1
	cpu.P.checkNZ(val)
	return val
}

func LSR(cpu *CPU, val uint8) uint8 {
	cpu.P.set(Carry, val&0x01 != 0)
	val >>= 1
	cpu.P.checkNZ(val)
	return val
}

func ROL(cpu *CPU, val uint8) uint8 {
	carry := cpu.P.carry()
	cpu.P.set(Carry, val&0x80 != 0)
	val = val<<1 | carry
	cpu.P.checkNZ(val)
	return val
}

func ROR(cpu *CPU, val uint8) uint8 {
	carry := cpu.P.carry()
	cpu.P.set(Carry, val&0x01 != 0)
	val = val>>1 | carry<<7
	cpu.P.checkNZ(val)
	return val
}

func INC(cpu *CPU, val uint8) uint8 {
	val++
	cpu.P.checkNZ(val)
	return val
}

func DEC(cpu *CPU, val uint8) uint8 {
	val--
	cpu.P.checkNZ(val)
	return val
}

func STA(cpu *CPU) uint8 { return cpu.A }
func STX(cpu *CPU) uint8 { return cpu.X }
func STY(cpu *CPU) uint8 { return cpu.Y }

func INX(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.X, cpu.X+1) }
func INY(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.Y, cpu.Y+1) }
func DEX(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.X, cpu.X-1) }
func DEY(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.Y, cpu.Y-1) }
func TAX(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.X, cpu.A) }
func TAY(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.Y, cpu.A) }
func TSX(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.X, cpu.SP) }
func TXA(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.A, cpu.X) }
func TYA(cpu *CPU) { cpu.imp(); cpu.setreg(&cpu.A, cpu.Y) }
func TXS(cpu *CPU) { cpu.imp(); cpu.SP = cpu.X }
func NOP(cpu *CPU) { cpu.imp() }

func flag(f P, on bool) func(*CPU) {
	return func(cpu *CPU) {
		cpu.imp()
		cpu.P.set(f, on)
	}
}

func branch(f P, val bool) func(*CPU) {
	return func(cpu *CPU) {
		off := int8(cpu.fetch8())
		if cpu.P.has(f) != val {
			return
		}

		// A taken branch that doesn't cross a page does not poll
		// interrupts on its last cycle.
		if cpu.runIRQ && !cpu.prevRunIRQ {
			cpu.runIRQ = false
		}
		_ = cpu.Read8(cpu.PC) // dummy read

		dst := cpu.PC + uint16(off)
		if pageCrossed(cpu.PC, dst) {
			_ = cpu.Read8(cpu.PC&0xff00 | dst&0x00ff) // dummy read
		}
		cpu.PC = dst
	}
}

func BRK(cpu *CPU) {
	// dummy read.
	_ = cpu.Read8(cpu.PC)

	cpu.push16(cpu.PC + 1)

	p := cpu.P | Break | Reserved
	vector := IRQVector
	if cpu.needNmi {
		cpu.needNmi = false
		vector = NMIVector
	}
	cpu.push8(uint8(p))
	cpu.P.set(Interrupt, true)
	cpu.PC = cpu.Read16(vector)

	// Ensure we don't start an NMI right after running a BRK instruction (first
	// instruction in IRQ handler must run first).
	cpu.prevNeedNmi = false
}

func JSR(cpu *CPU) {
	lo := cpu.fetch8()
	_ = cpu.Read8(uint16(cpu.SP) + 0x0100) // dummy read
	cpu.push16(cpu.PC)
	hi := cpu.Read8(cpu.PC)
	cpu.PC = uint16(hi)<<8 | uint16(lo)
}

func JMP(cpu *CPU) {
	cpu.PC = cpu.fetch16()
}

func JMPind(cpu *CPU) {
	ptr := cpu.fetch16()
	lo := cpu.Read8(ptr)
	// The high byte is read from the same page.
	hi := cpu.Read8(ptr&0xff00 | (ptr+1)&0x00ff)
	cpu.PC = uint16(hi)<<8 | uint16(lo)
}

func RTS(cpu *CPU) {
	cpu.imp()
	_ = cpu.Read8(uint16(cpu.SP) + 0x0100) // dummy read
	cpu.PC = cpu.pull16()
	cpu.fetch8()
}

func RTI(cpu *CPU) {
	cpu.imp()
	_ = cpu.Read8(uint16(cpu.SP) + 0x0100) // dummy read
	cpu.plp(cpu.pull8())
	cpu.PC = cpu.pull16()
}

func PHA(cpu *CPU) {
	cpu.imp()
	cpu.push8(cpu.A)
}

func PHP(cpu *CPU) {
	cpu.imp()
	cpu.push8(uint8(cpu.P | Break | Reserved))
}

func PLA(cpu *CPU) {
	cpu.imp()
	_ = cpu.Read8(uint16(cpu.SP) + 0x0100) // dummy read
	cpu.setreg(&cpu.A, cpu.pull8())
}

func PLP(cpu *CPU) {
	cpu.imp()
	_ = cpu.Read8(uint16(cpu.SP) + 0x0100) // dummy read
	cpu.plp(cpu.pull8())
}

// B and U are not real flags.
func (c *CPU) plp(p uint8) {
	c.P = P(p)&^Break | Reserved
}
