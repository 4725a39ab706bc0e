package m6809

// Condition code bits.
const (
	ccC uint8 = 1 << iota
	ccV
	ccZ
	ccN
	ccI
	ccH
	ccF
	ccE
)

type mode uint8

const (
	inh mode = iota
	imm8
	imm16
	dir
	idx
	ext
	rel8
	rel16
	regs   // EXG/TFR register pair
	stackS // PSHS/PULS register list
	stackU // PSHU/PULU register list
)

type opdef struct {
	n string // mnemonic
	m mode   // addressing mode
	c uint8  // base cycles, prefix included
	f func(*CPU)
}

var page1, page2, page3 [256]opdef

/* operands */

// ea computes the effective address of the instruction in progress.
func (c *CPU) ea() uint16 {
	switch c.mode {
	case dir:
		return uint16(c.DP)<<8 | uint16(c.fetch8())
	case ext:
		return c.fetch16()
	case idx:
		return c.indexed()
	}
	c.FatalfPC(c.ppc, "no effective address in mode %d", c.mode)
	return 0
}

func (c *CPU) operand8() uint8 {
	if c.mode == imm8 {
		return c.fetch8()
	}
	return c.read8(c.ea())
}

func (c *CPU) operand16() uint16 {
	if c.mode == imm16 {
		return c.fetch16()
	}
	return c.read16(c.ea())
}

// indexReg returns the register selected by bits 5-6 of an indexed postbyte.
func (c *CPU) indexReg(post uint8) *uint16 {
	switch (post >> 5) & 3 {
	case 0:
		return &c.X
	case 1:
		return &c.Y
	case 2:
		return &c.U
	}
	return &c.S
}

// indexed decodes an indexed postbyte and its offset, and debits the extra
// cycles of the mode.
func (c *CPU) indexed() uint16 {
	post := c.fetch8()
	reg := c.indexReg(post)

	if post&0x80 == 0 {
		// 5-bit signed offset
		c.ICount--
		return *reg + uint16(int8(post<<3)>>3)
	}

	var ea uint16
	var extra int64
	switch post & 0x0f {
	case 0x0: // ,R+
		ea = *reg
		*reg++
		extra = 2
	case 0x1: // ,R++
		ea = *reg
		*reg += 2
		extra = 3
	case 0x2: // ,-R
		*reg--
		ea = *reg
		extra = 2
	case 0x3: // ,--R
		*reg -= 2
		ea = *reg
		extra = 3
	case 0x4: // ,R
		ea = *reg
	case 0x5: // B,R
		ea = *reg + uint16(int8(c.B))
		extra = 1
	case 0x6: // A,R
		ea = *reg + uint16(int8(c.A))
		extra = 1
	case 0x8: // n8,R
		ea = *reg + uint16(int8(c.fetch8()))
		extra = 1
	case 0x9: // n16,R
		ea = *reg + c.fetch16()
		extra = 4
	case 0xB: // D,R
		ea = *reg + c.D()
		extra = 4
	case 0xC: // n8,PCR
		off := uint16(int8(c.fetch8()))
		ea = c.PC + off
		extra = 1
	case 0xD: // n16,PCR
		off := c.fetch16()
		ea = c.PC + off
		extra = 5
	case 0xF: // [n16]
		ea = c.fetch16()
		extra = 2
	default:
		ea = *reg
	}
	if post&0x10 != 0 {
		ea = c.read16(ea)
		extra += 3
	}
	c.ICount -= extra
	return ea
}

/* flags */

func (c *CPU) nz8(v uint8) {
	c.CC &^= ccN | ccZ
	if v == 0 {
		c.CC |= ccZ
	}
	c.CC |= (v >> 4) & ccN
}

func (c *CPU) nz16(v uint16) {
	c.CC &^= ccN | ccZ
	if v == 0 {
		c.CC |= ccZ
	}
	c.CC |= uint8(v>>12) & ccN
}

// nz8v0 and nz16v0 set N and Z, and clear V, as loads and logical ops do.
func (c *CPU) nz8v0(v uint8)   { c.CC &^= ccV; c.nz8(v) }
func (c *CPU) nz16v0(v uint16) { c.CC &^= ccV; c.nz16(v) }

func (c *CPU) setFlag(f uint8, on bool) {
	if on {
		c.CC |= f
	} else {
		c.CC &^= f
	}
}

func (c *CPU) add8(a, b, carry uint8) uint8 {
	sum := uint16(a) + uint16(b) + uint16(carry)
	r := uint8(sum)
	c.setFlag(ccH, (a^b^r)&0x10 != 0)
	c.setFlag(ccV, (a^r)&(b^r)&0x80 != 0)
	c.setFlag(ccC, sum > 0xff)
	c.nz8(r)
	return r
}

// sub8 leaves H untouched, it is undefined after a subtraction.
func (c *CPU) sub8(a, b, borrow uint8) uint8 {
	diff := uint16(a) - uint16(b) - uint16(borrow)
	r := uint8(diff)
	c.setFlag(ccV, (a^b)&(a^r)&0x80 != 0)
	c.setFlag(ccC, diff&0x100 != 0)
	c.nz8(r)
	return r
}

func (c *CPU) add16(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	r := uint16(sum)
	c.setFlag(ccV, (a^r)&(b^r)&0x8000 != 0)
	c.setFlag(ccC, sum > 0xffff)
	c.nz16(r)
	return r
}

func (c *CPU) sub16(a, b uint16) uint16 {
	diff := uint32(a) - uint32(b)
	r := uint16(diff)
	c.setFlag(ccV, (a^b)&(a^r)&0x8000 != 0)
	c.setFlag(ccC, diff&0x10000 != 0)
	c.nz16(r)
	return r
}

/* read-modify-write */

func (c *CPU) neg(v uint8) uint8 { return c.sub8(0, v, 0) }

func (c *CPU) com(v uint8) uint8 {
	r := ^v
	c.nz8v0(r)
	c.CC |= ccC
	return r
}

func (c *CPU) lsr(v uint8) uint8 {
	c.setFlag(ccC, v&1 != 0)
	r := v >> 1
	c.nz8(r)
	return r
}

func (c *CPU) ror(v uint8) uint8 {
	r := v>>1 | (c.CC&ccC)<<7
	c.setFlag(ccC, v&1 != 0)
	c.nz8(r)
	return r
}

func (c *CPU) asr(v uint8) uint8 {
	c.setFlag(ccC, v&1 != 0)
	r := v>>1 | v&0x80
	c.nz8(r)
	return r
}

func (c *CPU) asl(v uint8) uint8 {
	r := v << 1
	c.setFlag(ccC, v&0x80 != 0)
	c.setFlag(ccV, (v^r)&0x80 != 0)
	c.nz8(r)
	return r
}

func (c *CPU) rol(v uint8) uint8 {
	r := v<<1 | c.CC&ccC
	c.setFlag(ccC, v&0x80 != 0)
	c.setFlag(ccV, (v^r)&0x80 != 0)
	c.nz8(r)
	return r
}

func (c *CPU) dec(v uint8) uint8 {
	r := v - 1
	c.setFlag(ccV, v == 0x80)
	c.nz8(r)
	return r
}

func (c *CPU) inc(v uint8) uint8 {
	r := v + 1
	c.setFlag(ccV, v == 0x7f)
	c.nz8(r)
	return r
}

func (c *CPU) tst(v uint8) uint8 {
	c.nz8v0(v)
	return v
}

func (c *CPU) clr(uint8) uint8 {
	c.CC &^= ccN | ccV | ccC
	c.CC |= ccZ
	return 0
}

func memRMW(fn func(*CPU, uint8) uint8, store bool) func(*CPU) {
	return func(c *CPU) {
		ea := c.ea()
		v := fn(c, c.read8(ea))
		if store {
			c.write8(ea, v)
		}
	}
}

func regRMW(r func(*CPU) *uint8, fn func(*CPU, uint8) uint8) func(*CPU) {
	return func(c *CPU) {
		p := r(c)
		*p = fn(c, *p)
	}
}

/* registers */

func rA(c *CPU) *uint8 { return &c.A }
func rB(c *CPU) *uint8 { return &c.B }

type reg16 struct {
	get func(*CPU) uint16
	set func(*CPU, uint16)
}

var (
	regD = reg16{(*CPU).D, (*CPU).setD}
	regX = reg16{func(c *CPU) uint16 { return c.X }, func(c *CPU, v uint16) { c.X = v }}
	regY = reg16{func(c *CPU) uint16 { return c.Y }, func(c *CPU, v uint16) { c.Y = v }}
	regU = reg16{func(c *CPU) uint16 { return c.U }, func(c *CPU, v uint16) { c.U = v }}
	regS = reg16{func(c *CPU) uint16 { return c.S }, func(c *CPU, v uint16) { c.S = v }}
)

/* 8-bit accumulator ops */

func sub8op(c *CPU, r *uint8) { *r = c.sub8(*r, c.operand8(), 0) }
func cmp8op(c *CPU, r *uint8) { c.sub8(*r, c.operand8(), 0) }
func sbc8op(c *CPU, r *uint8) { *r = c.sub8(*r, c.operand8(), c.CC&ccC) }
func and8op(c *CPU, r *uint8) { *r &= c.operand8(); c.nz8v0(*r) }
func bit8op(c *CPU, r *uint8) { c.nz8v0(*r & c.operand8()) }
func ld8op(c *CPU, r *uint8)  { *r = c.operand8(); c.nz8v0(*r) }
func st8op(c *CPU, r *uint8)  { c.write8(c.ea(), *r); c.nz8v0(*r) }
func eor8op(c *CPU, r *uint8) { *r ^= c.operand8(); c.nz8v0(*r) }
func adc8op(c *CPU, r *uint8) { *r = c.add8(*r, c.operand8(), c.CC&ccC) }
func or8op(c *CPU, r *uint8)  { *r |= c.operand8(); c.nz8v0(*r) }
func add8op(c *CPU, r *uint8) { *r = c.add8(*r, c.operand8(), 0) }

func acc(r func(*CPU) *uint8, fn func(*CPU, *uint8)) func(*CPU) {
	return func(c *CPU) { fn(c, r(c)) }
}

/* 16-bit ops */

func ld16(r reg16) func(*CPU) {
	return func(c *CPU) {
		v := c.operand16()
		r.set(c, v)
		c.nz16v0(v)
	}
}

func st16(r reg16) func(*CPU) {
	return func(c *CPU) {
		v := r.get(c)
		c.write16(c.ea(), v)
		c.nz16v0(v)
	}
}

func cmp16(r reg16) func(*CPU) {
	return func(c *CPU) { c.sub16(r.get(c), c.operand16()) }
}

func lds(c *CPU) {
	ld16(regS)(c)
	c.ldsSeen = true
}

func subd(c *CPU) { c.setD(c.sub16(c.D(), c.operand16())) }
func addd(c *CPU) { c.setD(c.add16(c.D(), c.operand16())) }

func leaxy(r reg16) func(*CPU) {
	return func(c *CPU) {
		v := c.ea()
		r.set(c, v)
		c.setFlag(ccZ, v == 0)
	}
}

func leasu(r reg16) func(*CPU) {
	return func(c *CPU) { r.set(c, c.ea()) }
}

/* branches */

type cond struct {
	n string
	f func(cc uint8) bool
}

func nxorv(cc uint8) bool { return (cc&ccN != 0) != (cc&ccV != 0) }

var conds = [16]cond{
	{"RA", func(uint8) bool { return true }},
	{"RN", func(uint8) bool { return false }},
	{"HI", func(cc uint8) bool { return cc&(ccC|ccZ) == 0 }},
	{"LS", func(cc uint8) bool { return cc&(ccC|ccZ) != 0 }},
	{"CC", func(cc uint8) bool { return cc&ccC == 0 }},
	{"CS", func(cc uint8) bool { return cc&ccC != 0 }},
	{"NE", func(cc uint8) bool { return cc&ccZ == 0 }},
	{"EQ", func(cc uint8) bool { return cc&ccZ != 0 }},
	{"VC", func(cc uint8) bool { return cc&ccV == 0 }},
	{"VS", func(cc uint8) bool { return cc&ccV != 0 }},
	{"PL", func(cc uint8) bool { return cc&ccN == 0 }},
	{"MI", func(cc uint8) bool { return cc&ccN != 0 }},
	{"GE", func(cc uint8) bool { return !nxorv(cc) }},
	{"LT", nxorv},
	{"GT", func(cc uint8) bool { return cc&ccZ == 0 && !nxorv(cc) }},
	{"LE", func(cc uint8) bool { return cc&ccZ != 0 || nxorv(cc) }},
}

func branch(cd cond) func(*CPU) {
	return func(c *CPU) {
		off := uint16(int8(c.fetch8()))
		if cd.f(c.CC) {
			c.PC += off
		}
	}
}

// Taken long branches cost one more cycle.
func lbranch(cd cond) func(*CPU) {
	return func(c *CPU) {
		off := c.fetch16()
		if cd.f(c.CC) {
			c.PC += off
			c.ICount--
		}
	}
}

func lbra(c *CPU) {
	off := c.fetch16()
	c.PC += off
}

func bsr(c *CPU) {
	off := uint16(int8(c.fetch8()))
	c.push16(&c.S, c.PC)
	c.PC += off
}

func lbsr(c *CPU) {
	off := c.fetch16()
	c.push16(&c.S, c.PC)
	c.PC += off
}

func jmp(c *CPU) { c.PC = c.ea() }

func jsr(c *CPU) {
	ea := c.ea()
	c.push16(&c.S, c.PC)
	c.PC = ea
}

func rts(c *CPU) { c.PC = c.pull16(&c.S) }

func rti(c *CPU) {
	c.pullRegs(0x01, &c.S, &c.U)
	if c.CC&ccE != 0 {
		c.pullRegs(0xfe, &c.S, &c.U)
		c.ICount -= 9
		return
	}
	c.pullRegs(0x80, &c.S, &c.U)
}

/* stacks */

func pshs(c *CPU) { c.ICount -= int64(c.pushRegs(c.fetch8(), &c.S, c.U)) }
func pshu(c *CPU) { c.ICount -= int64(c.pushRegs(c.fetch8(), &c.U, c.S)) }
func puls(c *CPU) { c.ICount -= int64(c.pullRegs(c.fetch8(), &c.S, &c.U)) }
func pulu(c *CPU) { c.ICount -= int64(c.pullRegs(c.fetch8(), &c.U, &c.S)) }

/* software interrupts and waits */

func swi(vector uint16, mask uint8) func(*CPU) {
	return func(c *CPU) {
		c.CC |= ccE
		c.pushRegs(0xff, &c.S, c.U)
		c.CC |= mask
		c.PC = c.read16(vector)
	}
}

func cwai(c *CPU) {
	c.CC &= c.fetch8()
	c.CC |= ccE
	c.pushRegs(0xff, &c.S, c.U)
	c.wait = waitCWAI
}

func syncw(c *CPU) { c.wait = waitSync }

/* misc */

func nop(*CPU) {}

func andcc(c *CPU) { c.CC &= c.fetch8() }
func orcc(c *CPU)  { c.CC |= c.fetch8() }

func abx(c *CPU) { c.X += uint16(c.B) }

func mul(c *CPU) {
	d := uint16(c.A) * uint16(c.B)
	c.setD(d)
	c.setFlag(ccZ, d == 0)
	c.setFlag(ccC, d&0x80 != 0)
}

func sex(c *CPU) {
	c.A = 0
	if c.B&0x80 != 0 {
		c.A = 0xff
	}
	c.nz16(c.D())
}

// daa keeps the carry of the previous addition.
func daa(c *CPU) {
	msn, lsn := c.A&0xf0, c.A&0x0f
	var cf uint16
	if lsn > 0x09 || c.CC&ccH != 0 {
		cf |= 0x06
	}
	if msn > 0x80 && lsn > 0x09 {
		cf |= 0x60
	}
	if msn > 0x90 || c.CC&ccC != 0 {
		cf |= 0x60
	}
	t := cf + uint16(c.A)
	c.A = uint8(t)
	c.CC &^= ccV
	c.nz8(c.A)
	if t&0x100 != 0 {
		c.CC |= ccC
	}
}

// Register codes 0-5 are 16-bit, 8-11 are 8-bit. Undefined codes read as
// 0xFF or 0x00FF and ignore writes.
func (c *CPU) exgRead(code uint8) (b uint8, w uint16) {
	b, w = 0xff, 0x00ff
	switch code & 0x0f {
	case 0:
		w = c.D()
	case 1:
		w = c.X
	case 2:
		w = c.Y
	case 3:
		w = c.U
	case 4:
		w = c.S
	case 5:
		w = c.PC
	case 8:
		b = c.A
	case 9:
		b = c.B
	case 10:
		b = c.CC
	case 11:
		b = c.DP
	}
	return b, w
}

func (c *CPU) exgWrite(code uint8, b uint8, w uint16) {
	switch code & 0x0f {
	case 0:
		c.setD(w)
	case 1:
		c.X = w
	case 2:
		c.Y = w
	case 3:
		c.U = w
	case 4:
		c.S = w
	case 5:
		c.PC = w
	case 8:
		c.A = b
	case 9:
		c.B = b
	case 10:
		c.CC = b
	case 11:
		c.DP = b
	}
}

func exg(c *CPU) {
	post := c.fetch8()
	b1, w1 := c.exgRead(post >> 4)
	b2, w2 := c.exgRead(post)
	c.exgWrite(post>>4, b2, w2)
	c.exgWrite(post, b1, w1)
}

func tfr(c *CPU) {
	post := c.fetch8()
	b, w := c.exgRead(post >> 4)
	c.exgWrite(post, b, w)
}

/* tables */

// group fills the immediate, direct, indexed and extended columns of an
// opcode row. A zero cycle count leaves the column undefined.
func group(p *[256]opdef, op uint8, n string, imm mode, cycles [4]uint8, f func(*CPU)) {
	modes := [4]mode{imm, dir, idx, ext}
	for i, m := range modes {
		if cycles[i] == 0 {
			continue
		}
		p[op+uint8(i)<<4] = opdef{n, m, cycles[i], f}
	}
}

func init() {
	rmws := []struct {
		op uint8
		n  string
		f  func(*CPU, uint8) uint8
	}{
		{0x0, "NEG", (*CPU).neg},
		{0x3, "COM", (*CPU).com},
		{0x4, "LSR", (*CPU).lsr},
		{0x6, "ROR", (*CPU).ror},
		{0x7, "ASR", (*CPU).asr},
		{0x8, "ASL", (*CPU).asl},
		{0x9, "ROL", (*CPU).rol},
		{0xA, "DEC", (*CPU).dec},
		{0xC, "INC", (*CPU).inc},
		{0xD, "TST", (*CPU).tst},
		{0xF, "CLR", (*CPU).clr},
	}
	for _, r := range rmws {
		store := r.n != "TST"
		page1[0x00|r.op] = opdef{r.n, dir, 6, memRMW(r.f, store)}
		page1[0x60|r.op] = opdef{r.n, idx, 6, memRMW(r.f, store)}
		page1[0x70|r.op] = opdef{r.n, ext, 7, memRMW(r.f, store)}
		page1[0x40|r.op] = opdef{r.n + "A", inh, 2, regRMW(rA, r.f)}
		page1[0x50|r.op] = opdef{r.n + "B", inh, 2, regRMW(rB, r.f)}
	}
	page1[0x0E] = opdef{"JMP", dir, 3, jmp}
	page1[0x6E] = opdef{"JMP", idx, 3, jmp}
	page1[0x7E] = opdef{"JMP", ext, 4, jmp}

	page1[0x12] = opdef{"NOP", inh, 2, nop}
	page1[0x13] = opdef{"SYNC", inh, 4, syncw}
	page1[0x16] = opdef{"LBRA", rel16, 5, lbra}
	page1[0x17] = opdef{"LBSR", rel16, 9, lbsr}
	page1[0x19] = opdef{"DAA", inh, 2, daa}
	page1[0x1A] = opdef{"ORCC", imm8, 3, orcc}
	page1[0x1C] = opdef{"ANDCC", imm8, 3, andcc}
	page1[0x1D] = opdef{"SEX", inh, 2, sex}
	page1[0x1E] = opdef{"EXG", regs, 8, exg}
	page1[0x1F] = opdef{"TFR", regs, 6, tfr}

	for i, cd := range conds {
		page1[0x20+i] = opdef{"B" + cd.n, rel8, 3, branch(cd)}
		if i > 0 {
			page2[0x20+i] = opdef{"LB" + cd.n, rel16, 5, lbranch(cd)}
		}
	}

	page1[0x30] = opdef{"LEAX", idx, 4, leaxy(regX)}
	page1[0x31] = opdef{"LEAY", idx, 4, leaxy(regY)}
	page1[0x32] = opdef{"LEAS", idx, 4, leasu(regS)}
	page1[0x33] = opdef{"LEAU", idx, 4, leasu(regU)}
	page1[0x34] = opdef{"PSHS", stackS, 5, pshs}
	page1[0x35] = opdef{"PULS", stackS, 5, puls}
	page1[0x36] = opdef{"PSHU", stackU, 5, pshu}
	page1[0x37] = opdef{"PULU", stackU, 5, pulu}
	page1[0x39] = opdef{"RTS", inh, 5, rts}
	page1[0x3A] = opdef{"ABX", inh, 3, abx}
	page1[0x3B] = opdef{"RTI", inh, 6, rti}
	page1[0x3C] = opdef{"CWAI", imm8, 20, cwai}
	page1[0x3D] = opdef{"MUL", inh, 11, mul}
	page1[0x3F] = opdef{"SWI", inh, 19, swi(vecSWI, ccI|ccF)}

	alu := []struct {
		op uint8
		n  string
		f  func(*CPU, *uint8)
	}{
		{0x0, "SUB", sub8op},
		{0x1, "CMP", cmp8op},
		{0x2, "SBC", sbc8op},
		{0x4, "AND", and8op},
		{0x5, "BIT", bit8op},
		{0x6, "LD", ld8op},
		{0x7, "ST", st8op},
		{0x8, "EOR", eor8op},
		{0x9, "ADC", adc8op},
		{0xA, "OR", or8op},
		{0xB, "ADD", add8op},
	}
	for _, a := range alu {
		cycles := [4]uint8{2, 4, 4, 5}
		if a.n == "ST" {
			cycles[0] = 0
		}
		group(&page1, 0x80|a.op, a.n+"A", imm8, cycles, acc(rA, a.f))
		group(&page1, 0xC0|a.op, a.n+"B", imm8, cycles, acc(rB, a.f))
	}

	arith := [4]uint8{4, 6, 6, 7}
	load := [4]uint8{3, 5, 5, 6}
	store := [4]uint8{0, 5, 5, 6}
	group(&page1, 0x83, "SUBD", imm16, arith, subd)
	group(&page1, 0x8C, "CMPX", imm16, arith, cmp16(regX))
	group(&page1, 0x8E, "LDX", imm16, load, ld16(regX))
	group(&page1, 0x8F, "STX", imm16, store, st16(regX))
	group(&page1, 0x8D, "JSR", imm16, [4]uint8{0, 7, 7, 8}, jsr)
	page1[0x8D] = opdef{"BSR", rel8, 7, bsr}
	group(&page1, 0xC3, "ADDD", imm16, arith, addd)
	group(&page1, 0xCC, "LDD", imm16, load, ld16(regD))
	group(&page1, 0xCD, "STD", imm16, store, st16(regD))
	group(&page1, 0xCE, "LDU", imm16, load, ld16(regU))
	group(&page1, 0xCF, "STU", imm16, store, st16(regU))

	// page 2 (0x10 prefix)
	page2[0x3F] = opdef{"SWI2", inh, 20, swi(vecSWI2, 0)}
	cmp := [4]uint8{5, 7, 7, 8}
	group(&page2, 0x83, "CMPD", imm16, cmp, cmp16(regD))
	group(&page2, 0x8C, "CMPY", imm16, cmp, cmp16(regY))
	group(&page2, 0x8E, "LDY", imm16, [4]uint8{4, 6, 6, 7}, ld16(regY))
	group(&page2, 0x8F, "STY", imm16, [4]uint8{0, 6, 6, 7}, st16(regY))
	group(&page2, 0xCE, "LDS", imm16, [4]uint8{4, 6, 6, 7}, lds)
	group(&page2, 0xCF, "STS", imm16, [4]uint8{0, 6, 6, 7}, st16(regS))

	// page 3 (0x11 prefix)
	page3[0x3F] = opdef{"SWI3", inh, 20, swi(vecSWI3, 0)}
	group(&page3, 0x83, "CMPU", imm16, cmp, cmp16(regU))
	group(&page3, 0x8C, "CMPS", imm16, cmp, cmp16(regS))
}
