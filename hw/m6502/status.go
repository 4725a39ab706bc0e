package m6502

// P is the processor status register.
type P uint8

const (
	Carry P = 1 << iota
	Zero
	Interrupt
	Decimal
	Break
	Reserved
	Overflow
	Negative
)

func (p P) String() string {
	const bits = "nvubdizcNVUBDIZC"

	s := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ibit := (uint8(p) & (1 << (7 - i))) >> (7 - i)
		s[i] = bits[i+int(8*ibit)]
	}
	return string(s)
}

// Flags renders the register as the debugger shows it, "NV-BDIZC" with
// cleared flags replaced by dots.
func (p P) Flags() string {
	const letters = "NV-BDIZC"

	s := []byte(letters)
	for i := range s {
		if i != 2 && uint8(p)&(1<<(7-i)) == 0 {
			s[i] = '.'
		}
	}
	return string(s)
}

func (p P) has(flag P) bool { return p&flag != 0 }

func (p *P) set(flag P, on bool) {
	if on {
		*p |= flag
	} else {
		*p &^= flag
	}
}

func (p *P) checkNZ(v uint8) {
	p.set(Negative, v&0x80 != 0)
	p.set(Zero, v == 0)
}

func (p *P) checkCV(x, y uint8, sum uint16) {
	// forward carry or unsigned overflow.
	p.set(Carry, sum > 0xFF)

	// signed overflow, can only happen if the sign of the sum differs
	// from that of both operands.
	v := (uint16(x) ^ sum) & (uint16(y) ^ sum) & 0x80
	p.set(Overflow, v != 0)
}

func (p P) carry() uint8 {
	return uint8(p & Carry)
}
