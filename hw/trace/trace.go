// Package trace writes CPU execution traces, one line per instruction.
package trace

import (
	"fmt"
	"io"
)

// Op is a disassembled instruction.
type Op struct {
	Opcode string
	Oper   string
	Buf    []byte
	PC     uint16
}

// Disasmer decodes the instruction at pc without side effects.
type Disasmer interface {
	DisasmOp(pc uint16) Op
}

// Reg is a register shown in a trace line. Wide registers are shown as 4
// hex digits.
type Reg struct {
	Name string
	Val  uint16
	Wide bool
}

func hexEncode(dst []byte, v byte) {
	const hextable = "0123456789ABCDEF"
	dst[0] = hextable[v>>4]
	dst[1] = hextable[v&0x0f]
}

// String returns the instruction text, without address nor bytes.
func (d Op) String() string {
	if d.Oper == "" {
		return d.Opcode
	}
	return d.Opcode + " " + d.Oper
}

// Bytes returns the string representation of an Op, this is optimized
// version, suitable for the execution tracer.
func (d Op) Bytes() []byte {
	const totalLen = 48
	buf := make([]byte, totalLen)

	hexEncode(buf[0:], byte(d.PC>>8))
	hexEncode(buf[2:], byte(d.PC))
	buf[4] = ' '
	buf[5] = ' '

	off := 6
	for i := range d.Buf {
		hexEncode(buf[off:], d.Buf[i])
		buf[off+2] = ' '
		off += 3
	}

	for ; off < 16; off++ {
		buf[off] = ' '
	}

	off += copy(buf[off:], []byte(d.Opcode))
	buf[off] = ' '
	off++

	buf = append(buf[:off], d.Oper...)
	off += len(d.Oper)
	if len(buf) > totalLen {
		buf = append(buf, ' ')
	} else {
		buf = buf[:totalLen]
		for i := off; i < totalLen; i++ {
			buf[i] = ' '
		}
	}

	return buf
}

// Tracer writes one line per executed instruction.
type Tracer struct {
	d   Disasmer
	w   io.Writer
	buf []byte
}

func New(d Disasmer, w io.Writer) *Tracer {
	return &Tracer{d: d, w: w, buf: make([]byte, 0, 128)}
}

// Write traces the instruction at pc, executed with the given register
// values after cycles cycles.
func (t *Tracer) Write(pc uint16, regs []Reg, cycles uint64) {
	buf := append(t.buf[:0], t.d.DisasmOp(pc).Bytes()...)
	for len(buf) < 49 {
		buf = append(buf, ' ')
	}

	for _, r := range regs {
		buf = append(buf, r.Name...)
		buf = append(buf, ':', 0, 0)
		if r.Wide {
			buf = append(buf, 0, 0)
			hexEncode(buf[len(buf)-4:], byte(r.Val>>8))
		}
		hexEncode(buf[len(buf)-2:], byte(r.Val))
		buf = append(buf, ' ')
	}

	buf = fmt.Appendf(buf, "CYC:%d\n", cycles)
	t.buf = buf
	t.w.Write(buf)
}
