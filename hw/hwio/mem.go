package hwio

import (
	"emucore/emu/log"
)

type MemFlags int

const (
	MemFlagReadWrite MemFlags = 0
	MemFlag8ReadOnly MemFlags = (1 << iota) // read-only accesses
	MemFlagNoROLog                          // skip logging attempts to write when configured to readonly
)

// Linear memory area that can be mapped into a Table.
//
// The physical buffer must have a power of 2 size; it is mirrored over VSize
// bytes when VSize is bigger.
type Mem struct {
	Name    string              // name of the memory area (for debugging)
	Data    []byte              // actual memory buffer
	VSize   int                 // virtual size of the memory (can be bigger than physical size)
	Flags   MemFlags            // flags determining how the memory can be accessed
	WriteCb func(uint16, uint8) // optional write callback (if set, the callback is called instead of writing)
}

// BankIO8 creates the adaptor used by a Table to access the memory.
func (m *Mem) BankIO8() BankIO8 {
	return newMem(m.Name, m.Data, m.WriteCb, m.Flags)
}

// mem is the adaptor stored in tables. Flags are resolved once at mapping
// time so the access path only tests a single field.
type mem struct {
	name string
	buf  []byte
	mask uint16
	wcb  func(uint16, uint8)
	ro   MemFlags
}

func newMem(name string, buf []byte, wcb func(uint16, uint8), flags MemFlags) *mem {
	if len(buf) == 0 || len(buf)&(len(buf)-1) != 0 {
		panic("memory buffer size is not pow2")
	}
	return &mem{
		name: name,
		buf:  buf,
		mask: uint16(len(buf) - 1),
		wcb:  wcb,
		ro:   flags,
	}
}

func (m *mem) IOName() string { return m.name }

func (m *mem) Read8(off uint16, _ bool) uint8 {
	return m.buf[off&m.mask]
}

func (m *mem) Write8(off uint16, val uint8) {
	if m.wcb != nil {
		m.wcb(off, val)
		return
	}

	switch {
	case m.ro == MemFlagReadWrite:
		m.buf[off&m.mask] = val
	case m.ro&MemFlagNoROLog != 0:
		return
	default:
		log.ModHwIo.ErrorZ("Write8 to readonly memory").
			String("name", m.name).
			Hex8("val", val).
			Hex16("off", off).
			End()
	}
}

// FetchPointer returns the memory starting at off, up to the end of the
// physical buffer.
func (m *mem) FetchPointer(off uint16) []uint8 {
	return m.buf[off&m.mask:]
}
