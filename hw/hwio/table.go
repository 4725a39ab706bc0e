package hwio

import (
	"fmt"

	"emucore/emu/log"
)

// log unmapped accesses (useful for debugging but verbose when guest code
// probes the bus)
const logUnmapped = false

// BankIO8 is implemented by anything that can be installed in a Table.
// Handlers receive the offset of the access within their installed range,
// after masking. If peek is true the read must not have side effects
// (debugging/tracing).
type BankIO8 interface {
	Read8(off uint16, peek bool) uint8
	Write8(off uint16, val uint8)
}

type ioNamer interface {
	IOName() string
}

// Range describes an installed address range.
type Range struct {
	Start, End uint16
	Mask       uint16
	Name       string
}

type mapping struct {
	Range
	io BankIO8
}

// Table is a 64KiB address space. Ranges are installed in order and a later
// install shadows whatever it overlaps.
type Table struct {
	Name string

	// Unmapped, if not nil, handles accesses to addresses where nothing is
	// installed. Otherwise reads return Default and writes are dropped.
	Unmapped BankIO8
	Default  uint8

	maps []mapping
	idx  [0x10000]uint16 // index+1 in maps, 0 if unmapped
}

func NewTable(name string) *Table {
	t := new(Table)
	t.Name = name
	t.Reset()
	return t
}

func (t *Table) Reset() {
	t.maps = t.maps[:0]
	clear(t.idx[:])
}

// Install maps io over [start, end]. The handler sees (addr-start)&mask as
// offset.
func (t *Table) Install(start, end, mask uint16, io BankIO8) {
	if end < start {
		panic(fmt.Errorf("hwio: invalid range [%04x-%04x] on %s", start, end, t.Name))
	}
	if len(t.maps) == 0xffff {
		panic(fmt.Errorf("hwio: too many mappings on %s", t.Name))
	}

	name := fmt.Sprintf("%T", io)
	if n, ok := io.(ioNamer); ok && n.IOName() != "" {
		name = n.IOName()
	}
	t.maps = append(t.maps, mapping{
		Range: Range{Start: start, End: end, Mask: mask, Name: name},
		io:    io,
	})
	id := uint16(len(t.maps))
	for a := int(start); a <= int(end); a++ {
		t.idx[a] = id
	}

	log.ModHwIo.DebugZ("install").
		String("bus", t.Name).
		String("name", name).
		Hex16("start", start).
		Hex16("end", end).
		Hex16("mask", mask).
		End()
}

// Map a register bank (that is, a structure containing mulitple Reg*, Mem or
// Device fields). For this function to work, registers must have a struct
// tag "hwio", containing the following fields:
//
//	offset=0x12     Byte-offset within the register bank at which this
//	                register is mapped. There is no default value: if this
//	                option is missing, the register is assumed not to be
//	                part of the bank, and is ignored by this call.
//
//	bank=NN         Ordinal bank number (if not specified, default to zero).
//	                This option allows for a structure to expose multiple
//	                banks, as regs can be grouped by bank by specified the
//	                bank number.
//
// See MustInitRegs for the other options.
func (t *Table) MapBank(addr uint16, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.regPtr.(type) {
		case *Mem:
			t.MapMem(addr+reg.offset, r)
		case *Reg8:
			t.MapReg8(addr+reg.offset, r)
		case *Reg16:
			t.MapReg16(addr+reg.offset, r)
		case *Device:
			t.MapDevice(addr+reg.offset, r)
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) UnmapBank(addr uint16, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		begin := addr + reg.offset
		switch r := reg.regPtr.(type) {
		case *Mem:
			t.Unmap(begin, begin+uint16(r.VSize-1))
		case *Reg8:
			t.Unmap(begin, begin)
		case *Reg16:
			t.Unmap(begin, begin+1)
		case *Device:
			t.Unmap(begin, begin+uint16(r.Size-1))
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) MapReg8(addr uint16, io *Reg8) {
	t.Install(addr, addr, 0, io)
}

func (t *Table) MapReg16(addr uint16, io *Reg16) {
	t.Install(addr, addr+1, 1, io)
}

func (t *Table) MapDevice(addr uint16, io *Device) {
	t.Install(addr, addr+uint16(io.Size-1), 0xffff, io)
}

func (t *Table) MapMem(addr uint16, mem *Mem) {
	vsize := mem.VSize
	if vsize == 0 {
		vsize = len(mem.Data)
	}
	t.Install(addr, addr+uint16(vsize-1), 0xffff, mem.BankIO8())
}

func (t *Table) MapMemorySlice(addr, end uint16, buf []uint8, readonly bool) {
	var flags MemFlags
	if readonly {
		flags |= MemFlag8ReadOnly
	}
	t.MapMem(addr, &Mem{
		Data:  buf,
		Flags: flags,
		VSize: int(end) - int(addr) + 1,
	})
}

// Unmap removes [begin, end] from the table. Mappings that were shadowed by
// the removed range are not restored.
func (t *Table) Unmap(begin, end uint16) {
	for a := int(begin); a <= int(end); a++ {
		t.idx[a] = 0
	}
}

// Ranges returns the visible installed ranges in address order. A mapping
// split by a later install is reported once per contiguous piece.
func (t *Table) Ranges() []Range {
	var ranges []Range
	cur := uint16(0)
	start := 0
	for a := 0; a <= 0x10000; a++ {
		var id uint16
		if a < 0x10000 {
			id = t.idx[a]
		}
		if a == 0x10000 || id != cur {
			if cur != 0 {
				r := t.maps[cur-1].Range
				r.Start, r.End = uint16(start), uint16(a-1)
				ranges = append(ranges, r)
			}
			cur, start = id, a
		}
	}
	return ranges
}

func (t *Table) lookup(addr uint16) (BankIO8, uint16) {
	id := t.idx[addr]
	if id == 0 {
		return nil, 0
	}
	m := &t.maps[id-1]
	return m.io, (addr - m.Start) & m.Mask
}

// Read8 forwards the read to the handler installed at addr.
func (t *Table) Read8(addr uint16) uint8 {
	io, off := t.lookup(addr)
	if io == nil {
		if t.Unmapped != nil {
			return t.Unmapped.Read8(addr, false)
		}
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Read8").
				String("name", t.Name).
				Hex16("addr", addr).
				End()
		}
		return t.Default
	}
	return io.Read8(off, false)
}

// Peek8 reads without side effects.
func (t *Table) Peek8(addr uint16) uint8 {
	io, off := t.lookup(addr)
	if io == nil {
		if t.Unmapped != nil {
			return t.Unmapped.Read8(addr, true)
		}
		return t.Default
	}
	return io.Read8(off, true)
}

func (t *Table) Write8(addr uint16, val uint8) {
	io, off := t.lookup(addr)
	if io == nil {
		if t.Unmapped != nil {
			t.Unmapped.Write8(addr, val)
			return
		}
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write8").
				String("name", t.Name).
				Hex16("addr", addr).
				Hex8("val", val).
				End()
		}
		return
	}
	io.Write8(off, val)
}

// FetchPointer returns a slice over the memory mapped at addr, or nil if addr
// is not backed by linear memory.
func (t *Table) FetchPointer(addr uint16) []uint8 {
	io, off := t.lookup(addr)
	if mem, ok := io.(*mem); ok {
		return mem.FetchPointer(off)
	}
	return nil
}

// Read16BE reads a big-endian word, with side effects.
func (t *Table) Read16BE(addr uint16) uint16 {
	hi := t.Read8(addr)
	lo := t.Read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

// Read16LE reads a little-endian word, with side effects.
func (t *Table) Read16LE(addr uint16) uint16 {
	lo := t.Read8(addr)
	hi := t.Read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}
