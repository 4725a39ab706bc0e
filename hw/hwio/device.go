package hwio

import "emucore/emu/log"

// Device is a BankIO8 implementation that allows manual management of an entire
// range of memory. Callbacks receive the offset within the range.
type Device struct {
	Name  string // name of the memory area (for debugging)
	Size  int    // size of the memory area
	Flags RWFlags

	ReadCb  func(off uint16) uint8
	PeekCb  func(off uint16) uint8
	WriteCb func(off uint16, val uint8)
}

func (d *Device) IOName() string { return d.Name }

func (d *Device) Read8(off uint16, peek bool) uint8 {
	if peek {
		if d.PeekCb != nil {
			return d.PeekCb(off)
		}
		return 0
	}
	switch {
	case d.Flags&WriteOnlyFlag != 0:
		log.ModHwIo.ErrorZ("invalid Read8 from writeonly device").
			String("name", d.Name).
			Hex16("off", off).
			End()
		fallthrough
	case d.ReadCb == nil:
		return 0
	}
	return d.ReadCb(off)
}

func (d *Device) Write8(off uint16, val uint8) {
	switch {
	case d.Flags&ReadOnlyFlag != 0:
		log.ModHwIo.ErrorZ("invalid Write8 to readonly device").
			String("name", d.Name).
			Hex16("off", off).
			End()
		fallthrough
	case d.WriteCb == nil:
		return
	}

	d.WriteCb(off, val)
}
