// Package cards implements the cards that can be plugged in slots.
package cards

import (
	"emucore/emu/log"
	"emucore/hw/device"
)

var modCards = log.NewModule("cards")

// ROMCard maps a raw ROM image in the memory window, one window-sized bank
// at a time. An optional RAM shadows the ROM at a fixed offset. IO offset 0
// is the bank select register.
type ROMCard struct {
	device.Device

	rom    []byte
	ram    []byte
	ramOff uint16
	window uint16
	bank   uint8
}

// NewROMCard returns a card showing image through a window of the given
// size. If ramSize is not zero, a RAM of that size sits at ramOff in the
// window.
func NewROMCard(tag string, image []byte, window, ramOff, ramSize uint16) *ROMCard {
	c := &ROMCard{
		rom:    image,
		window: max(window, 1),
		ramOff: ramOff,
	}
	if ramSize != 0 {
		c.ram = make([]byte, ramSize)
	}
	c.Init(tag, "romcard", 0)
	return c
}

func (c *ROMCard) Start(device.Context) error {
	c.SaveItem("bank", &c.bank)
	if c.ram != nil {
		c.SaveItem("ram", c.ram)
	}
	return nil
}

// Reset selects the first bank. The RAM is not battery backed but keeps its
// contents over a reset, as static RAM does.
func (c *ROMCard) Reset(bool) {
	c.bank = 0
}

func (c *ROMCard) Banks() int {
	return max(1, (len(c.rom)+int(c.window)-1)/int(c.window))
}

func (c *ROMCard) inRAM(off uint16) bool {
	return c.ram != nil && off >= c.ramOff && int(off-c.ramOff) < len(c.ram)
}

func (c *ROMCard) PeekMem(off uint16) uint8 {
	if c.inRAM(off) {
		return c.ram[off-c.ramOff]
	}
	if len(c.rom) == 0 {
		return 0xff
	}
	addr := int(c.bank)*int(c.window) + int(off)
	return c.rom[addr%len(c.rom)]
}

func (c *ROMCard) ReadMem(off uint16) uint8 { return c.PeekMem(off) }

func (c *ROMCard) WriteMem(off uint16, val uint8) {
	if c.inRAM(off) {
		c.ram[off-c.ramOff] = val
		return
	}
	modCards.DebugZ("rom write").
		String("tag", c.Tag()).
		Hex16("off", off).
		Hex8("val", val).
		End()
}

func (c *ROMCard) PeekIO(off uint16) uint8 {
	if off == 0 {
		return c.bank
	}
	return 0xff
}

func (c *ROMCard) ReadIO(off uint16) uint8 { return c.PeekIO(off) }

func (c *ROMCard) WriteIO(off uint16, val uint8) {
	if off != 0 {
		return
	}
	c.bank = uint8(int(val) % c.Banks())
}
