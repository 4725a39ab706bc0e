package emu

import (
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"emucore/hw/device"
	"emucore/hw/machine"
)

// Dump writes the state of the machine as JSON: the virtual time, then for
// every device its visible registers, its interrupt outputs and, for
// slots, the inserted card. A zero indent writes compact JSON.
func (e *Emulator) Dump(w io.Writer, indent int) error {
	return Dump(e.M, w, indent)
}

func Dump(m *machine.Machine, w io.Writer, indent int) error {
	var enc jx.Encoder
	enc.SetIdent(indent)
	enc.Obj(func(e *jx.Encoder) {
		e.Field("machine", func(e *jx.Encoder) { e.Str(m.Name()) })
		e.Field("time", func(e *jx.Encoder) { e.UInt64(uint64(m.Now())) })
		e.Field("devices", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				m.Walk(func(d *device.Device) {
					if d != m.Root() {
						dumpDevice(e, d)
					}
				})
			})
		})
	})
	if _, err := w.Write(append(enc.Bytes(), '\n')); err != nil {
		return errors.Wrap(err, "write dump")
	}
	return nil
}

func dumpDevice(e *jx.Encoder, d *device.Device) {
	caps := d.Resolve()
	e.Obj(func(e *jx.Encoder) {
		e.Field("tag", func(e *jx.Encoder) { e.Str(d.Tag()) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(d.Kind()) })
		if d.ClockHz() != 0 {
			e.Field("clock", func(e *jx.Encoder) { e.UInt64(d.ClockHz()) })
		}
		if entries := d.StateEntries(); len(entries) != 0 {
			e.Field("state", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, se := range entries {
						if se.Visible() {
							e.Field(se.Name(), func(e *jx.Encoder) { e.Str(d.StateString(se.Index())) })
						}
					}
				})
			})
		}
		if caps.Interrupts != nil {
			e.Field("lines", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, l := range caps.Interrupts.InterruptLines() {
						e.Field(l.Name(), func(e *jx.Encoder) { e.Bool(l.Asserted()) })
					}
				})
			})
		}
		if caps.Slot != nil {
			e.Field("card", func(e *jx.Encoder) {
				if card, ok := caps.Slot.Card(); ok {
					e.Str(card.Dev().Tag())
				} else {
					e.Null()
				}
			})
		}
	})
}

// ApplyPresets sets device registers from a JSON object mapping device tags
// to register values, such as {":cpu": {"PC": "0x1000", "A": 18}}. Values
// are numbers or strings in Go integer syntax.
func (e *Emulator) ApplyPresets(r io.Reader) error {
	return ApplyPresets(e.M, r)
}

func ApplyPresets(m *machine.Machine, r io.Reader) error {
	d := jx.Decode(r, 1024)
	err := d.Obj(func(d *jx.Decoder, tag string) error {
		impl := m.Device(tag)
		if impl == nil {
			return errors.Errorf("no device %q", tag)
		}
		dev := impl.Dev()
		return d.Obj(func(d *jx.Decoder, name string) error {
			se := dev.StateEntryByName(name)
			if se == nil {
				return errors.Errorf("%s: no register %q", tag, name)
			}
			v, err := decodeValue(d)
			if err != nil {
				return errors.Wrapf(err, "%s: %s", tag, name)
			}
			dev.SetStateValue(se.Index(), v)
			return nil
		})
	})
	if err != nil {
		return errors.Wrap(err, "presets")
	}
	return nil
}

func decodeValue(d *jx.Decoder) (uint64, error) {
	switch d.Next() {
	case jx.Number:
		return d.UInt64()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.ParseUint(s, 0, 64)
	}
	return 0, errors.Errorf("want a number or a string, got %s", d.Next())
}
