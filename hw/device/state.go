package device

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Standard state indices shared by all cores.
const (
	StateGenPC     = -1 // current PC
	StateGenPCBase = -2 // PC of the instruction in progress
	StateGenFlags  = -3 // flags, as a string
	StateGenSP     = -4
)

// StateEntry is a debugger-visible register of a device.
type StateEntry struct {
	index  int
	name   string
	v      reflect.Value
	size   int
	mask   uint64
	format string

	callImport bool
	callExport bool
	noShow     bool
}

// StateImporter is notified after a state entry flagged with CallImport
// has been written.
type StateImporter interface {
	StateImport(e *StateEntry)
}

// StateExporter is called before a state entry flagged with CallExport is
// read, so that the device can synthesize it.
type StateExporter interface {
	StateExport(e *StateEntry)
}

// StateStringer formats state entries whose format is a string verb, like
// the flags.
type StateStringer interface {
	StateFormat(e *StateEntry) string
}

func (e *StateEntry) Index() int       { return e.index }
func (e *StateEntry) Name() string     { return e.name }
func (e *StateEntry) Size() int        { return e.size }
func (e *StateEntry) Visible() bool    { return !e.noShow }
func (e *StateEntry) MaskBits() uint64 { return e.mask }

// Mask restricts the entry to the given bits.
func (e *StateEntry) Mask(m uint64) *StateEntry { e.mask = m; return e }

// Format sets the fmt format of the value. A format ending in 's' is
// rendered by the device's StateStringer.
func (e *StateEntry) Format(f string) *StateEntry { e.format = f; return e }

func (e *StateEntry) CallImport() *StateEntry { e.callImport = true; return e }
func (e *StateEntry) CallExport() *StateEntry { e.callExport = true; return e }

// NoShow hides the entry from the register view.
func (e *StateEntry) NoShow() *StateEntry { e.noShow = true; return e }

// Value returns the raw value of the entry, masked.
func (e *StateEntry) Value() uint64 {
	var u uint64
	switch e.v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		u = uint64(e.v.Int())
	default:
		u = e.v.Uint()
	}
	return u & e.mask
}

// Set stores v into the entry, masked. Import hooks are not called.
func (e *StateEntry) Set(v uint64) {
	v &= e.mask
	switch e.v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.v.SetInt(int64(v))
	default:
		e.v.SetUint(v)
	}
}

func widthMask(size int) uint64 {
	if size == 8 {
		return ^uint64(0)
	}
	return 1<<(8*size) - 1
}

// StateAdd registers a state entry over the integer pointed to by ptr.
func (d *Device) StateAdd(index int, name string, ptr any) *StateEntry {
	if d.started {
		d.Fatalf("state entry %q registered after start", name)
	}
	if _, dup := d.stateIx[index]; dup {
		d.Fatalf("duplicate state index %d (%s)", index, name)
	}

	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		d.Fatalf("state entry %q: want pointer, got %T", name, ptr)
	}
	v := pv.Elem()
	var size int
	switch v.Kind() {
	case reflect.Int8, reflect.Uint8, reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32, reflect.Int64, reflect.Uint64,
		reflect.Int, reflect.Uint:
		size = int(v.Type().Size())
	default:
		d.Fatalf("state entry %q: unsupported type %s", name, v.Type())
	}

	e := &StateEntry{
		index: index,
		name:  name,
		v:     v,
		size:  size,
		mask:  widthMask(size),
	}
	if d.stateIx == nil {
		d.stateIx = make(map[int]*StateEntry)
	}
	d.stateIx[index] = e
	d.state = append(d.state, e)
	return e
}

// StateEntries returns all entries in registration order.
func (d *Device) StateEntries() []*StateEntry { return d.state }

func (d *Device) StateEntry(index int) *StateEntry { return d.stateIx[index] }

// StateEntryByName looks up an entry, ignoring case.
func (d *Device) StateEntryByName(name string) *StateEntry {
	i := slices.IndexFunc(d.state, func(e *StateEntry) bool {
		return strings.EqualFold(e.name, name)
	})
	if i < 0 {
		return nil
	}
	return d.state[i]
}

// StateValue reads an entry, calling the device export hook if needed.
func (d *Device) StateValue(index int) (uint64, bool) {
	e := d.stateIx[index]
	if e == nil {
		return 0, false
	}
	if e.callExport {
		if ex, ok := d.impl.(StateExporter); ok {
			ex.StateExport(e)
		}
	}
	return e.Value(), true
}

// SetStateValue writes an entry, calling the device import hook if needed.
func (d *Device) SetStateValue(index int, v uint64) bool {
	e := d.stateIx[index]
	if e == nil {
		return false
	}
	e.Set(v)
	if e.callImport {
		if im, ok := d.impl.(StateImporter); ok {
			im.StateImport(e)
		}
	}
	return true
}

// StateString renders an entry with its format.
func (d *Device) StateString(index int) string {
	e := d.stateIx[index]
	if e == nil {
		return ""
	}
	val, _ := d.StateValue(index)
	if strings.HasSuffix(e.format, "s") {
		if st, ok := d.impl.(StateStringer); ok {
			return fmt.Sprintf(e.format, st.StateFormat(e))
		}
	}
	if e.format != "" {
		return fmt.Sprintf(e.format, val)
	}
	return fmt.Sprintf("%0*X", 2*e.size, val)
}
