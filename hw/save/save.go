// Package save implements the save-state registry: devices register the
// memory holding their state by name and the registry serialises it in
// registration order.
package save

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"reflect"

	"github.com/go-faster/errors"

	"emucore/emu/log"
)

const (
	Magic      = "EMUCSAVE"
	Version    = 2
	HeaderSize = 0x20

	FlagBigEndian = 0x02

	driverOffset = 0x0a
	driverLen    = 0x1c - driverOffset
	sigOffset    = 0x1c
)

var (
	ErrBadMagic  = errors.New("save: invalid magic")
	ErrVersion   = errors.New("save: unsupported version")
	ErrDriver    = errors.New("save: driver mismatch")
	ErrSignature = errors.New("save: layout signature mismatch")
	ErrShort     = errors.New("save: truncated state data")
	ErrClosed    = errors.New("save: registration closed")
)

type entry struct {
	name  string
	val   reflect.Value // pointed-to value (scalar, array or slice)
	count int
	size  int
}

// elem returns the i-th scalar of the entry.
func (e *entry) elem(i int) reflect.Value {
	switch e.val.Kind() {
	case reflect.Array, reflect.Slice:
		return e.val.Index(i)
	}
	return e.val
}

// Registry collects state items. The zero value is not usable, call
// NewRegistry.
type Registry struct {
	driver  string
	entries []*entry
	names   map[string]struct{}
	closed  bool

	preSave  []func()
	postLoad []func()
}

func NewRegistry(driver string) *Registry {
	return &Registry{
		driver: driver,
		names:  make(map[string]struct{}),
	}
}

func (r *Registry) Driver() string { return r.driver }

func scalarSize(t reflect.Type) (int, bool) {
	switch t.Kind() {
	case reflect.Bool:
		return 1, true
	case reflect.Int8, reflect.Uint8,
		reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32,
		reflect.Int64, reflect.Uint64:
		return int(t.Size()), true
	case reflect.Int, reflect.Uint:
		return 8, true
	}
	return 0, false
}

// Register adds the value pointed to by ptr under name. Supported values are
// fixed-size integers and bools (named types included), and arrays or slices
// of them. A slice keeps the length it had when registered. A slice may also
// be passed directly: its elements are shared with the caller.
func (r *Registry) Register(name string, ptr any) error {
	if r.closed {
		return errors.Wrapf(ErrClosed, "register %q", name)
	}
	if _, dup := r.names[name]; dup {
		return errors.Errorf("save: duplicate item %q", name)
	}

	var v reflect.Value
	switch pv := reflect.ValueOf(ptr); {
	case pv.Kind() == reflect.Slice && !pv.IsNil():
		v = pv
	case pv.Kind() == reflect.Pointer && !pv.IsNil():
		v = pv.Elem()
	default:
		return errors.Errorf("save: item %q: want non-nil pointer or slice, got %T", name, ptr)
	}
	e := &entry{name: name, val: v, count: 1}

	t := v.Type()
	switch t.Kind() {
	case reflect.Array:
		e.count = t.Len()
		t = t.Elem()
	case reflect.Slice:
		e.count = v.Len()
		t = t.Elem()
	}
	size, ok := scalarSize(t)
	if !ok {
		return errors.Errorf("save: item %q: unsupported type %s", name, v.Type())
	}
	e.size = size

	r.names[name] = struct{}{}
	r.entries = append(r.entries, e)
	log.ModSave.DebugZ("register").
		String("name", name).
		Int("count", e.count).
		Int("size", e.size).
		End()
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, ptr any) {
	if err := r.Register(name, ptr); err != nil {
		panic(err)
	}
}

func (r *Registry) OnPreSave(fn func())  { r.preSave = append(r.preSave, fn) }
func (r *Registry) OnPostLoad(fn func()) { r.postLoad = append(r.postLoad, fn) }

// Close ends the registration phase.
func (r *Registry) Close()        { r.closed = true }
func (r *Registry) Closed() bool  { return r.closed }
func (r *Registry) NumItems() int { return len(r.entries) }

// Names returns the registered item names, in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// DataSize is the number of bytes following the header.
func (r *Registry) DataSize() int {
	n := 0
	for _, e := range r.entries {
		n += e.count * e.size
	}
	return n
}

// Signature identifies the layout of the registered items.
func (r *Registry) Signature() uint32 {
	crc := crc32.NewIEEE()
	var buf [8]byte
	for _, e := range r.entries {
		crc.Write([]byte(e.name))
		binary.LittleEndian.PutUint32(buf[0:], uint32(e.count))
		binary.LittleEndian.PutUint32(buf[4:], uint32(e.size))
		crc.Write(buf[:])
	}
	return crc.Sum32()
}

func (r *Registry) header() []byte {
	hdr := make([]byte, HeaderSize)
	copy(hdr, Magic)
	hdr[8] = Version
	hdr[9] = 0
	copy(hdr[driverOffset:driverOffset+driverLen], r.driver)
	binary.LittleEndian.PutUint32(hdr[sigOffset:], r.Signature())
	return hdr
}

func getScalar(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	}
	return v.Uint()
}

func setScalar(v reflect.Value, u uint64, size int) {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(u != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// sign-extend from the stored width
		shift := 64 - 8*size
		v.SetInt(int64(u<<shift) >> shift)
	default:
		v.SetUint(u)
	}
}

// Write runs the pre-save hooks and writes the header and all items to w.
func (r *Registry) Write(w io.Writer) error {
	for _, fn := range r.preSave {
		fn()
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+r.DataSize()))
	buf.Write(r.header())
	var tmp [8]byte
	for _, e := range r.entries {
		if e.val.Kind() == reflect.Slice && e.val.Len() != e.count {
			return errors.Errorf("save: item %q changed length: %d != %d", e.name, e.val.Len(), e.count)
		}
		for i := range e.count {
			binary.LittleEndian.PutUint64(tmp[:], getScalar(e.elem(i)))
			buf.Write(tmp[:e.size])
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "write state")
	}
	return nil
}

// CheckHeader validates a save-state header against the registry.
func (r *Registry) CheckHeader(hdr []byte) error {
	if len(hdr) < HeaderSize {
		return ErrShort
	}
	if string(hdr[:8]) != Magic {
		return ErrBadMagic
	}
	if hdr[8] != Version {
		return errors.Wrapf(ErrVersion, "version %d", hdr[8])
	}
	driver := string(bytes.TrimRight(hdr[driverOffset:driverOffset+driverLen], "\x00"))
	if driver != r.driver {
		return errors.Wrapf(ErrDriver, "file is for %q, want %q", driver, r.driver)
	}
	if sig := binary.LittleEndian.Uint32(hdr[sigOffset:]); sig != r.Signature() {
		return errors.Wrapf(ErrSignature, "%08x != %08x", sig, r.Signature())
	}
	return nil
}

// Read loads a state written by Write, then runs the post-load hooks.
func (r *Registry) Read(rd io.Reader) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return errors.Wrap(err, "read state")
	}
	if err := r.CheckHeader(data); err != nil {
		return err
	}
	bigEndian := data[9]&FlagBigEndian != 0
	data = data[HeaderSize:]
	if len(data) < r.DataSize() {
		return errors.Wrapf(ErrShort, "%d bytes, want %d", len(data), r.DataSize())
	}

	var tmp [8]byte
	for _, e := range r.entries {
		if e.val.Kind() == reflect.Slice && e.val.Len() != e.count {
			return errors.Errorf("save: item %q changed length: %d != %d", e.name, e.val.Len(), e.count)
		}
		for i := range e.count {
			clear(tmp[:])
			copy(tmp[:], data[:e.size])
			if bigEndian {
				for j := range e.size / 2 {
					tmp[j], tmp[e.size-1-j] = tmp[e.size-1-j], tmp[j]
				}
			}
			setScalar(e.elem(i), binary.LittleEndian.Uint64(tmp[:]), e.size)
			data = data[e.size:]
		}
	}

	for _, fn := range r.postLoad {
		fn()
	}
	return nil
}

// Snapshot returns the whole state as a byte slice.
func (r *Registry) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore loads a state previously returned by Snapshot.
func (r *Registry) Restore(buf []byte) error {
	return r.Read(bytes.NewReader(buf))
}
