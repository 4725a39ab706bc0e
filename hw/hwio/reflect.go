package hwio

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

type regInfo struct {
	offset uint16
	regPtr any
}

type tagOpts struct {
	bank      int
	offset    uint16
	hasOffset bool
	size      int
	vsize     int
	reset     uint64
	rwmask    uint64
	hasRWMask bool
	rcb       string
	wcb       string
	pcb       string
	flags     RWFlags
}

func parseTag(field, tag string) (tagOpts, error) {
	opts := tagOpts{}
	cbName := func(prefix, val string) string {
		if val != "" {
			return val
		}
		return prefix + strings.ToUpper(field)
	}

	for _, opt := range strings.Split(tag, ",") {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		var err error
		var n uint64
		switch key {
		case "":
			continue
		case "bank", "offset", "size", "vsize", "reset", "rwmask":
			n, err = strconv.ParseUint(val, 0, 64)
			if err != nil {
				return opts, errors.Wrapf(err, "field %s: invalid %s", field, key)
			}
		}
		switch key {
		case "bank":
			opts.bank = int(n)
		case "offset":
			if n > 0xffff {
				return opts, errors.Errorf("field %s: offset out of range: %#x", field, n)
			}
			opts.offset, opts.hasOffset = uint16(n), true
		case "size":
			opts.size = int(n)
		case "vsize":
			opts.vsize = int(n)
		case "reset":
			opts.reset = n
		case "rwmask":
			opts.rwmask, opts.hasRWMask = n, true
		case "rcb":
			opts.rcb = cbName("Read", val)
		case "wcb":
			opts.wcb = cbName("Write", val)
		case "pcb":
			opts.pcb = cbName("Peek", val)
		case "readonly":
			opts.flags |= ReadOnlyFlag
		case "writeonly":
			opts.flags |= WriteOnlyFlag
		default:
			return opts, errors.Errorf("field %s: unknown hwio option %q", field, key)
		}
	}
	return opts, nil
}

// method looks up a callback on the bank and converts it to the wanted
// function type.
func method(bank reflect.Value, name string, typ reflect.Type) (reflect.Value, error) {
	m := bank.MethodByName(name)
	if !m.IsValid() {
		return m, errors.Errorf("missing method %s on %s", name, bank.Type())
	}
	if !m.Type().ConvertibleTo(typ) {
		return m, errors.Errorf("method %s has type %s, want %s", name, m.Type(), typ)
	}
	return m.Convert(typ), nil
}

func bind[F any](bank reflect.Value, name string, dst *F) error {
	if name == "" {
		return nil
	}
	m, err := method(bank, name, reflect.TypeFor[F]())
	if err != nil {
		return err
	}
	*dst = m.Interface().(F)
	return nil
}

// InitRegs initializes all the hwio fields of a register bank (a pointer to a
// structure) according to their "hwio" struct tag:
//
//	size=N          Physical size of a Mem buffer, or range size of a Device.
//	vsize=N         Virtual size of a Mem (mirrored).
//	reset=N         Initial value of a register.
//	rwmask=N        Bits that can be written (RoMask is its complement).
//	rcb[=Name]      Read callback; defaults to "Read" + uppercase field name.
//	wcb[=Name]      Write callback; defaults to "Write" + uppercase field name.
//	pcb[=Name]      Peek callback; defaults to "Peek" + uppercase field name.
//	readonly        Writes are ignored (and logged).
//	writeonly       Reads return 0 (and are logged).
func InitRegs(bank any) error {
	pval := reflect.ValueOf(bank)
	if pval.Kind() != reflect.Pointer || pval.Elem().Kind() != reflect.Struct {
		return errors.Errorf("InitRegs: want pointer to struct, got %T", bank)
	}
	val := pval.Elem()
	typ := val.Type()

	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		opts, err := parseTag(f.Name, tag)
		if err != nil {
			return err
		}

		switch ptr := val.Field(i).Addr().Interface().(type) {
		case *Reg8:
			ptr.Name = f.Name
			ptr.Value = uint8(opts.reset)
			if opts.hasRWMask {
				ptr.RoMask = ^uint8(opts.rwmask)
			}
			ptr.Flags = opts.flags
			if err := bind(pval, opts.rcb, &ptr.ReadCb); err != nil {
				return err
			}
			if err := bind(pval, opts.wcb, &ptr.WriteCb); err != nil {
				return err
			}
			if err := bind(pval, opts.pcb, &ptr.PeekCb); err != nil {
				return err
			}
		case *Reg16:
			ptr.Name = f.Name
			ptr.Value = uint16(opts.reset)
			if opts.hasRWMask {
				ptr.RoMask = ^uint16(opts.rwmask)
			}
			ptr.Flags = opts.flags
			if err := bind(pval, opts.rcb, &ptr.ReadCb); err != nil {
				return err
			}
			if err := bind(pval, opts.wcb, &ptr.WriteCb); err != nil {
				return err
			}
			if err := bind(pval, opts.pcb, &ptr.PeekCb); err != nil {
				return err
			}
		case *Device:
			if opts.size <= 0 {
				return errors.Errorf("field %s: device without size", f.Name)
			}
			ptr.Name = f.Name
			ptr.Size = opts.size
			ptr.Flags = opts.flags
			if err := bind(pval, opts.rcb, &ptr.ReadCb); err != nil {
				return err
			}
			if err := bind(pval, opts.wcb, &ptr.WriteCb); err != nil {
				return err
			}
			if err := bind(pval, opts.pcb, &ptr.PeekCb); err != nil {
				return err
			}
		case *Mem:
			if opts.size <= 0 {
				return errors.Errorf("field %s: memory without size", f.Name)
			}
			ptr.Name = f.Name
			ptr.Data = make([]byte, opts.size)
			ptr.VSize = max(opts.vsize, opts.size)
			if opts.flags&ReadOnlyFlag != 0 {
				ptr.Flags |= MemFlag8ReadOnly
			}
			if err := bind(pval, opts.wcb, &ptr.WriteCb); err != nil {
				return err
			}
		default:
			return errors.Errorf("field %s: unsupported hwio type %s", f.Name, f.Type)
		}
	}
	return nil
}

// MustInitRegs is like InitRegs but panics on error.
func MustInitRegs(bank any) {
	if err := InitRegs(bank); err != nil {
		panic(fmt.Errorf("hwio: %w", err))
	}
}

// bankGetRegs returns the registers of bank which are tagged with an offset
// and belong to bankNum, in field order.
func bankGetRegs(bank any, bankNum int) ([]regInfo, error) {
	pval := reflect.ValueOf(bank)
	if pval.Kind() != reflect.Pointer || pval.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("MapBank: want pointer to struct, got %T", bank)
	}
	val := pval.Elem()
	typ := val.Type()

	var regs []regInfo
	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		opts, err := parseTag(f.Name, tag)
		if err != nil {
			return nil, err
		}
		if !opts.hasOffset || opts.bank != bankNum {
			continue
		}
		regs = append(regs, regInfo{
			offset: opts.offset,
			regPtr: val.Field(i).Addr().Interface(),
		})
	}
	return regs, nil
}
