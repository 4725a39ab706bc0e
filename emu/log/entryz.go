package log

import (
	"fmt"
	"sync"

	"gopkg.in/Sirupsen/logrus.v0"
)

// EntryZ is a zero-allocation log entry builder. A nil *EntryZ is returned
// when the level is disabled for the module, and every method is a no-op on
// a nil receiver, so call chains cost almost nothing when logging is off.
type EntryZ struct {
	mod Module
	lvl Level
	msg string

	fields  [16]field
	nfields int
}

var entryzPool = sync.Pool{
	New: func() any { return new(EntryZ) },
}

func NewEntryZ() *EntryZ {
	z := entryzPool.Get().(*EntryZ)
	z.nfields = 0
	return z
}

func (z *EntryZ) add(f field) *EntryZ {
	if z == nil || z.nfields == len(z.fields) {
		return z
	}
	z.fields[z.nfields] = f
	z.nfields++
	return z
}

func (z *EntryZ) String(key, val string) *EntryZ {
	return z.add(field{key: key, kind: kindString, str: val})
}

func (z *EntryZ) Stringer(key string, val fmt.Stringer) *EntryZ {
	return z.add(field{key: key, kind: kindStringer, iface: val})
}

func (z *EntryZ) Hex8(key string, val uint8) *EntryZ {
	return z.add(field{key: key, kind: kindHex, width: 2, num: uint64(val)})
}

func (z *EntryZ) Hex16(key string, val uint16) *EntryZ {
	return z.add(field{key: key, kind: kindHex, width: 4, num: uint64(val)})
}

func (z *EntryZ) Int(key string, val int) *EntryZ {
	return z.add(field{key: key, kind: kindInt, num: uint64(val)})
}

func (z *EntryZ) Uint8(key string, val uint8) *EntryZ   { return z.Uint64(key, uint64(val)) }
func (z *EntryZ) Uint16(key string, val uint16) *EntryZ { return z.Uint64(key, uint64(val)) }

func (z *EntryZ) Uint64(key string, val uint64) *EntryZ {
	return z.add(field{key: key, kind: kindUint, num: val})
}

func (z *EntryZ) Bool(key string, val bool) *EntryZ {
	f := field{key: key, kind: kindBool}
	if val {
		f.num = 1
	}
	return z.add(f)
}

func (z *EntryZ) Error(key string, err error) *EntryZ {
	return z.add(field{key: key, kind: kindError, iface: err})
}

// End emits the entry and recycles it. The entry must not be used afterwards.
func (z *EntryZ) End() {
	if z == nil {
		return
	}
	if disabled {
		entryzPool.Put(z)
		return
	}

	addContexts(z)

	fields := make(logrus.Fields, z.nfields+1)
	fields["_mod"] = modNames[z.mod]
	for i := range z.fields[:z.nfields] {
		fields[z.fields[i].key] = z.fields[i].value()
	}
	entry := logrus.StandardLogger().WithFields(fields)
	msg, lvl := z.msg, z.lvl
	entryzPool.Put(z)

	switch lvl {
	case DebugLevel:
		entry.Debug(msg)
	case InfoLevel:
		entry.Info(msg)
	case WarnLevel:
		entry.Warn(msg)
	case ErrorLevel:
		entry.Error(msg)
	case FatalLevel:
		entry.Fatal(msg)
	case PanicLevel:
		entry.Panic(msg)
	}
}
