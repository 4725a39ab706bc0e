package log

import (
	"fmt"
	"strconv"
	"strings"
)

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindStringer
	kindHex
	kindInt
	kindUint
	kindBool
	kindError
)

// field is a key/value pair of an EntryZ. It is only formatted when the
// entry is emitted.
type field struct {
	key   string
	kind  fieldKind
	width uint8 // hex digits
	str   string
	num   uint64
	iface any
}

func (f *field) value() string {
	switch f.kind {
	case kindString:
		return f.str
	case kindStringer:
		return f.iface.(fmt.Stringer).String()
	case kindHex:
		s := strconv.FormatUint(f.num, 16)
		if pad := int(f.width) - len(s); pad > 0 {
			s = strings.Repeat("0", pad) + s
		}
		return s
	case kindInt:
		return strconv.FormatInt(int64(f.num), 10)
	case kindUint:
		return strconv.FormatUint(f.num, 10)
	case kindBool:
		return strconv.FormatBool(f.num != 0)
	case kindError:
		if f.iface == nil {
			return "<nil>"
		}
		return f.iface.(error).Error()
	}
	return ""
}
