package device

import (
	"fmt"
)

// FatalError terminates the emulation session. It is raised with Fatalf and
// recovered at the machine boundary.
type FatalError struct {
	Tag   string
	PC    uint16
	HasPC bool
	Msg   string
}

func (e *FatalError) Error() string {
	if e.HasPC {
		return fmt.Sprintf("%s (pc=%04X): %s", e.Tag, e.PC, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Msg)
}

func fatalf(d *Device, format string, args ...any) *FatalError {
	return &FatalError{Tag: d.Tag(), Msg: fmt.Sprintf(format, args...)}
}

// Fatalf aborts the emulation session.
func (d *Device) Fatalf(format string, args ...any) {
	panic(fatalf(d, format, args...))
}

// FatalfPC aborts the emulation session, reporting pc as the program counter.
func (d *Device) FatalfPC(pc uint16, format string, args ...any) {
	err := fatalf(d, format, args...)
	err.PC, err.HasPC = pc, true
	panic(err)
}

// Recover converts a FatalError panic into an error stored in *errp. Other
// panics are re-raised. It must be deferred directly.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ferr, ok := r.(*FatalError); ok {
		*errp = ferr
		return
	}
	panic(r)
}
