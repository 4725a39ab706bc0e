package hwdefs

// LineState is the logical state driven onto an input line.
type LineState uint8

//go:generate go tool stringer -type=LineState -trimprefix=Line

const (
	LineClear LineState = iota
	LineAssert
)

// Bool reports whether the line is asserted.
func (s LineState) Bool() bool { return s != LineClear }

func StateOf(asserted bool) LineState {
	if asserted {
		return LineAssert
	}
	return LineClear
}

// Input line numbers shared by all execution cores. Cores with more lines
// (6809 FIRQ) number them from InputLineIRQ0.
const (
	InputLineIRQ0 = 0
	InputLineIRQ1 = 1
	InputLineNMI  = 32
	InputLineHalt = 33
)

const (
	SoftReset = true
	HardReset = false
)
