package irq

import (
	"fmt"
	"math/bits"
	"strings"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
)

// Sources is a set of merger inputs, one bit per input.
type Sources uint32

func (s Sources) Has(i int) bool { return s&(1<<i) != 0 }
func (s Sources) Count() int     { return bits.OnesCount32(uint32(s)) }

func (s Sources) String() string {
	if s == 0 {
		return "none"
	}
	var sb strings.Builder
	for i := range 32 {
		if s.Has(i) {
			if sb.Len() > 0 {
				sb.WriteByte('|')
			}
			fmt.Fprintf(&sb, "%d", i)
		}
	}
	return sb.String()
}

// Merger combines several interrupt sources into one line: the output is
// asserted while at least one input is.
type Merger struct {
	device.Device

	names  []string
	inputs Sources
	out    *Line
}

// NewMerger creates a merger with one input per name.
func NewMerger(tag string, inputs []string, pol Polarity) *Merger {
	if len(inputs) > 32 {
		panic(fmt.Sprintf("irq: merger %s has too many inputs (%d)", tag, len(inputs)))
	}
	m := &Merger{
		names: inputs,
		out:   NewLine(tag, pol, Level),
	}
	m.Init(tag, "irq_merger", 0)
	return m
}

func (m *Merger) Start(ctx device.Context) error {
	m.SaveItem("inputs", &m.inputs)
	return nil
}

func (m *Merger) PostLoad() {
	m.out.Restore(hwdefs.StateOf(m.inputs != 0))
}

// Output is the merged line.
func (m *Merger) Output() *Line { return m.out }

// Sources returns the asserted inputs.
func (m *Merger) Sources() Sources { return m.inputs }

// InputName returns the name of input i.
func (m *Merger) InputName(i int) string { return m.names[i] }

func (m *Merger) NumInputs() int { return len(m.names) }

func (m *Merger) InterruptLines() []device.Signal {
	return []device.Signal{m.out}
}

// SetInput updates the contribution of input i.
func (m *Merger) SetInput(i int, state hwdefs.LineState) {
	if i < 0 || i >= len(m.names) {
		m.Fatalf("invalid input %d", i)
	}
	old := m.inputs
	if state.Bool() {
		m.inputs |= 1 << i
	} else {
		m.inputs &^= 1 << i
	}
	if old == m.inputs {
		return
	}
	log.ModIRQ.DebugZ("merger input").
		String("tag", m.Tag()).
		String("input", m.names[i]).
		Stringer("state", state).
		Stringer("sources", m.inputs).
		End()
	m.out.Set(hwdefs.StateOf(m.inputs != 0))
}

// Input returns a sink driving input i, for Line.Connect.
func (m *Merger) Input(i int) Sink {
	return func(state hwdefs.LineState) { m.SetInput(i, state) }
}
