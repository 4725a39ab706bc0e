// Package irq models interrupt lines and wire-OR mergers.
package irq

import (
	"emucore/emu/log"
	"emucore/hw/hwdefs"
)

type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

type Trigger uint8

const (
	Level Trigger = iota
	Edge
)

// Sink receives line state changes.
type Sink func(state hwdefs.LineState)

// Line is an interrupt output. Connected sinks are notified only when the
// logical state changes.
type Line struct {
	name     string
	polarity Polarity
	trigger  Trigger

	state hwdefs.LineState
	sinks []Sink
	edges uint64
}

func NewLine(name string, pol Polarity, trig Trigger) *Line {
	return &Line{name: name, polarity: pol, trigger: trig}
}

func (l *Line) Name() string            { return l.name }
func (l *Line) Polarity() Polarity      { return l.polarity }
func (l *Line) Trigger() Trigger        { return l.trigger }
func (l *Line) State() hwdefs.LineState { return l.state }
func (l *Line) Asserted() bool          { return l.state == hwdefs.LineAssert }
func (l *Line) Notifications() uint64   { return l.edges }

// Level returns the electrical level of the line.
func (l *Line) Level() bool {
	return l.Asserted() != (l.polarity == ActiveLow)
}

// Connect adds a sink. If the line is asserted, the sink is notified
// immediately.
func (l *Line) Connect(sink Sink) {
	l.sinks = append(l.sinks, sink)
	if l.Asserted() {
		sink(hwdefs.LineAssert)
	}
}

// Set drives the line.
func (l *Line) Set(state hwdefs.LineState) {
	if state == l.state {
		return
	}
	l.state = state
	l.edges++
	log.ModIRQ.DebugZ("line").
		String("name", l.name).
		Stringer("state", state).
		End()
	for _, sink := range l.sinks {
		sink(state)
	}
}

// SetBool drives the line from a boolean, true meaning asserted.
func (l *Line) SetBool(asserted bool) {
	l.Set(hwdefs.StateOf(asserted))
}

// Restore sets the state without notifying sinks, after a state load.
func (l *Line) Restore(state hwdefs.LineState) {
	l.state = state
}
