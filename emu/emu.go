// Package emu builds machines from their TOML description and runs them.
package emu

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/sched"
)

// Number of CPU cycles run between two checks of the stop flag.
const runChunk = 10_000

// Emulator is a running session on a board.
type Emulator struct {
	*Board

	clock sched.Clock

	// accessed concurrently by the emulation loop and signal handlers.
	quit atomic.Bool
}

// New builds the board described by cfg.
func New(cfg Config) (*Emulator, error) {
	b, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	e := &Emulator{
		Board: b,
		clock: b.M.Scheduler().Clock(b.CPU.Dev().ClockHz()),
	}
	log.AddContext(b.M)
	return e, nil
}

// RunCycles runs the machine for n CPU cycles, or until Stop is called. A
// fatal emulation error stops the run and is returned.
func (e *Emulator) RunCycles(n uint64) error {
	for n > 0 && !e.quit.Load() {
		step := min(n, runChunk)
		if err := e.M.Run(e.clock.Duration(step)); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Stop makes RunCycles return at the next chunk boundary. It is safe to
// call from another goroutine.
func (e *Emulator) Stop()         { e.quit.Store(true) }
func (e *Emulator) Stopped() bool { return e.quit.Load() }

func (e *Emulator) Reset(soft bool) {
	e.M.Reset(soft)
}

// Cycles returns the number of CPU cycles elapsed since power on.
func (e *Emulator) Cycles() uint64 {
	return e.clock.Cycles(e.M.Now())
}

// SaveState writes a save state file.
func (e *Emulator) SaveState(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "save state")
	}
	if err := e.M.SaveState(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "save state %s", path)
	}
	return f.Close()
}

// LoadState restores a save state file written by SaveState, for the same
// machine description.
func (e *Emulator) LoadState(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "load state")
	}
	defer f.Close()
	if err := e.M.LoadState(f); err != nil {
		return errors.Wrapf(err, "load state %s", path)
	}
	log.ModEmu.InfoZ("state loaded").
		String("path", path).
		Uint64("cycles", e.Cycles()).
		End()
	return nil
}

// Disasm writes count instructions starting at addr.
func (e *Emulator) Disasm(w io.Writer, addr uint16, count int) error {
	for range count {
		text, n := e.CPU.Disasm(addr)
		if _, err := fmt.Fprintf(w, "%04X  %s\n", addr, text); err != nil {
			return err
		}
		addr += uint16(max(n, 1))
	}
	return nil
}

// SetTraceOutput enables the execution trace of the CPU. A nil writer
// disables it.
func (e *Emulator) SetTraceOutput(w io.Writer) {
	e.CPU.SetTraceOutput(w)
}

// Close ends the session.
func (e *Emulator) Close() error {
	log.RemoveContext(e.M)
	return e.Board.Close()
}
