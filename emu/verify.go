package emu

import (
	"bytes"
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"emucore/emu/log"
)

// ErrNondeterministic is returned by Verify when two runs diverge.
var ErrNondeterministic = errors.New("emulation is not deterministic")

// Verify checks that emulating cfg is deterministic. It runs runs boards
// concurrently for cycles CPU cycles each and compares their final save
// images. It then checks that saving, disturbing the machine and loading
// the state back continues exactly as an uninterrupted run.
func Verify(ctx context.Context, cfg Config, cycles uint64, runs int) error {
	cfg = quiet(cfg)
	runs = max(runs, 1)

	images := make([][]byte, runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range runs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			img, err := runImage(cfg, cycles)
			if err != nil {
				return errors.Wrapf(err, "run %d", i)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := 1; i < runs; i++ {
		if off, same := compareImages(images[0], images[i]); !same {
			return errors.Wrapf(ErrNondeterministic, "run %d differs from run 0 at byte %d", i, off)
		}
	}
	log.ModEmu.InfoZ("concurrent runs match").
		Int("runs", runs).
		Uint64("cycles", cycles).
		Int("state_bytes", len(images[0])).
		End()

	return verifyRoundTrip(cfg, cycles, images[0])
}

// quiet disables the serial outputs, which would be written to by every run.
func quiet(cfg Config) Config {
	out := cfg
	out.SCI = append([]SCIConfig(nil), cfg.SCI...)
	for i := range out.SCI {
		out.SCI[i].Output = ""
	}
	out.Slot = append([]SlotConfig(nil), cfg.Slot...)
	for i := range out.Slot {
		out.Slot[i].Cards = append([]CardConfig(nil), cfg.Slot[i].Cards...)
		for j := range out.Slot[i].Cards {
			out.Slot[i].Cards[j].Output = ""
		}
	}
	return out
}

func runImage(cfg Config, cycles uint64) ([]byte, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	if err := e.RunCycles(cycles); err != nil {
		return nil, err
	}
	return snapshot(e)
}

func snapshot(e *Emulator) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.M.SaveState(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func verifyRoundTrip(cfg Config, cycles uint64, want []byte) error {
	e, err := New(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	half := cycles / 2
	if err := e.RunCycles(half); err != nil {
		return err
	}
	mid, err := snapshot(e)
	if err != nil {
		return err
	}

	// disturb the machine before restoring
	e.Reset(false)
	if err := e.RunCycles(half/2 + 1); err != nil {
		return err
	}
	if err := e.M.LoadState(bytes.NewReader(mid)); err != nil {
		return err
	}
	if err := e.RunCycles(cycles - half); err != nil {
		return err
	}
	got, err := snapshot(e)
	if err != nil {
		return err
	}
	if off, same := compareImages(want, got); !same {
		return errors.Wrapf(ErrNondeterministic, "restored run differs at byte %d", off)
	}
	return nil
}

// compareImages returns the offset of the first difference.
func compareImages(a, b []byte) (int, bool) {
	if bytes.Equal(a, b) {
		return 0, true
	}
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i, false
		}
	}
	return n, false
}
