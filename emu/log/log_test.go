package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(discard{})
	})
	return &buf
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestModuleGating(t *testing.T) {
	buf := captureOutput(t)

	mod := NewModule("gating")
	mod.DebugZ("hidden").String("k", "v").End()
	if buf.Len() != 0 {
		t.Fatalf("debug entry emitted for disabled module: %q", buf.String())
	}

	EnableDebugModules(mod.Mask())
	defer DisableDebugModules(mod.Mask())

	mod.DebugZ("shown").Hex16("pc", 0x1234).Bool("ok", true).End()
	out := buf.String()
	for _, want := range []string{"shown", "pc=1234", "ok=true", "_mod=gating"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestWarnAlwaysEnabled(t *testing.T) {
	buf := captureOutput(t)

	ModCPU.WarnZ("illegal").Hex8("op", 0x01).Error("err", errors.New("boom")).End()
	out := buf.String()
	if !strings.Contains(out, "op=01") || !strings.Contains(out, "err=boom") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNilEntryZ(t *testing.T) {
	var z *EntryZ
	// must not panic
	z.String("a", "b").Hex8("c", 1).Uint64("d", 2).End()
}

type timeCtx struct{ now uint64 }

func (c *timeCtx) AddLogContext(z *EntryZ) { z.Uint64("time", c.now) }

func TestLogContext(t *testing.T) {
	buf := captureOutput(t)

	ctx := &timeCtx{now: 42}
	AddContext(ctx)
	defer RemoveContext(ctx)

	ModEmu.ErrorZ("with context").End()
	if !strings.Contains(buf.String(), "time=42") {
		t.Errorf("context field missing from %q", buf.String())
	}
}

func TestModuleByName(t *testing.T) {
	mod, ok := ModuleByName("SCHED")
	if !ok || mod != ModSched {
		t.Errorf("ModuleByName(SCHED) = %v, %v", mod, ok)
	}
	if _, ok := ModuleByName("nope"); ok {
		t.Errorf("ModuleByName(nope) found a module")
	}
}
