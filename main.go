package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"

	"golang.org/x/term"

	"emucore/emu"
)

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case runMode:
		runMain(cli.Run)
	case stateMode:
		stateMain(cli.State)
	case verifyMode:
		verifyMain(cli.Verify)
	case disasmMode:
		disasmMain(cli.Disasm)
	case configMode:
		checkf(emu.SaveConfig(cli.Config.Out, emu.DefaultConfig()), "failed to write config")
	case versionMode:
		printVersion()
	}
}

func loadConfig(path string) emu.Config {
	if path == "" {
		return emu.DefaultConfig()
	}
	cfg, err := emu.LoadConfig(path)
	checkf(err, "failed to load machine description")
	return cfg
}

func openEmu(path string) *emu.Emulator {
	e, err := emu.New(loadConfig(path))
	checkf(err, "failed to build machine")
	return e
}

func runMain(args Run) {
	e := openEmu(args.ConfigPath)
	defer e.Close()

	if args.Load != "" {
		checkf(e.LoadState(args.Load), "failed to load state")
	}
	if args.LoadJSON != "" {
		f, err := os.Open(args.LoadJSON)
		checkf(err, "failed to open presets")
		err = e.ApplyPresets(f)
		f.Close()
		checkf(err, "failed to apply presets")
	}
	if args.Trace != nil {
		defer args.Trace.Close()
		e.SetTraceOutput(args.Trace)
	}

	intChan := make(chan os.Signal, 1)
	signal.Notify(intChan, os.Interrupt)
	defer signal.Stop(intChan)
	go func() {
		if _, ok := <-intChan; ok {
			e.Stop()
		}
	}()

	err := e.RunCycles(args.Cycles)
	e.SetTraceOutput(nil)
	checkf(err, "emulation stopped")
	if e.Stopped() {
		fmt.Fprintf(os.Stderr, "interrupted after %d cycles\n", e.Cycles())
	}

	if args.Save != "" {
		checkf(e.SaveState(args.Save), "failed to save state")
	}
	if args.Dump != nil {
		defer args.Dump.Close()
		checkf(e.Dump(args.Dump, jsonIndent(args.Dump.w)), "failed to dump state")
	}
}

func stateMain(args State) {
	e := openEmu(args.ConfigPath)
	defer e.Close()

	if args.Load != "" {
		checkf(e.LoadState(args.Load), "failed to load state")
	}
	checkf(e.Dump(os.Stdout, jsonIndent(os.Stdout)), "failed to dump state")
}

// jsonIndent indents JSON written to a terminal.
func jsonIndent(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return 2
	}
	return 0
}

func verifyMain(args Verify) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := loadConfig(args.ConfigPath)
	checkf(emu.Verify(ctx, cfg, args.Cycles, args.Runs), "verification failed")
	fmt.Printf("%s: %d runs of %d cycles match\n", cfg.Machine.Name, max(args.Runs, 1), args.Cycles)
}

func disasmMain(args Disasm) {
	e := openEmu(args.ConfigPath)
	defer e.Close()

	checkf(e.Disasm(os.Stdout, uint16(args.Addr), args.Count), "failed to disassemble")
}

func printVersion() {
	version := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}
	fmt.Println("emucore", version)
}
