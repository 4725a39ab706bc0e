package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"emucore/emu/log"
)

type mode byte

const (
	runMode     mode = iota // Run a machine
	stateMode               // Dump the machine state as JSON
	verifyMode              // Check the emulation is deterministic
	disasmMode              // Disassemble memory
	configMode              // Write the default machine description
	versionMode             // Show version
)

type (
	CLI struct {
		Run     Run     `cmd:"" help:"Run a machine."`
		State   State   `cmd:"" help:"Dump the state of a machine as JSON."`
		Verify  Verify  `cmd:"" help:"Check that emulating a machine is deterministic."`
		Disasm  Disasm  `cmd:"" help:"Disassemble the memory of a machine."`
		Config  Config  `cmd:"" help:"Write the default machine description."`
		Version Version `cmd:"" help:"Show emucore version."`

		Log logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`

		mode mode
	}

	Run struct {
		ConfigPath string `arg:"" name:"config" help:"${config_help}" optional:"" type:"existingfile"`

		Cycles   uint64   `name:"cycles" help:"CPU cycles to run." default:"1000000"`
		Trace    *outfile `name:"trace" help:"Write CPU trace log." placeholder:"FILE|stdout|stderr"`
		Save     string   `name:"save" help:"Write a save state when done." type:"path"`
		Load     string   `name:"load" help:"Start from a save state." type:"existingfile"`
		LoadJSON string   `name:"load-json" help:"${presets_help}" type:"existingfile"`
		Dump     *outfile `name:"dump" help:"Write the final state as JSON." placeholder:"FILE|stdout|stderr"`
	}

	State struct {
		ConfigPath string `arg:"" name:"config" help:"${config_help}" optional:"" type:"existingfile"`

		Load string `name:"load" help:"Dump a save state." type:"existingfile"`
	}

	Verify struct {
		ConfigPath string `arg:"" name:"config" help:"${config_help}" optional:"" type:"existingfile"`

		Cycles uint64 `name:"cycles" help:"CPU cycles per run." default:"1000000"`
		Runs   int    `name:"runs" help:"Number of concurrent runs." default:"4"`
	}

	Disasm struct {
		ConfigPath string `arg:"" name:"config" help:"${config_help}" optional:"" type:"existingfile"`

		Addr  address `name:"addr" help:"Start address." default:"0"`
		Count int     `name:"count" help:"Number of instructions." default:"16"`
	}

	Config struct {
		Out string `arg:"" name:"out" help:"Output file." type:"path"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"config_help":  "Machine description (TOML). The built-in test bench if omitted.",
	"presets_help": "Set registers from a JSON file, such as {\":cpu\": {\"PC\": \"0x1000\"}}.",
	"log_help":     "Enable logging for specified modules.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("emucore"),
		kong.Description("Cycle-accurate emulation of 8-bit boards."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch strings.Fields(ctx.Command())[0] {
	case "state":
		cfg.mode = stateMode
	case "verify":
		cfg.mode = verifyMode
	case "disasm":
		cfg.mode = disasmMode
	case "config":
		cfg.mode = configMode
	case "version":
		cfg.mode = versionMode
	default:
		cfg.mode = runMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if strings.HasPrefix(ctx.Command(), "run") || strings.HasPrefix(ctx.Command(), "verify") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask log.ModuleMask

// Decode enables debug logging for a comma-separated list of modules.
//
// Implements kong.MapperValue interface.
func (lm *logModMask) Decode(ctx *kong.DecodeContext) error {
	var list string
	if err := ctx.Scan.PopValueInto("modules", &list); err != nil {
		return err
	}
	mask, off, err := parseLogModules(list)
	if err != nil {
		return err
	}
	if off {
		log.Disable()
		return nil
	}
	*lm = logModMask(mask)
	log.EnableDebugModules(mask)
	return nil
}

// parseLogModules parses a list of module names, "all" or "no". off
// reports that logging must be disabled altogether.
func parseLogModules(list string) (mask log.ModuleMask, off bool, err error) {
	var all bool
	for _, name := range strings.Split(list, ",") {
		switch name = strings.TrimSpace(name); name {
		case "all":
			all = true
		case "no":
			off = true
		case "":
		default:
			mod, ok := log.ModuleByName(name)
			if !ok {
				return 0, false, fmt.Errorf("unknown log module %s", name)
			}
			mask |= mod.Mask()
		}
	}
	switch {
	case off && all:
		return 0, false, fmt.Errorf("cannot use 'all' and 'no' together")
	case off && mask != 0:
		return 0, false, fmt.Errorf("cannot combine 'no' with other log modules")
	case all:
		mask = log.ModuleMaskAll
	}
	return mask, off, nil
}

// address is a 16-bit address in Go integer syntax (0xf000, 61440).
type address uint16

// Implements kong.MapperValue interface.
func (a *address) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("address", &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid address %q", s)
	}
	*a = address(v)
	return nil
}

// outfile is an output flag: a file, or stdout or stderr.
type outfile struct {
	w    io.Writer
	name string
	f    *os.File // nil for the standard streams
}

// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	if err := ctx.Scan.PopValueInto("file", &f.name); err != nil {
		return err
	}
	switch f.name {
	case "stdout", "-":
		f.w = os.Stdout
	case "stderr":
		f.w = os.Stderr
	default:
		fd, err := os.Create(f.name)
		if err != nil {
			return err
		}
		f.w, f.f = fd, fd
	}
	return nil
}

func (f *outfile) String() string              { return f.name }
func (f *outfile) Write(p []byte) (int, error) { return f.w.Write(p) }

func (f *outfile) Close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
