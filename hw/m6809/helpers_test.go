package m6809

import (
	"testing"

	"emucore/hw/hwio"
	"emucore/hw/machine"
)

const testClock = 1_000_000

// vectors used by all tests: reset at 1000, IRQ 3000, FIRQ 3100, NMI 3200,
// SWI 3300, SWI2 3400, SWI3 3500.
const vectors = "fff2: 35 00 34 00 31 00 30 00 33 00 32 00 10 00\n"

// newTestCPU creates a started 6809 over 64KiB of RAM loaded with a hex
// dump, after the interrupt vectors.
func newTestCPU(tb testing.TB, dump string) (*machine.Machine, *CPU, []byte) {
	tb.Helper()

	ram := make([]byte, 0x10000)
	if err := hwio.LoadHexDump(ram, vectors+dump); err != nil {
		tb.Fatalf("load dump: %s", err)
	}
	bus := hwio.NewTable("cpu")
	bus.MapMemorySlice(0x0000, 0xffff, ram, false)

	m := machine.New("test", testClock)
	cpu := New("maincpu", testClock, bus)
	m.MustAdd(nil, cpu)
	if err := m.Start(); err != nil {
		tb.Fatalf("start: %s", err)
	}
	return m, cpu, ram
}

func loadCPUWith(tb testing.TB, dump string) (*CPU, []byte) {
	tb.Helper()
	_, cpu, ram := newTestCPU(tb, dump)
	return cpu, ram
}

// step executes one instruction, or takes one interrupt, and returns the
// number of cycles it took. While waiting in CWAI or SYNC, it burns a single
// cycle.
func step(cpu *CPU) int64 {
	cpu.ICount = 1
	cpu.ExecuteRun()
	return 1 - cpu.ICount
}

func run(cpu *CPU, n int) {
	for range n {
		step(cpu)
	}
}

type regState struct {
	A, B   uint8
	DP, CC uint8
	X, Y   uint16
	U, S   uint16
	PC     uint16
}

func regsOf(cpu *CPU) regState {
	return regState{
		A: cpu.A, B: cpu.B, DP: cpu.DP, CC: cpu.CC,
		X: cpu.X, Y: cpu.Y, U: cpu.U, S: cpu.S,
		PC: cpu.PC,
	}
}

func wantMem(tb testing.TB, ram []byte, addr uint16, want ...byte) {
	tb.Helper()
	for i, w := range want {
		if got := ram[int(addr)+i]; got != w {
			tb.Errorf("mem[%04X] = %02X, want %02X", int(addr)+i, got, w)
		}
	}
}

func wantPC(tb testing.TB, cpu *CPU, want uint16) {
	tb.Helper()
	if cpu.PC != want {
		tb.Errorf("PC = %04X, want %04X", cpu.PC, want)
	}
}

func wantCycles(tb testing.TB, got, want int64) {
	tb.Helper()
	if got != want {
		tb.Errorf("took %d cycles, want %d", got, want)
	}
}
