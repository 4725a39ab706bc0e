package m6502

import (
	"testing"

	"emucore/hw/hwio"
	"emucore/hw/machine"
)

const testClock = 1_000_000

// loadCPUWith creates a started 6502 over 64KiB of RAM loaded with a hex
// dump. The reset cycles are already burnt.
func loadCPUWith(tb testing.TB, dump string) (*CPU, []byte) {
	tb.Helper()

	ram := make([]byte, 0x10000)
	if err := hwio.LoadHexDump(ram, dump); err != nil {
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
	cpu.ICount = resetCycles
	cpu.ExecuteRun()
	if cpu.ICount != 0 {
		tb.Fatalf("reset burnt %d cycles, want %d", resetCycles-cpu.ICount, resetCycles)
	}
	return cpu, ram
}

// step executes one instruction (and the interrupt sequence that may follow
// it) and returns the number of cycles it took.
func step(cpu *CPU) int64 {
	cpu.ICount = 1
	cpu.ExecuteRun()
	return 1 - cpu.ICount
}

type regs struct {
	A, X, Y, SP uint8
	PC          uint16
	P           P
}

func regsOf(cpu *CPU) regs {
	return regs{A: cpu.A, X: cpu.X, Y: cpu.Y, SP: cpu.SP, PC: cpu.PC, P: cpu.P}
}

func wantMem(tb testing.TB, ram []byte, addr uint16, want ...byte) {
	tb.Helper()
	for i, w := range want {
		if got := ram[int(addr)+i]; got != w {
			tb.Errorf("mem[%04X] = %02X, want %02X", int(addr)+i, got, w)
		}
	}
}
