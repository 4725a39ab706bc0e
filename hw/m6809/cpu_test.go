package m6809

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/sched"
)

func TestReset(t *testing.T) {
	cpu, _ := loadCPUWith(t, "fffe: 12 34")
	want := regState{CC: ccI | ccF, PC: 0x1234}
	if diff := cmp.Diff(want, regsOf(cpu)); diff != "" {
		t.Errorf("registers after reset mismatch (-want +got):\n%s", diff)
	}

	cpu.DP = 0x20
	cpu.CC = 0
	cpu.Reset(hwdefs.SoftReset)
	if cpu.DP != 0 || cpu.CC != ccI|ccF || cpu.PC != 0x1234 {
		t.Errorf("soft reset: DP=%02X CC=%02X PC=%04X", cpu.DP, cpu.CC, cpu.PC)
	}
}

func TestCycles(t *testing.T) {
	tests := []struct {
		name string
		prog string
		want int64
	}{
		{"NOP", "12", 2},
		{"LDA imm", "86 12", 2},
		{"LDA dir", "96 10", 4},
		{"LDA ,X", "a6 84", 4},
		{"LDA 5-bit offset", "a6 01", 5},
		{"LDA ,X+", "a6 80", 6},
		{"LDA ,X++", "a6 81", 7},
		{"LDA n16,X", "a6 89 12 34", 8},
		{"LDA D,X", "a6 8b", 8},
		{"LDA [,X]", "a6 94", 7},
		{"LDA [n16]", "a6 9f 20 00", 9},
		{"LDA ext", "b6 20 00", 5},
		{"LDD imm", "cc 12 34", 3},
		{"LDY imm", "10 8e 12 34", 4},
		{"CMPU imm", "11 83 00 00", 5},
		{"BRA", "20 00", 3},
		{"LBRA", "16 00 00", 5},
		{"LBNE taken", "10 26 00 00", 6},
		{"LBEQ not taken", "10 27 00 00", 5},
		{"PSHS all", "34 ff", 17},
		{"PULS A,B", "35 06", 7},
		{"MUL", "3d", 11},
		{"SWI", "3f", 19},
		{"SWI2", "10 3f", 20},
		{"RTS", "39", 5},
		{"RTI partial", "3b", 6},
		{"JSR ext", "bd 20 00", 8},
		{"BSR", "8d 00", 7},
		{"EXG", "1e 89", 8},
		{"TFR", "1f 89", 6},
		{"ASL dir", "08 10", 6},
		{"INC ext", "7c 20 00", 7},
		{"LEAX n8,PCR", "30 8c 10", 5},
		{"LEAX n16,PCR", "30 8d 00 10", 9},
		{"CWAI", "3c ff", 20},
		{"SYNC", "13", 4},
		{"illegal", "01", 2},
		{"illegal prefixed", "10 01", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := loadCPUWith(t, "1000: "+tt.prog)
			wantCycles(t, step(cpu), tt.want)
		})
	}
}

func TestFlags(t *testing.T) {
	type accs struct{ A, B, CC uint8 }

	tests := []struct {
		name  string
		prog  string
		steps int
		want  accs
	}{
		{"ADDA half carry", "86 0f 8b 01", 2, accs{0x10, 0, ccH}},
		{"ADDA overflow", "86 7f 8b 01", 2, accs{0x80, 0, ccH | ccN | ccV}},
		{"SUBA borrow", "86 00 80 01", 2, accs{0xff, 0, ccN | ccC}},
		{"CMPA equal", "86 42 81 42", 2, accs{0x42, 0, ccZ}},
		{"NEGA 80", "86 80 40", 2, accs{0x80, 0, ccN | ccV | ccC}},
		{"NEGA 00", "40", 1, accs{0, 0, ccZ}},
		{"DAA", "86 19 8b 28 19", 3, accs{0x47, 0, ccH}},
		{"DAA decimal carry", "86 99 8b 01 19", 3, accs{0, 0, ccZ | ccC}},
		{"MUL", "86 0c c6 0b 3d", 3, accs{0x00, 0x84, ccC}},
		{"SEX negative", "c6 80 1d", 2, accs{0xff, 0x80, ccN}},
		{"ASLA overflow", "86 40 48", 2, accs{0x80, 0, ccN | ccV}},
		{"RORA through carry", "1a 01 86 02 46", 3, accs{0x81, 0, ccN}},
		{"COMB", "53", 1, accs{0, 0xff, ccN | ccC}},
		{"LSRA", "86 01 44", 2, accs{0, 0, ccZ | ccC}},
		{"INCA overflow", "86 7f 4c", 2, accs{0x80, 0, ccN | ccV}},
		{"DECB overflow", "c6 80 5a", 2, accs{0, 0x7f, ccV}},
		{"TSTA clears V", "1a 02 4d", 2, accs{0, 0, ccZ}},
		{"CLRB", "1a 0f 5f", 2, accs{0, 0, ccZ}},
		{"ADCA with carry", "1a 01 86 01 89 01", 3, accs{3, 0, 0}},
		{"SBCB with borrow", "1a 01 c6 05 c2 02", 3, accs{0, 2, 0}},
		{"SUBD", "cc 10 00 83 00 01", 2, accs{0x0f, 0xff, 0}},
		{"ADDD carry", "cc ff ff c3 00 01", 2, accs{0, 0, ccZ | ccC}},
		{"ANDA", "86 f0 84 0f", 2, accs{0, 0, ccZ}},
		{"BITA", "86 80 85 80", 2, accs{0x80, 0, ccN}},
		{"ORCC ANDCC", "1a ff 1c 0f", 2, accs{0, 0, ccN | ccZ | ccV | ccC}},
		{"CMPX borrow", "8e 00 01 8c 00 02", 2, accs{0, 0, ccN | ccC}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := loadCPUWith(t, "1000: "+tt.prog)
			cpu.CC = 0
			run(cpu, tt.steps)

			got := accs{cpu.A, cpu.B, cpu.CC}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExgTfr(t *testing.T) {
	const cc = ccI | ccF
	tests := []struct {
		name  string
		prog  string
		steps int
		want  regState
	}{
		{"TFR A,B", "86 12 1f 89", 2, regState{A: 0x12, B: 0x12, CC: cc, PC: 0x1004}},
		{"EXG X,Y", "8e 12 34 10 8e 56 78 1e 12", 3, regState{X: 0x5678, Y: 0x1234, CC: cc, PC: 0x1009}},
		{"TFR A,X", "86 12 1f 81", 2, regState{A: 0x12, X: 0x00ff, CC: cc, PC: 0x1004}},
		{"TFR X,A", "8e 12 34 1f 18", 2, regState{A: 0xff, X: 0x1234, CC: cc, PC: 0x1005}},
		{"TFR undefined,B", "1f 69", 1, regState{B: 0xff, CC: cc, PC: 0x1002}},
		{"TFR X,PC", "8e 20 00 1f 15", 2, regState{X: 0x2000, CC: cc, PC: 0x2000}},
		{"EXG A,DP", "86 12 1e 8b", 2, regState{DP: 0x12, CC: cc, PC: 0x1004}},
		{"TFR D,CC", "cc 12 34 1f 0a", 2, regState{A: 0x12, B: 0x34, CC: 0xff, PC: 0x1005}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := loadCPUWith(t, "1000: "+tt.prog)
			run(cpu, tt.steps)
			if diff := cmp.Diff(tt.want, regsOf(cpu)); diff != "" {
				t.Errorf("registers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIndexed(t *testing.T) {
	tests := []struct {
		name  string
		prog  string // after LDY #$2000
		extra string
		steps int
		x, y  uint16
	}{
		{"5,Y", "30 25", "", 1, 0x2005, 0x2000},
		{"-1,Y", "30 3f", "", 1, 0x1fff, 0x2000},
		{"-16,Y", "30 a8 f0", "", 1, 0x1ff0, 0x2000},
		{"A,Y", "86 fe 30 a6", "", 2, 0x1ffe, 0x2000},
		{"D,Y", "cc 01 00 30 ab", "", 2, 0x2100, 0x2000},
		{"$1234,Y", "30 a9 12 34", "", 1, 0x3234, 0x2000},
		{",Y++", "30 a1", "", 1, 0x2000, 0x2002},
		{",--Y", "30 a3", "", 1, 0x1ffe, 0x1ffe},
		{"$10,PCR", "30 8c 10", "", 1, 0x1017, 0x2000},
		{"[$3000]", "30 9f 30 00", "3000: ab cd", 1, 0xabcd, 0x2000},
		{"[,Y]", "30 b4", "2000: 12 34", 1, 0x1234, 0x2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := loadCPUWith(t, "1000: 10 8e 20 00 "+tt.prog+"\n"+tt.extra)
			run(cpu, 1+tt.steps)
			if cpu.X != tt.x || cpu.Y != tt.y {
				t.Errorf("X=%04X Y=%04X, want X=%04X Y=%04X", cpu.X, cpu.Y, tt.x, tt.y)
			}
		})
	}
}

func TestStackAndSubroutines(t *testing.T) {
	const prog = `
1000: 10 ce 80 00   # LDS #$8000
1004: 86 11 c6 22   # LDA #$11, LDB #$22
1008: 34 06 4f 5f   # PSHS A,B, CLRA, CLRB
100c: 35 06         # PULS A,B
100e: bd 20 00 12   # JSR $2000, NOP
2000: 8e be ef 39   # LDX #$BEEF, RTS
`
	cpu, ram := loadCPUWith(t, stripComments(prog))
	run(cpu, 10)

	want := regState{A: 0x11, B: 0x22, X: 0xbeef, S: 0x8000, CC: ccI | ccF | ccN, PC: 0x1011}
	if diff := cmp.Diff(want, regsOf(cpu)); diff != "" {
		t.Errorf("registers mismatch (-want +got):\n%s", diff)
	}
	// The return address overwrote the pushed A,B.
	wantMem(t, ram, 0x7ffe, 0x10, 0x11)
}

func TestPushPullOrder(t *testing.T) {
	cpu, ram := loadCPUWith(t, "1000: 10 ce 80 00 34 ff")
	run(cpu, 1)
	cpu.A, cpu.B, cpu.DP = 0xaa, 0xbb, 0xdd
	cpu.X, cpu.Y, cpu.U = 0x1111, 0x2222, 0x3333
	cpu.CC = 0xc0
	run(cpu, 1)

	wantMem(t, ram, 0x8000-12,
		0xc0,       // CC
		0xaa,       // A
		0xbb,       // B
		0xdd,       // DP
		0x11, 0x11, // X
		0x22, 0x22, // Y
		0x33, 0x33, // U
		0x10, 0x06, // PC
	)

	// Pull everything back, in the reverse order.
	before := regsOf(cpu)
	ram[0x1006], ram[0x1007] = 0x35, 0xff
	cpu.A, cpu.B, cpu.X = 0, 0, 0
	run(cpu, 1)
	before.S = 0x8000
	if diff := cmp.Diff(before, regsOf(cpu)); diff != "" {
		t.Errorf("PULS mismatch (-want +got):\n%s", diff)
	}
}

func TestIRQ(t *testing.T) {
	cpu, ram := loadCPUWith(t, "1000: 10 ce 80 00 1c af 12 12\n3000: 3b")
	run(cpu, 2)

	cpu.IrqW(hwdefs.LineAssert)
	wantCycles(t, step(cpu), 19)
	wantPC(t, cpu, 0x3000)
	// N is still set by LDS #$8000.
	if cpu.S != 0x7ff4 || cpu.CC != ccE|ccI|ccN {
		t.Errorf("S=%04X CC=%02X, want S=7FF4 CC=98", cpu.S, cpu.CC)
	}
	wantMem(t, ram, 0x7ff4, ccE|ccN)
	wantMem(t, ram, 0x7ffe, 0x10, 0x06)

	cpu.IrqW(hwdefs.LineClear)
	wantCycles(t, step(cpu), 15)
	wantPC(t, cpu, 0x1006)
	if cpu.S != 0x8000 {
		t.Errorf("S = %04X after RTI, want 8000", cpu.S)
	}
}

func TestIRQMasked(t *testing.T) {
	cpu, _ := loadCPUWith(t, "1000: 10 ce 80 00 1c af 12 12")
	run(cpu, 1)

	cpu.IrqW(hwdefs.LineAssert)
	wantCycles(t, step(cpu), 3) // ANDCC
	wantPC(t, cpu, 0x1006)
	wantCycles(t, step(cpu), 19)
	wantPC(t, cpu, 0x3000)
}

func TestFIRQ(t *testing.T) {
	cpu, ram := loadCPUWith(t, "1000: 10 ce 80 00 1c af 12 12\n3100: 3b")
	run(cpu, 2)

	cpu.FirqW(hwdefs.LineAssert)
	wantCycles(t, step(cpu), 10)
	wantPC(t, cpu, 0x3100)
	if cpu.S != 0x7ffd || cpu.CC != ccI|ccF|ccN {
		t.Errorf("S=%04X CC=%02X, want S=7FFD CC=58", cpu.S, cpu.CC)
	}
	wantMem(t, ram, 0x7ffd, ccN, 0x10, 0x06)

	cpu.FirqW(hwdefs.LineClear)
	wantCycles(t, step(cpu), 6)
	wantPC(t, cpu, 0x1006)
	if cpu.CC != ccN {
		t.Errorf("CC = %02X after RTI, want 08", cpu.CC)
	}
}

func TestNMIArmedByLDS(t *testing.T) {
	cpu, _ := loadCPUWith(t, "1000: 10 ce 80 00 1c af 12 12\n3200: 3b")

	// Ignored before LDS, and the line stays high.
	cpu.NmiW(hwdefs.LineAssert)
	run(cpu, 2)
	wantPC(t, cpu, 0x1006)

	cpu.NmiW(hwdefs.LineClear)
	cpu.NmiW(hwdefs.LineAssert)
	wantCycles(t, step(cpu), 19)
	wantPC(t, cpu, 0x3200)
	if cpu.CC != ccE|ccF|ccI|ccN {
		t.Errorf("CC = %02X, want D8", cpu.CC)
	}

	// Edge triggered: holding the line doesn't retrigger.
	wantCycles(t, step(cpu), 15)
	wantPC(t, cpu, 0x1006)
	wantCycles(t, step(cpu), 2)
	wantPC(t, cpu, 0x1007)
}

func TestSoftwareInterrupts(t *testing.T) {
	tests := []struct {
		name   string
		prog   string
		cycles int64
		pc     uint16
		cc     uint8
	}{
		{"SWI", "3f", 19, 0x3300, ccE | ccF | ccI},
		{"SWI2", "10 3f", 20, 0x3400, ccE},
		{"SWI3", "11 3f", 20, 0x3500, ccE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := loadCPUWith(t, "1000: 10 ce 80 00 1c 00 "+tt.prog)
			run(cpu, 2)
			wantCycles(t, step(cpu), tt.cycles)
			wantPC(t, cpu, tt.pc)
			if cpu.CC != tt.cc || cpu.S != 0x7ff4 {
				t.Errorf("CC=%02X S=%04X, want CC=%02X S=7FF4", cpu.CC, cpu.S, tt.cc)
			}
		})
	}
}

func TestCWAI(t *testing.T) {
	cpu, ram := loadCPUWith(t, "1000: 10 ce 80 00 3c af 12")
	run(cpu, 1)

	wantCycles(t, step(cpu), 20)
	if cpu.S != 0x7ff4 || cpu.CC != ccE|ccN {
		t.Errorf("S=%04X CC=%02X, want S=7FF4 CC=88", cpu.S, cpu.CC)
	}
	// Waiting burns the budget.
	for range 5 {
		wantCycles(t, step(cpu), 1)
	}
	wantPC(t, cpu, 0x1006)

	cpu.IrqW(hwdefs.LineAssert)
	wantCycles(t, step(cpu), cwaiVectorCycles)
	wantPC(t, cpu, 0x3000)
	if cpu.S != 0x7ff4 {
		t.Errorf("S = %04X, the state was stacked twice", cpu.S)
	}
	wantMem(t, ram, 0x7ffe, 0x10, 0x06)
}

func TestSYNC(t *testing.T) {
	t.Run("masked", func(t *testing.T) {
		cpu, _ := loadCPUWith(t, "1000: 13 12")
		wantCycles(t, step(cpu), 4)
		wantCycles(t, step(cpu), 1)
		wantPC(t, cpu, 0x1001)

		cpu.IrqW(hwdefs.LineAssert)
		wantCycles(t, step(cpu), 2) // NOP
		wantPC(t, cpu, 0x1002)
	})
	t.Run("unmasked", func(t *testing.T) {
		cpu, ram := loadCPUWith(t, "1000: 10 ce 80 00 1c af 13 12")
		run(cpu, 3)
		wantCycles(t, step(cpu), 1)

		cpu.IrqW(hwdefs.LineAssert)
		wantCycles(t, step(cpu), 19)
		wantPC(t, cpu, 0x3000)
		wantMem(t, ram, 0x7ffe, 0x10, 0x07)
	})
}

func TestHaltLine(t *testing.T) {
	cpu, _ := loadCPUWith(t, "")
	cpu.SetInputLine(hwdefs.InputLineHalt, hwdefs.LineAssert)
	if !cpu.SuspendedBy(sched.SuspendHalt) {
		t.Errorf("HALT didn't suspend the CPU")
	}
	cpu.SetInputLine(hwdefs.InputLineHalt, hwdefs.LineClear)
	if cpu.Suspended() {
		t.Errorf("CPU still suspended after HALT was released")
	}
}

func TestBreakpoint(t *testing.T) {
	cpu, _ := loadCPUWith(t, "1000: 12 12 12 12")

	var set hwio.AddrSet
	set.Add(0x1002)
	var hits []uint16
	cpu.SetBreakpoints(&set, func(pc uint16) { hits = append(hits, pc) })

	run(cpu, 2)
	wantCycles(t, step(cpu), 0)
	wantPC(t, cpu, 0x1002)
	if !cpu.SuspendedBy(sched.SuspendDebug) {
		t.Fatalf("breakpoint didn't suspend the CPU")
	}
	if diff := cmp.Diff([]uint16{0x1002}, hits); diff != "" {
		t.Errorf("breakpoint hits (-want +got):\n%s", diff)
	}

	// Resuming executes the instruction under the breakpoint.
	cpu.Resume(sched.SuspendDebug)
	wantCycles(t, step(cpu), 2)
	wantPC(t, cpu, 0x1003)
	if len(hits) != 1 {
		t.Errorf("breakpoint hit %d times, want 1", len(hits))
	}
}

func TestIllegalOpcodeLogNop(t *testing.T) {
	cpu, _ := loadCPUWith(t, "1000: 01 10 01 12")
	wantCycles(t, step(cpu), 2)
	wantPC(t, cpu, 0x1001)
	wantCycles(t, step(cpu), 3)
	wantPC(t, cpu, 0x1003)
	wantCycles(t, step(cpu), 2)
}

func TestIllegalOpcodeFatal(t *testing.T) {
	m, cpu, _ := newTestCPU(t, "1000: 12 12 11 01")
	cpu.Policy = PolicyFatal

	err := m.Run(1000)
	var ferr *device.FatalError
	if !errors.As(err, &ferr) {
		t.Fatalf("Run returned %v, want a fatal error", err)
	}
	if ferr.Tag != ":maincpu" || ferr.PC != 0x1002 || !ferr.HasPC {
		t.Errorf("fatal error = %+v", ferr)
	}
}

// Every opcode of every page, defined or not, consumes cycles.
func TestBudgetAlwaysDecreases(t *testing.T) {
	pages := []struct {
		prefix string
		table  *[256]opdef
	}{
		{"", &page1},
		{"10 ", &page2},
		{"11 ", &page3},
	}
	for _, p := range pages {
		for op := range 256 {
			cpu, _ := loadCPUWith(t, fmt.Sprintf("1000: %s%02x 00 00 00", p.prefix, op))
			got := step(cpu)
			least := int64(p.table[op].c)
			if p.table[op].f == nil {
				least = 1
			}
			if got < least {
				t.Errorf("opcode %s%02X took %d cycles, want at least %d", p.prefix, op, got, least)
			}
		}
	}
}

// stripComments removes '#' comments at the end of hex dump lines.
func stripComments(dump string) string {
	var out []byte
	skip := false
	for i := 0; i < len(dump); i++ {
		switch {
		case dump[i] == '#':
			skip = true
		case dump[i] == '\n':
			skip = false
			out = append(out, '\n')
		case !skip:
			out = append(out, dump[i])
		}
	}
	return string(out)
}
