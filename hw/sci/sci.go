// Package sci implements the serial communications interface found in H8
// microcontrollers: an asynchronous/synchronous transmitter and receiver
// sharing a baud rate generator.
//
// The SCI is a periph.EventSource. Its host (a CPU, or a periph.Driver for
// devices without one) calls InternalUpdate when the next clock edge is due.
package sci

import (
	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/irq"
	"emucore/hw/periph"
)

var modSCI = log.NewModule("sci")

// Register offsets.
const (
	SMR = iota
	BRR
	SCR
	TDR
	SSR
	RDR
	SCMR

	NumRegs
)

// Serial mode register.
const (
	SmrCA   = 0x80 // synchronous mode
	SmrCHR  = 0x40 // 7 bits
	SmrPE   = 0x20 // parity enable
	SmrOE   = 0x10 // odd parity
	SmrSTOP = 0x08 // 2 stop bits
	SmrMP   = 0x04 // multiprocessor mode
	SmrCKS  = 0x03
)

// Serial control register.
const (
	ScrTIE  = 0x80
	ScrRIE  = 0x40
	ScrTE   = 0x20
	ScrRE   = 0x10
	ScrMPIE = 0x08
	ScrTEIE = 0x04
	ScrCKE1 = 0x02
	ScrCKE0 = 0x01
)

// Serial status register.
const (
	SsrTDRE = 0x80
	SsrRDRF = 0x40
	SsrORER = 0x20
	SsrFER  = 0x10
	SsrPER  = 0x08
	SsrTEND = 0x04
	SsrMPB  = 0x02
	SsrMPBT = 0x01
)

// State of the transmitter or the receiver.
type State uint8

//go:generate go tool stringer -type=State -linecomment

const (
	StateIdle     State = iota // idle
	StateStart                 // start
	StateBit                   // bit
	StateParity                // parity
	StateStop                  // stop
	StateLastTick              // last-tick
)

// ClockMode is the source of the serial clock, selected by SMR and SCR.
type ClockMode uint8

//go:generate go tool stringer -type=ClockMode -trimprefix=Clock

const (
	ClockInternalAsync ClockMode = iota
	ClockInternalAsyncOut
	ClockInternalSyncOut
	ClockExternalAsync
	ClockExternalRateAsync
	ClockExternalSync
	ClockExternalRateSync
)

// users of the shared clock
const (
	clkTX = 1
	clkRX = 2
)

type SCI struct {
	device.Device

	// TX and CLK receive the levels of the transmit data and clock output
	// pins. Both may be nil.
	TX  func(level bool)
	CLK func(level bool)

	// Sent, if set, receives each byte as it moves to the shift register.
	Sent func(data uint8)

	// Interrupt outputs, asserted while their flag and enable bit are set.
	ERI, RXI, TXI, TEI *irq.Line

	host     periph.Host
	catchUp  func()
	extHz    uint64
	intToExt float64
	extToInt float64

	rdr, tdr, smr, scr, ssr, brr uint8
	rsr, tsr                     uint8

	rxBit, txBit       uint8
	rxState, txState   State
	rxParity, txParity bool
	rxMPB              bool
	rxValue            bool

	clockState      uint8
	clockMode       ClockMode
	clockValue      bool
	clockBase       uint64
	divider         uint64
	extClockValue   bool
	extClockCounter uint8
}

// New returns an SCI running at the clock of its host.
func New(tag string, clock uint64) *SCI {
	s := &SCI{
		ERI: irq.NewLine("eri", irq.ActiveHigh, irq.Level),
		RXI: irq.NewLine("rxi", irq.ActiveHigh, irq.Level),
		TXI: irq.NewLine("txi", irq.ActiveHigh, irq.Level),
		TEI: irq.NewLine("tei", irq.ActiveHigh, irq.Level),
	}
	s.Init(tag, "sci", clock)
	return s
}

// Attach sets the device hosting the SCI. The host must also have the SCI
// among its event sources. Hosts providing a CatchUp method get it called
// before each register access.
func (s *SCI) Attach(host periph.Host) {
	s.host = host
	s.catchUp = func() {}
	if c, ok := host.(interface{ CatchUp() }); ok {
		s.catchUp = c.CatchUp
	}
}

// SetExternalClock declares the rate of the clock fed to the SCK pin. When
// set, the external clock modes are simulated at that rate instead of
// waiting for ClkW edges. It must be called before the machine starts.
func (s *SCI) SetExternalClock(hz uint64) {
	s.extHz = hz
}

func (s *SCI) Start(device.Context) error {
	if s.host == nil {
		return errors.Errorf("%s: no host attached", s.Tag())
	}
	if s.extHz != 0 {
		s.extToInt = float64(s.ClockHz()) / float64(s.extHz)
		s.intToExt = 1 / s.extToInt
	}

	s.SaveItem("rdr", &s.rdr)
	s.SaveItem("tdr", &s.tdr)
	s.SaveItem("smr", &s.smr)
	s.SaveItem("scr", &s.scr)
	s.SaveItem("ssr", &s.ssr)
	s.SaveItem("brr", &s.brr)
	s.SaveItem("rsr", &s.rsr)
	s.SaveItem("tsr", &s.tsr)
	s.SaveItem("rx_bit", &s.rxBit)
	s.SaveItem("tx_bit", &s.txBit)
	s.SaveItem("rx_state", &s.rxState)
	s.SaveItem("tx_state", &s.txState)
	s.SaveItem("rx_parity", &s.rxParity)
	s.SaveItem("tx_parity", &s.txParity)
	s.SaveItem("rx_mpb", &s.rxMPB)
	s.SaveItem("rx_value", &s.rxValue)
	s.SaveItem("clock_state", &s.clockState)
	s.SaveItem("clock_mode", &s.clockMode)
	s.SaveItem("clock_value", &s.clockValue)
	s.SaveItem("clock_base", &s.clockBase)
	s.SaveItem("divider", &s.divider)
	s.SaveItem("ext_clock_value", &s.extClockValue)
	s.SaveItem("ext_clock_counter", &s.extClockCounter)
	return nil
}

func (s *SCI) Reset(bool) {
	s.rdr = 0x00
	s.tdr = 0xff
	s.smr = 0x00
	s.scr = 0x00
	s.ssr = 0x84
	s.brr = 0xff
	s.rsr = 0x00
	s.tsr = 0xff
	s.rxBit, s.txBit = 0, 0
	s.rxState, s.txState = StateIdle, StateIdle
	s.rxParity, s.txParity = false, false
	s.rxMPB = false
	s.clockState = 0
	s.clockBase = 0
	s.clockUpdate()
	s.clockValue = true
	s.extClockValue = true
	s.extClockCounter = 0
	s.rxValue = true
	s.clk(true)
	s.tx(true)
	s.updateIRQ()
}

// PostLoad restores the interrupt outputs from the loaded flags.
func (s *SCI) PostLoad() {
	s.ERI.Restore(hwdefs.StateOf(s.eri()))
	s.RXI.Restore(hwdefs.StateOf(s.rxi()))
	s.TXI.Restore(hwdefs.StateOf(s.txi()))
	s.TEI.Restore(hwdefs.StateOf(s.tei()))
}

func (s *SCI) InterruptLines() []device.Signal {
	return []device.Signal{s.ERI, s.RXI, s.TXI, s.TEI}
}

func (s *SCI) InstallMap(t *hwio.Table, base uint16) {
	t.MapDevice(base, &hwio.Device{
		Name:    s.Tag(),
		Size:    NumRegs,
		ReadCb:  s.Read,
		PeekCb:  s.Peek,
		WriteCb: s.Write,
	})
}

func (s *SCI) Mode() ClockMode    { return s.clockMode }
func (s *SCI) Divider() uint64    { return s.divider }
func (s *SCI) TxState() State     { return s.txState }
func (s *SCI) RxState() State     { return s.rxState }
func (s *SCI) ClockRunning() bool { return s.clockState != 0 }

// Peek reads a register without side effects.
func (s *SCI) Peek(off uint16) uint8 {
	switch off {
	case SMR:
		return s.smr
	case BRR:
		return s.brr
	case SCR:
		return s.scr
	case TDR:
		return s.tdr
	case SSR:
		return s.ssr
	case RDR:
		return s.rdr
	case SCMR:
		return 0x00
	}
	return 0xff
}

func (s *SCI) Read(off uint16) uint8 {
	s.catchUp()
	val := s.Peek(off)
	modSCI.DebugZ("read").
		String("tag", s.Tag()).
		Uint16("reg", off).
		Hex8("val", val).
		End()
	return val
}

func (s *SCI) Write(off uint16, val uint8) {
	s.catchUp()
	modSCI.DebugZ("write").
		String("tag", s.Tag()).
		Uint16("reg", off).
		Hex8("val", val).
		End()

	switch off {
	case SMR:
		s.smr = val
		s.clockUpdate()
	case BRR:
		s.brr = val
		s.clockUpdate()
	case SCR:
		s.writeSCR(val)
	case TDR:
		s.tdr = val
	case SSR:
		s.writeSSR(val)
	case RDR:
		modSCI.WarnZ("write to read-only RDR").
			String("tag", s.Tag()).
			Hex8("val", val).
			End()
	case SCMR:
		// storage only on this family member
	}
	s.updateIRQ()
}

func (s *SCI) writeSCR(val uint8) {
	delta := s.scr ^ val
	s.scr = val
	s.clockUpdate()

	if delta&ScrRE != 0 && s.scr&ScrRE == 0 {
		s.rxState = StateIdle
		s.clockStop(clkRX)
	}
	if delta&ScrRE != 0 && s.scr&ScrRE != 0 && s.rxState == StateIdle && !s.hasRecvError() && !s.isSyncStart() {
		s.rxStart()
	}
}

func (s *SCI) writeSSR(val uint8) {
	s.host.Synchronize()

	if s.scr&ScrTE == 0 {
		val |= SsrTDRE
		s.ssr |= SsrTDRE
	}
	if s.ssr&SsrTDRE != 0 && val&SsrTDRE == 0 {
		s.ssr &^= SsrTEND
		s.scr &^= ScrTIE
	}
	// Flags are only cleared, MPBT is a plain bit.
	s.ssr = (s.ssr&^SsrMPBT | val&SsrMPBT) & (val | SsrTEND | SsrMPB | SsrMPBT)

	if s.txState == StateIdle && s.ssr&SsrTDRE == 0 {
		s.txStart()
	}
	if s.scr&ScrRE != 0 && s.rxState == StateIdle && !s.hasRecvError() && !s.isSyncStart() {
		s.rxStart()
	}
}

func (s *SCI) isSyncStart() bool {
	return s.smr&SmrCA != 0 && s.scr&(ScrTE|ScrRE) == ScrTE|ScrRE
}

func (s *SCI) hasRecvError() bool {
	return s.ssr&(SsrORER|SsrPER|SsrFER) != 0
}

// multiprocessor format, async only
func (s *SCI) mp() bool {
	return s.smr&(SmrCA|SmrMP) == SmrMP
}

func (s *SCI) eri() bool { return s.scr&ScrRIE != 0 && s.hasRecvError() }
func (s *SCI) rxi() bool { return s.scr&ScrRIE != 0 && s.ssr&SsrRDRF != 0 }
func (s *SCI) txi() bool { return s.scr&ScrTIE != 0 && s.ssr&SsrTDRE != 0 }
func (s *SCI) tei() bool { return s.scr&ScrTEIE != 0 && s.ssr&SsrTEND != 0 }

func (s *SCI) updateIRQ() {
	s.ERI.SetBool(s.eri())
	s.RXI.SetBool(s.rxi())
	s.TXI.SetBool(s.txi())
	s.TEI.SetBool(s.tei())
}

func (s *SCI) tx(level bool) {
	if s.TX != nil {
		s.TX(level)
	}
}

func (s *SCI) clk(level bool) {
	if s.CLK != nil {
		s.CLK(level)
	}
}
