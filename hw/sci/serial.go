package sci

// txStart moves TDR to the shift register and starts the transmitter.
func (s *SCI) txStart() {
	s.ssr |= SsrTDRE
	s.tsr = s.tdr
	s.txParity = s.smr&SmrOE != 0
	modSCI.DebugZ("start transmit").
		String("tag", s.Tag()).
		Hex8("data", s.tsr).
		End()
	if s.Sent != nil {
		s.Sent(s.tsr)
	}

	if s.smr&SmrCA != 0 {
		s.txState = StateBit
		s.txBit = 8
	} else {
		s.txState = StateStart
		s.txBit = 1
	}
	s.clockStart(clkTX)
	if s.rxState == StateIdle && !s.hasRecvError() && s.isSyncStart() {
		s.rxStart()
	}
}

func (s *SCI) stopBits() uint8 {
	if s.smr&SmrSTOP != 0 {
		return 2
	}
	return 1
}

func (s *SCI) dataBits() uint8 {
	if s.smr&SmrCHR != 0 {
		return 7
	}
	return 8
}

// txEnd ends a frame: the next one starts right away if TDR was written.
func (s *SCI) txEnd() {
	if s.ssr&SsrTDRE == 0 {
		s.txStart()
		return
	}
	s.txState = StateLastTick
	s.txBit = 0
}

func (s *SCI) txDroppedEdge() {
	switch s.txState {
	case StateStart:
		s.tx(false)
		s.txState = StateBit
		s.txBit = s.dataBits()

	case StateBit:
		bit := s.tsr&1 != 0
		s.txParity = s.txParity != bit
		s.tx(bit)
		s.tsr >>= 1
		s.txBit--
		if s.txBit != 0 {
			break
		}
		switch {
		case s.smr&SmrCA != 0:
			s.txEnd()
		case s.mp(), s.smr&SmrPE != 0:
			s.txState = StateParity
			s.txBit = 1
		default:
			s.txState = StateStop
			s.txBit = s.stopBits()
		}

	case StateParity:
		if s.mp() {
			s.tx(s.ssr&SsrMPBT != 0)
		} else {
			s.tx(s.txParity)
		}
		s.txState = StateStop
		s.txBit = s.stopBits()

	case StateStop:
		s.tx(true)
		s.txBit--
		if s.txBit == 0 {
			s.txEnd()
		}

	case StateLastTick:
		s.txState = StateIdle
		s.txBit = 0
		s.clockStop(clkTX)
		s.tx(true)
		s.ssr |= SsrTEND | SsrTDRE

	default:
		s.Fatalf("transmit clock edge in state %v", s.txState)
	}
}

func (s *SCI) rxStart() {
	s.rxParity = s.smr&SmrOE != 0
	s.rsr = 0x00
	modSCI.DebugZ("start receive").String("tag", s.Tag()).End()

	if s.smr&SmrCA != 0 {
		s.rxState = StateBit
		s.rxBit = 8
		s.clockStart(clkRX)
		return
	}
	s.rxState = StateStart
	s.rxBit = 1
	if !s.rxValue {
		s.clockStart(clkRX)
	}
}

// rxSkipped reports whether the frame being received is addressed to
// another station in multiprocessor mode.
func (s *SCI) rxSkipped() bool {
	return s.mp() && s.scr&ScrMPIE != 0 && !s.rxMPB
}

func (s *SCI) rxDone() {
	skipped := s.rxSkipped()
	if s.mp() {
		s.ssr &^= SsrMPB
		if s.rxMPB {
			s.ssr |= SsrMPB
			s.scr &^= ScrMPIE
		}
	}

	switch {
	case skipped, s.ssr&SsrFER != 0:
	case s.smr&SmrPE != 0 && !s.mp() && s.rxParity:
		s.ssr |= SsrPER
		modSCI.DebugZ("receive parity error").String("tag", s.Tag()).End()
	case s.ssr&SsrRDRF != 0:
		s.ssr |= SsrORER
		modSCI.DebugZ("receive overrun").String("tag", s.Tag()).End()
	default:
		s.ssr |= SsrRDRF
		s.rdr = s.rsr
		modSCI.DebugZ("received").
			String("tag", s.Tag()).
			Hex8("data", s.rdr).
			End()
	}

	if s.scr&ScrRE != 0 && !s.hasRecvError() && !s.isSyncStart() {
		s.rxStart()
		return
	}
	s.clockStop(clkRX)
	s.rxState = StateIdle
}

func (s *SCI) rxRaisedEdge() {
	switch s.rxState {
	case StateStart:
		if s.rxValue {
			// glitch on the line, wait for the next start bit
			s.clockStop(clkRX)
			break
		}
		s.rxState = StateBit
		s.rxBit = s.dataBits()

	case StateBit:
		s.rxParity = s.rxParity != s.rxValue
		s.rsr >>= 1
		if s.rxValue {
			if s.smr&(SmrCA|SmrCHR) == SmrCHR {
				s.rsr |= 0x40
			} else {
				s.rsr |= 0x80
			}
		}
		s.rxBit--
		if s.rxBit != 0 {
			break
		}
		switch {
		case s.smr&SmrCA != 0:
			s.rxDone()
		case s.mp(), s.smr&SmrPE != 0:
			s.rxState = StateParity
			s.rxBit = 1
		default:
			s.rxState = StateStop
			s.rxBit = 1
		}

	case StateParity:
		if s.mp() {
			s.rxMPB = s.rxValue
		} else {
			s.rxParity = s.rxParity != s.rxValue
		}
		s.rxState = StateStop
		s.rxBit = 1

	case StateStop:
		// only the first stop bit is checked
		if !s.rxValue && !s.rxSkipped() {
			s.ssr |= SsrFER
		}
		s.rxDone()

	default:
		s.Fatalf("receive clock edge in state %v", s.rxState)
	}
}
