package sci

// clockUpdate recomputes the divider and the clock source. In synchronous
// mode the divider is half a bit period, in asynchronous mode a bit lasts 16
// divider periods.
func (s *SCI) clockUpdate() {
	s.divider = uint64(2<<(2*(s.smr&SmrCKS))) * (uint64(s.brr) + 1)

	prev := s.clockMode
	switch {
	case s.smr&SmrCA != 0 && s.scr&ScrCKE1 != 0:
		s.clockMode = ClockExternalSync
	case s.smr&SmrCA != 0:
		s.clockMode = ClockInternalSyncOut
	case s.scr&ScrCKE1 != 0:
		s.clockMode = ClockExternalAsync
	case s.scr&ScrCKE0 != 0:
		s.clockMode = ClockInternalAsyncOut
	default:
		s.clockMode = ClockInternalAsync
	}
	if s.extHz != 0 {
		switch s.clockMode {
		case ClockExternalAsync:
			s.clockMode = ClockExternalRateAsync
		case ClockExternalSync:
			s.clockMode = ClockExternalRateSync
		}
	}

	if prev != s.clockMode {
		modSCI.DebugZ("clock mode").
			String("tag", s.Tag()).
			Stringer("mode", s.clockMode).
			Uint64("divider", s.divider).
			End()
	}
}

func (s *SCI) clockStart(mode uint8) {
	// back to back transfers
	if s.clockState&mode != 0 {
		return
	}
	if s.clockState != 0 {
		s.clockState |= mode
		return
	}

	s.host.Synchronize()
	s.clockState = mode
	now := s.host.TotalCycles()
	switch s.clockMode {
	case ClockInternalAsync, ClockInternalAsyncOut, ClockInternalSyncOut:
		s.clockBase = now
		s.host.InternalUpdate()
	case ClockExternalRateAsync:
		s.clockBase = uint64(float64(now) * s.intToExt)
		s.host.InternalUpdate()
	case ClockExternalRateSync:
		s.clockBase = uint64(float64(now) * 2 * s.intToExt)
		s.host.InternalUpdate()
	case ClockExternalAsync:
		s.extClockCounter = 15
	case ClockExternalSync:
	}
}

func (s *SCI) clockStop(mode uint8) {
	s.clockState &^= mode
	s.host.InternalUpdate()
}

// InternalUpdate processes the clock edge due at now, if any, and returns
// the cycle of the next one.
func (s *SCI) InternalUpdate(now uint64) uint64 {
	var next uint64
	switch s.clockMode {
	case ClockInternalSyncOut:
		next = s.internalClock(now, s.divider*2, s.divider, true)
	case ClockInternalAsync:
		next = s.internalClock(now, s.divider*16, s.divider*8, false)
	case ClockInternalAsyncOut:
		next = s.internalClock(now, s.divider*16, s.divider*8, true)
	case ClockExternalRateSync:
		next = s.rateClock(now, 2, 2)
	case ClockExternalRateAsync:
		next = s.rateClock(now, 1, 16)
	}
	s.updateIRQ()
	return next
}

// internalClock runs the baud rate generator. Each period of fp cycles
// starts with a falling edge, and the clock rises after half cycles.
func (s *SCI) internalClock(now, fp, half uint64, output bool) uint64 {
	if s.clockState == 0 && s.clockValue {
		return 0
	}
	if now >= s.clockBase {
		delta := now - s.clockBase
		if delta >= fp {
			periods := delta / fp
			if periods > 1 {
				modSCI.WarnZ("serial clock edges skipped").
					String("tag", s.Tag()).
					Uint64("periods", periods-1).
					End()
			}
			s.clockBase += periods * fp
			delta -= periods * fp
		}
		if level := delta >= half; level != s.clockValue {
			s.edge(level)
			if output {
				s.clk(level)
			}
		}
	}
	if s.clockValue {
		return s.clockBase + fp
	}
	return s.clockBase + half
}

// rateClock simulates an external clock of known rate. Time is converted to
// external clock units, scaled by mul; a period lasts fp units.
func (s *SCI) rateClock(now uint64, mul float64, fp uint64) uint64 {
	if s.clockState == 0 && s.clockValue {
		return 0
	}
	half := fp / 2
	ctime := uint64(float64(now) * s.intToExt * mul)
	if ctime >= s.clockBase {
		delta := ctime - s.clockBase
		s.clockBase += delta - delta%fp
		delta %= fp
		if level := delta >= half; level != s.clockValue {
			s.edge(level)
		}
	}
	units := s.clockBase + half
	if s.clockValue {
		units = s.clockBase + fp
	}
	return max(uint64(float64(units)*s.extToInt/mul)+1, now+1)
}

// edge moves the serial clock to level. The transmitter shifts on falling
// edges and the receiver samples on rising ones.
func (s *SCI) edge(level bool) {
	s.host.Synchronize()
	switch {
	case !level && s.clockState&clkTX != 0:
		s.txDroppedEdge()
	case level && s.clockState&clkRX != 0:
		s.rxRaisedEdge()
	}
	s.clockValue = level
}

// ClkW drives the SCK input, used by the external clock modes.
func (s *SCI) ClkW(level bool) {
	if s.extClockValue == level {
		return
	}
	s.catchUp()
	s.extClockValue = level
	if s.clockState == 0 {
		return
	}
	switch s.clockMode {
	case ClockExternalAsync:
		if level {
			s.extClockCounter = (s.extClockCounter + 1) & 15
			if s.clockState&clkTX != 0 && s.extClockCounter == 0 {
				s.txDroppedEdge()
			}
			if s.clockState&clkRX != 0 && s.extClockCounter == 8 {
				s.rxRaisedEdge()
			}
		}
	case ClockExternalSync:
		switch {
		case !level && s.clockState&clkTX != 0:
			s.txDroppedEdge()
		case level && s.clockState&clkRX != 0:
			s.rxRaisedEdge()
		}
	}
	s.updateIRQ()
}

// RxW drives the RxD input.
func (s *SCI) RxW(level bool) {
	s.catchUp()
	s.rxValue = level
	if !level && s.clockState&clkRX == 0 && s.rxState != StateIdle {
		s.clockStart(clkRX)
	}
}
