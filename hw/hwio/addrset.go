package hwio

import (
	"fmt"
	"math/bits"
)

const (
	NumAddrs = 0x10000 // 16-bit address space
	wordSize = 64
	numWords = NumAddrs / wordSize
)

// AddrSet is a set of 16-bit addresses, used for breakpoints and watchpoints.
// Zero value is an empty set.
type AddrSet struct {
	words [numWords]uint64
	n     int
}

func (s *AddrSet) Add(addr uint16) {
	w, m := addr/wordSize, uint64(1)<<(addr%wordSize)
	if s.words[w]&m == 0 {
		s.words[w] |= m
		s.n++
	}
}

func (s *AddrSet) Remove(addr uint16) {
	w, m := addr/wordSize, uint64(1)<<(addr%wordSize)
	if s.words[w]&m != 0 {
		s.words[w] &^= m
		s.n--
	}
}

func (s *AddrSet) Has(addr uint16) bool {
	return s.words[addr/wordSize]&(1<<(addr%wordSize)) != 0
}

// Count returns the number of addresses in the set.
func (s *AddrSet) Count() int { return s.n }

// AddRange adds all addresses in [start, end].
func (s *AddrSet) AddRange(start, end uint16) {
	if start > end {
		panic(fmt.Sprintf("invalid range [%04x, %04x]", start, end))
	}
	for a := int(start); a <= int(end); {
		w, b := a/wordSize, a%wordSize
		last := min(int(end), w*wordSize+wordSize-1)
		span := last - a + 1
		var mask uint64
		if span == wordSize {
			mask = ^uint64(0)
		} else {
			mask = (uint64(1)<<span - 1) << b
		}
		s.n += bits.OnesCount64(mask &^ s.words[w])
		s.words[w] |= mask
		a = last + 1
	}
}

// Next returns the smallest address >= from in the set.
func (s *AddrSet) Next(from uint16) (uint16, bool) {
	w := int(from / wordSize)
	word := s.words[w] &^ (uint64(1)<<(from%wordSize) - 1)
	for {
		if word != 0 {
			return uint16(w*wordSize + bits.TrailingZeros64(word)), true
		}
		w++
		if w == numWords {
			return 0, false
		}
		word = s.words[w]
	}
}

func (s *AddrSet) Reset() {
	clear(s.words[:])
	s.n = 0
}
