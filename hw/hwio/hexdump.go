package hwio

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DumpLine is a line of a hex dump: bytes starting at Off.
type DumpLine struct {
	Off   uint16
	Bytes []byte
}

// ParseHexDump parses lines like "8000: a9 12 8d 00 20". Empty lines and
// lines starting with '#' are ignored.
func ParseHexDump(dump string) ([]DumpLine, error) {
	var lines []DumpLine
	scan := bufio.NewScanner(strings.NewReader(dump))
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		off, octets, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed line: %s", line)
		}

		ioff, err := strconv.ParseUint(strings.TrimSpace(off), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("malformed offset %s: %s", off, err)
		}
		var buf []byte
		for _, c := range octets {
			if c != ' ' && c != '\t' {
				buf = append(buf, byte(c))
			}
		}
		n, err := hex.Decode(buf, buf)
		if err != nil {
			return nil, fmt.Errorf("hex decode: %s", err)
		}
		if int(ioff)+n > 0x10000 {
			return nil, fmt.Errorf("line at %04x overflows the address space", ioff)
		}
		lines = append(lines, DumpLine{Off: uint16(ioff), Bytes: buf[:n]})
	}
	if scan.Err() != nil {
		return nil, fmt.Errorf("scan error: %s", scan.Err())
	}

	return lines, nil
}

// LoadHexDump copies a hex dump into mem, offsets being relative to the
// start of mem.
func LoadHexDump(mem []byte, dump string) error {
	lines, err := ParseHexDump(dump)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if int(l.Off)+len(l.Bytes) > len(mem) {
			return fmt.Errorf("line at %04x doesn't fit in %d bytes", l.Off, len(mem))
		}
		copy(mem[l.Off:], l.Bytes)
	}
	return nil
}
