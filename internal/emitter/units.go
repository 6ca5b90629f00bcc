package emitter

import (
	"fmt"
	"strings"
)

// Units selects how phase durations are reported.
type Units uint8

const (
	RawCycles Units = iota
	AdjustedMs
	AdjustedUs
	AdjustedNs
)

var unitNames = [...]string{
	RawCycles:  "raw_cycles",
	AdjustedMs: "adjusted_ms",
	AdjustedUs: "adjusted_us",
	AdjustedNs: "adjusted_ns",
}

func (u Units) String() string {
	if int(u) < len(unitNames) {
		return unitNames[u]
	}
	return "unknown"
}

// ParseUnits accepts a unit name, case-insensitively.
func ParseUnits(s string) (Units, error) {
	for i, name := range unitNames {
		if strings.EqualFold(s, name) {
			return Units(i), nil
		}
	}
	return 0, fmt.Errorf("unknown units %q", s)
}

// UnitNames lists the accepted unit names.
func UnitNames() []string {
	return append([]string(nil), unitNames[:]...)
}

// MarshalText implements encoding.TextMarshaler.
func (u Units) MarshalText() ([]byte, error) {
	if int(u) >= len(unitNames) {
		return nil, fmt.Errorf("invalid units %d", u)
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Units) UnmarshalText(b []byte) error {
	v, err := ParseUnits(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Convert expresses ticks in u, treating denom as the oscillator frequency.
func (u Units) Convert(ticks, denom uint32) uint32 {
	if denom == 0 {
		return ticks
	}
	switch u {
	case AdjustedNs:
		return uint32(uint64(ticks) * 1_000_000_000 / uint64(denom))
	case AdjustedUs:
		return uint32(uint64(ticks) * 1_000_000 / uint64(denom))
	case AdjustedMs:
		return uint32(uint64(ticks)*1_000_000/uint64(denom)) / 1000
	default:
		return ticks
	}
}
