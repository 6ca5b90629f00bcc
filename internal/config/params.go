package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

var (
	// ErrUnknownParam is returned for a parameter name that does not exist.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrInvalidValue is returned for a value that does not parse or is out of range.
	ErrInvalidValue = errors.New("invalid value")
)

// Param describes one tunable.
type Param struct {
	Name    string
	Help    string
	Example string

	get   func(t *Tunables) string
	set   func(t *Tunables, v string) error
	check func(t *Tunables) error
}

// Get formats the parameter's current value in t.
func (p *Param) Get(t *Tunables) string {
	return p.get(t)
}

// aliases maps legacy names to their current parameter.
var aliases = map[string]string{
	"ppsemashift": "ppsSlowShift",
}

var params = []*Param{
	{
		Name: "correctionJumpThresh", Help: "max |inst-slow|/slow for lock (fraction)", Example: "set correctionJumpThresh 0.002",
		get: func(t *Tunables) string { return strconv.FormatFloat(t.CorrectionJumpThresh, 'f', 6, 64) },
		set: func(t *Tunables, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return ErrInvalidValue
			}
			t.CorrectionJumpThresh = f
			return nil
		},
		check: func(t *Tunables) error {
			if !(t.CorrectionJumpThresh > 0 && t.CorrectionJumpThresh <= 1) {
				return fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue)
			}
			return nil
		},
	},
	uintParam("ppsFastShift", "fast EWMA shift (lower=faster)", "set ppsFastShift 3", 1, 16,
		func(t *Tunables) *uint8 { return &t.PpsFastShift }),
	uintParam("ppsSlowShift", "slow EWMA shift (higher=smoother)", "set ppsSlowShift 8", 1, 16,
		func(t *Tunables) *uint8 { return &t.PpsSlowShift }),
	{
		Name: "ppsHampelWin", Help: "Hampel window (odd 5..9)", Example: "set ppsHampelWin 7",
		get: func(t *Tunables) string { return strconv.FormatUint(uint64(t.PpsHampelWin), 10) },
		set: func(t *Tunables, v string) error {
			n, err := parseUint(v, 5, 9)
			if err != nil {
				return err
			}
			t.PpsHampelWin = uint8(n)
			return nil
		},
		check: func(t *Tunables) error {
			if !discipline.ValidWindow(t.PpsHampelWin) {
				return fmt.Errorf("%w: window must be odd 5..9", ErrInvalidValue)
			}
			return nil
		},
	},
	uint16Param("ppsHampelKx100", "Hampel k x100 (300 = k 3.00)", "set ppsHampelKx100 300", 1, 1000,
		func(t *Tunables) *uint16 { return &t.PpsHampelKx100 }),
	{
		Name: "ppsMedian3", Help: "median-of-3 after Hampel (0/1)", Example: "set ppsMedian3 1",
		get: func(t *Tunables) string {
			if t.PpsMedian3 {
				return "1"
			}
			return "0"
		},
		set: func(t *Tunables, v string) error {
			switch strings.ToLower(v) {
			case "1", "true", "on":
				t.PpsMedian3 = true
			case "0", "false", "off":
				t.PpsMedian3 = false
			default:
				return ErrInvalidValue
			}
			return nil
		},
		check: func(*Tunables) error { return nil },
	},
	uint16Param("ppsBlendLoPpm", "R below which the slow estimate is used", "set ppsBlendLoPpm 5", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsBlendLoPpm }),
	uint16Param("ppsBlendHiPpm", "R above which the fast estimate is used", "set ppsBlendHiPpm 200", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsBlendHiPpm }),
	uint16Param("ppsLockRppm", "max R to count toward lock", "set ppsLockRppm 50", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsLockRppm }),
	uint16Param("ppsLockJppm", "max J to count toward lock", "set ppsLockJppm 20", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsLockJppm }),
	uint16Param("ppsUnlockRppm", "R that counts toward unlock", "set ppsUnlockRppm 200", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsUnlockRppm }),
	uint16Param("ppsUnlockJppm", "J that counts toward unlock", "set ppsUnlockJppm 100", 0, 65535,
		func(t *Tunables) *uint16 { return &t.PpsUnlockJppm }),
	uintParam("ppsUnlockCount", "consecutive unlock pulses to leave lock", "set ppsUnlockCount 3", 1, 255,
		func(t *Tunables) *uint8 { return &t.PpsUnlockCount }),
	uint16Param("ppsHoldoverMs", "PPS silence before holdover (ms)", "set ppsHoldoverMs 1500", 100, 60000,
		func(t *Tunables) *uint16 { return &t.PpsHoldoverMs }),
	{
		Name: "dataUnits", Help: "sample units: " + strings.Join(emitter.UnitNames(), "|"), Example: "set dataUnits adjusted_us",
		get: func(t *Tunables) string { return t.DataUnits.String() },
		set: func(t *Tunables, v string) error {
			u, err := emitter.ParseUnits(v)
			if err != nil {
				return ErrInvalidValue
			}
			t.DataUnits = u
			return nil
		},
		check: func(t *Tunables) error {
			if t.DataUnits.String() == "unknown" {
				return ErrInvalidValue
			}
			return nil
		},
	},
}

// Params lists every tunable in display order.
func Params() []*Param {
	return params
}

// Lookup finds a parameter by name, case-insensitively, following aliases.
func Lookup(name string) (*Param, bool) {
	if canon, ok := aliases[strings.ToLower(name)]; ok {
		name = canon
	}
	for _, p := range params {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

func uintParam(name, help, example string, lo, hi uint64, field func(*Tunables) *uint8) *Param {
	return &Param{
		Name: name, Help: help, Example: example,
		get: func(t *Tunables) string { return strconv.FormatUint(uint64(*field(t)), 10) },
		set: func(t *Tunables, v string) error {
			n, err := parseUint(v, lo, hi)
			if err != nil {
				return err
			}
			*field(t) = uint8(n)
			return nil
		},
		check: func(t *Tunables) error { return inRange(uint64(*field(t)), lo, hi) },
	}
}

func uint16Param(name, help, example string, lo, hi uint64, field func(*Tunables) *uint16) *Param {
	return &Param{
		Name: name, Help: help, Example: example,
		get: func(t *Tunables) string { return strconv.FormatUint(uint64(*field(t)), 10) },
		set: func(t *Tunables, v string) error {
			n, err := parseUint(v, lo, hi)
			if err != nil {
				return err
			}
			*field(t) = uint16(n)
			return nil
		},
		check: func(t *Tunables) error { return inRange(uint64(*field(t)), lo, hi) },
	}
}

func parseUint(v string, lo, hi uint64) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, ErrInvalidValue
	}
	return n, inRange(n, lo, hi)
}

func inRange(n, lo, hi uint64) error {
	if n < lo || n > hi {
		return fmt.Errorf("%w: %d not in %d..%d", ErrInvalidValue, n, lo, hi)
	}
	return nil
}
