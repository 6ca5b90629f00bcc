// Package protocol formats the line-oriented CSV stream and handles the
// text commands that arrive on the same link.
package protocol

import (
	"fmt"
	"strings"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// Line tags.
const (
	TagHDR = "HDR" // header line
	TagDAT = "DAT" // data line with unknown units
	TagSTS = "STS" // status line

	Tag16MHz = "16Mhz"
	TagNSec  = "nSec"
	TagUSec  = "uSec"
	TagMSec  = "mSec"
)

// StatusCode classifies STS lines.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusUnknownCommand
	StatusInvalidParam
	StatusInvalidValue
	StatusInternalError
	StatusProgressUpdate
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusUnknownCommand:
		return "UNKNOWN_COMMAND"
	case StatusInvalidParam:
		return "INVALID_PARAM"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusProgressUpdate:
		return "PROGRESS_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// UnitTag returns the data line tag for units.
func UnitTag(u emitter.Units) string {
	switch u {
	case emitter.RawCycles:
		return Tag16MHz
	case emitter.AdjustedNs:
		return TagNSec
	case emitter.AdjustedUs:
		return TagUSec
	case emitter.AdjustedMs:
		return TagMSec
	default:
		return TagDAT
	}
}

func unitSuffix(u emitter.Units) string {
	switch u {
	case emitter.AdjustedMs:
		return "ms"
	case emitter.AdjustedUs:
		return "us"
	case emitter.AdjustedNs:
		return "ns"
	default:
		return "cycles"
	}
}

// Fields returns the column names of a data line in units u.
func Fields(u emitter.Units) []string {
	s := unitSuffix(u)
	return []string{
		"tick_" + s,
		"tock_" + s,
		"tick_block_" + s,
		"tock_block_" + s,
		"corr_inst_ppm",
		"corr_blend_ppm",
		"gps_status",
		"dropped_events",
	}
}

// HeaderLine formats the header for units u.
func HeaderLine(u emitter.Units) string {
	return TagHDR + "," + strings.Join(Fields(u), ",")
}

// SampleLine formats one sample.
func SampleLine(s emitter.Sample) string {
	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d,%d,%d",
		UnitTag(s.Units),
		s.Tick,
		s.Tock,
		s.TickBlock,
		s.TockBlock,
		s.CorrInstPpm,
		s.CorrBlendPpm,
		s.GpsStatus,
		s.Dropped)
}

// StatusLine formats an STS line.
func StatusLine(code StatusCode, text string) string {
	return fmt.Sprintf("%s,%s,%s", TagSTS, code, text)
}
