// Package config holds the pipeline tunables: their defaults, bounds, the
// YAML file they persist to, and the live store the main loop reads.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// Tunables are the runtime-adjustable settings.
type Tunables struct {
	CorrectionJumpThresh float64       `yaml:"correctionJumpThresh"`
	PpsFastShift         uint8         `yaml:"ppsFastShift"`
	PpsSlowShift         uint8         `yaml:"ppsSlowShift"`
	PpsHampelWin         uint8         `yaml:"ppsHampelWin"`
	PpsHampelKx100       uint16        `yaml:"ppsHampelKx100"`
	PpsMedian3           bool          `yaml:"ppsMedian3"`
	PpsBlendLoPpm        uint16        `yaml:"ppsBlendLoPpm"`
	PpsBlendHiPpm        uint16        `yaml:"ppsBlendHiPpm"`
	PpsLockRppm          uint16        `yaml:"ppsLockRppm"`
	PpsLockJppm          uint16        `yaml:"ppsLockJppm"`
	PpsUnlockRppm        uint16        `yaml:"ppsUnlockRppm"`
	PpsUnlockJppm        uint16        `yaml:"ppsUnlockJppm"`
	PpsUnlockCount       uint8         `yaml:"ppsUnlockCount"`
	PpsHoldoverMs        uint16        `yaml:"ppsHoldoverMs"`
	DataUnits            emitter.Units `yaml:"dataUnits"`
}

// Default returns the stock tunables.
func Default() *Tunables {
	return &Tunables{
		CorrectionJumpThresh: discipline.DefaultCorrectionJumpThresh,
		PpsFastShift:         discipline.DefaultFastShift,
		PpsSlowShift:         discipline.DefaultSlowShift,
		PpsHampelWin:         discipline.DefaultHampelWindow,
		PpsHampelKx100:       discipline.DefaultHampelKx100,
		PpsMedian3:           discipline.DefaultMedian3,
		PpsBlendLoPpm:        discipline.DefaultBlendLoPpm,
		PpsBlendHiPpm:        discipline.DefaultBlendHiPpm,
		PpsLockRppm:          discipline.DefaultLockRppm,
		PpsLockJppm:          discipline.DefaultLockJppm,
		PpsUnlockRppm:        discipline.DefaultUnlockRppm,
		PpsUnlockJppm:        discipline.DefaultUnlockJppm,
		PpsUnlockCount:       discipline.DefaultUnlockCount,
		PpsHoldoverMs:        discipline.DefaultHoldoverMs,
		DataUnits:            emitter.RawCycles,
	}
}

// Load reads tunables from a YAML file. A missing file yields defaults, and
// fields absent from the file keep their default values.
func Load(filename string) (*Tunables, error) {
	t := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("read tunables: %w", err)
	}

	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse tunables: %w", err)
	}

	t.ensureDefaults()

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tunables %s: %w", filename, err)
	}
	return t, nil
}

// Save writes the tunables to a YAML file.
func (t *Tunables) Save(filename string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tunables: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write tunables: %w", err)
	}
	return nil
}

// ensureDefaults fills fields where zero means "unset".
func (t *Tunables) ensureDefaults() {
	def := Default()
	if t.CorrectionJumpThresh == 0 {
		t.CorrectionJumpThresh = def.CorrectionJumpThresh
	}
	if t.PpsFastShift == 0 {
		t.PpsFastShift = def.PpsFastShift
	}
	if t.PpsSlowShift == 0 {
		t.PpsSlowShift = def.PpsSlowShift
	}
	if t.PpsHampelWin == 0 {
		t.PpsHampelWin = def.PpsHampelWin
	}
	if t.PpsHampelKx100 == 0 {
		t.PpsHampelKx100 = def.PpsHampelKx100
	}
	if t.PpsUnlockCount == 0 {
		t.PpsUnlockCount = def.PpsUnlockCount
	}
	if t.PpsHoldoverMs == 0 {
		t.PpsHoldoverMs = def.PpsHoldoverMs
	}
}

// Validate checks every field against its bounds, then the threshold pairs.
func (t *Tunables) Validate() error {
	for _, p := range params {
		if err := p.check(t); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return t.checkPairs()
}

// checkPairs rejects threshold pairs whose order would make the blend or
// the lock hysteresis meaningless.
func (t *Tunables) checkPairs() error {
	switch {
	case t.PpsBlendLoPpm > t.PpsBlendHiPpm:
		return fmt.Errorf("%w: ppsBlendLoPpm %d above ppsBlendHiPpm %d",
			ErrInvalidValue, t.PpsBlendLoPpm, t.PpsBlendHiPpm)
	case t.PpsLockRppm >= t.PpsUnlockRppm:
		return fmt.Errorf("%w: ppsLockRppm %d must be below ppsUnlockRppm %d",
			ErrInvalidValue, t.PpsLockRppm, t.PpsUnlockRppm)
	case t.PpsLockJppm >= t.PpsUnlockJppm:
		return fmt.Errorf("%w: ppsLockJppm %d must be below ppsUnlockJppm %d",
			ErrInvalidValue, t.PpsLockJppm, t.PpsUnlockJppm)
	}
	return nil
}

// DisciplineParams converts the tunables for the discipline engine.
func (t *Tunables) DisciplineParams() discipline.Params {
	return discipline.Params{
		FastShift:            t.PpsFastShift,
		SlowShift:            t.PpsSlowShift,
		HampelWindow:         t.PpsHampelWin,
		HampelKx100:          t.PpsHampelKx100,
		Median3:              t.PpsMedian3,
		BlendLoPpm:           uint32(t.PpsBlendLoPpm),
		BlendHiPpm:           uint32(t.PpsBlendHiPpm),
		LockRppm:             uint32(t.PpsLockRppm),
		LockJppm:             uint32(t.PpsLockJppm),
		UnlockRppm:           uint32(t.PpsUnlockRppm),
		UnlockJppm:           uint32(t.PpsUnlockJppm),
		UnlockCount:          t.PpsUnlockCount,
		HoldoverMs:           uint32(t.PpsHoldoverMs),
		CorrectionJumpThresh: t.CorrectionJumpThresh,
	}
}
