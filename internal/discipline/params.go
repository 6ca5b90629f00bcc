package discipline

// Defaults for Params.
const (
	DefaultFastShift            = 3
	DefaultSlowShift            = 8
	DefaultHampelWindow         = 7
	DefaultHampelKx100          = 300
	DefaultMedian3              = true
	DefaultBlendLoPpm           = 5
	DefaultBlendHiPpm           = 200
	DefaultLockRppm             = 50
	DefaultLockJppm             = 20
	DefaultUnlockRppm           = 200
	DefaultUnlockJppm           = 100
	DefaultUnlockCount          = 3
	DefaultHoldoverMs           = 1500
	DefaultCorrectionJumpThresh = 0.002
)

// LockStableCount is the number of consecutive lock-ready pulses that
// promote any state to Locked.
const LockStableCount = 10

// Params are the pipeline tunables read once per pulse.
type Params struct {
	FastShift    uint8
	SlowShift    uint8
	HampelWindow uint8
	HampelKx100  uint16
	Median3      bool

	BlendLoPpm uint32
	BlendHiPpm uint32

	LockRppm    uint32
	LockJppm    uint32
	UnlockRppm  uint32
	UnlockJppm  uint32
	UnlockCount uint8

	HoldoverMs uint32

	// CorrectionJumpThresh is a fraction, not ppm.
	CorrectionJumpThresh float64
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		FastShift:            DefaultFastShift,
		SlowShift:            DefaultSlowShift,
		HampelWindow:         DefaultHampelWindow,
		HampelKx100:          DefaultHampelKx100,
		Median3:              DefaultMedian3,
		BlendLoPpm:           DefaultBlendLoPpm,
		BlendHiPpm:           DefaultBlendHiPpm,
		LockRppm:             DefaultLockRppm,
		LockJppm:             DefaultLockJppm,
		UnlockRppm:           DefaultUnlockRppm,
		UnlockJppm:           DefaultUnlockJppm,
		UnlockCount:          DefaultUnlockCount,
		HoldoverMs:           DefaultHoldoverMs,
		CorrectionJumpThresh: DefaultCorrectionJumpThresh,
	}
}

// ParamSource supplies the live tunables.
type ParamSource interface {
	DisciplineParams() Params
}

// StaticParams is a ParamSource that never changes.
type StaticParams Params

// DisciplineParams implements ParamSource.
func (p StaticParams) DisciplineParams() Params {
	return Params(p)
}
