package discipline

// State is the GPS discipline state.
type State uint8

const (
	NoPps State = iota
	Acquiring
	Locked
	Holdover
	BadJitter
)

func (s State) String() string {
	switch s {
	case NoPps:
		return "NO_PPS"
	case Acquiring:
		return "ACQUIRING"
	case Locked:
		return "LOCKED"
	case Holdover:
		return "HOLDOVER"
	case BadJitter:
		return "BAD_JITTER"
	default:
		return "UNKNOWN"
	}
}

// Wire status values carried on every sample.
const (
	WireNoPps     uint8 = 0
	WireAcquiring uint8 = 1
	WireLocked    uint8 = 2
)

// WireStatus maps the state onto the three-valued sample field. Holdover
// and BadJitter report as Acquiring.
func (s State) WireStatus() uint8 {
	switch s {
	case NoPps:
		return WireNoPps
	case Locked:
		return WireLocked
	default:
		return WireAcquiring
	}
}
