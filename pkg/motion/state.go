package motion

// State is the coarse public state of a Scheduler.
type State int

const (
	// Idle signifies no active performers.
	Idle State = iota
	// Active signifies one or more active performers.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Activity is reported by a manual performer after each frame to indicate
// whether it still has work left.
type Activity int

const (
	// ActivityIdle means the performer finished its work and no longer needs
	// frame updates.
	ActivityIdle Activity = iota
	// ActivityActive means the performer needs further frame updates.
	ActivityActive
)

// Detailed-state bitmask flags. The detailed state records which categories
// of performer are currently active; the public State collapses it to
// zero/non-zero.
const (
	flagManual     uint8 = 1 << 0
	flagContinuous uint8 = 1 << 1
)

// isSet reports whether flag is set on state.
func isSet(state, flag uint8) bool { return state&flag != 0 }

// changed reports whether flag differs between the two bitmasks.
func changed(oldState, newState, flag uint8) bool {
	return oldState&flag != newState&flag
}
