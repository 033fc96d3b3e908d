package capture

// State is the acquisition state.
type State uint8

const (
	Idle State = iota
	// ArmedInit is entered by Arm and left on the first poll.
	ArmedInit
	// Armed waits for the trigger: the armed channel's count is unchanged.
	Armed
	// Capturing means samples are landing in the ring.
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ArmedInit:
		return "armed-init"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// EndReason records how the last acquisition ended.
type EndReason uint8

const (
	EndNone EndReason = iota
	// EndComplete is the completion interrupt: the sample budget ran out.
	EndComplete
	// EndStop is a forced completion (follow-along stop).
	EndStop
	// EndCancel is a user cancellation.
	EndCancel
	// EndAbort is a capture torn down by a re-arm or cleanup.
	EndAbort
)

func (r EndReason) String() string {
	switch r {
	case EndNone:
		return "none"
	case EndComplete:
		return "complete"
	case EndStop:
		return "stopped"
	case EndCancel:
		return "cancelled"
	case EndAbort:
		return "aborted"
	default:
		return "unknown"
	}
}
