package call

// State is the call lifecycle state.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota
	// StateConnecting means a join sequence is running.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
	// StateDisconnecting means teardown is in progress.
	StateDisconnecting
	// StateError means a join attempt failed. Runtime media failures do not
	// reach this state; they degrade to audio-only instead.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
