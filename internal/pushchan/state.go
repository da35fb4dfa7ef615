package pushchan

// State is the connection lifecycle state. Exactly one state is active at a
// time, owned by a single Client.
type State int

const (
	// StateDisconnected is the initial state, and the state after an
	// explicit Disconnect or a failed initial dial.
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateFailed is entered when the retry budget is exhausted. It is
	// sticky until the owner calls Connect again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
