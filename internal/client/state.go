package client

// State is a position in the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	// StateGivenUp is terminal until Connect is called again.
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given-up"
	default:
		return "unknown"
	}
}
