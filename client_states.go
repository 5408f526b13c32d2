package dspclient

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
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
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsConnected reports whether commands can be transmitted in this state.
func (s State) IsConnected() bool {
	return s == StateConnected
}

// IsTerminal reports whether the client stopped retrying on its own.
func (s State) IsTerminal() bool {
	return s == StateDisconnected || s == StateError
}
