package domain

// ConnectionState is the lifecycle state of a feed connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnectedNotReady
	StateReady
	StateReconnecting
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedNotReady:
		return "connected_not_ready"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// IsConnected reports whether a transport is open (ready or not).
func (s ConnectionState) IsConnected() bool {
	return s == StateConnectedNotReady || s == StateReady
}
