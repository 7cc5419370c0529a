// ABOUTME: Connection lifecycle states and the errors the manager reports.
// ABOUTME: Disconnected is terminal until Connect is called again.

package connection

import "errors"

// Connection errors
var (
	ErrNotConnected          = errors.New("not connected")
	ErrReconnectionExhausted = errors.New("reconnection attempts exhausted")
	ErrTransport             = errors.New("transport error")
	ErrClosed                = errors.New("connection manager closed")
	ErrInvalidIdentity       = errors.New("invalid identity")
	ErrInvalidBaseURL        = errors.New("invalid base url")
)

// State is a position in the connection lifecycle.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Reconnecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
