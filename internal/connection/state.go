package connection

import (
	"slices"
	"time"
)

// State is the lifecycle state of the selected device.
type State int

// Connection states.
const (
	Disconnected State = iota
	Detecting
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Detecting:
		return "detecting"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateChange describes one transition.
type StateChange struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	DeviceID string    `json:"device_id,omitempty"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// transitions lists the moves the manager may make.
//
//nolint:gochecknoglobals // transition table
var transitions = map[State][]State{
	Disconnected: {Detecting, Connecting},
	Detecting:    {Disconnected, Error},
	Connecting:   {Connected, Error, Disconnected},
	Connected:    {Disconnected},
	Error:        {Connecting, Detecting, Disconnected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
