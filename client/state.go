package client

import "fmt"

// State of the pixie connection.
//
//	Disconnected ──EnsureConnected──→ Connecting ──ok──→ Connected
//	      ↑                               │                  │
//	      └──────────── dial failed ──────┘          transport error
//	                                                         ↓
//	                 Connecting ←──── next use ───────── Faulted
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
