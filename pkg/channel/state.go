package channel

import "sync/atomic"

// State is the lifecycle state of one external connection.
type State int32

const (
	// Disconnected is the initial and final state.
	Disconnected State = iota
	// Connecting covers the handshake and any reconnect attempt.
	Connecting
	// Connected means the channel is live and queues are allocated.
	Connected
	// Disconnecting covers the graceful shutdown window.
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// stateValue holds a State with atomic transitions.
type stateValue struct {
	v atomic.Int32
}

func (s *stateValue) Load() State { return State(s.v.Load()) }

func (s *stateValue) Store(st State) { s.v.Store(int32(st)) }

func (s *stateValue) CompareAndSwap(old, next State) bool {
	return s.v.CompareAndSwap(int32(old), int32(next))
}
