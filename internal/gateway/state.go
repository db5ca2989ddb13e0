package gateway

import "sync/atomic"

// State is where a connection is in its lifecycle.
type State int32

const (
	// StateUnauthenticated is the state of every new transport connection.
	StateUnauthenticated State = iota
	// StateAuthenticated is reached once presence is registered.
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnState holds a connection's State. The zero value is unauthenticated.
type ConnState struct {
	v atomic.Int32
}

// Current returns the current state.
func (c *ConnState) Current() State {
	return State(c.v.Load())
}

// Advance moves to next if the transition is legal and reports whether it
// happened. Legal: unauthenticated→authenticated, unauthenticated→closed,
// authenticated→closed.
func (c *ConnState) Advance(next State) bool {
	for {
		current := c.Current()
		if !legal(current, next) {
			return false
		}
		if c.v.CompareAndSwap(int32(current), int32(next)) {
			return true
		}
	}
}

// Close moves to the closed state from any state and returns the previous one.
func (c *ConnState) Close() State {
	return State(c.v.Swap(int32(StateClosed)))
}

func legal(from, to State) bool {
	switch from {
	case StateUnauthenticated:
		return to == StateAuthenticated || to == StateClosed
	case StateAuthenticated:
		return to == StateClosed
	default:
		return false
	}
}
