package loop

import "sync/atomic"

// State represents the current lifecycle state of a Loop.
//
// State Machine:
//
//	StateAwake (0) -> StateRunning (3)     [Run]
//	StateRunning (3) -> StateSleeping (2)   [tick, waiting for deadline]
//	StateSleeping (2) -> StateRunning (3)   [wake]
//	StateRunning/Sleeping -> StateTerminated (1) [Terminate requested, Run returns]
//
// Terminate is cooperative, not a state of its own: it sets a flag Run
// observes at the next tick or wake boundary, same as the C++ original's
// plain `_terminated` bool.
//
// NOTE: numeric values are ordered to match the C++ original this runtime is
// modeled on (Terminated=1, Sleeping=2) rather than increasing with the order
// listed above.
type State uint32

const (
	StateAwake      State = 0
	StateTerminated State = 1
	StateSleeping   State = 2
	StateRunning    State = 3
)

func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free atomic holder for State.
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
