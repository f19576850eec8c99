package speakstream

import "sync"

// State is the phase of the current speaking session.
type State int

const (
	// StateIdle indicates nothing is buffered, pending, or playing.
	StateIdle State = iota
	// StateAccumulating indicates text is buffered but no sentence is pending.
	StateAccumulating
	// StateDispatching indicates sentences are synthesizing or awaiting release.
	StateDispatching
	// StatePlaying indicates audio is being played.
	StatePlaying
	// StateInterrupted is entered by stop speech and immediately left for Idle.
	StateInterrupted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateDispatching:
		return "dispatching"
	case StatePlaying:
		return "playing"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// StateMachine guards session state transitions. It is safe for concurrent use;
// callbacks run synchronously on the goroutine that caused the transition.
type StateMachine struct {
	mu          sync.Mutex
	current     State
	transitions map[State][]State
	onChange    func(from, to State)
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:         {StateAccumulating, StateDispatching, StatePlaying},
			StateAccumulating: {StateIdle, StateDispatching, StatePlaying, StateInterrupted},
			StateDispatching:  {StateIdle, StateAccumulating, StatePlaying, StateInterrupted},
			StatePlaying:      {StateIdle, StateAccumulating, StateDispatching, StateInterrupted},
			StateInterrupted:  {StateIdle},
		},
	}
}

// Transition moves to the given state if the transition is allowed.
// Transitioning to the current state is a no-op that reports false.
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	from := sm.current
	if from == to || !sm.canTransitionLocked(to) {
		sm.mu.Unlock()
		return false
	}
	sm.current = to
	fn := sm.onChange
	sm.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.canTransitionLocked(to)
}

func (sm *StateMachine) canTransitionLocked(to State) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// OnChange registers a callback invoked after every transition.
func (sm *StateMachine) OnChange(fn func(from, to State)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}
