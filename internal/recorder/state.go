package recorder

// StateType is the recorder's lifecycle state.
type StateType int

const (
	// StateIdle means no capture is open.
	StateIdle StateType = iota
	// StateStarting means the capture source is being opened.
	StateStarting
	// StateRecording means audio is being captured.
	StateRecording
	// StateStopping means the capture is being finalized.
	StateStopping
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// stateMachine guards recorder transitions. Callers hold the recorder lock.
type stateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:      {StateStarting},
			StateStarting:  {StateRecording, StateIdle},
			StateRecording: {StateStopping},
			StateStopping:  {StateIdle},
		},
		onEnter: make(map[StateType]func()),
	}
}

// Transition moves to state to and reports whether the move was allowed.
func (sm *stateMachine) Transition(to StateType) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	sm.current = to
	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
	return true
}

func (sm *stateMachine) Current() StateType { return sm.current }

func (sm *stateMachine) OnEnter(state StateType, fn func()) { sm.onEnter[state] = fn }
