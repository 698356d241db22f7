package orchestration

// State is a step of the synthesis state machine.
//
//	INIT → PLANNING → ACTING → VALIDATING → DONE
//	                              ↓
//	               PLANNING ← REPAIRING → FAILED
//
// CANCELLED is reachable from the top of any iteration.
type State string

const (
	StateInit       State = "INIT"
	StatePlanning   State = "PLANNING"
	StateActing     State = "ACTING"
	StateValidating State = "VALIDATING"
	StateRepairing  State = "REPAIRING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StateInit:       {StatePlanning, StateCancelled},
	StatePlanning:   {StateActing, StateFailed, StateCancelled},
	StateActing:     {StateValidating, StatePlanning, StateFailed, StateCancelled},
	StateValidating: {StateDone, StateRepairing, StateFailed},
	StateRepairing:  {StatePlanning, StateFailed, StateCancelled},
}

// CanTransition reports whether next may follow s.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
