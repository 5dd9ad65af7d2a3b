package workflow

// StateMachine tracks a current state and validates transitions out of it
type StateMachine interface {
	// State returns the current state
	State() State

	// Next resolves the target state for trigger without transitioning
	Next(trigger Trigger) (State, error)
}
