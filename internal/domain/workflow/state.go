package workflow

// State represents a status in the approval record lifecycle
type State string

const (
	StatePending      State = "PENDING"
	StateApproved     State = "APPROVED"
	StateRejected     State = "REJECTED"
	StateAutoApproved State = "AUTO_APPROVED"
	StateExpired      State = "EXPIRED"
)

var validStates = map[State]bool{
	StatePending:      true,
	StateApproved:     true,
	StateRejected:     true,
	StateAutoApproved: true,
	StateExpired:      true,
}

var terminalStates = map[State]bool{
	StateApproved:     true,
	StateRejected:     true,
	StateAutoApproved: true,
	StateExpired:      true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
