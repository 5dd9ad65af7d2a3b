package workflow

// ApprovalMachine returns the builder for the approval record lifecycle.
// Only PENDING has outgoing transitions; every other state is terminal.
func ApprovalMachine() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerExpire, StateExpired)
	return b
}
