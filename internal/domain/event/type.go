package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalCC        Type = "approval.cc"
	TypeApprovalApproved  Type = "approval.approved"
	TypeApprovalRejected  Type = "approval.rejected"
	TypeApprovalExpired   Type = "approval.expired"
	TypeApprovalReminder  Type = "approval.reminder"
)

// AllTypes lists every approval event type
func AllTypes() []Type {
	return []Type{
		TypeApprovalRequested,
		TypeApprovalCC,
		TypeApprovalApproved,
		TypeApprovalRejected,
		TypeApprovalExpired,
		TypeApprovalReminder,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}
