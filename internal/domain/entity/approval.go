package entity

import "time"

// ApprovalType is the sign-off pathway required for a booking
type ApprovalType string

const (
	ApprovalTypeAutoApproved    ApprovalType = "AUTO_APPROVED"
	ApprovalTypeCcOnly          ApprovalType = "CC_ONLY"
	ApprovalTypeManagerApproval ApprovalType = "MANAGER_APPROVAL"
)

// IsValid reports whether t is a known approval type
func (t ApprovalType) IsValid() bool {
	switch t {
	case ApprovalTypeAutoApproved, ApprovalTypeCcOnly, ApprovalTypeManagerApproval:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the lifecycle status of an ApprovalRecord
type ApprovalStatus string

const (
	ApprovalStatusPending      ApprovalStatus = "PENDING"
	ApprovalStatusApproved     ApprovalStatus = "APPROVED"
	ApprovalStatusRejected     ApprovalStatus = "REJECTED"
	ApprovalStatusAutoApproved ApprovalStatus = "AUTO_APPROVED"
	ApprovalStatusExpired      ApprovalStatus = "EXPIRED"
)

// IsTerminal returns true for every status except PENDING
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalStatusPending
}

// ApprovalRecord gates a single booking until a manager decides on it.
// CC-only records are created terminal; manager approvals start PENDING
// and carry a deadline and a bounded reminder ladder.
type ApprovalRecord struct {
	ID             string         `json:"id"`
	BookingID      string         `json:"booking_id"`
	RequesterID    string         `json:"requester_id"`
	ApproverID     string         `json:"approver_id"`
	ApprovalType   ApprovalType   `json:"approval_type"`
	Status         ApprovalStatus `json:"status"`
	Notes          *string        `json:"notes,omitempty"`
	ReminderCount  int            `json:"reminder_count"`
	LastReminderAt *time.Time     `json:"last_reminder_at,omitempty"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsPending reports whether the record still awaits a decision
func (r *ApprovalRecord) IsPending() bool {
	return r.Status == ApprovalStatusPending
}

// IsOverdue reports whether a pending record has passed its deadline
func (r *ApprovalRecord) IsOverdue(now time.Time) bool {
	return r.IsPending() && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// NeedsReminder reports whether the reminder ladder allows another nudge at now
func (r *ApprovalRecord) NeedsReminder(now time.Time, policy ReminderPolicy) bool {
	if !r.IsPending() || r.ReminderCount >= policy.MaxReminders {
		return false
	}
	if !r.CreatedAt.Before(now.Add(-policy.Delay)) {
		return false
	}
	return r.LastReminderAt == nil || r.LastReminderAt.Before(now.Add(-policy.Interval))
}

// Default workflow timings
const (
	DefaultApprovalDeadline = 24 * time.Hour
	DefaultReminderDelay    = 4 * time.Hour
	DefaultReminderInterval = time.Hour
	DefaultMaxReminders     = 3
)

// ReminderPolicy defines the escalation ladder for pending approvals
type ReminderPolicy struct {
	Delay        time.Duration `json:"delay"`
	Interval     time.Duration `json:"interval"`
	MaxReminders int           `json:"max_reminders"`
}

// DefaultReminderPolicy returns the 4h / 1h / 3 reminder ladder
func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{
		Delay:        DefaultReminderDelay,
		Interval:     DefaultReminderInterval,
		MaxReminders: DefaultMaxReminders,
	}
}
