package entity

import "time"

// NotificationType identifies what a notification is about
type NotificationType string

const (
	NotificationApprovalRequired NotificationType = "APPROVAL_REQUIRED"
	NotificationApprovalCC       NotificationType = "APPROVAL_CC"
	NotificationApprovalApproved NotificationType = "APPROVAL_APPROVED"
	NotificationApprovalRejected NotificationType = "APPROVAL_REJECTED"
	NotificationApprovalExpired  NotificationType = "APPROVAL_EXPIRED"
	NotificationApprovalReminder NotificationType = "APPROVAL_REMINDER"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification is a delivery log row for one message to one user
type Notification struct {
	ID         int64            `json:"id"`
	UserID     string           `json:"user_id"`
	BookingID  string           `json:"booking_id"`
	ApprovalID string           `json:"approval_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Status     string           `json:"status"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
	SentAt     *time.Time       `json:"sent_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
