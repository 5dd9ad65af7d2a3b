package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by approval events
const (
	KeyRequesterID   = "requester_id"
	KeyApproverID    = "approver_id"
	KeyApprovalType  = "approval_type"
	KeyNotes         = "notes"
	KeyReminderCount = "reminder_count"
	KeyExpiresAt     = "expires_at"
)

// Event represents a domain event about an approval record
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ApprovalID    string                 `json:"approval_id"`
	BookingID     string                 `json:"booking_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID stamped at the given time
func NewEvent(eventType Type, approvalID, bookingID string, payload map[string]interface{}, at time.Time) *Event {
	return NewEventWithCorrelation(eventType, approvalID, bookingID, payload, at, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, approvalID, bookingID string, payload map[string]interface{}, at time.Time, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ApprovalID:    approvalID,
		BookingID:     bookingID,
		Payload:       payload,
		Timestamp:     at,
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set (the receiver is not modified)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	clone := *e
	clone.Payload = payload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case *string:
			if v != nil {
				return *v
			}
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadTime retrieves a time value from the payload
func (e *Event) GetPayloadTime(key string) (time.Time, bool) {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case time.Time:
			return v, true
		case *time.Time:
			if v != nil {
				return *v, true
			}
		}
	}
	return time.Time{}, false
}
