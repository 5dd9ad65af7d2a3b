package entity

import "time"

// BookingStatus is the status field of a trip booking
type BookingStatus string

const (
	BookingStatusPendingApproval  BookingStatus = "PENDING_APPROVAL"
	BookingStatusReadyForDispatch BookingStatus = "READY_FOR_DISPATCH"
	BookingStatusCancelled        BookingStatus = "CANCELLED"
)

// BookingKind is the trip shape of a booking
type BookingKind string

const (
	BookingKindSingle    BookingKind = "SINGLE"
	BookingKindMultiStop BookingKind = "MULTI_STOP"
	BookingKindRecurring BookingKind = "RECURRING"
)

// CancelReasonApprovalRejected is recorded when a rejection cancels a booking
const CancelReasonApprovalRejected = "approval rejected"

// Booking is the slice of the trip-request entity this workflow reads and writes
type Booking struct {
	ID             string        `json:"id"`
	RequesterID    string        `json:"requester_id"`
	Kind           BookingKind   `json:"kind"`
	IsBusinessTrip bool          `json:"is_business_trip"`
	Status         BookingStatus `json:"status"`
	CancelReason   string        `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
