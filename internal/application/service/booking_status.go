package service

import (
	"context"
	"fmt"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
)

// BookingStatusCoordinator propagates approval decisions into the parent booking.
// Apply must run in the same transaction as the approval write that triggered it.
type BookingStatusCoordinator struct {
	bookings port.BookingStore
}

// NewBookingStatusCoordinator creates a coordinator writing through bookings
func NewBookingStatusCoordinator(bookings port.BookingStore) *BookingStatusCoordinator {
	return &BookingStatusCoordinator{bookings: bookings}
}

// BookingStatusFor maps a decided approval status to the booking status it drives.
// The booking kind plays no part: every approved booking becomes ready for dispatch.
func BookingStatusFor(status entity.ApprovalStatus) (entity.BookingStatus, string, bool) {
	switch status {
	case entity.ApprovalStatusApproved:
		return entity.BookingStatusReadyForDispatch, "", true
	case entity.ApprovalStatusRejected:
		return entity.BookingStatusCancelled, entity.CancelReasonApprovalRejected, true
	default:
		return "", "", false
	}
}

// InitialBookingStatus is the status a booking is created with for a resolved approval type
func InitialBookingStatus(approvalType entity.ApprovalType) entity.BookingStatus {
	if approvalType == entity.ApprovalTypeManagerApproval {
		return entity.BookingStatusPendingApproval
	}
	return entity.BookingStatusReadyForDispatch
}

// Apply writes the booking status for record. Statuses that do not drive the
// booking (pending, expired) are ignored.
func (c *BookingStatusCoordinator) Apply(ctx context.Context, record *entity.ApprovalRecord) error {
	status, reason, ok := BookingStatusFor(record.Status)
	if !ok {
		return nil
	}

	applied, err := c.bookings.UpdateStatus(ctx, record.BookingID, status, reason)
	if err != nil {
		return fmt.Errorf("update booking %s to %s: %w", record.BookingID, status, err)
	}
	if !applied {
		return fmt.Errorf("booking %s: %w", record.BookingID, workflow.ErrNotFound)
	}
	return nil
}
