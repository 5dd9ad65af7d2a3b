package service

import (
	"context"
	"time"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
)

func approvalEvent(t event.Type, r *entity.ApprovalRecord, at time.Time) *event.Event {
	payload := map[string]interface{}{
		event.KeyRequesterID:   r.RequesterID,
		event.KeyApproverID:    r.ApproverID,
		event.KeyApprovalType:  string(r.ApprovalType),
		event.KeyReminderCount: r.ReminderCount,
	}
	if r.Notes != nil {
		payload[event.KeyNotes] = *r.Notes
	}
	if r.ExpiresAt != nil {
		payload[event.KeyExpiresAt] = *r.ExpiresAt
	}
	return event.NewEvent(t, r.ID, r.BookingID, payload, at)
}

// publishAfterCommit defers evt until the transaction in ctx commits. The hook
// detaches from ctx cancellation so a finished request does not cancel delivery.
func publishAfterCommit(ctx context.Context, tm port.TransactionManager, pub EventPublisher, evt *event.Event) {
	if pub == nil {
		return
	}
	tm.AfterCommit(ctx, func(hookCtx context.Context) {
		pub.DispatchAsync(context.WithoutCancel(hookCtx), evt)
	})
}
