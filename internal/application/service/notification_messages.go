package service

import (
	"fmt"
	"time"

	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
)

// ComposeNotifications maps an approval event to the messages it produces.
// Decisions go to the requester, requests and reminders to the approver, and
// expiry to both.
func ComposeNotifications(evt *event.Event) []*entity.Notification {
	requester := evt.GetPayloadString(event.KeyRequesterID)
	approver := evt.GetPayloadString(event.KeyApproverID)
	notes := evt.GetPayloadString(event.KeyNotes)

	var out []*entity.Notification
	add := func(userID string, t entity.NotificationType, title, message string) {
		if userID == "" {
			return
		}
		out = append(out, &entity.Notification{
			UserID:     userID,
			BookingID:  evt.BookingID,
			ApprovalID: evt.ApprovalID,
			Type:       t,
			Title:      title,
			Message:    message,
		})
	}

	switch evt.Type {
	case event.TypeApprovalRequested:
		deadline := "the deadline"
		if at, ok := evt.GetPayloadTime(event.KeyExpiresAt); ok {
			deadline = at.UTC().Format(time.RFC3339)
		}
		add(approver, entity.NotificationApprovalRequired,
			"Trip approval required",
			fmt.Sprintf("Booking %s requested by %s needs your decision before %s.", evt.BookingID, requester, deadline))
	case event.TypeApprovalCC:
		add(approver, entity.NotificationApprovalCC,
			"Trip booked",
			fmt.Sprintf("Booking %s by %s was approved automatically. No action is needed.", evt.BookingID, requester))
	case event.TypeApprovalApproved:
		add(requester, entity.NotificationApprovalApproved,
			"Trip approved",
			withNotes(fmt.Sprintf("Your booking %s was approved and is ready for dispatch.", evt.BookingID), notes))
	case event.TypeApprovalRejected:
		add(requester, entity.NotificationApprovalRejected,
			"Trip rejected",
			withNotes(fmt.Sprintf("Your booking %s was rejected and has been cancelled.", evt.BookingID), notes))
	case event.TypeApprovalExpired:
		add(requester, entity.NotificationApprovalExpired,
			"Approval expired",
			fmt.Sprintf("The approval for booking %s expired without a decision.", evt.BookingID))
		add(approver, entity.NotificationApprovalExpired,
			"Approval expired",
			fmt.Sprintf("You did not decide on booking %s from %s in time. The request has expired.", evt.BookingID, requester))
	case event.TypeApprovalReminder:
		add(approver, entity.NotificationApprovalReminder,
			"Trip approval pending",
			fmt.Sprintf("Reminder %d: booking %s from %s is still waiting for your decision.",
				evt.GetPayloadInt(event.KeyReminderCount), evt.BookingID, requester))
	}
	return out
}

func withNotes(message, notes string) string {
	if notes == "" {
		return message
	}
	return message + " Notes: " + notes
}
