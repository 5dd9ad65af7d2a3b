package port

import (
	"context"
	"time"

	"github.com/garyjia/trip-approval/internal/domain/entity"
)

// NotificationSink delivers a message to a user. Implementations are best effort.
type NotificationSink interface {
	Send(ctx context.Context, userID, bookingID string, notificationType entity.NotificationType, title, message string) error
	Name() string
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ApprovalExporter writes approval history to a file
type ApprovalExporter interface {
	Export(ctx context.Context, records []*entity.ApprovalRecord, path string) error
}
