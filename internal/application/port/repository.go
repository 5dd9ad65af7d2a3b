package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/trip-approval/internal/domain/entity"
)

// ErrDuplicate is returned by stores when a uniqueness constraint rejects a write
var ErrDuplicate = errors.New("duplicate record")

// StatusUpdate describes a terminal transition applied only while the record is still PENDING
type StatusUpdate struct {
	Status      entity.ApprovalStatus
	Notes       *string
	RespondedAt *time.Time
	UpdatedAt   time.Time
}

// ReminderQuery selects pending records eligible for another reminder
type ReminderQuery struct {
	CreatedBefore  time.Time
	RemindedBefore time.Time
	MaxReminders   int
	Limit          int
}

// ReminderGuard stamps a reminder only while the record is still eligible,
// so overlapping scanner runs cannot both count the same reminder.
type ReminderGuard struct {
	At             time.Time
	RemindedBefore time.Time
	MaxReminders   int
}

// ApprovalRecordStore defines persistence operations for ApprovalRecord.
// Lookups return (nil, nil) when no row matches.
type ApprovalRecordStore interface {
	GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	GetByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error)
	ListByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	Create(ctx context.Context, record *entity.ApprovalRecord) error
	Save(ctx context.Context, record *entity.ApprovalRecord) error

	// UpdateStatusIfPending applies upd only if the row is still PENDING.
	// It reports whether a row was changed.
	UpdateStatusIfPending(ctx context.Context, id string, upd StatusUpdate) (bool, error)

	// IncrementReminder adds one to reminder_count and stamps last_reminder_at in a
	// single statement, guarded on status PENDING and on g.
	IncrementReminder(ctx context.Context, id string, g ReminderGuard) (bool, error)

	ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalRecord, error)
	ListNeedingReminder(ctx context.Context, q ReminderQuery) ([]*entity.ApprovalRecord, error)
}

// BookingStore defines the booking operations this workflow needs
type BookingStore interface {
	Create(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)

	// UpdateStatus reports whether a booking row was changed
	UpdateStatus(ctx context.Context, id string, status entity.BookingStatus, reason string) (bool, error)
}

// NotificationRepository persists the notification delivery log
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit schedules fn to run once the transaction carried by ctx commits.
	// It is dropped on rollback and runs immediately when ctx carries no transaction.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))

	// InTransaction reports whether ctx carries an active transaction
	InTransaction(ctx context.Context) bool
}
