package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
)

const notificationColumns = `id, user_id, booking_id, approval_id, type, title, message,
	status, attempts, last_error, sent_at, created_at, updated_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a delivery log row and sets n.ID
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, booking_id, approval_id, type, title, message,
			status, attempts, last_error, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		n.UserID,
		n.BookingID,
		n.ApprovalID,
		string(n.Type),
		n.Title,
		n.Message,
		n.Status,
		n.Attempts,
		sql.NullString{String: n.LastError, Valid: n.LastError != ""},
		formatTimePtr(n.SentAt),
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByID retrieves a notification, or nil when absent
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListRetryable returns failed notifications with attempts left, oldest first
func (r *NotificationRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'FAILED' AND attempts < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, maxAttempts, sqliteLimit(limit))
	if err != nil {
		r.logger.Error("Failed to list retryable notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list retryable notifications: %w", err)
	}
	defer rows.Close()

	var list []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkSent records a successful attempt
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'SENT', attempts = attempts + 1, sent_at = ?, last_error = NULL, updated_at = ?
		WHERE id = ?
	`

	ts := formatTime(at)
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, ts, ts, id); err != nil {
		r.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and its error
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'FAILED', attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, errMsg, formatTime(at), id); err != nil {
		r.logger.Error("Failed to mark notification failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var (
		n                    entity.Notification
		typ                  string
		lastError, sentAt    sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.BookingID,
		&n.ApprovalID,
		&typ,
		&n.Title,
		&n.Message,
		&n.Status,
		&n.Attempts,
		&lastError,
		&sentAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = entity.NotificationType(typ)
	n.LastError = lastError.String
	if n.SentAt, err = parseTimePtr(sentAt); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
