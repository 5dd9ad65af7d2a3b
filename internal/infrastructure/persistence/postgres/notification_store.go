package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
)

const notificationColumns = `id, user_id, booking_id, approval_id, type, title, message,
	status, attempts, COALESCE(last_error, ''), sent_at, created_at, updated_at`

// NotificationStore implements port.NotificationRepository on Postgres
type NotificationStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewNotificationStore creates a new notification store
func NewNotificationStore(pool *pgxpool.Pool, logger *zap.Logger) *NotificationStore {
	return &NotificationStore{pool: pool, logger: logger}
}

// Create inserts a delivery log row and sets n.ID
func (s *NotificationStore) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, booking_id, approval_id, type, title, message,
			status, attempts, last_error, sent_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
		RETURNING id
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

	err := querier(ctx, s.pool).QueryRow(ctx, query,
		n.UserID, n.BookingID, n.ApprovalID, string(n.Type), n.Title, n.Message,
		n.Status, n.Attempts, n.LastError, n.SentAt, n.CreatedAt, n.UpdatedAt,
	).Scan(&n.ID)
	if err != nil {
		s.logger.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification, or nil when absent
func (s *NotificationStore) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	n, err := scanNotification(querier(ctx, s.pool).QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListRetryable returns failed notifications with attempts left, oldest first
func (s *NotificationStore) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	rows, err := querier(ctx, s.pool).Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'FAILED' AND attempts < $1
		ORDER BY updated_at ASC
		LIMIT $2`, maxAttempts, noLimit(limit))
	if err != nil {
		s.logger.Error("Failed to list retryable notifications", zap.Error(err))
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
func (s *NotificationStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := querier(ctx, s.pool).Exec(ctx, `
		UPDATE notifications
		SET status = 'SENT', attempts = attempts + 1, sent_at = $1, last_error = NULL, updated_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		s.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and its error
func (s *NotificationStore) MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error {
	_, err := querier(ctx, s.pool).Exec(ctx, `
		UPDATE notifications
		SET status = 'FAILED', attempts = attempts + 1, last_error = $1, updated_at = $2
		WHERE id = $3`, errMsg, at, id)
	if err != nil {
		s.logger.Error("Failed to mark notification failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*entity.Notification, error) {
	var (
		n   entity.Notification
		typ string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.BookingID, &n.ApprovalID, &typ, &n.Title, &n.Message,
		&n.Status, &n.Attempts, &n.LastError, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = entity.NotificationType(typ)
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationStore)(nil)
