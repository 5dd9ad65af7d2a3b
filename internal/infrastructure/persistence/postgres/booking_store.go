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

// BookingStore implements port.BookingStore on Postgres
type BookingStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewBookingStore creates a new booking store
func NewBookingStore(pool *pgxpool.Pool, logger *zap.Logger) *BookingStore {
	return &BookingStore{pool: pool, logger: logger}
}

func (s *BookingStore) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, requester_id, kind, is_business_trip, status, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	if booking.Kind == "" {
		booking.Kind = entity.BookingKindSingle
	}

	_, err := querier(ctx, s.pool).Exec(ctx, query,
		booking.ID,
		booking.RequesterID,
		string(booking.Kind),
		booking.IsBusinessTrip,
		string(booking.Status),
		booking.CancelReason,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to create booking", zap.String("booking_id", booking.ID), zap.Error(err))
		return wrapCreate(err, "booking")
	}
	return nil
}

// GetByID retrieves a booking, or nil when absent
func (s *BookingStore) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	query := `
		SELECT id, requester_id, kind, is_business_trip, status, COALESCE(cancel_reason, ''), created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var (
		b            entity.Booking
		kind, status string
	)
	err := querier(ctx, s.pool).QueryRow(ctx, query, id).Scan(
		&b.ID, &b.RequesterID, &kind, &b.IsBusinessTrip, &status, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get booking", zap.String("booking_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	b.Kind = entity.BookingKind(kind)
	b.Status = entity.BookingStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

// UpdateStatus reports whether the booking row exists and was updated
func (s *BookingStore) UpdateStatus(ctx context.Context, id string, status entity.BookingStatus, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $1, cancel_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3
	`

	tag, err := querier(ctx, s.pool).Exec(ctx, query, string(status), reason, id)
	if err != nil {
		s.logger.Error("Failed to update booking status",
			zap.String("booking_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Verify interface compliance
var _ port.BookingStore = (*BookingStore)(nil)
