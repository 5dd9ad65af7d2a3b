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

// BookingRepository implements port.BookingStore on SQLite
type BookingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sql.DB, logger *zap.Logger) *BookingRepository {
	return &BookingRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new booking
func (r *BookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (
			id, requester_id, kind, is_business_trip, status,
			cancel_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		booking.ID,
		booking.RequesterID,
		string(booking.Kind),
		booking.IsBusinessTrip,
		string(booking.Status),
		sql.NullString{String: booking.CancelReason, Valid: booking.CancelReason != ""},
		formatTime(booking.CreatedAt),
		formatTime(booking.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create booking",
			zap.String("booking_id", booking.ID),
			zap.Error(err))
		return wrapDuplicate(err, "booking")
	}
	return nil
}

// GetByID retrieves a booking by ID, or nil when absent
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	query := `
		SELECT id, requester_id, kind, is_business_trip, status,
			cancel_reason, created_at, updated_at
		FROM bookings
		WHERE id = ?
	`

	var (
		booking              entity.Booking
		kind, status         string
		reason               sql.NullString
		createdAt, updatedAt string
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.RequesterID,
		&kind,
		&booking.IsBusinessTrip,
		&status,
		&reason,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get booking", zap.String("booking_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.Kind = entity.BookingKind(kind)
	booking.Status = entity.BookingStatus(status)
	booking.CancelReason = reason.String
	if booking.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if booking.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateStatus sets the booking status; reason is stored only when non-empty
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status entity.BookingStatus, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		string(status),
		sql.NullString{String: reason, Valid: reason != ""},
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to update booking status",
			zap.String("booking_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return applied(result)
}

// Verify interface compliance
var _ port.BookingStore = (*BookingRepository)(nil)
