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

const approvalColumns = `id, booking_id, requester_id, approver_id, approval_type, status, notes,
	reminder_count, last_reminder_at, responded_at, expires_at, created_at, updated_at`

// ApprovalStore implements port.ApprovalRecordStore on Postgres
type ApprovalStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewApprovalStore creates a new approval store
func NewApprovalStore(pool *pgxpool.Pool, logger *zap.Logger) *ApprovalStore {
	return &ApprovalStore{pool: pool, logger: logger}
}

// Create inserts a new approval record
func (s *ApprovalStore) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := querier(ctx, s.pool).Exec(ctx, query,
		record.ID,
		record.BookingID,
		record.RequesterID,
		record.ApproverID,
		string(record.ApprovalType),
		string(record.Status),
		record.Notes,
		record.ReminderCount,
		record.LastReminderAt,
		record.RespondedAt,
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to create approval record",
			zap.String("approval_id", record.ID),
			zap.String("booking_id", record.BookingID),
			zap.Error(err))
		return wrapCreate(err, "approval record")
	}
	return nil
}

// Save overwrites every mutable column of an existing record
func (s *ApprovalStore) Save(ctx context.Context, record *entity.ApprovalRecord) error {
	query := `
		UPDATE approval_records
		SET status = $1, notes = $2, reminder_count = $3, last_reminder_at = $4,
		    responded_at = $5, expires_at = $6, updated_at = $7
		WHERE id = $8
	`

	tag, err := querier(ctx, s.pool).Exec(ctx, query,
		string(record.Status),
		record.Notes,
		record.ReminderCount,
		record.LastReminderAt,
		record.RespondedAt,
		record.ExpiresAt,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		s.logger.Error("Failed to save approval record", zap.String("approval_id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to save approval record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("approval record %s does not exist", record.ID)
	}
	return nil
}

// UpdateStatusIfPending applies upd only while the row is still PENDING
func (s *ApprovalStore) UpdateStatusIfPending(ctx context.Context, id string, upd port.StatusUpdate) (bool, error) {
	query := `
		UPDATE approval_records
		SET status = $1,
		    notes = COALESCE($2, notes),
		    responded_at = COALESCE($3, responded_at),
		    updated_at = $4
		WHERE id = $5 AND status = 'PENDING'
	`

	tag, err := querier(ctx, s.pool).Exec(ctx, query,
		string(upd.Status), upd.Notes, upd.RespondedAt, upd.UpdatedAt, id)
	if err != nil {
		s.logger.Error("Failed to update approval status",
			zap.String("approval_id", id),
			zap.String("status", string(upd.Status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update approval status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementReminder bumps reminder_count in one statement, guarded on eligibility
func (s *ApprovalStore) IncrementReminder(ctx context.Context, id string, g port.ReminderGuard) (bool, error) {
	query := `
		UPDATE approval_records
		SET reminder_count = reminder_count + 1, last_reminder_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'PENDING' AND reminder_count < $3
		  AND (last_reminder_at IS NULL OR last_reminder_at < $4)
	`

	tag, err := querier(ctx, s.pool).Exec(ctx, query, g.At, id, g.MaxReminders, g.RemindedBefore)
	if err != nil {
		s.logger.Error("Failed to increment reminder count", zap.String("approval_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to increment reminder count: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID retrieves a record by ID, or nil when absent
func (s *ApprovalStore) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	return s.getOne(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE id = $1`, id)
}

// GetByBookingID retrieves the record gating a booking, or nil when absent
func (s *ApprovalStore) GetByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
	return s.getOne(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE booking_id = $1`, bookingID)
}

func (s *ApprovalStore) ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return s.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE approver_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC`, approverID)
}

func (s *ApprovalStore) ListByRequester(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error) {
	return s.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE requester_id = $1
		ORDER BY created_at DESC`, requesterID)
}

func (s *ApprovalStore) ListByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return s.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE approver_id = $1
		ORDER BY created_at DESC`, approverID)
}

// ListExpired returns pending records with expires_at strictly before now
func (s *ApprovalStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalRecord, error) {
	return s.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`, now, noLimit(limit))
}

// ListNeedingReminder returns pending records due for another reminder
func (s *ApprovalStore) ListNeedingReminder(ctx context.Context, q port.ReminderQuery) ([]*entity.ApprovalRecord, error) {
	return s.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE status = 'PENDING'
		  AND reminder_count < $1
		  AND created_at < $2
		  AND (last_reminder_at IS NULL OR last_reminder_at < $3)
		ORDER BY created_at ASC
		LIMIT $4`, q.MaxReminders, q.CreatedBefore, q.RemindedBefore, noLimit(q.Limit))
}

func (s *ApprovalStore) getOne(ctx context.Context, query, arg string) (*entity.ApprovalRecord, error) {
	record, err := scanApproval(querier(ctx, s.pool).QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get approval record", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	return record, nil
}

func (s *ApprovalStore) list(ctx context.Context, query string, args ...any) ([]*entity.ApprovalRecord, error) {
	rows, err := querier(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to query approval records", zap.Error(err))
		return nil, fmt.Errorf("failed to query approval records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanApproval(row pgx.Row) (*entity.ApprovalRecord, error) {
	var (
		r                    entity.ApprovalRecord
		approvalType, status string
	)
	err := row.Scan(
		&r.ID,
		&r.BookingID,
		&r.RequesterID,
		&r.ApproverID,
		&approvalType,
		&status,
		&r.Notes,
		&r.ReminderCount,
		&r.LastReminderAt,
		&r.RespondedAt,
		&r.ExpiresAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ApprovalType = entity.ApprovalType(approvalType)
	r.Status = entity.ApprovalStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// Verify interface compliance
var _ port.ApprovalRecordStore = (*ApprovalStore)(nil)
