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

const approvalColumns = `id, booking_id, requester_id, approver_id, approval_type, status, notes,
	reminder_count, last_reminder_at, responded_at, expires_at, created_at, updated_at`

// ApprovalRepository implements port.ApprovalRecordStore on SQLite
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new approval record
func (r *ApprovalRepository) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	query := `INSERT INTO approval_records (` + approvalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		record.ID,
		record.BookingID,
		record.RequesterID,
		record.ApproverID,
		string(record.ApprovalType),
		string(record.Status),
		nullString(record.Notes),
		record.ReminderCount,
		formatTimePtr(record.LastReminderAt),
		formatTimePtr(record.RespondedAt),
		formatTimePtr(record.ExpiresAt),
		formatTime(record.CreatedAt),
		formatTime(record.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create approval record",
			zap.String("approval_id", record.ID),
			zap.String("booking_id", record.BookingID),
			zap.Error(err))
		return wrapDuplicate(err, "approval record")
	}
	return nil
}

// Save overwrites every mutable column of an existing record
func (r *ApprovalRepository) Save(ctx context.Context, record *entity.ApprovalRecord) error {
	query := `
		UPDATE approval_records
		SET status = ?, notes = ?, reminder_count = ?, last_reminder_at = ?,
			responded_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		string(record.Status),
		nullString(record.Notes),
		record.ReminderCount,
		formatTimePtr(record.LastReminderAt),
		formatTimePtr(record.RespondedAt),
		formatTimePtr(record.ExpiresAt),
		formatTime(record.UpdatedAt),
		record.ID,
	)
	if err != nil {
		r.logger.Error("Failed to save approval record", zap.String("approval_id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to save approval record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("approval record %s does not exist", record.ID)
	}
	return nil
}

// UpdateStatusIfPending applies upd only while the row is still PENDING
func (r *ApprovalRepository) UpdateStatusIfPending(ctx context.Context, id string, upd port.StatusUpdate) (bool, error) {
	query := `
		UPDATE approval_records
		SET status = ?, notes = COALESCE(?, notes), responded_at = COALESCE(?, responded_at), updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		string(upd.Status),
		nullString(upd.Notes),
		formatTimePtr(upd.RespondedAt),
		formatTime(upd.UpdatedAt),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to update approval status",
			zap.String("approval_id", id),
			zap.String("status", string(upd.Status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update approval status: %w", err)
	}
	return applied(result)
}

// IncrementReminder bumps reminder_count in one statement, guarded on eligibility
func (r *ApprovalRepository) IncrementReminder(ctx context.Context, id string, g port.ReminderGuard) (bool, error) {
	query := `
		UPDATE approval_records
		SET reminder_count = reminder_count + 1, last_reminder_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING' AND reminder_count < ?
			AND (last_reminder_at IS NULL OR last_reminder_at < ?)
	`

	at := formatTime(g.At)
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		at, at, id, g.MaxReminders, formatTime(g.RemindedBefore))
	if err != nil {
		r.logger.Error("Failed to increment reminder count", zap.String("approval_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to increment reminder count: %w", err)
	}
	return applied(result)
}

// GetByID retrieves a record by ID, or nil when absent
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	return r.getOne(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE id = ?`, id)
}

// GetByBookingID retrieves the record gating a booking, or nil when absent
func (r *ApprovalRepository) GetByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
	return r.getOne(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE booking_id = ?`, bookingID)
}

// ListPendingByApprover returns the approver's open requests, oldest first
func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE approver_id = ? AND status = 'PENDING'
		ORDER BY created_at ASC`, approverID)
}

// ListByRequester returns every record raised by a requester, newest first
func (r *ApprovalRepository) ListByRequester(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE requester_id = ?
		ORDER BY created_at DESC`, requesterID)
}

// ListByApprover returns every record routed to an approver, newest first
func (r *ApprovalRepository) ListByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE approver_id = ?
		ORDER BY created_at DESC`, approverID)
}

// ListExpired returns pending records with expires_at strictly before now
func (r *ApprovalRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY expires_at ASC
		LIMIT ?`, formatTime(now), sqliteLimit(limit))
}

// ListNeedingReminder returns pending records due for another reminder
func (r *ApprovalRepository) ListNeedingReminder(ctx context.Context, q port.ReminderQuery) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approval_records
		WHERE status = 'PENDING'
			AND reminder_count < ?
			AND created_at < ?
			AND (last_reminder_at IS NULL OR last_reminder_at < ?)
		ORDER BY created_at ASC
		LIMIT ?`,
		q.MaxReminders, formatTime(q.CreatedBefore), formatTime(q.RemindedBefore), sqliteLimit(q.Limit))
}

func (r *ApprovalRepository) getOne(ctx context.Context, query string, arg string) (*entity.ApprovalRecord, error) {
	record, err := scanApproval(executor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval record", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	return record, nil
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRecord, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query approval records", zap.Error(err))
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

func scanApproval(row rowScanner) (*entity.ApprovalRecord, error) {
	var (
		record                                  entity.ApprovalRecord
		approvalType, status                    string
		notes, lastReminder, responded, expires sql.NullString
		createdAt, updatedAt                    string
	)

	err := row.Scan(
		&record.ID,
		&record.BookingID,
		&record.RequesterID,
		&record.ApproverID,
		&approvalType,
		&status,
		&notes,
		&record.ReminderCount,
		&lastReminder,
		&responded,
		&expires,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ApprovalType = entity.ApprovalType(approvalType)
	record.Status = entity.ApprovalStatus(status)
	record.Notes = stringPtr(notes)

	if record.LastReminderAt, err = parseTimePtr(lastReminder); err != nil {
		return nil, err
	}
	if record.RespondedAt, err = parseTimePtr(responded); err != nil {
		return nil, err
	}
	if record.ExpiresAt, err = parseTimePtr(expires); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func applied(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Verify interface compliance
var _ port.ApprovalRecordStore = (*ApprovalRepository)(nil)
