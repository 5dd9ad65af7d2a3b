package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/pkg/tracing"
)

// ScanReport summarizes one expiry scanner pass
type ScanReport struct {
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ExpirySettings tunes the scanner
type ExpirySettings struct {
	Reminder entity.ReminderPolicy
	// BatchSize caps how many records each scan query returns (default 100).
	// A larger backlog drains over successive passes.
	BatchSize int
}

// ExpiryService expires overdue approvals and escalates silent ones with reminders
type ExpiryService struct {
	store     port.ApprovalRecordStore
	txManager port.TransactionManager
	publisher EventPublisher
	clock     port.Clock
	policy    entity.ReminderPolicy
	batchSize int
	logger    Logger
}

// NewExpiryService creates a new ExpiryService
func NewExpiryService(
	store port.ApprovalRecordStore,
	txManager port.TransactionManager,
	publisher EventPublisher,
	clock port.Clock,
	settings ExpirySettings,
	logger Logger,
) *ExpiryService {
	p := settings.Reminder
	defaults := entity.DefaultReminderPolicy()
	if p.Delay <= 0 {
		p.Delay = defaults.Delay
	}
	if p.Interval <= 0 {
		p.Interval = defaults.Interval
	}
	if p.MaxReminders <= 0 {
		p.MaxReminders = defaults.MaxReminders
	}
	batch := settings.BatchSize
	if batch <= 0 {
		batch = 100
	}

	return &ExpiryService{
		store:     store,
		txManager: txManager,
		publisher: publisher,
		clock:     clock,
		policy:    p,
		batchSize: batch,
		logger:    logger,
	}
}

// GetExpiredApprovals returns pending records whose deadline has passed, oldest
// deadline first. At most BatchSize records are returned per call.
func (s *ExpiryService) GetExpiredApprovals(ctx context.Context) ([]*entity.ApprovalRecord, error) {
	records, err := s.store.ListExpired(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list expired approvals: %w", err)
	}
	return records, nil
}

// MarkAsExpired moves a record from PENDING to EXPIRED. It returns false when the
// record was decided first; that is not an error.
func (s *ExpiryService) MarkAsExpired(ctx context.Context, id string) (bool, error) {
	var applied bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		next, err := workflow.ApprovalMachine().Build(workflow.StatePending).Next(workflow.TriggerExpire)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		applied, err = s.store.UpdateStatusIfPending(txCtx, id, port.StatusUpdate{
			Status:    entity.ApprovalStatus(next),
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("expire approval %s: %w", id, err)
		}
		if !applied {
			return nil
		}

		record, err := s.store.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("reload approval %s: %w", id, err)
		}
		if record != nil {
			publishAfterCommit(txCtx, s.txManager, s.publisher, approvalEvent(event.TypeApprovalExpired, record, now))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// GetApprovalsNeedingReminder returns pending records due for another reminder,
// oldest first. At most BatchSize records are returned per call.
func (s *ExpiryService) GetApprovalsNeedingReminder(ctx context.Context) ([]*entity.ApprovalRecord, error) {
	now := s.clock.Now()
	records, err := s.store.ListNeedingReminder(ctx, port.ReminderQuery{
		CreatedBefore:  now.Add(-s.policy.Delay),
		RemindedBefore: now.Add(-s.policy.Interval),
		MaxReminders:   s.policy.MaxReminders,
		Limit:          s.batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list approvals needing reminder: %w", err)
	}
	return records, nil
}

// IncrementReminderCount records one more reminder in a single storage-level
// update. It returns false when the record is no longer eligible.
func (s *ExpiryService) IncrementReminderCount(ctx context.Context, id string) (bool, error) {
	var applied bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		var err error
		applied, err = s.store.IncrementReminder(txCtx, id, port.ReminderGuard{
			At:             now,
			RemindedBefore: now.Add(-s.policy.Interval),
			MaxReminders:   s.policy.MaxReminders,
		})
		if err != nil {
			return fmt.Errorf("increment reminder for %s: %w", id, err)
		}
		if !applied {
			return nil
		}

		record, err := s.store.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("reload approval %s: %w", id, err)
		}
		if record != nil {
			publishAfterCommit(txCtx, s.txManager, s.publisher, approvalEvent(event.TypeApprovalReminder, record, now))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// RunOnce performs one scanner pass: expiry first, then reminders. A failure on
// one record is counted and logged without stopping the pass.
func (s *ExpiryService) RunOnce(ctx context.Context) (ScanReport, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.scan", tracing.KindInternal)
	var report ScanReport
	var errs []error
	defer func() {
		span.WithAttributes(map[string]string{
			"scan.expired":  strconv.Itoa(report.Expired),
			"scan.reminded": strconv.Itoa(report.Reminded),
			"scan.skipped":  strconv.Itoa(report.Skipped),
			"scan.failed":   strconv.Itoa(report.Failed),
		})
		tracing.EndSpan(span, errors.Join(errs...))
	}()

	expired, err := s.GetExpiredApprovals(ctx)
	if err != nil {
		s.logger.Error("Expiry scan query failed", "error", err)
		errs = append(errs, err)
	}
	for _, record := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return report, errors.Join(errs...)
		}
		applied, err := s.MarkAsExpired(ctx, record.ID)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("Failed to expire approval", "approval_id", record.ID, "error", err)
		case !applied:
			report.Skipped++
			s.logger.Info("Approval decided before expiry", "approval_id", record.ID)
		default:
			report.Expired++
			s.logger.Info("Approval expired", "approval_id", record.ID, "booking_id", record.BookingID)
		}
	}

	due, err := s.GetApprovalsNeedingReminder(ctx)
	if err != nil {
		s.logger.Error("Reminder scan query failed", "error", err)
		errs = append(errs, err)
	}
	for _, record := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return report, errors.Join(errs...)
		}
		applied, err := s.IncrementReminderCount(ctx, record.ID)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("Failed to record reminder", "approval_id", record.ID, "error", err)
		case !applied:
			report.Skipped++
		default:
			report.Reminded++
			s.logger.Info("Reminder sent", "approval_id", record.ID, "reminder", record.ReminderCount+1)
		}
	}

	if report.Expired+report.Reminded+report.Failed > 0 {
		s.logger.Info("Expiry scan completed",
			"expired", report.Expired,
			"reminded", report.Reminded,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report, errors.Join(errs...)
}
