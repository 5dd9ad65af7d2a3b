package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
	"github.com/garyjia/trip-approval/internal/domain/policy"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/pkg/tracing"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher hands approval events to asynchronous subscribers
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// ErrNoTransaction is returned by transactional variants called outside a unit of work
var ErrNoTransaction = errors.New("no active transaction in context")

// ApprovalService manages the approval lifecycle of trip bookings
type ApprovalService interface {
	ResolveApprovalType(requester entity.Requester, isBusinessTrip bool) entity.ApprovalType

	// CreateApproval persists the record for booking in its own transaction.
	// It returns (nil, nil) for AutoApproved, whatever booking is.
	CreateApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error)

	// CreateApprovalTx joins the transaction carried by ctx. Notifications are
	// deferred until that transaction commits.
	CreateApprovalTx(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error)

	// CreateBookingWithApproval stores booking and its approval atomically
	CreateBookingWithApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester) (*BookingApproval, error)

	Approve(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error)
	Reject(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error)

	GetPendingForApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	GetMyRequests(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error)
	GetApproverHistory(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	FindByID(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	FindByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error)
}

// BookingApproval is the outcome of CreateBookingWithApproval. Record is nil
// when the booking was auto-approved.
type BookingApproval struct {
	Booking      *entity.Booking        `json:"booking"`
	ApprovalType entity.ApprovalType    `json:"approval_type"`
	Record       *entity.ApprovalRecord `json:"approval,omitempty"`
}

// ApprovalSettings tunes record creation
type ApprovalSettings struct {
	Deadline time.Duration
}

type approvalServiceImpl struct {
	store       port.ApprovalRecordStore
	bookings    port.BookingStore
	coordinator *BookingStatusCoordinator
	txManager   port.TransactionManager
	publisher   EventPublisher
	clock       port.Clock
	deadline    time.Duration
	logger      Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	store port.ApprovalRecordStore,
	bookings port.BookingStore,
	txManager port.TransactionManager,
	publisher EventPublisher,
	clock port.Clock,
	settings ApprovalSettings,
	logger Logger,
) ApprovalService {
	deadline := settings.Deadline
	if deadline <= 0 {
		deadline = entity.DefaultApprovalDeadline
	}
	return &approvalServiceImpl{
		store:       store,
		bookings:    bookings,
		coordinator: NewBookingStatusCoordinator(bookings),
		txManager:   txManager,
		publisher:   publisher,
		clock:       clock,
		deadline:    deadline,
		logger:      logger,
	}
}

func (s *approvalServiceImpl) ResolveApprovalType(requester entity.Requester, isBusinessTrip bool) entity.ApprovalType {
	return policy.ResolveApprovalType(requester, isBusinessTrip)
}

func (s *approvalServiceImpl) CreateApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error) {
	if err := validateCreate(booking, requester, approvalType); err != nil {
		s.logger.Error("Rejected approval creation", "booking_id", bookingID(booking), "error", err)
		return nil, err
	}
	if approvalType == entity.ApprovalTypeAutoApproved {
		return nil, nil
	}

	var record *entity.ApprovalRecord
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		record, err = s.createRecord(txCtx, booking, requester, approvalType)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to create approval", "booking_id", booking.ID, "error", err)
		return nil, err
	}

	s.logger.Info("Approval created",
		"approval_id", record.ID,
		"booking_id", record.BookingID,
		"approval_type", record.ApprovalType,
		"status", record.Status,
	)
	return record, nil
}

func (s *approvalServiceImpl) CreateApprovalTx(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error) {
	if err := validateCreate(booking, requester, approvalType); err != nil {
		return nil, err
	}
	if approvalType == entity.ApprovalTypeAutoApproved {
		return nil, nil
	}
	if !s.txManager.InTransaction(ctx) {
		return nil, ErrNoTransaction
	}
	return s.createRecord(ctx, booking, requester, approvalType)
}

func (s *approvalServiceImpl) CreateBookingWithApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester) (*BookingApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.create_booking", tracing.KindInternal)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if booking == nil {
		err = fmt.Errorf("%w: booking is required", workflow.ErrValidation)
		return nil, err
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	approvalType := s.ResolveApprovalType(requester, booking.IsBusinessTrip)
	if err = validateCreate(booking, requester, approvalType); err != nil {
		s.logger.Error("Rejected booking creation", "requester_id", requester.ID, "error", err)
		return nil, err
	}

	now := s.clock.Now()
	if booking.RequesterID == "" {
		booking.RequesterID = requester.ID
	}
	if booking.Kind == "" {
		booking.Kind = entity.BookingKindSingle
	}
	booking.Status = InitialBookingStatus(approvalType)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	result := &BookingApproval{Booking: booking, ApprovalType: approvalType}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.bookings.Create(txCtx, booking); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		record, err := s.CreateApprovalTx(txCtx, booking, requester, approvalType)
		if err != nil {
			return err
		}
		result.Record = record
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create booking with approval", "booking_id", booking.ID, "error", err)
		return nil, err
	}

	span.WithAttributes(map[string]string{"booking.id": booking.ID, "approval.type": string(approvalType)})
	s.logger.Info("Booking created", "booking_id", booking.ID, "approval_type", approvalType, "booking_status", booking.Status)
	return result, nil
}

// createRecord must run inside a transaction
func (s *approvalServiceImpl) createRecord(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error) {
	existing, err := s.store.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing approval: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("booking %s already has approval %s: %w", booking.ID, existing.ID, workflow.ErrConflict)
	}

	now := s.clock.Now()
	record := &entity.ApprovalRecord{
		ID:           uuid.NewString(),
		BookingID:    booking.ID,
		RequesterID:  requester.ID,
		ApproverID:   requester.ManagerID,
		ApprovalType: approvalType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch approvalType {
	case entity.ApprovalTypeCcOnly:
		record.Status = entity.ApprovalStatusAutoApproved
	case entity.ApprovalTypeManagerApproval:
		record.Status = entity.ApprovalStatusPending
		expiresAt := now.Add(s.deadline)
		record.ExpiresAt = &expiresAt
	}

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return nil, fmt.Errorf("booking %s already has an approval: %w", booking.ID, workflow.ErrConflict)
		}
		return nil, fmt.Errorf("create approval: %w", err)
	}

	evtType := event.TypeApprovalRequested
	if approvalType == entity.ApprovalTypeCcOnly {
		evtType = event.TypeApprovalCC
	}
	s.publishAfterCommit(ctx, approvalEvent(evtType, record, now))
	return record, nil
}

func (s *approvalServiceImpl) Approve(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error) {
	return s.decide(ctx, approvalID, approverID, notes, workflow.TriggerApprove)
}

func (s *approvalServiceImpl) Reject(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error) {
	return s.decide(ctx, approvalID, approverID, notes, workflow.TriggerReject)
}

func (s *approvalServiceImpl) decide(ctx context.Context, approvalID, approverID string, notes *string, trigger workflow.Trigger) (*entity.ApprovalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "approval."+strings.ToLower(trigger.String()), tracing.KindInternal)
	span.WithAttributes(map[string]string{"approval.id": approvalID, "approver.id": approverID})
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	var result *entity.ApprovalRecord
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		record, err := s.store.GetByID(txCtx, approvalID)
		if err != nil {
			return fmt.Errorf("load approval %s: %w", approvalID, err)
		}
		if record == nil {
			return fmt.Errorf("approval %s: %w", approvalID, workflow.ErrNotFound)
		}
		if record.ApproverID != approverID {
			return fmt.Errorf("user %s is not the approver of %s: %w", approverID, approvalID, workflow.ErrForbidden)
		}

		current := workflow.State(record.Status)
		if !current.IsValid() {
			return fmt.Errorf("approval %s has status %q: %w", approvalID, record.Status, workflow.ErrInvalidState)
		}
		next, err := workflow.ApprovalMachine().Build(current).Next(trigger)
		if err != nil {
			return fmt.Errorf("approval %s already processed: %w", approvalID, err)
		}

		now := s.clock.Now()
		applied, err := s.store.UpdateStatusIfPending(txCtx, approvalID, port.StatusUpdate{
			Status:      entity.ApprovalStatus(next),
			Notes:       notes,
			RespondedAt: &now,
			UpdatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("update approval %s: %w", approvalID, err)
		}
		if !applied {
			return fmt.Errorf("approval %s already processed: %w", approvalID, workflow.ErrConflict)
		}

		record.Status = entity.ApprovalStatus(next)
		record.Notes = notes
		record.RespondedAt = &now
		record.UpdatedAt = now

		if err := s.coordinator.Apply(txCtx, record); err != nil {
			return err
		}

		evtType := event.TypeApprovalApproved
		if record.Status == entity.ApprovalStatusRejected {
			evtType = event.TypeApprovalRejected
		}
		s.publishAfterCommit(txCtx, approvalEvent(evtType, record, now))
		result = record
		return nil
	})
	if err != nil {
		s.logger.Error("Approval decision failed",
			"approval_id", approvalID,
			"approver_id", approverID,
			"trigger", trigger,
			"kind", workflow.Kind(err),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Approval decided",
		"approval_id", result.ID,
		"booking_id", result.BookingID,
		"status", result.Status,
	)
	return result, nil
}

func (s *approvalServiceImpl) GetPendingForApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	records, err := s.store.ListPendingByApprover(ctx, approverID)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "approver_id", approverID, "error", err)
		return nil, err
	}
	return records, nil
}

func (s *approvalServiceImpl) GetMyRequests(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error) {
	records, err := s.store.ListByRequester(ctx, requesterID)
	if err != nil {
		s.logger.Error("Failed to list requests", "requester_id", requesterID, "error", err)
		return nil, err
	}
	return records, nil
}

func (s *approvalServiceImpl) GetApproverHistory(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	records, err := s.store.ListByApprover(ctx, approverID)
	if err != nil {
		s.logger.Error("Failed to list approver history", "approver_id", approverID, "error", err)
		return nil, err
	}
	return records, nil
}

func (s *approvalServiceImpl) FindByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get approval", "approval_id", id, "error", err)
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("approval %s: %w", id, workflow.ErrNotFound)
	}
	return record, nil
}

func (s *approvalServiceImpl) FindByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
	record, err := s.store.GetByBookingID(ctx, bookingID)
	if err != nil {
		s.logger.Error("Failed to get approval by booking", "booking_id", bookingID, "error", err)
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("approval for booking %s: %w", bookingID, workflow.ErrNotFound)
	}
	return record, nil
}

func (s *approvalServiceImpl) publishAfterCommit(ctx context.Context, evt *event.Event) {
	publishAfterCommit(ctx, s.txManager, s.publisher, evt)
}

// validateCreate checks the inputs of record creation. AutoApproved needs
// neither a booking nor a manager since no record is written for it.
func validateCreate(booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) error {
	if !approvalType.IsValid() {
		return fmt.Errorf("%w: unknown approval type %q", workflow.ErrValidation, approvalType)
	}
	if approvalType == entity.ApprovalTypeAutoApproved {
		return nil
	}
	if booking == nil || booking.ID == "" {
		return fmt.Errorf("%w: booking id is required", workflow.ErrValidation)
	}
	if !requester.HasManager() {
		return fmt.Errorf("%w: no manager assigned for approval workflow", workflow.ErrValidation)
	}
	return nil
}

func bookingID(b *entity.Booking) string {
	if b == nil {
		return ""
	}
	return b.ID
}
