package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/internal/infrastructure/clock"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type approvalFixture struct {
	store     *mockApprovalStore
	bookings  *mockBookingStore
	tx        *mockTxManager
	publisher *mockPublisher
	clock     *clock.Fixed
	svc       ApprovalService
}

func newApprovalFixture(records ...*entity.ApprovalRecord) *approvalFixture {
	f := &approvalFixture{
		store:     newMockApprovalStore(records...),
		bookings:  &mockBookingStore{},
		tx:        &mockTxManager{},
		publisher: &mockPublisher{},
		clock:     clock.NewFixed(testNow),
	}
	f.svc = NewApprovalService(f.store, f.bookings, f.tx, f.publisher, f.clock, ApprovalSettings{}, &mockLogger{})
	return f
}

func staff(segment entity.UserSegment, managerID string) entity.Requester {
	return entity.Requester{ID: "U1", PositionLevel: entity.PositionStaff, UserSegment: segment, ManagerID: managerID}
}

func pendingRecord(id, approver string) *entity.ApprovalRecord {
	expires := testNow.Add(24 * time.Hour)
	return &entity.ApprovalRecord{
		ID:           id,
		BookingID:    "booking-" + id,
		RequesterID:  "U1",
		ApproverID:   approver,
		ApprovalType: entity.ApprovalTypeManagerApproval,
		Status:       entity.ApprovalStatusPending,
		ExpiresAt:    &expires,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func strPtr(s string) *string { return &s }

func TestCreateApproval_AutoApprovedWritesNothing(t *testing.T) {
	f := newApprovalFixture()
	exec := entity.Requester{ID: "E1", PositionLevel: entity.PositionExecutive, UserSegment: entity.SegmentFrequentTraveler}

	approvalType := f.svc.ResolveApprovalType(exec, true)
	require.Equal(t, entity.ApprovalTypeAutoApproved, approvalType)

	record, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, exec, approvalType)

	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Zero(t, f.store.writeCount())
	assert.Empty(t, f.publisher.published())
}

func TestCreateApproval_AutoApprovedIgnoresBooking(t *testing.T) {
	f := newApprovalFixture()
	exec := entity.Requester{ID: "E1", PositionLevel: entity.PositionExecutive, UserSegment: entity.SegmentFrequentTraveler}

	record, err := f.svc.CreateApproval(context.Background(), nil, exec, entity.ApprovalTypeAutoApproved)
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = f.svc.CreateApprovalTx(context.Background(), nil, exec, entity.ApprovalTypeAutoApproved)
	require.NoError(t, err)
	assert.Nil(t, record)

	assert.Zero(t, f.store.writeCount())
	assert.Zero(t, f.tx.commits+f.tx.rollbacks)
	assert.Empty(t, f.publisher.published())
}

func TestCreateApproval_MissingManagerFailsWithoutWrites(t *testing.T) {
	for _, approvalType := range []entity.ApprovalType{entity.ApprovalTypeCcOnly, entity.ApprovalTypeManagerApproval} {
		t.Run(string(approvalType), func(t *testing.T) {
			f := newApprovalFixture()

			record, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, ""), approvalType)

			require.ErrorIs(t, err, workflow.ErrValidation)
			assert.Contains(t, err.Error(), "no manager assigned for approval workflow")
			assert.Nil(t, record)
			assert.Zero(t, f.store.writeCount())
			assert.Zero(t, f.tx.commits+f.tx.rollbacks)
			assert.Empty(t, f.publisher.published())
		})
	}
}

func TestCreateApproval_CcOnly(t *testing.T) {
	f := newApprovalFixture()
	requester := staff(entity.SegmentFrequentTraveler, "M1")

	approvalType := f.svc.ResolveApprovalType(requester, true)
	require.Equal(t, entity.ApprovalTypeCcOnly, approvalType)

	record, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, requester, approvalType)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, entity.ApprovalStatusAutoApproved, record.Status)
	assert.Nil(t, record.ExpiresAt)
	assert.Equal(t, "M1", record.ApproverID)
	assert.Equal(t, "U1", record.RequesterID)
	assert.Equal(t, 1, f.store.writeCount())

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeApprovalCC, events[0].Type)
	assert.Equal(t, "M1", events[0].GetPayloadString(event.KeyApproverID))
}

func TestCreateApproval_ManagerApproval(t *testing.T) {
	f := newApprovalFixture()
	requester := staff(entity.SegmentOccasionalTraveler, "M1")

	approvalType := f.svc.ResolveApprovalType(requester, true)
	require.Equal(t, entity.ApprovalTypeManagerApproval, approvalType)

	record, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, requester, approvalType)
	require.NoError(t, err)

	assert.Equal(t, entity.ApprovalStatusPending, record.Status)
	assert.Zero(t, record.ReminderCount)
	require.NotNil(t, record.ExpiresAt)
	assert.WithinDuration(t, testNow.Add(24*time.Hour), *record.ExpiresAt, time.Second)

	stored := f.store.get(record.ID)
	require.NotNil(t, stored)
	assert.Equal(t, entity.ApprovalStatusPending, stored.Status)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeApprovalRequested, events[0].Type)
}

func TestCreateApproval_CustomDeadline(t *testing.T) {
	f := newApprovalFixture()
	svc := NewApprovalService(f.store, f.bookings, f.tx, f.publisher, f.clock, ApprovalSettings{Deadline: 2 * time.Hour}, &mockLogger{})

	record, err := svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, "M1"), entity.ApprovalTypeManagerApproval)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(2*time.Hour), *record.ExpiresAt)
}

func TestCreateApproval_OneRecordPerBooking(t *testing.T) {
	existing := pendingRecord("A1", "M1")
	f := newApprovalFixture(existing)

	_, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: existing.BookingID}, staff(entity.SegmentOccasionalTraveler, "M1"), entity.ApprovalTypeManagerApproval)

	require.ErrorIs(t, err, workflow.ErrConflict)
	assert.Zero(t, f.store.writeCount())
}

func TestCreateApproval_StoreDuplicateMapsToConflict(t *testing.T) {
	f := newApprovalFixture()
	f.store.createFunc = func(ctx context.Context, record *entity.ApprovalRecord) error {
		return fmt.Errorf("insert: %w", port.ErrDuplicate)
	}

	_, err := f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, "M1"), entity.ApprovalTypeManagerApproval)

	require.ErrorIs(t, err, workflow.ErrConflict)
	assert.Empty(t, f.publisher.published())
}

func TestCreateApproval_InvalidInput(t *testing.T) {
	f := newApprovalFixture()
	requester := staff(entity.SegmentOccasionalTraveler, "M1")

	_, err := f.svc.CreateApproval(context.Background(), nil, requester, entity.ApprovalTypeManagerApproval)
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.CreateApproval(context.Background(), &entity.Booking{ID: "B1"}, requester, entity.ApprovalType("SOMETIMES"))
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestCreateApprovalTx_RequiresTransaction(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.CreateApprovalTx(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, "M1"), entity.ApprovalTypeManagerApproval)

	assert.ErrorIs(t, err, ErrNoTransaction)
	assert.Zero(t, f.store.writeCount())
}

func TestCreateApprovalTx_NotifiesOnlyAfterCommit(t *testing.T) {
	requester := staff(entity.SegmentOccasionalTraveler, "M1")

	t.Run("rolled back booking never notifies", func(t *testing.T) {
		f := newApprovalFixture()
		bookingFailure := errors.New("booking insert failed")

		err := f.tx.WithTransaction(context.Background(), func(txCtx context.Context) error {
			record, err := f.svc.CreateApprovalTx(txCtx, &entity.Booking{ID: "B1"}, requester, entity.ApprovalTypeManagerApproval)
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Empty(t, f.publisher.published(), "no notification before commit")
			return bookingFailure
		})

		require.ErrorIs(t, err, bookingFailure)
		assert.Empty(t, f.publisher.published())
	})

	t.Run("committed booking notifies", func(t *testing.T) {
		f := newApprovalFixture()

		err := f.tx.WithTransaction(context.Background(), func(txCtx context.Context) error {
			_, err := f.svc.CreateApprovalTx(txCtx, &entity.Booking{ID: "B1"}, requester, entity.ApprovalTypeManagerApproval)
			return err
		})

		require.NoError(t, err)
		require.Len(t, f.publisher.published(), 1)
	})
}

func TestCreateBookingWithApproval(t *testing.T) {
	t.Run("manager approval keeps booking pending", func(t *testing.T) {
		f := newApprovalFixture()

		result, err := f.svc.CreateBookingWithApproval(context.Background(),
			&entity.Booking{Kind: entity.BookingKindMultiStop, IsBusinessTrip: true},
			staff(entity.SegmentOccasionalTraveler, "M1"))

		require.NoError(t, err)
		assert.Equal(t, entity.ApprovalTypeManagerApproval, result.ApprovalType)
		assert.NotEmpty(t, result.Booking.ID)
		assert.Equal(t, "U1", result.Booking.RequesterID)
		assert.Equal(t, entity.BookingStatusPendingApproval, result.Booking.Status)
		require.NotNil(t, result.Record)
		assert.Equal(t, result.Booking.ID, result.Record.BookingID)
		require.Len(t, f.bookings.created, 1)
		assert.Equal(t, 1, f.tx.commits)
		assert.Len(t, f.publisher.published(), 1)
	})

	t.Run("management skips the record", func(t *testing.T) {
		f := newApprovalFixture()
		director := entity.Requester{ID: "D1", PositionLevel: entity.PositionDirector, UserSegment: entity.SegmentOccasionalTraveler}

		result, err := f.svc.CreateBookingWithApproval(context.Background(), &entity.Booking{ID: "B9"}, director)

		require.NoError(t, err)
		assert.Equal(t, entity.ApprovalTypeAutoApproved, result.ApprovalType)
		assert.Nil(t, result.Record)
		assert.Equal(t, entity.BookingStatusReadyForDispatch, result.Booking.Status)
		assert.Equal(t, entity.BookingKindSingle, result.Booking.Kind)
		assert.Zero(t, f.store.writeCount())
		assert.Len(t, f.bookings.created, 1)
	})

	t.Run("missing manager writes nothing", func(t *testing.T) {
		f := newApprovalFixture()

		_, err := f.svc.CreateBookingWithApproval(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, ""))

		require.ErrorIs(t, err, workflow.ErrValidation)
		assert.Empty(t, f.bookings.created)
		assert.Zero(t, f.store.writeCount())
	})

	t.Run("approval failure rolls back", func(t *testing.T) {
		f := newApprovalFixture()
		f.store.createFunc = func(ctx context.Context, record *entity.ApprovalRecord) error {
			return errors.New("disk full")
		}

		_, err := f.svc.CreateBookingWithApproval(context.Background(), &entity.Booking{ID: "B1"}, staff(entity.SegmentOccasionalTraveler, "M1"))

		require.Error(t, err)
		assert.Equal(t, 1, f.tx.rollbacks)
		assert.Empty(t, f.publisher.published())
	})
}

func TestApprove_Success(t *testing.T) {
	f := newApprovalFixture(pendingRecord("A1", "A"))
	f.clock.Advance(time.Hour)

	record, err := f.svc.Approve(context.Background(), "A1", "A", strPtr("ok"))

	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusApproved, record.Status)
	require.NotNil(t, record.Notes)
	assert.Equal(t, "ok", *record.Notes)
	require.NotNil(t, record.RespondedAt)
	assert.Equal(t, testNow.Add(time.Hour), *record.RespondedAt)

	stored := f.store.get("A1")
	assert.Equal(t, entity.ApprovalStatusApproved, stored.Status)

	assert.Equal(t, []bookingUpdate{{ID: "booking-A1", Status: entity.BookingStatusReadyForDispatch}}, f.bookings.updateCalls())

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeApprovalApproved, events[0].Type)
	assert.Equal(t, "ok", events[0].GetPayloadString(event.KeyNotes))
}

func TestReject_Success(t *testing.T) {
	f := newApprovalFixture(pendingRecord("A1", "A"))

	record, err := f.svc.Reject(context.Background(), "A1", "A", strPtr("too expensive"))

	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusRejected, record.Status)
	require.NotNil(t, record.RespondedAt)
	assert.Equal(t, []bookingUpdate{{ID: "booking-A1", Status: entity.BookingStatusCancelled, Reason: entity.CancelReasonApprovalRejected}}, f.bookings.updateCalls())

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeApprovalRejected, events[0].Type)
}

func TestDecision_Guards(t *testing.T) {
	tests := []struct {
		name       string
		approvalID string
		approverID string
		wantErr    error
	}{
		{"unknown record", "missing", "A", workflow.ErrNotFound},
		{"wrong approver", "A1", "B", workflow.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newApprovalFixture(pendingRecord("A1", "A"))

			_, err := f.svc.Approve(context.Background(), tt.approvalID, tt.approverID, strPtr("ok"))
			require.ErrorIs(t, err, tt.wantErr)

			_, err = f.svc.Reject(context.Background(), tt.approvalID, tt.approverID, nil)
			require.ErrorIs(t, err, tt.wantErr)

			stored := f.store.get("A1")
			assert.Equal(t, entity.ApprovalStatusPending, stored.Status)
			assert.Nil(t, stored.Notes)
			assert.Empty(t, f.bookings.updateCalls())
			assert.Empty(t, f.publisher.published())
		})
	}
}

func TestDecision_SecondCallConflicts(t *testing.T) {
	decisions := map[string]func(svc ApprovalService) error{
		"approve": func(svc ApprovalService) error {
			_, err := svc.Approve(context.Background(), "A1", "A", nil)
			return err
		},
		"reject": func(svc ApprovalService) error {
			_, err := svc.Reject(context.Background(), "A1", "A", nil)
			return err
		},
	}

	for first, firstCall := range decisions {
		for second, secondCall := range decisions {
			t.Run(first+" then "+second, func(t *testing.T) {
				f := newApprovalFixture(pendingRecord("A1", "A"))

				require.NoError(t, firstCall(f.svc))
				before := f.store.get("A1")

				err := secondCall(f.svc)
				require.ErrorIs(t, err, workflow.ErrConflict)
				assert.Equal(t, workflow.KindConflict, workflow.Kind(err))
				assert.Equal(t, before, f.store.get("A1"))
				assert.Len(t, f.bookings.updateCalls(), 1)
			})
		}
	}
}

func TestDecision_TerminalAtCreationConflicts(t *testing.T) {
	cc := pendingRecord("A1", "A")
	cc.ApprovalType = entity.ApprovalTypeCcOnly
	cc.Status = entity.ApprovalStatusAutoApproved
	cc.ExpiresAt = nil
	f := newApprovalFixture(cc)

	_, err := f.svc.Approve(context.Background(), "A1", "A", nil)

	require.ErrorIs(t, err, workflow.ErrConflict)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestDecision_LostRaceAtWriteConflicts(t *testing.T) {
	f := newApprovalFixture(pendingRecord("A1", "A"))
	f.store.updateStatusFunc = func(ctx context.Context, id string, upd port.StatusUpdate) (bool, error) {
		return false, nil
	}

	_, err := f.svc.Approve(context.Background(), "A1", "A", nil)

	require.ErrorIs(t, err, workflow.ErrConflict)
	assert.Empty(t, f.bookings.updateCalls())
	assert.Equal(t, 1, f.tx.rollbacks)
}

func TestDecision_ConcurrentCallersExactlyOneWins(t *testing.T) {
	f := newApprovalFixture(pendingRecord("A1", "A"))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.svc.Approve(context.Background(), "A1", "A", nil)
			} else {
				_, errs[i] = f.svc.Reject(context.Background(), "A1", "A", nil)
			}
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrConflict)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.bookings.updateCalls(), 1)
	assert.Len(t, f.publisher.published(), 1)
}

func TestDecision_MissingBookingFails(t *testing.T) {
	f := newApprovalFixture(pendingRecord("A1", "A"))
	f.bookings.missing = true

	_, err := f.svc.Approve(context.Background(), "A1", "A", nil)

	require.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Equal(t, 1, f.tx.rollbacks)
	assert.Empty(t, f.publisher.published())
}

func TestDecision_StoreErrorIsInternal(t *testing.T) {
	f := newApprovalFixture()
	f.store.getByIDFunc = func(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
		return nil, errors.New("connection reset")
	}

	_, err := f.svc.Approve(context.Background(), "A1", "A", nil)

	require.Error(t, err)
	assert.Equal(t, workflow.KindInternal, workflow.Kind(err))
}

func TestQueries(t *testing.T) {
	pending := pendingRecord("A1", "M1")
	approved := pendingRecord("A2", "M1")
	approved.Status = entity.ApprovalStatusApproved
	approved.CreatedAt = testNow.Add(time.Minute)
	other := pendingRecord("A3", "M2")
	other.RequesterID = "U2"
	f := newApprovalFixture(pending, approved, other)
	ctx := context.Background()

	got, err := f.svc.GetPendingForApprover(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A1", got[0].ID)

	mine, err := f.svc.GetMyRequests(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	history, err := f.svc.GetApproverHistory(ctx, "M1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	byID, err := f.svc.FindByID(ctx, "A3")
	require.NoError(t, err)
	assert.Equal(t, "M2", byID.ApproverID)

	byBooking, err := f.svc.FindByBookingID(ctx, "booking-A2")
	require.NoError(t, err)
	assert.Equal(t, "A2", byBooking.ID)

	_, err = f.svc.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.FindByBookingID(ctx, "nope")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
