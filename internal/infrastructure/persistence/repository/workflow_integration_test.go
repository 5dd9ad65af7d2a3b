package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/service"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/internal/infrastructure/clock"
	"github.com/garyjia/trip-approval/pkg/utils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) DispatchAsync(_ context.Context, evt *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type workflowEnv struct {
	*testEnv
	clock     *clock.Fixed
	publisher *recordingPublisher
	approvals service.ApprovalService
	expiry    *service.ExpiryService
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	env := newTestEnv(t)
	w := &workflowEnv{
		testEnv:   env,
		clock:     clock.NewFixed(baseTime),
		publisher: &recordingPublisher{},
	}
	logger := utils.NewKVLogger(zap.NewNop())
	w.approvals = service.NewApprovalService(env.approvals, env.bookings, env.db, w.publisher, w.clock, service.ApprovalSettings{}, logger)
	w.expiry = service.NewExpiryService(env.approvals, env.db, w.publisher, w.clock, service.ExpirySettings{}, logger)
	return w
}

func (w *workflowEnv) createPending(t *testing.T) *service.BookingApproval {
	t.Helper()
	requester := entity.Requester{
		ID:            "emp-1",
		PositionLevel: entity.PositionStaff,
		UserSegment:   entity.SegmentOccasionalTraveler,
		ManagerID:     "mgr-1",
	}
	result, err := w.approvals.CreateBookingWithApproval(context.Background(), &entity.Booking{IsBusinessTrip: true}, requester)
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	require.Equal(t, entity.ApprovalStatusPending, result.Record.Status)
	return result
}

func TestWorkflow_BookingAndApprovalPersistTogether(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()

	result := w.createPending(t)

	booking, err := w.bookings.GetByID(ctx, result.Booking.ID)
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, entity.BookingStatusPendingApproval, booking.Status)

	record, err := w.approvals.FindByBookingID(ctx, result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Record.ID, record.ID)
	assert.Equal(t, []event.Type{event.TypeApprovalRequested}, w.publisher.types())
}

func TestWorkflow_ConcurrentDecisionsExactlyOneWins(t *testing.T) {
	w := newWorkflowEnv(t)
	result := w.createPending(t)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []entity.ApprovalStatus
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			decide := w.approvals.Approve
			if i%2 == 1 {
				decide = w.approvals.Reject
			}
			rec, err := decide(context.Background(), result.Record.ID, "mgr-1", nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, rec.Status)
			case workflow.Kind(err) == workflow.KindConflict:
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, callers-1, conflicts)

	stored, err := w.approvals.FindByID(context.Background(), result.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.Status)

	booking, err := w.bookings.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	if winners[0] == entity.ApprovalStatusApproved {
		assert.Equal(t, entity.BookingStatusReadyForDispatch, booking.Status)
	} else {
		assert.Equal(t, entity.BookingStatusCancelled, booking.Status)
		assert.Equal(t, "approval rejected", booking.CancelReason)
	}
}

func TestWorkflow_ScannerAndApproverRace(t *testing.T) {
	w := newWorkflowEnv(t)
	result := w.createPending(t)
	w.clock.Advance(25 * time.Hour)

	var (
		wg         sync.WaitGroup
		report     service.ScanReport
		scanErr    error
		approveErr error
	)
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		report, scanErr = w.expiry.RunOnce(context.Background())
	}()
	go func() {
		defer wg.Done()
		<-start
		_, approveErr = w.approvals.Approve(context.Background(), result.Record.ID, "mgr-1", nil)
	}()
	close(start)
	wg.Wait()

	require.NoError(t, scanErr)
	stored, err := w.approvals.FindByID(context.Background(), result.Record.ID)
	require.NoError(t, err)

	switch stored.Status {
	case entity.ApprovalStatusApproved:
		require.NoError(t, approveErr)
		assert.Zero(t, report.Expired)
	case entity.ApprovalStatusExpired:
		assert.Equal(t, workflow.KindConflict, workflow.Kind(approveErr))
		assert.Equal(t, 1, report.Expired)
	default:
		t.Fatalf("unexpected final status %s", stored.Status)
	}

	// expiry leaves the booking where it was
	booking, err := w.bookings.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	if stored.Status == entity.ApprovalStatusExpired {
		assert.Equal(t, entity.BookingStatusPendingApproval, booking.Status)
	} else {
		assert.Equal(t, entity.BookingStatusReadyForDispatch, booking.Status)
	}
}

func TestWorkflow_ReminderLadderThenExpiry(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()
	result := w.createPending(t)

	reminders := 0
	for hour := 1; hour <= 23; hour++ {
		w.clock.Set(baseTime.Add(time.Duration(hour)*time.Hour + time.Minute))
		report, err := w.expiry.RunOnce(ctx)
		require.NoError(t, err)
		reminders += report.Reminded
		assert.Zero(t, report.Expired)
	}
	assert.Equal(t, entity.DefaultMaxReminders, reminders)

	w.clock.Set(baseTime.Add(24*time.Hour + time.Second))
	report, err := w.expiry.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	stored, err := w.approvals.FindByID(ctx, result.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusExpired, stored.Status)
	assert.Equal(t, entity.DefaultMaxReminders, stored.ReminderCount)

	// a second pass finds nothing
	report, err = w.expiry.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.ScanReport{}, report)
}
