package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
)

// mockApprovalStore keeps records in memory and honours the conditional
// update semantics of the real stores. Function fields override behaviour.
type mockApprovalStore struct {
	mu      sync.Mutex
	records map[string]*entity.ApprovalRecord
	writes  int

	getByIDFunc      func(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	createFunc       func(ctx context.Context, record *entity.ApprovalRecord) error
	updateStatusFunc func(ctx context.Context, id string, upd port.StatusUpdate) (bool, error)
	incrementFunc    func(ctx context.Context, id string, g port.ReminderGuard) (bool, error)
	listExpiredFunc  func(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalRecord, error)
	listReminderFunc func(ctx context.Context, q port.ReminderQuery) ([]*entity.ApprovalRecord, error)
}

func newMockApprovalStore(records ...*entity.ApprovalRecord) *mockApprovalStore {
	m := &mockApprovalStore{records: make(map[string]*entity.ApprovalRecord)}
	for _, r := range records {
		m.records[r.ID] = copyRecord(r)
	}
	return m
}

func copyRecord(r *entity.ApprovalRecord) *entity.ApprovalRecord {
	c := *r
	return &c
}

func (m *mockApprovalStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *mockApprovalStore) get(id string) *entity.ApprovalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return copyRecord(r)
	}
	return nil
}

func (m *mockApprovalStore) filter(keep func(r *entity.ApprovalRecord) bool) []*entity.ApprovalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockApprovalStore) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.get(id), nil
}

func (m *mockApprovalStore) GetByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
	found := m.filter(func(r *entity.ApprovalRecord) bool { return r.BookingID == bookingID })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (m *mockApprovalStore) ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return m.filter(func(r *entity.ApprovalRecord) bool {
		return r.ApproverID == approverID && r.Status == entity.ApprovalStatusPending
	}), nil
}

func (m *mockApprovalStore) ListByRequester(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error) {
	return m.filter(func(r *entity.ApprovalRecord) bool { return r.RequesterID == requesterID }), nil
}

func (m *mockApprovalStore) ListByApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return m.filter(func(r *entity.ApprovalRecord) bool { return r.ApproverID == approverID }), nil
}

func (m *mockApprovalStore) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.records[record.ID] = copyRecord(record)
	return nil
}

func (m *mockApprovalStore) Save(ctx context.Context, record *entity.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.records[record.ID] = copyRecord(record)
	return nil
}

func (m *mockApprovalStore) UpdateStatusIfPending(ctx context.Context, id string, upd port.StatusUpdate) (bool, error) {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, upd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != entity.ApprovalStatusPending {
		return false, nil
	}
	m.writes++
	r.Status = upd.Status
	r.Notes = upd.Notes
	r.RespondedAt = upd.RespondedAt
	r.UpdatedAt = upd.UpdatedAt
	return true, nil
}

func (m *mockApprovalStore) IncrementReminder(ctx context.Context, id string, g port.ReminderGuard) (bool, error) {
	if m.incrementFunc != nil {
		return m.incrementFunc(ctx, id, g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != entity.ApprovalStatusPending || r.ReminderCount >= g.MaxReminders {
		return false, nil
	}
	if r.LastReminderAt != nil && !r.LastReminderAt.Before(g.RemindedBefore) {
		return false, nil
	}
	m.writes++
	at := g.At
	r.ReminderCount++
	r.LastReminderAt = &at
	r.UpdatedAt = at
	return true, nil
}

func (m *mockApprovalStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalRecord, error) {
	if m.listExpiredFunc != nil {
		return m.listExpiredFunc(ctx, now, limit)
	}
	return capped(m.filter(func(r *entity.ApprovalRecord) bool {
		return r.Status == entity.ApprovalStatusPending && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
	}), limit), nil
}

func (m *mockApprovalStore) ListNeedingReminder(ctx context.Context, q port.ReminderQuery) ([]*entity.ApprovalRecord, error) {
	if m.listReminderFunc != nil {
		return m.listReminderFunc(ctx, q)
	}
	return capped(m.filter(func(r *entity.ApprovalRecord) bool {
		return r.Status == entity.ApprovalStatusPending &&
			r.ReminderCount < q.MaxReminders &&
			r.CreatedAt.Before(q.CreatedBefore) &&
			(r.LastReminderAt == nil || r.LastReminderAt.Before(q.RemindedBefore))
	}), q.Limit), nil
}

func capped(records []*entity.ApprovalRecord, limit int) []*entity.ApprovalRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

type bookingUpdate struct {
	ID     string
	Status entity.BookingStatus
	Reason string
}

type mockBookingStore struct {
	mu       sync.Mutex
	created  []*entity.Booking
	updates  []bookingUpdate
	missing  bool
	createFn func(ctx context.Context, booking *entity.Booking) error
	updateFn func(ctx context.Context, id string, status entity.BookingStatus, reason string) (bool, error)
}

func (m *mockBookingStore) Create(ctx context.Context, booking *entity.Booking) error {
	if m.createFn != nil {
		return m.createFn(ctx, booking)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *booking
	m.created = append(m.created, &c)
	return nil
}

func (m *mockBookingStore) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.created {
		if b.ID == id {
			c := *b
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockBookingStore) UpdateStatus(ctx context.Context, id string, status entity.BookingStatus, reason string) (bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, status, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing {
		return false, nil
	}
	m.updates = append(m.updates, bookingUpdate{ID: id, Status: status, Reason: reason})
	return true, nil
}

func (m *mockBookingStore) updateCalls() []bookingUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bookingUpdate(nil), m.updates...)
}

type txKey struct{}

type mockTx struct {
	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

// mockTxManager runs fn directly and fires AfterCommit hooks only on success
type mockTxManager struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*mockTx); ok {
		return fn(ctx)
	}

	tx := &mockTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		m.mu.Lock()
		m.rollbacks++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.commits++
	m.mu.Unlock()

	tx.mu.Lock()
	hooks := tx.hooks
	tx.mu.Unlock()
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

func (m *mockTxManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if tx, ok := ctx.Value(txKey{}).(*mockTx); ok {
		tx.mu.Lock()
		tx.hooks = append(tx.hooks, fn)
		tx.mu.Unlock()
		return
	}
	fn(ctx)
}

func (m *mockTxManager) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*mockTx)
	return ok
}

// mockPublisher records events synchronously
type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockPublisher) published() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*event.Event(nil), m.events...)
}

type mockNotificationRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entity.Notification
	sent   []int64
	failed []int64

	createFunc    func(ctx context.Context, n *entity.Notification) error
	retryableFunc func(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{rows: make(map[int64]*entity.Notification)}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	c := *n
	m.rows[n.ID] = &c
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.rows[id]; ok {
		c := *n
		return &c, nil
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	if m.retryableFunc != nil {
		return m.retryableFunc(ctx, maxAttempts, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	return nil
}

type sentMessage struct {
	UserID    string
	BookingID string
	Type      entity.NotificationType
	Title     string
	Message   string
}

type mockSink struct {
	mu       sync.Mutex
	messages []sentMessage
	sendFunc func(ctx context.Context, userID string) error
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) Send(ctx context.Context, userID, bookingID string, t entity.NotificationType, title, message string) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, userID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{userID, bookingID, t, title, message})
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
