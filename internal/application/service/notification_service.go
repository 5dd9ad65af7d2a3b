package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/trip-approval/internal/application/dispatcher"
	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/event"
)

// NotificationSettings tunes delivery
type NotificationSettings struct {
	SendTimeout time.Duration
	MaxAttempts int
	BatchSize   int
}

// NotificationService turns approval events into logged, best-effort deliveries.
// Nothing it does is reported back to the workflow that raised the event.
type NotificationService struct {
	repo        port.NotificationRepository
	sink        port.NotificationSink
	clock       port.Clock
	sendTimeout time.Duration
	maxAttempts int
	batchSize   int
	logger      Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	repo port.NotificationRepository,
	sink port.NotificationSink,
	clock port.Clock,
	settings NotificationSettings,
	logger Logger,
) *NotificationService {
	if settings.SendTimeout <= 0 {
		settings.SendTimeout = 10 * time.Second
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	return &NotificationService{
		repo:        repo,
		sink:        sink,
		clock:       clock,
		sendTimeout: settings.SendTimeout,
		maxAttempts: settings.MaxAttempts,
		batchSize:   settings.BatchSize,
		logger:      logger,
	}
}

// Register subscribes the service to every approval event type
func (s *NotificationService) Register(d dispatcher.Dispatcher) {
	for _, t := range event.AllTypes() {
		d.SubscribeNamed(t, "notify-"+t.String(), s.HandleEvent)
	}
}

// HandleEvent delivers the notifications evt calls for
func (s *NotificationService) HandleEvent(ctx context.Context, evt *event.Event) error {
	notifications := ComposeNotifications(evt)
	if len(notifications) == 0 {
		return nil
	}

	var failed int
	for _, n := range notifications {
		if !s.Deliver(ctx, n) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d notifications for event %s failed", failed, len(notifications), evt.ID)
	}
	return nil
}

// Deliver logs n as PENDING, sends it and records the outcome. It reports
// whether the sink accepted the message.
func (s *NotificationService) Deliver(ctx context.Context, n *entity.Notification) bool {
	now := s.clock.Now()
	n.Status = entity.NotificationStatusPending
	n.CreatedAt = now
	n.UpdatedAt = now

	logged := true
	if err := s.repo.Create(ctx, n); err != nil {
		logged = false
		s.logger.Error("Failed to log notification", "user_id", n.UserID, "type", n.Type, "error", err)
	}

	err := s.send(ctx, n)
	if logged {
		s.record(ctx, n, err)
	}
	if err != nil {
		s.logger.Error("Notification delivery failed",
			"sink", s.sink.Name(),
			"user_id", n.UserID,
			"booking_id", n.BookingID,
			"type", n.Type,
			"error", err,
		)
		return false
	}

	s.logger.Info("Notification sent", "sink", s.sink.Name(), "user_id", n.UserID, "type", n.Type)
	return true
}

// RetryFailed re-sends FAILED notifications that still have attempts left and
// returns how many went through.
func (s *NotificationService) RetryFailed(ctx context.Context) (int, error) {
	pending, err := s.repo.ListRetryable(ctx, s.maxAttempts, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable notifications: %w", err)
	}

	var sent int
	for _, n := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		err := s.send(ctx, n)
		s.record(ctx, n, err)
		if err != nil {
			s.logger.Error("Notification retry failed", "notification_id", n.ID, "attempts", n.Attempts, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *NotificationService) send(ctx context.Context, n *entity.Notification) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.sink.Send(sendCtx, n.UserID, n.BookingID, n.Type, n.Title, n.Message)
}

func (s *NotificationService) record(ctx context.Context, n *entity.Notification, sendErr error) {
	now := s.clock.Now()
	if sendErr != nil {
		n.Status = entity.NotificationStatusFailed
		n.Attempts++
		n.LastError = sendErr.Error()
		if err := s.repo.MarkFailed(ctx, n.ID, n.LastError, now); err != nil {
			s.logger.Error("Failed to mark notification failed", "notification_id", n.ID, "error", err)
		}
		return
	}

	n.Status = entity.NotificationStatusSent
	n.Attempts++
	n.SentAt = &now
	if err := s.repo.MarkSent(ctx, n.ID, now); err != nil {
		s.logger.Error("Failed to mark notification sent", "notification_id", n.ID, "error", err)
	}
}
