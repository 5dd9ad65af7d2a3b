package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Retrier re-sends failed notifications
type Retrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// NotificationRetryWorkerConfig holds configuration for the retry worker
type NotificationRetryWorkerConfig struct {
	PollInterval time.Duration
}

// DefaultNotificationRetryWorkerConfig returns default configuration
func DefaultNotificationRetryWorkerConfig() NotificationRetryWorkerConfig {
	return NotificationRetryWorkerConfig{PollInterval: time.Minute}
}

// NotificationRetryWorker periodically re-sends FAILED notifications
type NotificationRetryWorker struct {
	retrier Retrier
	logger  *zap.Logger
	poller  *poller

	mu     sync.Mutex
	resent int
}

// NewNotificationRetryWorker creates a new retry worker
func NewNotificationRetryWorker(config NotificationRetryWorkerConfig, retrier Retrier, logger *zap.Logger) *NotificationRetryWorker {
	w := &NotificationRetryWorker{retrier: retrier, logger: logger}
	w.poller = &poller{
		name:     w.Name(),
		interval: config.PollInterval,
		tick:     w.retry,
		logger:   logger,
	}
	return w
}

func (w *NotificationRetryWorker) Start(ctx context.Context) error {
	return w.poller.start(ctx)
}

func (w *NotificationRetryWorker) Stop() error {
	w.poller.stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger.Info("NotificationRetryWorker stopped", zap.Int("resent", w.resent))
	return nil
}

func (w *NotificationRetryWorker) Name() string {
	return "NotificationRetryWorker"
}

// Resent returns how many notifications were delivered on retry
func (w *NotificationRetryWorker) Resent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resent
}

func (w *NotificationRetryWorker) retry(ctx context.Context) {
	n, err := w.retrier.RetryFailed(ctx)
	if err != nil {
		w.logger.Error("Notification retry failed", zap.Error(err))
	}
	if n > 0 {
		w.logger.Info("Notifications re-sent", zap.Int("count", n))
	}

	w.mu.Lock()
	w.resent += n
	w.mu.Unlock()
}
