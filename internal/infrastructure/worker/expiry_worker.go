package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/service"
)

// Scanner performs one expiry and reminder pass
type Scanner interface {
	RunOnce(ctx context.Context) (service.ScanReport, error)
}

// ExpiryWorkerConfig holds configuration for the expiry worker
type ExpiryWorkerConfig struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
	RunOnStart   bool
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() ExpiryWorkerConfig {
	return ExpiryWorkerConfig{
		PollInterval: 5 * time.Minute,
		RunTimeout:   2 * time.Minute,
		RunOnStart:   true,
	}
}

// ExpiryWorker drives the approval scanner on a fixed interval
type ExpiryWorker struct {
	config  ExpiryWorkerConfig
	scanner Scanner
	logger  *zap.Logger
	poller  *poller

	mu      sync.RWMutex
	runs    int
	totals  service.ScanReport
	lastRun time.Time
	lastErr error
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(config ExpiryWorkerConfig, scanner Scanner, logger *zap.Logger) *ExpiryWorker {
	w := &ExpiryWorker{
		config:  config,
		scanner: scanner,
		logger:  logger,
	}
	w.poller = &poller{
		name:       w.Name(),
		interval:   config.PollInterval,
		runOnStart: config.RunOnStart,
		tick:       w.runOnce,
		logger:     logger,
	}
	return w
}

// Start begins the worker polling loop
func (w *ExpiryWorker) Start(ctx context.Context) error {
	return w.poller.start(ctx)
}

// Stop terminates the loop after the current pass
func (w *ExpiryWorker) Stop() error {
	w.poller.stop()

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info("ExpiryWorker stopped",
		zap.Int("runs", w.runs),
		zap.Int("expired", w.totals.Expired),
		zap.Int("reminded", w.totals.Reminded),
		zap.Int("failed", w.totals.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *ExpiryWorker) Name() string {
	return "ExpiryWorker"
}

// Stats returns the accumulated scan counters
func (w *ExpiryWorker) Stats() (runs int, totals service.ScanReport, lastErr error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runs, w.totals, w.lastErr
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	runCtx := ctx
	if w.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.config.RunTimeout)
		defer cancel()
	}

	report, err := w.scanner.RunOnce(runCtx)
	if err != nil {
		w.logger.Error("Approval scan finished with errors", zap.Error(err))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	w.totals.Expired += report.Expired
	w.totals.Reminded += report.Reminded
	w.totals.Skipped += report.Skipped
	w.totals.Failed += report.Failed
	w.lastRun = time.Now()
	w.lastErr = err
}
