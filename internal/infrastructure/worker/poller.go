package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// poller runs tick on a fixed interval until stopped. Stop waits for an
// in-flight tick to return.
type poller struct {
	name       string
	interval   time.Duration
	runOnStart bool
	tick       func(ctx context.Context)
	logger     *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func (p *poller) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return fmt.Errorf("%s already running", p.name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("%s: poll interval must be positive", p.name)
	}

	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.isRunning = true

	p.logger.Info("Worker loop started",
		zap.String("worker_name", p.name),
		zap.Duration("poll_interval", p.interval))

	go p.loop(loopCtx, p.done)
	return nil
}

func (p *poller) stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *poller) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.runOnStart {
		p.safeTick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Poll loop context cancelled", zap.String("worker_name", p.name))
			return
		case <-ticker.C:
			p.safeTick(ctx)
		}
	}
}

func (p *poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker tick panicked",
				zap.String("worker_name", p.name),
				zap.Any("panic", r))
		}
	}()
	p.tick(ctx)
}
