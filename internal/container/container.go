package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/dispatcher"
	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/application/service"
	"github.com/garyjia/trip-approval/internal/infrastructure/report"
	"github.com/garyjia/trip-approval/internal/infrastructure/worker"
	httpapi "github.com/garyjia/trip-approval/internal/interfaces/http"
	"github.com/garyjia/trip-approval/pkg/tracing"
	"github.com/garyjia/trip-approval/pkg/utils"
)

// Version is reported to the tracer
const Version = "1.0.0"

const shutdownTimeout = 5 * time.Second

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger
	clock  port.Clock

	// Infrastructure - Data
	database *DatabaseBundle

	// Infrastructure - External
	sinks    *SinkBundle
	exporter port.ApprovalExporter

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers      *worker.WorkerManager
	startWorkers bool

	// Interfaces
	httpServer *httpapi.Server

	tracing bool

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Approval     port.ApprovalRecordStore
	Booking      port.BookingStore
	Notification port.NotificationRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Approval     service.ApprovalService
	Expiry       *service.ExpiryService
	Notification *service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option customizes a Container
type Option func(*Container)

// WithClock replaces the system clock
func WithClock(clock port.Clock) Option {
	return func(c *Container) {
		c.clock = clock
	}
}

// WithoutWorkers keeps background workers registered but stopped, for
// one-shot commands.
func WithoutWorkers() Option {
	return func(c *Container) {
		c.startWorkers = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:       cfg,
		logger:       logger,
		startWorkers: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database, migrations and repositories
// 3. Notification sink
// 4. Event dispatcher and application services
// 5. Workers
// 6. HTTP server (constructed, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initTracing(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize tracing: %w", err))
	}

	if err := c.initDatabase(c.ctx); err != nil {
		return c.abort(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized", zap.String("driver", c.config.Database.Driver))

	if err := c.initSinks(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize notification sink: %w", err))
	}
	c.logger.Info("Notification sink initialized", zap.String("sink", c.sinks.Sink.Name()))

	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}

	c.initHTTP()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases whatever Start managed to build before failing
func (c *Container) abort(err error) error {
	c.teardown()
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()
	c.closed.Store(true)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.httpServer != nil {
		if err := c.httpServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
		c.httpServer = nil
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}
	c.services = nil

	if c.sinks != nil {
		if err := c.sinks.Close(); err != nil {
			c.logger.Error("Failed to close notification sink", zap.Error(err))
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
		c.sinks = nil
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.database = nil
	}

	if c.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
		c.tracing = false
	}

	c.ready.Store(false)
	return errs
}

func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Ping reports whether the database is reachable
func (c *Container) Ping(ctx context.Context) error {
	c.mu.RLock()
	db := c.database
	c.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return db.Ping(ctx)
}

func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", false, "not initialized")
	default:
		if err := c.database.Ping(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, c.config.Database.Driver)
		}
	}

	if c.sinks != nil {
		set("notification_sink", true, c.sinks.Sink.Name())
	} else {
		set("notification_sink", false, "not initialized")
	}

	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	if c.workers != nil {
		running := c.workers.IsRunning() || !c.startWorkers
		set("workers", running, fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	return status
}

// Services returns the application services. Nil before Start.
func (c *Container) Services() *ServiceBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// Repositories returns the storage adapters. Nil before Start.
func (c *Container) Repositories() *RepositoryBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.database == nil {
		return nil
	}
	return c.database.Repositories
}

// Exporter returns the approval history exporter
func (c *Container) Exporter() port.ApprovalExporter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exporter
}

// HTTPServer returns the HTTP adapter. Nil before Start.
func (c *Container) HTTPServer() *httpapi.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpServer
}

// Dispatcher returns the event dispatcher. Nil before Start.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dispatcher
}

func (c *Container) initTracing() error {
	if !c.config.Tracing.Enabled {
		return nil
	}
	if err := tracing.Init(c.config.Tracing.ServiceName, Version, c.config.Tracing.OutputFile); err != nil {
		return err
	}
	c.tracing = true
	c.logger.Info("Tracing enabled", zap.String("output", c.config.Tracing.OutputFile))
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = db
	return nil
}

func (c *Container) initSinks() error {
	sinks, err := ProvideNotificationSink(&c.config.Notification, c.logger)
	if err != nil {
		return err
	}
	c.sinks = sinks
	c.exporter = report.NewXLSXExporter(c.logger)
	return nil
}

func (c *Container) initServices() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	services, err := ProvideServices(&ServiceDeps{
		Repos:        c.database.Repositories,
		TxManager:    c.database.TxManager,
		Dispatcher:   c.dispatcher,
		Sink:         c.sinks.Sink,
		Clock:        c.clock,
		Approval:     &c.config.Approval,
		Scanner:      &c.config.Scanner,
		Notification: &c.config.Notification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	manager, err := ProvideWorkers(&WorkerDeps{
		Services:     c.services,
		Scanner:      &c.config.Scanner,
		Notification: &c.config.Notification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = manager

	if !c.startWorkers {
		c.logger.Info("Workers registered, not started", zap.Int("count", manager.GetWorkerCount()))
		return nil
	}
	if err := c.workers.StartAll(c.ctx); err != nil {
		return err
	}
	c.logger.Info("Workers initialized and started")
	return nil
}

// initHTTP builds the server. The health check holds the bundle directly so it
// never waits on c.mu while Close is draining requests.
func (c *Container) initHTTP() {
	db := c.database
	c.httpServer = httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		},
		c.services.Approval,
		db.Ping,
		utils.NewKVLogger(c.logger.Named("http")),
	)
}
