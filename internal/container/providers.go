package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/dispatcher"
	"github.com/garyjia/trip-approval/internal/application/port"
	"github.com/garyjia/trip-approval/internal/application/service"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/infrastructure/clock"
	infraLark "github.com/garyjia/trip-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/trip-approval/internal/infrastructure/external/logsink"
	"github.com/garyjia/trip-approval/internal/infrastructure/external/natsbus"
	"github.com/garyjia/trip-approval/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/trip-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/trip-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/trip-approval/internal/infrastructure/worker"
	"github.com/garyjia/trip-approval/pkg/database"
	"github.com/garyjia/trip-approval/pkg/utils"
)

// DatabaseBundle holds database-related components. Exactly one of SQLDB
// and Pool is set, depending on the driver.
type DatabaseBundle struct {
	SQLDB        *sql.DB
	Pool         *pgxpool.Pool
	TxManager    port.TransactionManager
	Repositories *RepositoryBundle
}

// Ping checks the underlying connection
func (b *DatabaseBundle) Ping(ctx context.Context) error {
	if b.Pool != nil {
		return b.Pool.Ping(ctx)
	}
	if b.SQLDB != nil {
		return b.SQLDB.PingContext(ctx)
	}
	return fmt.Errorf("database not initialized")
}

// Close releases the connection
func (b *DatabaseBundle) Close() error {
	if b.Pool != nil {
		b.Pool.Close()
		return nil
	}
	if b.SQLDB != nil {
		return b.SQLDB.Close()
	}
	return nil
}

// SinkBundle holds the notification sink and the connection it owns, if any.
type SinkBundle struct {
	Sink port.NotificationSink
	NATS *nats.Conn
}

// Close drains the NATS connection if one was opened
func (b *SinkBundle) Close() error {
	if b.NATS != nil {
		return b.NATS.Drain()
	}
	return nil
}

// ProvideDatabase opens the configured database, applies migrations when
// AutoMigrate is set and wires the repositories and transaction manager.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case DriverPostgres:
		return providePostgres(ctx, cfg, logger)
	case DriverSQLite, "":
		return provideSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func provideSQLite(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(db.DB, logger).Run(ctx, database.SQLiteMigrations())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations applied", zap.Int("count", applied))
	}

	repos, err := ProvideRepositories(db.DB, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DatabaseBundle{
		SQLDB:        db.DB,
		TxManager:    sqlite.NewDB(db.DB, logger),
		Repositories: repos,
	}, nil
}

func providePostgres(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	pool, err := database.NewPostgres(ctx, database.PostgresConfig{
		DSN:             cfg.DSN,
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MaxIdleConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewPostgresMigrator(pool, logger).Run(ctx, database.PostgresMigrations())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations applied", zap.Int("count", applied))
	}

	return &DatabaseBundle{
		Pool:      pool,
		TxManager: postgres.NewTxManager(pool, logger),
		Repositories: &RepositoryBundle{
			Approval:     postgres.NewApprovalStore(pool, logger),
			Booking:      postgres.NewBookingStore(pool, logger),
			Notification: postgres.NewNotificationStore(pool, logger),
		},
	}, nil
}

// ProvideRepositories creates the SQLite repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Approval:     repository.NewApprovalRepository(sqlDB, logger),
		Booking:      repository.NewBookingRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
	}, nil
}

// ProvideNotificationSink creates the configured delivery channel.
func ProvideNotificationSink(cfg *NotificationConfig, logger *zap.Logger) (*SinkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Sink {
	case SinkLark:
		larkCfg := infraLark.Config{
			AppID:         cfg.Lark.AppID,
			AppSecret:     cfg.Lark.AppSecret,
			BaseURL:       cfg.Lark.BaseURL,
			ReceiveIDType: cfg.Lark.ReceiveIDType,
		}
		client := infraLark.NewSDKClient(larkCfg, logger)
		return &SinkBundle{Sink: infraLark.NewNotificationSink(client, larkCfg, logger)}, nil

	case SinkNATS:
		conn, err := natsbus.Connect(natsbus.Config{
			URL:           cfg.NATS.URL,
			Name:          "trip-approval",
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &SinkBundle{
			Sink: natsbus.NewSink(conn, cfg.NATS.SubjectPrefix, logger),
			NATS: conn,
		}, nil

	case SinkLog, "":
		return &SinkBundle{Sink: logsink.New(logger)}, nil

	default:
		return nil, fmt.Errorf("unsupported notification sink %q", cfg.Sink)
	}
}

// ProvideDispatcher creates the event dispatcher.
// Returns dispatcher.Dispatcher implementation.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Dispatcher   dispatcher.Dispatcher
	Sink         port.NotificationSink
	Clock        port.Clock
	Approval     *ApprovalConfig
	Scanner      *ScannerConfig
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification service to approval events.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("notification sink is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	approvalCfg := ApprovalConfig{}
	if deps.Approval != nil {
		approvalCfg = *deps.Approval
	}
	scannerCfg := ScannerConfig{}
	if deps.Scanner != nil {
		scannerCfg = *deps.Scanner
	}
	notificationCfg := NotificationConfig{}
	if deps.Notification != nil {
		notificationCfg = *deps.Notification
	}

	serviceLogger := utils.NewKVLogger(deps.Logger.Named("service"))

	approval := service.NewApprovalService(
		deps.Repos.Approval,
		deps.Repos.Booking,
		deps.TxManager,
		deps.Dispatcher,
		clk,
		service.ApprovalSettings{Deadline: approvalCfg.Deadline},
		serviceLogger,
	)

	expiry := service.NewExpiryService(
		deps.Repos.Approval,
		deps.TxManager,
		deps.Dispatcher,
		clk,
		service.ExpirySettings{
			Reminder: entity.ReminderPolicy{
				Delay:        approvalCfg.ReminderDelay,
				Interval:     approvalCfg.ReminderInterval,
				MaxReminders: approvalCfg.MaxReminders,
			},
			BatchSize: scannerCfg.BatchSize,
		},
		serviceLogger,
	)

	notification := service.NewNotificationService(
		deps.Repos.Notification,
		deps.Sink,
		clk,
		service.NotificationSettings{
			SendTimeout: notificationCfg.SendTimeout,
			MaxAttempts: notificationCfg.MaxAttempts,
			BatchSize:   notificationCfg.BatchSize,
		},
		serviceLogger,
	)
	notification.Register(deps.Dispatcher)

	return &ServiceBundle{
		Approval:     approval,
		Expiry:       expiry,
		Notification: notification,
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services     *ServiceBundle
	Scanner      *ScannerConfig
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.Scanner == nil || deps.Notification == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Scanner.Enabled {
		expiryCfg := worker.DefaultExpiryWorkerConfig()
		if deps.Scanner.Interval > 0 {
			expiryCfg.PollInterval = deps.Scanner.Interval
		}
		if deps.Scanner.RunTimeout > 0 {
			expiryCfg.RunTimeout = deps.Scanner.RunTimeout
		}
		manager.Register(worker.NewExpiryWorker(expiryCfg, deps.Services.Expiry, deps.Logger))
	}

	retryCfg := worker.DefaultNotificationRetryWorkerConfig()
	if deps.Notification.RetryInterval > 0 {
		retryCfg.PollInterval = deps.Notification.RetryInterval
	}
	manager.Register(worker.NewNotificationRetryWorker(retryCfg, deps.Services.Notification, deps.Logger))

	return manager, nil
}
