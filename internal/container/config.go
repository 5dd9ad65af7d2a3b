// Package container provides dependency injection and lifecycle management
// for the trip approval engine.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Approval deadline and reminder ladder
	Approval ApprovalConfig

	// Expiry scanner configuration
	Scanner ScannerConfig

	// Notification delivery configuration
	Notification NotificationConfig

	// Server configuration
	Server ServerConfig

	// Tracing configuration
	Tracing TracingConfig
}

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Notification sinks
const (
	SinkLog  = "log"
	SinkLark = "lark"
	SinkNATS = "nats"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the backend: "sqlite" or "postgres"
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the postgres connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration

	// AutoMigrate applies embedded migrations on start
	AutoMigrate bool
}

// ApprovalConfig holds approval timing settings.
type ApprovalConfig struct {
	Deadline         time.Duration
	ReminderDelay    time.Duration
	ReminderInterval time.Duration
	MaxReminders     int
}

// ScannerConfig holds expiry scanner settings.
type ScannerConfig struct {
	// Enabled starts the background scanner with the container
	Enabled bool

	// Interval between scanner passes
	Interval time.Duration

	// BatchSize caps the records handled per pass and phase
	BatchSize int

	// RunTimeout bounds a single pass
	RunTimeout time.Duration
}

// NotificationConfig holds notification delivery settings.
type NotificationConfig struct {
	// Sink selects the delivery channel: "log", "lark" or "nats"
	Sink string

	SendTimeout   time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	BatchSize     int

	Lark LarkConfig
	NATS NATSConfig
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID         string
	AppSecret     string
	BaseURL       string
	ReceiveIDType string
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	OutputFile  string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/trip_approval.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Approval: ApprovalConfig{
			Deadline:         24 * time.Hour,
			ReminderDelay:    4 * time.Hour,
			ReminderInterval: time.Hour,
			MaxReminders:     3,
		},
		Scanner: ScannerConfig{
			Enabled:    true,
			Interval:   5 * time.Minute,
			BatchSize:  100,
			RunTimeout: 2 * time.Minute,
		},
		Notification: NotificationConfig{
			Sink:          SinkLog,
			SendTimeout:   10 * time.Second,
			RetryInterval: time.Minute,
			MaxAttempts:   5,
			BatchSize:     50,
			Lark: LarkConfig{
				ReceiveIDType: "open_id",
			},
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "notifications.trip",
				ReconnectWait: 2 * time.Second,
			},
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "trip-approval",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Notification.Sink {
	case SinkLog:
	case SinkLark:
		if c.Notification.Lark.AppID == "" || c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("lark app credentials are required for the lark sink")
		}
	case SinkNATS:
		if c.Notification.NATS.URL == "" {
			return fmt.Errorf("nats url is required for the nats sink")
		}
	default:
		return fmt.Errorf("unsupported notification sink %q", c.Notification.Sink)
	}

	if c.Scanner.Enabled && c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive")
	}

	return nil
}
