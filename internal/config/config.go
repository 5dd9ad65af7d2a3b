package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Scanner      ScannerConfig      `mapstructure:"scanner"`
	Notification NotificationConfig `mapstructure:"notification"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ApprovalConfig holds the approval deadline and reminder ladder
type ApprovalConfig struct {
	Deadline         time.Duration `mapstructure:"deadline"`
	ReminderDelay    time.Duration `mapstructure:"reminder_delay"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
	MaxReminders     int           `mapstructure:"max_reminders"`
}

// ScannerConfig holds expiry scanner configuration
type ScannerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	BatchSize  int           `mapstructure:"batch_size"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// NotificationConfig holds notification delivery configuration.
// Sink is one of "log", "lark" or "nats".
type NotificationConfig struct {
	Sink          string        `mapstructure:"sink"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BatchSize     int           `mapstructure:"batch_size"`
	Lark          LarkConfig    `mapstructure:"lark"`
	NATS          NATSConfig    `mapstructure:"nats"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	BaseURL       string `mapstructure:"base_url"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Supported values
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SinkLog  = "log"
	SinkLark = "lark"
	SinkNATS = "nats"
)

// Load loads configuration from file and environment variables. An empty
// configPath skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRIP_APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/trip_approval.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	// Approval defaults
	v.SetDefault("approval.deadline", 24*time.Hour)
	v.SetDefault("approval.reminder_delay", 4*time.Hour)
	v.SetDefault("approval.reminder_interval", time.Hour)
	v.SetDefault("approval.max_reminders", 3)

	// Scanner defaults
	v.SetDefault("scanner.enabled", true)
	v.SetDefault("scanner.interval", 5*time.Minute)
	v.SetDefault("scanner.batch_size", 100)
	v.SetDefault("scanner.run_timeout", 2*time.Minute)

	// Notification defaults
	v.SetDefault("notification.sink", SinkLog)
	v.SetDefault("notification.send_timeout", 10*time.Second)
	v.SetDefault("notification.retry_interval", time.Minute)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.batch_size", 50)
	v.SetDefault("notification.lark.app_id", "")
	v.SetDefault("notification.lark.app_secret", "")
	v.SetDefault("notification.lark.base_url", "")
	v.SetDefault("notification.lark.receive_id_type", "open_id")
	v.SetDefault("notification.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("notification.nats.subject_prefix", "notifications.trip")
	v.SetDefault("notification.nats.reconnect_wait", 2*time.Second)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "trip-approval")
	v.SetDefault("tracing.output_file", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional unprefixed names for credentials
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"notification.lark.app_id":     {"TRIP_APPROVAL_LARK_APP_ID", "LARK_APP_ID"},
		"notification.lark.app_secret": {"TRIP_APPROVAL_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"notification.nats.url":        {"TRIP_APPROVAL_NATS_URL", "NATS_URL"},
		"database.dsn":                 {"TRIP_APPROVAL_DATABASE_DSN", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	durations := map[string]time.Duration{
		"approval.deadline":          c.Approval.Deadline,
		"approval.reminder_delay":    c.Approval.ReminderDelay,
		"approval.reminder_interval": c.Approval.ReminderInterval,
		"scanner.interval":           c.Scanner.Interval,
		"notification.send_timeout":  c.Notification.SendTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Approval.MaxReminders <= 0 {
		return fmt.Errorf("approval.max_reminders must be positive")
	}
	if c.Approval.ReminderDelay >= c.Approval.Deadline {
		return fmt.Errorf("approval.reminder_delay must be shorter than approval.deadline")
	}

	switch c.Notification.Sink {
	case SinkLog:
	case SinkLark:
		if c.Notification.Lark.AppID == "" {
			return fmt.Errorf("notification.lark.app_id is required for the lark sink")
		}
		if c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_secret is required for the lark sink")
		}
	case SinkNATS:
		if c.Notification.NATS.URL == "" {
			return fmt.Errorf("notification.nats.url is required for the nats sink")
		}
	default:
		return fmt.Errorf("unsupported notification.sink %q", c.Notification.Sink)
	}

	return nil
}
