package config

import (
	"github.com/garyjia/trip-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Approval: container.ApprovalConfig{
			Deadline:         c.Approval.Deadline,
			ReminderDelay:    c.Approval.ReminderDelay,
			ReminderInterval: c.Approval.ReminderInterval,
			MaxReminders:     c.Approval.MaxReminders,
		},
		Scanner: container.ScannerConfig{
			Enabled:    c.Scanner.Enabled,
			Interval:   c.Scanner.Interval,
			BatchSize:  c.Scanner.BatchSize,
			RunTimeout: c.Scanner.RunTimeout,
		},
		Notification: container.NotificationConfig{
			Sink:          c.Notification.Sink,
			SendTimeout:   c.Notification.SendTimeout,
			RetryInterval: c.Notification.RetryInterval,
			MaxAttempts:   c.Notification.MaxAttempts,
			BatchSize:     c.Notification.BatchSize,
			Lark: container.LarkConfig{
				AppID:         c.Notification.Lark.AppID,
				AppSecret:     c.Notification.Lark.AppSecret,
				BaseURL:       c.Notification.Lark.BaseURL,
				ReceiveIDType: c.Notification.Lark.ReceiveIDType,
			},
			NATS: container.NATSConfig{
				URL:           c.Notification.NATS.URL,
				SubjectPrefix: c.Notification.NATS.SubjectPrefix,
				ReconnectWait: c.Notification.NATS.ReconnectWait,
			},
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Tracing: container.TracingConfig{
			Enabled:     c.Tracing.Enabled,
			ServiceName: c.Tracing.ServiceName,
			OutputFile:  c.Tracing.OutputFile,
		},
	}
}
