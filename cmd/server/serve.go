package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/container"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		logger.Info("Starting trip approval service",
			zap.String("version", container.Version),
			zap.String("database", cfg.Database.Driver),
			zap.String("sink", cfg.Notification.Sink),
			zap.Int("port", cfg.Server.Port))

		c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := c.Start(ctx); err != nil {
			return err
		}

		serveErr := c.HTTPServer().Start(ctx)
		if serveErr != nil {
			logger.Error("HTTP server exited", zap.Error(serveErr))
		}

		logger.Info("Shutting down")
		if err := c.Close(); err != nil {
			logger.Error("Shutdown finished with errors", zap.Error(err))
			if serveErr == nil {
				return err
			}
		}
		return serveErr
	},
}
