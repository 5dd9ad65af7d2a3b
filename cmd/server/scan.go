package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/garyjia/trip-approval/internal/container"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one expiry and reminder pass and exit",
	Long: "Expires every overdue pending approval, sends due reminders and prints\n" +
		"the pass summary as JSON. Suitable for cron when the in-process scanner is disabled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		c, err := container.NewContainer(cfg.ToContainerConfig(), logger, container.WithoutWorkers())
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := c.Start(ctx); err != nil {
			return err
		}
		defer c.Close()

		report, err := c.Services().Expiry.RunOnce(ctx)
		if err != nil {
			return err
		}

		// let post-commit notifications finish before Close tears down the sink
		c.Dispatcher().Wait()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
