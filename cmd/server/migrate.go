package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/garyjia/trip-approval/internal/container"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		dbCfg := cfg.ToContainerConfig().Database
		dbCfg.AutoMigrate = true

		bundle, err := container.ProvideDatabase(context.Background(), &dbCfg, logger)
		if err != nil {
			return err
		}
		return bundle.Close()
	},
}
