package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/trip-approval/internal/container"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/pkg/utils"
)

var (
	exportApprover  string
	exportRequester string
	exportOut       string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportApprover, "approver", "", "export every approval assigned to this approver")
	exportCmd.Flags().StringVar(&exportRequester, "requester", "", "export every approval requested by this user")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "approvals.xlsx", "output XLSX file")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export approval history to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (exportApprover == "") == (exportRequester == "") {
			return fmt.Errorf("exactly one of --approver or --requester is required")
		}
		userID := exportApprover + exportRequester
		if err := utils.ValidateUserID(userID); err != nil {
			return err
		}

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

		var records []*entity.ApprovalRecord
		if exportApprover != "" {
			records, err = c.Services().Approval.GetApproverHistory(ctx, exportApprover)
		} else {
			records, err = c.Services().Approval.GetMyRequests(ctx, exportRequester)
		}
		if err != nil {
			return err
		}

		if err := c.Exporter().Export(ctx, records, exportOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d approvals to %s\n", len(records), exportOut)
		return nil
	},
}
