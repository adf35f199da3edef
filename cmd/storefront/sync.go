package main

import (
	"context"
	"encoding/json"

	"github.com/example/storefront/pkg/scheduler"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one payment reconciliation pass and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg.Scheduler
			cfg.Enabled = true
			reconciler := scheduler.NewReconciler(cfg, a.payments, a.metrics, a.logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			report := reconciler.RunOnce(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
