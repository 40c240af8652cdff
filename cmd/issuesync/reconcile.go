package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var withinDays int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Project fresher work-item edits back onto their origin issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Repository == "" {
				return fmt.Errorf("GITHUB_REPOSITORY is required for reconciliation")
			}
			if withinDays <= 0 {
				withinDays = cfg.ChangedWithinDays
			}

			client := newADOClient(cfg, logger)
			reconciler, err := newReconciler(cmd.Context(), cfg, client, logger)
			if err != nil {
				return err
			}

			written, err := reconciler.Run(cmd.Context(), withinDays)
			if err != nil {
				return err
			}
			logger.Info().Int("writes", written).Msg("reconciliation completed")
			return nil
		},
	}

	cmd.Flags().IntVar(&withinDays, "within-days", 0, "look-back window for changed work items (default: CHANGED_WITHIN_DAYS)")
	return cmd
}
