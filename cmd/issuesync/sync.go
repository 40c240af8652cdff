package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mirrorops/issuesync/internal/event"
)

func newSyncCmd() *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Process one origin issue event from a payload file",
		Long:  "sync reads a GitHub event payload (the Actions event file by default) and applies the corresponding mutation to the mirror work item.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			if payloadPath == "" {
				payloadPath = os.Getenv("GITHUB_EVENT_PATH")
			}
			if payloadPath == "" {
				return fmt.Errorf("no event payload: set --payload or GITHUB_EVENT_PATH")
			}

			ev, err := event.ParseFile(payloadPath)
			if err != nil {
				// Skips complete the run successfully: the event was valid,
				// it just maps to no mutation.
				if errors.Is(err, event.ErrMergeRequest) || errors.Is(err, event.ErrUnsupportedAction) {
					logger.Info().Err(err).Msg("event skipped")
					return nil
				}
				return err
			}

			client := newADOClient(cfg, logger)
			result, err := newEngine(cfg, client, logger).Apply(cmd.Context(), ev)
			if err != nil {
				return err
			}

			logger.Info().
				Str("outcome", string(result.Outcome)).
				Int("work_item", result.WorkItemID).
				Msg("sync completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadPath, "payload", "", "path to the event payload file (default: $GITHUB_EVENT_PATH)")
	return cmd
}
