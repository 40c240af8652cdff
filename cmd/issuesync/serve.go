package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirrorops/issuesync/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the forward sync path as a webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.WebhookSecret == "" {
				return fmt.Errorf("WEBHOOK_SECRET is required in serve mode")
			}

			client := newADOClient(cfg, logger)
			handler := server.NewHandler(cfg.WebhookSecret, newEngine(cfg, client, logger), logger)

			addr := fmt.Sprintf(":%d", cfg.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info().Str("addr", addr).Msg("webhook receiver listening")
			return srv.ListenAndServe()
		},
	}
}
