package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/config"
	"github.com/mirrorops/issuesync/internal/engine"
	"github.com/mirrorops/issuesync/internal/gh"
	"github.com/mirrorops/issuesync/internal/locator"
	"github.com/mirrorops/issuesync/internal/mutation"
	"github.com/mirrorops/issuesync/internal/reconcile"
	"github.com/mirrorops/issuesync/internal/text"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "issuesync",
		Short:         "Bidirectional GitHub issue / work item synchronization",
		Long:          "issuesync mirrors GitHub issue lifecycle events into work items and reconciles fresher work-item edits back onto the issues.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSyncCmd(), newReconcileCmd(), newServeCmd())
	return root
}

// setup loads configuration and builds the logger shared by every command.
// The .env load is best-effort, same as any missing file.
func setup() (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(cfg.Level()).With().Timestamp().Logger()
	return cfg, logger, nil
}

// originToken resolves the origin-side token: a PAT when configured, else an
// App installation token for the configured repository.
func originToken(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.GitHubToken != "" {
		return cfg.GitHubToken, nil
	}
	auth := &gh.AppAuth{AppID: cfg.GitHubAppID, PrivateKey: cfg.GitHubPrivateKey}
	token, err := auth.InstallationToken(ctx, cfg.Owner(), cfg.Repo())
	if err != nil {
		return "", fmt.Errorf("failed to mint installation token: %w", err)
	}
	return token.Token, nil
}

func newADOClient(cfg *config.Config, logger zerolog.Logger) ado.Client {
	return ado.NewRESTClient(ado.ClientConfig{
		OrgURL:       cfg.ADOOrgURL,
		Token:        cfg.ADOToken,
		Project:      cfg.Project,
		WorkItemType: cfg.WorkItemType,
		BypassRules:  cfg.BypassRules,
	}, nil, logger)
}

func newEngine(cfg *config.Config, client ado.Client, logger zerolog.Logger) *engine.Engine {
	builder := mutation.New(mutation.Config{
		AreaPath:        cfg.AreaPath,
		IterationPath:   cfg.IterationPath,
		DefaultAssignee: cfg.DefaultAssignee,
		ExcludeLabel:    cfg.ExcludeLabel,
		BypassRules:     cfg.BypassRules,
		Handles:         cfg.Handles,
		States:          cfg.States,
	}, text.NewMarkdownHTML())
	return engine.New(client, locator.New(client, logger), builder, cfg.AutoCreate, logger)
}

func newReconciler(ctx context.Context, cfg *config.Config, client ado.Client, logger zerolog.Logger) (*reconcile.Reconciler, error) {
	token, err := originToken(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return reconcile.New(client, gh.NewClient(token), text.NewMarkdownHTML(), reconcile.Config{
		Owner:        cfg.Owner(),
		Repo:         cfg.Repo(),
		ExcludeLabel: cfg.ExcludeLabel,
		States:       cfg.States,
		Handles:      cfg.Handles,
	}, logger), nil
}
