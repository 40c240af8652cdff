// Package locator resolves the at-most-one mirror work item counterpart of an
// origin issue via its cross-reference tags.
package locator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/fieldmap"
)

// Locator finds work items by their issue/repo cross-reference tags.
type Locator struct {
	client ado.Client
	logger zerolog.Logger
}

// New builds a locator over the given mirror client.
func New(client ado.Client, logger zerolog.Logger) *Locator {
	return &Locator{
		client: client,
		logger: logger.With().Str("component", "locator").Logger(),
	}
}

// Find returns the counterpart work item for (repoFullName, number), or nil
// when none exists. With skipQuery set it returns nil immediately without a
// remote call: callers that re-enter the lookup within the run that created
// the work item pass true, because the tag query is eventually consistent and
// can miss an item created moments earlier. Multiple matches are an anomaly:
// the first id returned wins and the rest are logged at warn level. Transport
// failures are returned, never retried.
func (l *Locator) Find(ctx context.Context, repoFullName string, number int, skipQuery bool) (*ado.WorkItem, error) {
	if skipQuery {
		return nil, nil
	}

	required := []string{fieldmap.IssueTag(number), fieldmap.RepoTag(repoFullName)}
	ids, err := l.client.QueryByTag(ctx, required)
	if err != nil {
		return nil, fmt.Errorf("counterpart query for %s#%d failed: %w", repoFullName, number, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		l.logger.Warn().
			Str("repo", repoFullName).
			Int("issue", number).
			Ints("ids", ids).
			Msg("multiple work items match one issue; using the first")
	}

	item, err := l.client.GetItem(ctx, ids[0])
	if err != nil {
		return nil, fmt.Errorf("failed to fetch work item %d: %w", ids[0], err)
	}
	return item, nil
}
