// Package reconcile is the reverse path: for mirror work items changed more
// recently than their origin issue, it projects the mirror state back onto
// the issue. A strict freshness comparison plus an equality guard keeps
// mutual updates from ping-ponging between the two systems.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/fieldmap"
	"github.com/mirrorops/issuesync/internal/gh"
	"github.com/mirrorops/issuesync/internal/text"
)

// lineBreakMarker is the literal the rich-text conversion leaves behind for
// forced breaks; it is stripped before comparing or writing the origin body.
const lineBreakMarker = "<br>"

// Config is the subset of engine configuration the reconciler needs.
type Config struct {
	Owner        string
	Repo         string
	ExcludeLabel string
	States       fieldmap.StateTable
	Handles      map[string]string
}

// Reconciler drives reverse reconciliation for a batch of work items.
type Reconciler struct {
	client    ado.Client
	issues    gh.IssueService
	transform text.Transform
	cfg       Config
	inverted  map[string]string
	logger    zerolog.Logger
}

// New builds a reconciler. The handle table is inverted once up front with
// case-folded principals, since the mirror service does not normalize the
// casing of identity fields; config validation guarantees the table is a
// bijection.
func New(client ado.Client, issues gh.IssueService, transform text.Transform, cfg Config, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		client:    client,
		issues:    issues,
		transform: transform,
		cfg:       cfg,
		inverted:  invertFold(cfg.Handles),
		logger:    logger.With().Str("component", "reconcile").Logger(),
	}
}

// invertFold flips the handle table keyed by lowercased mirror principal, so
// lookups match however the service happens to case the identity.
func invertFold(handles map[string]string) map[string]string {
	inverted := make(map[string]string, len(handles))
	for principal, handle := range fieldmap.InvertHandles(handles) {
		inverted[strings.ToLower(principal)] = handle
	}
	return inverted
}

// Run queries all work items changed within the window and reconciles each
// one independently. A failed item is logged and never aborts the batch; the
// returned count is the number of origin writes issued.
func (r *Reconciler) Run(ctx context.Context, withinDays int) (int, error) {
	ids, err := r.client.QueryChangedSince(ctx, withinDays)
	if err != nil {
		return 0, fmt.Errorf("changed work item query failed: %w", err)
	}
	r.logger.Info().Int("candidates", len(ids)).Msg("reverse reconciliation batch")

	written := 0
	for _, id := range ids {
		wrote, err := r.ReconcileItem(ctx, id)
		if err != nil {
			r.logger.Error().Err(err).Int("work_item", id).Msg("reconciliation failed; continuing batch")
			continue
		}
		if wrote {
			written++
		}
	}
	return written, nil
}

// ReconcileItem fetches one work item and, when the mirror is strictly
// fresher and the values diverge, issues a single consolidated origin update.
// Returns whether a write was issued.
func (r *Reconciler) ReconcileItem(ctx context.Context, id int) (bool, error) {
	item, err := r.client.GetItem(ctx, id)
	if err != nil {
		return false, err
	}

	number, ok := fieldmap.ParseIssueNumber(item.Tags)
	if !ok {
		r.logger.Info().Int("work_item", id).Msg("no issue tag; skipping")
		return false, nil
	}
	if repo, ok := fieldmap.ParseRepo(item.Tags); ok && repo != r.cfg.Owner+"/"+r.cfg.Repo {
		r.logger.Debug().Int("work_item", id).Str("repo", repo).Msg("work item belongs to another repository; skipping")
		return false, nil
	}

	issue, err := r.issues.GetIssue(ctx, r.cfg.Owner, r.cfg.Repo, number)
	if err != nil {
		return false, err
	}

	// Strictly greater: equal timestamps never write, so simultaneous mutual
	// updates cannot loop.
	if !item.ChangedDate.After(issue.UpdatedAt) {
		r.logger.Debug().Int("work_item", id).Int("issue", number).Msg("origin is at least as fresh; skipping")
		return false, nil
	}
	if r.cfg.ExcludeLabel != "" && issue.HasLabel(r.cfg.ExcludeLabel) {
		r.logger.Info().Int("issue", number).Msg("issue carries the exclude label; skipping")
		return false, nil
	}

	candidate, err := r.candidate(item, issue)
	if err != nil {
		return false, err
	}
	if r.converged(candidate, issue) {
		r.logger.Debug().Int("work_item", id).Int("issue", number).Msg("values already match; no write")
		return false, nil
	}

	upd := gh.IssueUpdate{
		Title:     &candidate.title,
		Body:      &candidate.body,
		State:     &candidate.state,
		Assignees: []string{},
	}
	if candidate.assignee != "" {
		upd.Assignees = []string{candidate.assignee}
	}
	if _, err := r.issues.UpdateIssue(ctx, r.cfg.Owner, r.cfg.Repo, number, upd); err != nil {
		return false, err
	}

	r.logger.Info().Int("work_item", id).Int("issue", number).Msg("projected mirror state onto origin issue")
	return true, nil
}

// candidateValues are the origin-side values computed from the mirror item.
type candidateValues struct {
	title    string
	body     string
	state    string
	assignee string
}

func (r *Reconciler) candidate(item *ado.WorkItem, issue *gh.Issue) (*candidateValues, error) {
	body, err := r.transform.ToPlainMarkup(item.StringField(ado.FieldDescription))
	if err != nil {
		return nil, fmt.Errorf("failed to convert work item description: %w", err)
	}
	body = strings.TrimSpace(strings.ReplaceAll(body, lineBreakMarker, ""))

	c := &candidateValues{
		title: item.StringField(ado.FieldTitle),
		body:  body,
		state: issue.State,
	}

	if key, ok := r.cfg.States.DeriveStateKey(item.State()); ok {
		switch key {
		case fieldmap.StateKeyReopened:
			c.state = "open"
		case fieldmap.StateKeyClosed, fieldmap.StateKeyDeleted:
			c.state = "closed"
		}
	}

	if handle, ok := r.inverted[strings.ToLower(item.AssignedTo())]; ok {
		c.assignee = handle
	}
	return c, nil
}

// converged reports whether every candidate value equals the origin's current
// value; assignees compare case-insensitively.
func (r *Reconciler) converged(c *candidateValues, issue *gh.Issue) bool {
	return c.title == issue.Title &&
		c.body == strings.TrimSpace(issue.Body) &&
		c.state == issue.State &&
		strings.EqualFold(c.assignee, issue.Assignee)
}
