// Package engine is the forward sync executor: it resolves the mirror
// counterpart of the event's issue, creates it when policy allows, and
// submits the built patch set in one atomic write.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/event"
	"github.com/mirrorops/issuesync/internal/locator"
	"github.com/mirrorops/issuesync/internal/mutation"
)

// Outcome describes what the executor did with an event.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeUpdated       Outcome = "updated"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeAlreadyExists Outcome = "already-exists"
)

// Result reports the applied mutation's target and new change timestamp.
type Result struct {
	Outcome    Outcome
	WorkItemID int
	ChangedAt  time.Time
}

// Engine applies origin events to the mirror service.
type Engine struct {
	client     ado.Client
	locator    *locator.Locator
	builder    *mutation.Builder
	autoCreate bool
	logger     zerolog.Logger
}

// New builds an engine. autoCreate controls whether events on issues with no
// counterpart create one on the fly.
func New(client ado.Client, loc *locator.Locator, builder *mutation.Builder, autoCreate bool, logger zerolog.Logger) *Engine {
	return &Engine{
		client:     client,
		locator:    loc,
		builder:    builder,
		autoCreate: autoCreate,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// Apply processes one origin event to completion. Transport failures are
// returned to the caller and mark the run failed; nothing is retried.
func (e *Engine) Apply(ctx context.Context, ev *event.Event) (*Result, error) {
	log := e.logger.With().
		Str("event", string(ev.Type)).
		Str("repo", ev.Repo.FullName).
		Int("issue", ev.Issue.Number).
		Logger()

	if ev.Type == event.TypeCreate {
		return e.applyCreate(ctx, ev, log)
	}

	current, err := e.locator.Find(ctx, ev.Repo.FullName, ev.Issue.Number, false)
	if err != nil {
		return nil, err
	}

	if current == nil {
		if !e.autoCreate {
			log.Warn().Msg("no counterpart work item and auto-create is off; skipping")
			return &Result{Outcome: OutcomeSkipped}, nil
		}
		if e.builder.Excluded(ev) {
			log.Info().Msg("issue carries the exclude label and has no counterpart; skipping")
			return &Result{Outcome: OutcomeSkipped}, nil
		}
		current, err = e.create(ctx, ev)
		if err != nil {
			return nil, err
		}
		log.Info().Int("work_item", current.ID).Msg("auto-created missing counterpart")
	}

	ops, err := e.builder.Build(ev, current)
	if err != nil {
		return nil, err
	}

	updated, err := e.client.UpdateItem(ctx, current.ID, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s mutation to work item %d: %w", ev.Type, current.ID, err)
	}

	log.Info().Int("work_item", updated.ID).Msg("work item updated")
	return &Result{Outcome: OutcomeUpdated, WorkItemID: updated.ID, ChangedAt: updated.ChangedDate}, nil
}

// applyCreate is the idempotent creation path: an existing counterpart aborts
// the create with no write.
func (e *Engine) applyCreate(ctx context.Context, ev *event.Event, log zerolog.Logger) (*Result, error) {
	existing, err := e.locator.Find(ctx, ev.Repo.FullName, ev.Issue.Number, false)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if e.builder.Excluded(ev) {
			// the exclude label overrides every event, so a stale counterpart
			// gets the delete projection rather than a no-op
			ops, err := e.builder.Build(ev, existing)
			if err != nil {
				return nil, err
			}
			updated, err := e.client.UpdateItem(ctx, existing.ID, ops)
			if err != nil {
				return nil, fmt.Errorf("failed to apply %s mutation to work item %d: %w", ev.Type, existing.ID, err)
			}
			log.Info().Int("work_item", updated.ID).Msg("excluded issue had a counterpart; marked removed")
			return &Result{Outcome: OutcomeUpdated, WorkItemID: updated.ID, ChangedAt: updated.ChangedDate}, nil
		}
		log.Info().Int("work_item", existing.ID).Msg("counterpart already exists; create is a no-op")
		return &Result{Outcome: OutcomeAlreadyExists, WorkItemID: existing.ID, ChangedAt: existing.ChangedDate}, nil
	}

	if e.builder.Excluded(ev) {
		log.Info().Msg("issue carries the exclude label; not creating a counterpart")
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	created, err := e.create(ctx, ev)
	if err != nil {
		return nil, err
	}

	log.Info().Int("work_item", created.ID).Msg("work item created")
	return &Result{Outcome: OutcomeCreated, WorkItemID: created.ID, ChangedAt: created.ChangedDate}, nil
}

func (e *Engine) create(ctx context.Context, ev *event.Event) (*ado.WorkItem, error) {
	ops, err := e.builder.BuildCreate(ev)
	if err != nil {
		return nil, err
	}
	created, err := e.client.CreateItem(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item for %s#%d: %w", ev.Repo.FullName, ev.Issue.Number, err)
	}
	return created, nil
}
