// Package mutation builds the ordered patch sets that project one origin
// lifecycle event onto a mirror work item. Every build appends exactly one
// audit history entry naming the actor and the action.
package mutation

import (
	"fmt"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/event"
	"github.com/mirrorops/issuesync/internal/fieldmap"
	"github.com/mirrorops/issuesync/internal/text"
)

// ResolvedReasonDeleted is written when the origin issue is deleted.
const ResolvedReasonDeleted = "Deleted in GitHub"

// Config is the subset of engine configuration the builders need.
type Config struct {
	AreaPath        string
	IterationPath   string
	DefaultAssignee string
	ExcludeLabel    string
	BypassRules     bool
	Handles         map[string]string
	States          fieldmap.StateTable
}

// Builder assembles patch sets for origin events.
type Builder struct {
	cfg       Config
	transform text.Transform
}

// New builds a Builder.
func New(cfg Config, transform text.Transform) *Builder {
	return &Builder{cfg: cfg, transform: transform}
}

// Excluded reports whether the event's issue carries the exclude label.
func (b *Builder) Excluded(ev *event.Event) bool {
	return b.cfg.ExcludeLabel != "" && ev.Issue.HasLabel(b.cfg.ExcludeLabel)
}

// Build dispatches on the event type. current is the located counterpart work
// item; builders that read current state (unlabel, label) require it. An
// issue carrying the exclude label short-circuits to the delete mutation
// regardless of the triggering event.
func (b *Builder) Build(ev *event.Event, current *ado.WorkItem) ([]ado.PatchOp, error) {
	if b.Excluded(ev) {
		return b.BuildDelete(ev)
	}

	switch ev.Type {
	case event.TypeCreate:
		return b.BuildCreate(ev)
	case event.TypeClose:
		return b.BuildClose(ev)
	case event.TypeReopen:
		return b.BuildReopen(ev)
	case event.TypeDelete:
		return b.BuildDelete(ev)
	case event.TypeEdit:
		return b.BuildEdit(ev)
	case event.TypeLabel:
		return b.BuildLabel(ev, current)
	case event.TypeUnlabel:
		return b.BuildUnlabel(ev, current)
	case event.TypeAssign:
		return b.BuildAssign(ev)
	case event.TypeUnassign:
		return b.BuildUnassign(ev)
	case event.TypeComment:
		return b.BuildComment(ev)
	default:
		return nil, fmt.Errorf("no builder for event type %q", ev.Type)
	}
}

// BuildCreate assembles the full field set for a new work item. The caller
// owns the idempotency guard (locate first, abort when a counterpart exists).
func (b *Builder) BuildCreate(ev *event.Event) ([]ado.PatchOp, error) {
	description, err := b.transform.ToRichText(ev.Issue.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert issue body: %w", err)
	}

	tags := fieldmap.LabelTags(
		[]string{fieldmap.IssueTag(ev.Issue.Number), fieldmap.RepoTag(ev.Repo.FullName)},
		ev.Issue.LabelNames(),
	)

	ops := []ado.PatchOp{
		ado.FieldPatch(ado.OpAdd, ado.FieldTitle, ev.Issue.Title),
		ado.FieldPatch(ado.OpAdd, ado.FieldDescription, description),
		ado.FieldPatch(ado.OpAdd, ado.FieldReproSteps, description),
		ado.FieldPatch(ado.OpAdd, ado.FieldTags, ado.FormatTags(tags)),
	}

	if principal, ok := fieldmap.BuildAssignee(ev.Issue.AssigneeLogin(), b.cfg.Handles, b.cfg.DefaultAssignee, b.cfg.DefaultAssignee != ""); ok {
		ops = append(ops, ado.FieldPatch(ado.OpAdd, ado.FieldAssignedTo, principal))
	}
	if b.cfg.AreaPath != "" {
		ops = append(ops, ado.FieldPatch(ado.OpAdd, ado.FieldAreaPath, b.cfg.AreaPath))
	}
	if b.cfg.IterationPath != "" {
		ops = append(ops, ado.FieldPatch(ado.OpAdd, ado.FieldIterationPath, b.cfg.IterationPath))
	}
	if b.cfg.BypassRules {
		if creator, ok := b.cfg.Handles[ev.Issue.User.Login]; ok {
			ops = append(ops, ado.FieldPatch(ado.OpAdd, ado.FieldCreatedBy, creator))
		}
	}

	ops = append(ops, ado.RelationPatch("Hyperlink", crossLink(ev.Issue), map[string]any{
		"comment": "GitHub issue link",
	}))
	return append(ops, b.history(ev, "created")), nil
}

// BuildClose sets the configured closed state.
func (b *Builder) BuildClose(ev *event.Event) ([]ado.PatchOp, error) {
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldState, b.cfg.States[fieldmap.StateKeyClosed]),
		b.history(ev, "closed"),
	}, nil
}

// BuildReopen sets the configured reopened state.
func (b *Builder) BuildReopen(ev *event.Event) ([]ado.PatchOp, error) {
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldState, b.cfg.States[fieldmap.StateKeyReopened]),
		b.history(ev, "reopened"),
	}, nil
}

// BuildDelete sets the configured deleted state plus the resolved-reason
// sentinel.
func (b *Builder) BuildDelete(ev *event.Event) ([]ado.PatchOp, error) {
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldState, b.cfg.States[fieldmap.StateKeyDeleted]),
		ado.FieldPatch(ado.OpAdd, ado.FieldResolvedReason, ResolvedReasonDeleted),
		b.history(ev, "deleted"),
	}, nil
}

// BuildEdit replaces title, description and repro steps.
func (b *Builder) BuildEdit(ev *event.Event) ([]ado.PatchOp, error) {
	description, err := b.transform.ToRichText(ev.Issue.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert issue body: %w", err)
	}
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldTitle, ev.Issue.Title),
		ado.FieldPatch(ado.OpReplace, ado.FieldDescription, description),
		ado.FieldPatch(ado.OpReplace, ado.FieldReproSteps, description),
		b.history(ev, "edited"),
	}, nil
}

// BuildLabel appends the new label tag to the located item's tag set.
func (b *Builder) BuildLabel(ev *event.Event, current *ado.WorkItem) ([]ado.PatchOp, error) {
	if current == nil {
		return nil, fmt.Errorf("label mutation requires the current work item")
	}
	tags := append(append([]string{}, current.Tags...), fieldmap.LabelTag(ev.Label))
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldTags, ado.FormatTags(tags)),
		b.history(ev, "labeled"),
	}, nil
}

// BuildUnlabel removes the exact label tag from the located item's tag set.
// The removed value must match what the mapper produced for that label, so
// the operation restores the pre-label tag string exactly.
func (b *Builder) BuildUnlabel(ev *event.Event, current *ado.WorkItem) ([]ado.PatchOp, error) {
	if current == nil {
		return nil, fmt.Errorf("unlabel mutation requires the current work item")
	}
	target := fieldmap.LabelTag(ev.Label)
	tags := make([]string, 0, len(current.Tags))
	removed := false
	for _, t := range current.Tags {
		if !removed && t == target {
			removed = true
			continue
		}
		tags = append(tags, t)
	}
	return []ado.PatchOp{
		ado.FieldPatch(ado.OpReplace, ado.FieldTags, ado.FormatTags(tags)),
		b.history(ev, "unlabeled"),
	}, nil
}

// BuildAssign sets the assignee when a mirror principal is resolvable, and
// removes it otherwise.
func (b *Builder) BuildAssign(ev *event.Event) ([]ado.PatchOp, error) {
	ops := make([]ado.PatchOp, 0, 2)
	if principal, ok := fieldmap.BuildAssignee(ev.Issue.AssigneeLogin(), b.cfg.Handles, "", false); ok {
		ops = append(ops, ado.FieldPatch(ado.OpReplace, ado.FieldAssignedTo, principal))
	} else {
		ops = append(ops, ado.PatchOp{Op: ado.OpRemove, Path: "/fields/" + ado.FieldAssignedTo})
	}
	return append(ops, b.history(ev, "assigned")), nil
}

// BuildUnassign always removes the assignee.
func (b *Builder) BuildUnassign(ev *event.Event) ([]ado.PatchOp, error) {
	return []ado.PatchOp{
		{Op: ado.OpRemove, Path: "/fields/" + ado.FieldAssignedTo},
		b.history(ev, "unassigned"),
	}, nil
}

// BuildComment appends a history entry embedding the converted comment body
// and a link back to the origin comment. No other field changes.
func (b *Builder) BuildComment(ev *event.Event) ([]ado.PatchOp, error) {
	if ev.Comment == nil {
		return nil, fmt.Errorf("comment mutation requires a comment payload")
	}
	body, err := b.transform.ToRichText(ev.Comment.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert comment body: %w", err)
	}
	entry := fmt.Sprintf(
		`%s commented on GitHub <a href="%s">issue #%d</a>:<br>%s<br><a href="%s">View comment</a>`,
		ev.Comment.User.Login, crossLink(ev.Issue), ev.Issue.Number, body, ev.Comment.HTMLURL,
	)
	return []ado.PatchOp{ado.FieldPatch(ado.OpAdd, ado.FieldHistory, entry)}, nil
}

// history builds the single audit entry every mutation set carries. The
// closed-at note is included only when a closing timestamp is present.
func (b *Builder) history(ev *event.Event, verb string) ado.PatchOp {
	entry := fmt.Sprintf(`GitHub <a href="%s">issue #%d</a> %s by %s`,
		crossLink(ev.Issue), ev.Issue.Number, verb, ev.Sender)
	if ev.Issue.ClosedAt != nil {
		switch verb {
		case "closed", "reopened", "deleted":
			entry += fmt.Sprintf(" (closed at %s)", ev.Issue.ClosedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		}
	}
	return ado.FieldPatch(ado.OpAdd, ado.FieldHistory, entry)
}

// crossLink returns a browsable link for the issue, rewriting the API URL
// when the payload lacks a browser one.
func crossLink(issue event.Issue) string {
	if issue.HTMLURL != "" {
		return issue.HTMLURL
	}
	return fieldmap.SanitizeCrossLink(issue.URL)
}
