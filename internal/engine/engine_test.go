package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorops/issuesync/internal/ado"
	"github.com/mirrorops/issuesync/internal/event"
	"github.com/mirrorops/issuesync/internal/fieldmap"
	"github.com/mirrorops/issuesync/internal/locator"
	"github.com/mirrorops/issuesync/internal/mutation"
)

// memClient is an in-memory mirror service: it applies patch sets to stored
// items and answers tag queries against them.
type memClient struct {
	nextID      int
	items       map[int]*ado.WorkItem
	changedAt   time.Time
	createCalls int
	updateCalls int

	failQuery  error
	failCreate error
	failUpdate error
}

func newMemClient() *memClient {
	return &memClient{
		nextID:    301,
		items:     map[int]*ado.WorkItem{},
		changedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memClient) QueryByTag(_ context.Context, requiredTags []string) ([]int, error) {
	if m.failQuery != nil {
		return nil, m.failQuery
	}
	var ids []int
	for id, item := range m.items {
		if containsAll(item.Tags, requiredTags) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memClient) QueryChangedSince(context.Context, int) ([]int, error) {
	var ids []int
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memClient) GetItem(_ context.Context, id int) (*ado.WorkItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, errors.New("no such work item")
	}
	return item, nil
}

func (m *memClient) CreateItem(_ context.Context, ops []ado.PatchOp) (*ado.WorkItem, error) {
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.createCalls++
	item := &ado.WorkItem{ID: m.nextID, Fields: map[string]any{}, ChangedDate: m.changedAt}
	m.nextID++
	m.apply(item, ops)
	m.items[item.ID] = item
	return item, nil
}

func (m *memClient) UpdateItem(_ context.Context, id int, ops []ado.PatchOp) (*ado.WorkItem, error) {
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	m.updateCalls++
	item, ok := m.items[id]
	if !ok {
		return nil, errors.New("no such work item")
	}
	m.apply(item, ops)
	item.ChangedDate = m.changedAt
	return item, nil
}

func (m *memClient) apply(item *ado.WorkItem, ops []ado.PatchOp) {
	for _, op := range ops {
		if !strings.HasPrefix(op.Path, "/fields/") {
			continue
		}
		field := strings.TrimPrefix(op.Path, "/fields/")
		switch op.Op {
		case ado.OpAdd, ado.OpReplace:
			item.Fields[field] = op.Value
		case ado.OpRemove:
			delete(item.Fields, field)
		}
		if field == ado.FieldTags {
			raw, _ := op.Value.(string)
			item.Tags = ado.ParseTags(raw)
		}
	}
}

func containsAll(tags, required []string) bool {
	for _, r := range required {
		found := false
		for _, t := range tags {
			if t == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type identityTransform struct{}

func (identityTransform) ToRichText(s string) (string, error)    { return s, nil }
func (identityTransform) ToPlainMarkup(s string) (string, error) { return s, nil }

func testEngine(client ado.Client, autoCreate bool) *Engine {
	builder := mutation.New(mutation.Config{
		ExcludeLabel: "noado",
		Handles:      map[string]string{"octocat": "octocat@corp.example"},
		States: fieldmap.StateTable{
			fieldmap.StateKeyClosed:   "Closed",
			fieldmap.StateKeyDeleted:  "Removed",
			fieldmap.StateKeyReopened: "New",
		},
	}, identityTransform{})
	return New(client, locator.New(client, zerolog.Nop()), builder, autoCreate, zerolog.Nop())
}

func issueEvent(typ event.Type) *event.Event {
	return &event.Event{
		Type:   typ,
		Sender: "octocat",
		Issue: event.Issue{
			Number:  42,
			Title:   "Widget is broken",
			Body:    "It rattles.",
			HTMLURL: "https://github.com/acme/widgets/issues/42",
			Labels:  []event.Label{{Name: "bug"}},
		},
		Repo: event.Repository{FullName: "acme/widgets"},
	}
}

func TestIdempotentCreation(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)
	ctx := context.Background()

	first, err := eng.Apply(ctx, issueEvent(event.TypeCreate))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, 301, first.WorkItemID)

	// second create for the same issue performs no write
	second, err := eng.Apply(ctx, issueEvent(event.TypeCreate))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, second.Outcome)
	assert.Equal(t, 301, second.WorkItemID)
	assert.Equal(t, 1, client.createCalls)
	assert.Len(t, client.items, 1)
}

func TestCreateScenarioTagString(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)

	_, err := eng.Apply(context.Background(), issueEvent(event.TypeCreate))
	require.NoError(t, err)

	item := client.items[301]
	require.NotNil(t, item)
	raw, _ := item.Fields[ado.FieldTags].(string)
	assert.Equal(t, "GitHub Issue #42;GitHub Repo: acme/widgets;GitHub Label: bug;", raw)
	_, hasState := item.Fields[ado.FieldState]
	assert.False(t, hasState, "new items keep the type's default state")
}

func TestMissingCounterpartSkipsWhenAutoCreateOff(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, false)

	result, err := eng.Apply(context.Background(), issueEvent(event.TypeClose))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Zero(t, client.createCalls)
	assert.Zero(t, client.updateCalls)
}

func TestMissingCounterpartAutoCreatesThenApplies(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)

	result, err := eng.Apply(context.Background(), issueEvent(event.TypeClose))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)
	assert.Equal(t, 1, client.createCalls)
	assert.Equal(t, 1, client.updateCalls)

	item := client.items[result.WorkItemID]
	require.NotNil(t, item)
	assert.Equal(t, "Closed", item.State())
}

func TestUpdateExistingCounterpart(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)
	ctx := context.Background()

	_, err := eng.Apply(ctx, issueEvent(event.TypeCreate))
	require.NoError(t, err)

	labelEv := issueEvent(event.TypeLabel)
	labelEv.Label = "p1"
	result, err := eng.Apply(ctx, labelEv)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)

	item := client.items[301]
	assert.Contains(t, item.Tags, "GitHub Label: p1")
	// the join-key tags survive every later mutation
	assert.Contains(t, item.Tags, "GitHub Issue #42")
	assert.Contains(t, item.Tags, "GitHub Repo: acme/widgets")
}

func TestExcludedIssueIsNeverCreated(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)

	ev := issueEvent(event.TypeCreate)
	ev.Issue.Labels = append(ev.Issue.Labels, event.Label{Name: "noado"})

	result, err := eng.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Zero(t, client.createCalls)
}

func TestExcludedCreateRemovesExistingCounterpart(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)
	ctx := context.Background()

	_, err := eng.Apply(ctx, issueEvent(event.TypeCreate))
	require.NoError(t, err)

	// the issue later carries the exclude label when the create replays:
	// the stale counterpart must be marked removed, not left as-is
	ev := issueEvent(event.TypeCreate)
	ev.Issue.Labels = append(ev.Issue.Labels, event.Label{Name: "noado"})

	result, err := eng.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)
	assert.Equal(t, 301, result.WorkItemID)
	assert.Equal(t, 1, client.createCalls)
	assert.Equal(t, 1, client.updateCalls)

	item := client.items[301]
	require.NotNil(t, item)
	assert.Equal(t, "Removed", item.State())
}

func TestTransportFailureIsTerminal(t *testing.T) {
	client := newMemClient()
	eng := testEngine(client, true)
	ctx := context.Background()

	_, err := eng.Apply(ctx, issueEvent(event.TypeCreate))
	require.NoError(t, err)

	client.failUpdate = errors.New("503 service unavailable")
	_, err = eng.Apply(ctx, issueEvent(event.TypeClose))
	require.Error(t, err)
	assert.ErrorContains(t, err, "503")
	assert.Zero(t, client.updateCalls, "failed update must not be retried")
}
