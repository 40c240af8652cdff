// Package event models the origin-side lifecycle events that drive the
// forward sync path, parsed from either an Actions event payload file or a
// webhook delivery body.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Type classifies an origin lifecycle event.
type Type string

const (
	TypeCreate   Type = "create"
	TypeEdit     Type = "edit"
	TypeClose    Type = "close"
	TypeReopen   Type = "reopen"
	TypeDelete   Type = "delete"
	TypeLabel    Type = "label"
	TypeUnlabel  Type = "unlabel"
	TypeAssign   Type = "assign"
	TypeUnassign Type = "unassign"
	TypeComment  Type = "comment"
)

var (
	// ErrUnsupportedAction marks payload actions the engine has no mapping for.
	ErrUnsupportedAction = errors.New("unsupported event action")
	// ErrMergeRequest marks events on merge/change-request entities, which
	// are never synced.
	ErrMergeRequest = errors.New("merge request events are not synced")
)

// Event is a classified origin event ready for the forward path.
type Event struct {
	Type    Type
	Action  string
	Issue   Issue
	Comment *Comment
	Label   string
	Repo    Repository
	Sender  string
}

// Payload is the raw origin event body.
type Payload struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Comment    *Comment   `json:"comment"`
	Label      *Label     `json:"label"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

type Issue struct {
	Number    int        `json:"number"`
	NodeID    string     `json:"node_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	HTMLURL   string     `json:"html_url"`
	Labels    []Label    `json:"labels"`
	Assignee  *User      `json:"assignee"`
	User      User       `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`

	// Non-nil when the "issue" is actually a merge/change request.
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

// LabelNames returns the issue's label names in payload order.
func (i Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// HasLabel reports whether the issue carries the named label.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// AssigneeLogin returns the assignee handle, empty when unassigned.
func (i Issue) AssigneeLogin() string {
	if i.Assignee == nil {
		return ""
	}
	return i.Assignee.Login
}

type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
}

type Label struct {
	Name string `json:"name"`
}

type Repository struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Owner    User   `json:"owner"`
}

type User struct {
	Login string `json:"login"`
}

// issues-event actions → engine event types.
var issueActions = map[string]Type{
	"opened":     TypeCreate,
	"edited":     TypeEdit,
	"closed":     TypeClose,
	"reopened":   TypeReopen,
	"deleted":    TypeDelete,
	"labeled":    TypeLabel,
	"unlabeled":  TypeUnlabel,
	"assigned":   TypeAssign,
	"unassigned": TypeUnassign,
}

// Classify turns a raw payload into an engine event. eventName is the origin
// event family ("issues" or "issue_comment"). Merge/change-request entities
// are rejected with ErrMergeRequest.
func Classify(eventName string, p *Payload) (*Event, error) {
	if p.Issue.PullRequest != nil {
		return nil, ErrMergeRequest
	}

	var typ Type
	switch eventName {
	case "issues":
		t, ok := issueActions[p.Action]
		if !ok {
			return nil, fmt.Errorf("%w: issues %q", ErrUnsupportedAction, p.Action)
		}
		typ = t
	case "issue_comment":
		if p.Action != "created" {
			return nil, fmt.Errorf("%w: issue_comment %q", ErrUnsupportedAction, p.Action)
		}
		typ = TypeComment
	default:
		return nil, fmt.Errorf("%w: event %q", ErrUnsupportedAction, eventName)
	}

	ev := &Event{
		Type:    typ,
		Action:  p.Action,
		Issue:   p.Issue,
		Comment: p.Comment,
		Repo:    p.Repository,
		Sender:  p.Sender.Login,
	}
	if p.Label != nil {
		ev.Label = p.Label.Name
	}
	return ev, nil
}

// Parse decodes and classifies a raw payload body.
func Parse(eventName string, body []byte) (*Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return Classify(eventName, &p)
}

// ParseFile reads an Actions-style event payload from disk. The event family
// is inferred from the payload: a comment body means issue_comment.
func ParseFile(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	eventName := "issues"
	if p.Comment != nil {
		eventName = "issue_comment"
	}
	return Classify(eventName, &p)
}
