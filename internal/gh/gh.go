// Package gh wraps the origin issue service. The engine only ever reads an
// issue and, on the reverse path, writes one consolidated update.
package gh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v66/github"
)

// Issue is the origin issue snapshot the engine works with.
type Issue struct {
	Number    int
	NodeID    string
	Title     string
	Body      string
	State     string
	Labels    []string
	Assignee  string
	Author    string
	HTMLURL   string
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// HasLabel reports whether the issue carries the named label.
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// IssueUpdate is the consolidated reverse-path mutation. Nil pointer fields
// are left untouched; Assignees always replaces the full set (empty clears).
type IssueUpdate struct {
	Title     *string
	Body      *string
	State     *string
	Assignees []string
}

// IssueService is the set of origin operations the engine needs.
type IssueService interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, upd IssueUpdate) (*Issue, error)
}

// Client implements IssueService over the GitHub API.
type Client struct {
	gh *github.Client
}

// NewClient builds a client authenticated with a token (PAT or installation
// access token).
func NewClient(token string) *Client {
	return &Client{gh: github.NewClient(nil).WithAuthToken(token)}
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return convertIssue(issue), nil
}

func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, upd IssueUpdate) (*Issue, error) {
	req := &github.IssueRequest{
		Title:     upd.Title,
		Body:      upd.Body,
		State:     upd.State,
		Assignees: &upd.Assignees,
	}
	if upd.Assignees == nil {
		req.Assignees = &[]string{}
	}
	issue, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return convertIssue(issue), nil
}

func convertIssue(issue *github.Issue) *Issue {
	out := &Issue{
		Number:    issue.GetNumber(),
		NodeID:    issue.GetNodeID(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Author:    issue.GetUser().GetLogin(),
		Assignee:  issue.GetAssignee().GetLogin(),
		HTMLURL:   issue.GetHTMLURL(),
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	if closed := issue.GetClosedAt(); !closed.Time.IsZero() {
		t := closed.Time
		out.ClosedAt = &t
	}
	return out
}
