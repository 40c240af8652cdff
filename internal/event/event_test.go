package event

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyIssueActions(t *testing.T) {
	tests := []struct {
		action string
		want   Type
	}{
		{"opened", TypeCreate},
		{"edited", TypeEdit},
		{"closed", TypeClose},
		{"reopened", TypeReopen},
		{"deleted", TypeDelete},
		{"labeled", TypeLabel},
		{"unlabeled", TypeUnlabel},
		{"assigned", TypeAssign},
		{"unassigned", TypeUnassign},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			ev, err := Classify("issues", &Payload{Action: tt.action, Sender: User{Login: "octocat"}})
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if ev.Type != tt.want {
				t.Errorf("Type = %q, want %q", ev.Type, tt.want)
			}
			if ev.Sender != "octocat" {
				t.Errorf("Sender = %q", ev.Sender)
			}
		})
	}
}

func TestClassifyComment(t *testing.T) {
	ev, err := Classify("issue_comment", &Payload{
		Action:  "created",
		Comment: &Comment{ID: 9, Body: "interesting"},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ev.Type != TypeComment || ev.Comment == nil || ev.Comment.ID != 9 {
		t.Errorf("event = %+v", ev)
	}
}

func TestClassifySkipsMergeRequests(t *testing.T) {
	p := &Payload{Action: "opened"}
	p.Issue.PullRequest = &struct {
		URL string `json:"url"`
	}{URL: "https://api.github.com/repos/acme/widgets/pulls/5"}

	_, err := Classify("issues", p)
	if !errors.Is(err, ErrMergeRequest) {
		t.Errorf("err = %v, want ErrMergeRequest", err)
	}
}

func TestClassifyUnsupported(t *testing.T) {
	if _, err := Classify("issues", &Payload{Action: "pinned"}); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("issues/pinned: err = %v", err)
	}
	if _, err := Classify("issue_comment", &Payload{Action: "deleted"}); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("issue_comment/deleted: err = %v", err)
	}
	if _, err := Classify("push", &Payload{Action: ""}); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("push: err = %v", err)
	}
}

func TestClassifyLabelEvent(t *testing.T) {
	ev, err := Classify("issues", &Payload{Action: "labeled", Label: &Label{Name: "bug"}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ev.Label != "bug" {
		t.Errorf("Label = %q", ev.Label)
	}
}

func TestParseFile(t *testing.T) {
	payload := `{
		"action": "created",
		"issue": {"number": 42, "title": "Widget is broken"},
		"comment": {"id": 7, "body": "same here"},
		"repository": {"full_name": "acme/widgets"},
		"sender": {"login": "hubot"}
	}`
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	// comment presence selects the issue_comment family
	if ev.Type != TypeComment {
		t.Errorf("Type = %q, want comment", ev.Type)
	}
	if ev.Issue.Number != 42 || ev.Repo.FullName != "acme/widgets" {
		t.Errorf("event = %+v", ev)
	}
}

func TestIssueHelpers(t *testing.T) {
	issue := Issue{
		Labels:   []Label{{Name: "bug"}, {Name: "noado"}},
		Assignee: &User{Login: "octocat"},
	}
	if !issue.HasLabel("noado") || issue.HasLabel("feature") {
		t.Error("HasLabel misbehaved")
	}
	if got := issue.LabelNames(); len(got) != 2 || got[0] != "bug" {
		t.Errorf("LabelNames = %v", got)
	}
	if issue.AssigneeLogin() != "octocat" {
		t.Errorf("AssigneeLogin = %q", issue.AssigneeLogin())
	}
	if (Issue{}).AssigneeLogin() != "" {
		t.Error("AssigneeLogin on unassigned issue should be empty")
	}
}
