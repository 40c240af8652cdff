package ado

import (
	"reflect"
	"testing"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"trailing delimiter", "GitHub Issue #42;GitHub Repo: acme/widgets;", []string{"GitHub Issue #42", "GitHub Repo: acme/widgets"}},
		{"service spacing", "GitHub Issue #42; GitHub Repo: acme/widgets", []string{"GitHub Issue #42", "GitHub Repo: acme/widgets"}},
		{"blank elements dropped", ";; GitHub Label: bug ;", []string{"GitHub Label: bug"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTags(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTags(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatTags(t *testing.T) {
	got := FormatTags([]string{"GitHub Issue #42", "GitHub Repo: acme/widgets", "GitHub Label: bug"})
	want := "GitHub Issue #42;GitHub Repo: acme/widgets;GitHub Label: bug;"
	if got != want {
		t.Errorf("FormatTags = %q, want %q", got, want)
	}
	if got := FormatTags(nil); got != "" {
		t.Errorf("FormatTags(nil) = %q, want empty", got)
	}
}

func TestTagRoundTrip(t *testing.T) {
	tags := []string{"GitHub Issue #7", "GitHub Repo: a/b", "GitHub Label: needs triage"}
	if got := ParseTags(FormatTags(tags)); !reflect.DeepEqual(got, tags) {
		t.Errorf("round trip = %v, want %v", got, tags)
	}
}

func TestWorkItemAssignedTo(t *testing.T) {
	plain := &WorkItem{Fields: map[string]any{FieldAssignedTo: "octocat@corp.example"}}
	if got := plain.AssignedTo(); got != "octocat@corp.example" {
		t.Errorf("AssignedTo (string) = %q", got)
	}

	identity := &WorkItem{Fields: map[string]any{FieldAssignedTo: map[string]any{
		"displayName": "Octo Cat",
		"uniqueName":  "octocat@corp.example",
	}}}
	if got := identity.AssignedTo(); got != "octocat@corp.example" {
		t.Errorf("AssignedTo (identity) = %q", got)
	}

	var nilItem *WorkItem
	if got := nilItem.AssignedTo(); got != "" {
		t.Errorf("AssignedTo (nil) = %q", got)
	}
}

func TestFieldPatch(t *testing.T) {
	op := FieldPatch(OpReplace, FieldTitle, "new title")
	if op.Path != "/fields/System.Title" || op.Op != OpReplace || op.Value != "new title" {
		t.Errorf("FieldPatch = %+v", op)
	}
}
