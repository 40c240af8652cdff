// Package fieldmap translates origin issue attributes into mirror work item
// field values and back. Everything here is pure: no I/O, no clients.
package fieldmap

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	issueTagPrefix = "GitHub Issue #"
	repoTagPrefix  = "GitHub Repo: "
	labelTagPrefix = "GitHub Label: "
)

// IssueTag returns the cross-reference tag for an issue number. Together with
// the repo tag it forms the join key for all lookups and must never change
// after the work item is created.
func IssueTag(number int) string {
	return issueTagPrefix + strconv.Itoa(number)
}

// RepoTag returns the cross-reference tag for a repository full name (owner/name).
func RepoTag(fullName string) string {
	return repoTagPrefix + fullName
}

// LabelTag returns the tag mirroring a single origin label.
func LabelTag(name string) string {
	return labelTagPrefix + name
}

// LabelTags appends one label tag per label to base, preserving input order.
func LabelTags(base []string, labels []string) []string {
	out := make([]string, 0, len(base)+len(labels))
	out = append(out, base...)
	for _, l := range labels {
		out = append(out, LabelTag(l))
	}
	return out
}

// ParseIssueNumber extracts the issue number from a work item's tag set.
// Returns false when no issue tag is present or it does not parse.
func ParseIssueNumber(tags []string) (int, bool) {
	for _, t := range tags {
		if !strings.HasPrefix(t, issueTagPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(t, issueTagPrefix)))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ParseRepo extracts the repository full name from a work item's tag set.
func ParseRepo(tags []string) (string, bool) {
	for _, t := range tags {
		if strings.HasPrefix(t, repoTagPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(t, repoTagPrefix)), true
		}
	}
	return "", false
}

// SanitizeCrossLink rewrites an API-shaped issue URL into a browsable one.
// Fixed substring replacement only.
func SanitizeCrossLink(url string) string {
	return strings.Replace(url, "api.github.com/repos/", "github.com/", 1)
}

// BuildAssignee resolves the mirror principal for an origin assignee handle.
// Resolution order: explicit handle mapping, else none, else the configured
// default when useDefault is set. Safe to call with a nil table or an empty
// handle.
func BuildAssignee(assignee string, handles map[string]string, defaultAssignee string, useDefault bool) (string, bool) {
	if assignee != "" && handles != nil {
		if principal, ok := handles[assignee]; ok && principal != "" {
			return principal, true
		}
	}
	if useDefault && defaultAssignee != "" {
		return defaultAssignee, true
	}
	return "", false
}

// InvertHandles flips a handle table into a mirror-principal → origin-handle
// lookup. On collision the last writer per map iteration wins; callers that
// need a reliable inverse must validate the table as a bijection first
// (config.Load does).
func InvertHandles(handles map[string]string) map[string]string {
	inverted := make(map[string]string, len(handles))
	for origin, principal := range handles {
		inverted[principal] = origin
	}
	return inverted
}

// StateTable maps origin-side state keys (closed, deleted, reopened) to the
// mirror project's state names.
type StateTable map[string]string

// Origin-side state keys.
const (
	StateKeyClosed   = "closed"
	StateKeyDeleted  = "deleted"
	StateKeyReopened = "reopened"
)

// DeriveStateKey reverse-maps a mirror state value back to its origin-side
// state key. Returns false when the value is not in the table.
func (t StateTable) DeriveStateKey(mirrorState string) (string, bool) {
	for key, value := range t {
		if value == mirrorState {
			return key, true
		}
	}
	return "", false
}

// Validate checks that the table covers every required state key.
func (t StateTable) Validate() error {
	for _, key := range []string{StateKeyClosed, StateKeyDeleted, StateKeyReopened} {
		if t[key] == "" {
			return fmt.Errorf("state mapping for %q is required", key)
		}
	}
	return nil
}
