// Package ado talks to the mirror work-item service. It owns the work item
// model, the JSON-patch operation type, and the boundary codec between the
// service's flat delimited tag string and the ordered tag set the rest of the
// engine works with.
package ado

import (
	"strings"
	"time"
)

// Patch operation kinds, applied atomically server-side.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// Well-known work item field reference names.
const (
	FieldTitle          = "System.Title"
	FieldDescription    = "System.Description"
	FieldReproSteps     = "Microsoft.VSTS.TCM.ReproSteps"
	FieldTags           = "System.Tags"
	FieldAssignedTo     = "System.AssignedTo"
	FieldHistory        = "System.History"
	FieldAreaPath       = "System.AreaPath"
	FieldIterationPath  = "System.IterationPath"
	FieldState          = "System.State"
	FieldResolvedReason = "Microsoft.VSTS.Common.ResolvedReason"
	FieldCreatedBy      = "System.CreatedBy"
	FieldChangedDate    = "System.ChangedDate"
)

// PatchOp is a single field-level mutation instruction.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// FieldPatch builds a patch op targeting a work item field.
func FieldPatch(op, field string, value any) PatchOp {
	return PatchOp{Op: op, Path: "/fields/" + field, Value: value}
}

// RelationPatch builds a patch op appending a relation.
func RelationPatch(rel, url string, attributes map[string]any) PatchOp {
	return PatchOp{Op: OpAdd, Path: "/relations/-", Value: Relation{
		Rel:        rel,
		URL:        url,
		Attributes: attributes,
	}}
}

// Relation links a work item to another resource (hyperlink, parent, ...).
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WorkItem is a snapshot of a mirror work item. Tags are the parsed, ordered
// form of the service's flat tag field; Fields keeps the raw decoded values
// for everything else.
type WorkItem struct {
	ID          int
	Rev         int
	Fields      map[string]any
	Tags        []string
	Relations   []Relation
	ChangedDate time.Time
}

// StringField returns a field as a string, empty when absent or non-string.
func (w *WorkItem) StringField(name string) string {
	if w == nil || w.Fields == nil {
		return ""
	}
	s, _ := w.Fields[name].(string)
	return s
}

// State returns the work item's current state name.
func (w *WorkItem) State() string {
	return w.StringField(FieldState)
}

// AssignedTo returns the assigned principal's unique name. The service
// returns identity fields either as a plain string or as an identity object.
func (w *WorkItem) AssignedTo() string {
	if w == nil || w.Fields == nil {
		return ""
	}
	switch v := w.Fields[FieldAssignedTo].(type) {
	case string:
		return v
	case map[string]any:
		name, _ := v["uniqueName"].(string)
		return name
	}
	return ""
}

// ParseTags splits the service's flat delimited tag field into an ordered tag
// set. The service delimits with ";" and is inconsistent about trailing
// whitespace, so each element is trimmed and empties are dropped.
func ParseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// FormatTags serializes an ordered tag set back to the flat field value, one
// trailing delimiter per tag.
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t)
		b.WriteString(";")
	}
	return b.String()
}
