package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the kind of change a FileOperation makes.
type Action string

// Supported actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Writes reports whether a writes content.
func (a Action) Writes() bool {
	return a == ActionCreate || a == ActionUpdate
}

// FileOperation is a single vault change. Content is required for create
// and update and must be nil for delete. Meta is set when the operation also
// registers entity links for the written note.
type FileOperation struct {
	Action  Action    `json:"action"`
	Path    string    `json:"path"`
	Content *string   `json:"content,omitempty"`
	Meta    *NoteMeta `json:"meta,omitempty"`
}

// CreateOp returns a create operation for path.
func CreateOp(path, content string) FileOperation {
	return FileOperation{Action: ActionCreate, Path: path, Content: &content}
}

// UpdateOp returns an update operation for path.
func UpdateOp(path, content string) FileOperation {
	return FileOperation{Action: ActionUpdate, Path: path, Content: &content}
}

// DeleteOp returns a delete operation for path.
func DeleteOp(path string) FileOperation {
	return FileOperation{Action: ActionDelete, Path: path}
}

// WithMeta returns a copy of op carrying meta.
func (op FileOperation) WithMeta(meta NoteMeta) FileOperation {
	op.Meta = &meta
	return op
}

// Body returns the operation content, or an empty string for deletes.
func (op FileOperation) Body() string {
	if op.Content == nil {
		return ""
	}
	return *op.Content
}

func (op FileOperation) String() string {
	return fmt.Sprintf("%s %s", op.Action, op.Path)
}

// ApplySummary is the final-state outcome of a batch. Written lists paths
// that exist after the batch in order of first appearance. Deleted lists
// paths that are absent after the batch.
type ApplySummary struct {
	Written []string `json:"written"`
	Deleted []string `json:"deleted"`
}

// ProcessingMode is the user's processing quality preference.
type ProcessingMode string

// Processing modes. ModeBalanced is the default.
const (
	ModeFast     ProcessingMode = "fast"
	ModeBalanced ProcessingMode = "balanced"
	ModeAccurate ProcessingMode = "accurate"
)

// ProcessingModes lists every valid mode.
var ProcessingModes = []ProcessingMode{ModeFast, ModeBalanced, ModeAccurate}

// ParseProcessingMode parses s case-insensitively. An empty string yields
// ModeBalanced.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch m := ProcessingMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeBalanced, nil
	case ModeFast, ModeBalanced, ModeAccurate:
		return m, nil
	default:
		return "", fmt.Errorf("unknown processing mode %q", s)
	}
}

// ConfidenceFloor is the transcript confidence below which a section is
// flagged for review.
func (m ProcessingMode) ConfidenceFloor() float64 {
	switch m {
	case ModeFast:
		return 0.4
	case ModeAccurate:
		return 0.8
	default:
		return 0.6
	}
}

// UnmarshalJSON accepts any case and treats empty as balanced.
func (m *ProcessingMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProcessingMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
