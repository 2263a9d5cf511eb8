package model

import (
	"strings"
	"time"

	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// ChangeAction is the kind of change that occurred to a tracked object.
type ChangeAction string

const (
	// ActionCreate indicates a tracked object was created.
	ActionCreate ChangeAction = "create"
	// ActionUpdate indicates a tracked object was updated.
	ActionUpdate ChangeAction = "update"
	// ActionDelete indicates a tracked object was deleted.
	ActionDelete ChangeAction = "delete"
)

// Valid returns true if the ChangeAction is recognized.
func (a ChangeAction) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// ChangeEvent is the narrow change-notification tuple consumed from the
// object-change layer.
type ChangeEvent struct {
	// ContentType identifies the changed object's type, e.g. "dcim.device".
	ContentType string       `json:"content_type"`
	Action      ChangeAction `json:"action"`
	// RecordID identifies the change record describing the mutation; it is
	// passed to the receiving job as its argument.
	RecordID  string    `json:"record_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// JobHook binds a set of content types and a subset of change actions to a
// job definition that declared itself a hook receiver. One job enqueue
// happens per matching hook per event.
type JobHook struct {
	ID              string   `json:"id"                db:"id"`
	Name            string   `json:"name"              db:"name"`
	Enabled         bool     `json:"enabled"           db:"enabled"`
	ContentTypes    []string `json:"content_types"     db:"content_types"`
	JobDefinitionID string   `json:"job_definition_id" db:"job_definition_id"`

	TypeCreate bool `json:"type_create" db:"type_create"`
	TypeUpdate bool `json:"type_update" db:"type_update"`
	TypeDelete bool `json:"type_delete" db:"type_delete"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces the JobHook invariants.
func (h *JobHook) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return apperrors.ValidationField("name", "name is required")
	}
	if strings.TrimSpace(h.JobDefinitionID) == "" {
		return apperrors.ValidationField("job_definition_id", "a receiving job is required")
	}
	if len(h.ContentTypes) == 0 {
		return apperrors.ValidationField("content_types", "at least one content type is required")
	}
	if !h.TypeCreate && !h.TypeUpdate && !h.TypeDelete {
		return apperrors.Validation("at least one action type must be selected")
	}
	return nil
}

// Matches reports whether the hook claims the given content type and action.
func (h *JobHook) Matches(contentType string, action ChangeAction) bool {
	if !h.Enabled || !h.claimsAction(action) {
		return false
	}
	for _, ct := range h.ContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

func (h *JobHook) claimsAction(action ChangeAction) bool {
	switch action {
	case ActionCreate:
		return h.TypeCreate
	case ActionUpdate:
		return h.TypeUpdate
	case ActionDelete:
		return h.TypeDelete
	}
	return false
}

// HookConflict describes one overlapping (content type, action) claim between
// two hooks bound to the same job.
type HookConflict struct {
	ContentType string       `json:"content_type"`
	Action      ChangeAction `json:"action"`
	// ConflictingHookID names the hook that already claims the combination.
	ConflictingHookID   string `json:"conflicting_hook_id"`
	ConflictingHookName string `json:"conflicting_hook_name"`
}
