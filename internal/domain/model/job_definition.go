// Package model defines the core data types for the jobforge engine:
// job definitions, scheduled jobs, job results, log entries, and hooks.
package model

import (
	"fmt"
	"strings"

	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// Maximum lengths for JobDefinition identity fields, enforced at validation.
const (
	ModuleNameMaxLength   = 255
	JobClassNameMaxLength = 100
	GroupingMaxLength     = 255
	NameMaxLength         = 100
)

// JobMetadata is the metadata a job class declares in source. Non-overridden
// JobDefinition fields are resynchronized from it on every reconcile pass.
type JobMetadata struct {
	Name                  string
	Grouping              string
	Description           string
	ApprovalRequired      bool
	HasSensitiveVariables bool
	Hidden                bool
	DryRunDefault         bool
	ReadOnly              bool
	SupportsDryRun        bool
	SoftTimeLimit         int
	TimeLimit             int
	TaskQueues            []string
	IsJobHookReceiver     bool
	IsJobButtonReceiver   bool
}

// FieldOverrides records, per overridable field, whether the stored value is
// authoritative (true) or resynchronized from source metadata (false).
type FieldOverrides struct {
	Name                  bool `json:"name"`
	Grouping              bool `json:"grouping"`
	Description           bool `json:"description"`
	ApprovalRequired      bool `json:"approval_required"`
	HasSensitiveVariables bool `json:"has_sensitive_variables"`
	Hidden                bool `json:"hidden"`
	DryRunDefault         bool `json:"dryrun_default"`
	SoftTimeLimit         bool `json:"soft_time_limit"`
	TimeLimit             bool `json:"time_limit"`
	TaskQueues            bool `json:"task_queues"`
}

// JobDefinition is the persisted record for an installed job class, keyed by
// (module name, class name). Rows are never deleted: when the source
// disappears Installed flips to false for audit continuity.
type JobDefinition struct {
	ID           string `json:"id"             db:"id"`
	ModuleName   string `json:"module_name"    db:"module_name"`
	JobClassName string `json:"job_class_name" db:"job_class_name"`

	Name        string `json:"name"        db:"name"`
	Grouping    string `json:"grouping"    db:"grouping"`
	Description string `json:"description" db:"description"`

	Installed             bool `json:"installed"               db:"installed"`
	Enabled               bool `json:"enabled"                 db:"enabled"`
	IsJobHookReceiver     bool `json:"is_job_hook_receiver"    db:"is_job_hook_receiver"`
	IsJobButtonReceiver   bool `json:"is_job_button_receiver"  db:"is_job_button_receiver"`
	HasSensitiveVariables bool `json:"has_sensitive_variables" db:"has_sensitive_variables"`
	ApprovalRequired      bool `json:"approval_required"       db:"approval_required"`
	Hidden                bool `json:"hidden"                  db:"hidden"`
	DryRunDefault         bool `json:"dryrun_default"          db:"dryrun_default"`
	ReadOnly              bool `json:"read_only"               db:"read_only"`
	SupportsDryRun        bool `json:"supports_dryrun"         db:"supports_dryrun"`

	// Execution limits in seconds; 0 means the system default applies.
	SoftTimeLimit int `json:"soft_time_limit" db:"soft_time_limit"`
	TimeLimit     int `json:"time_limit"      db:"time_limit"`

	TaskQueues []string       `json:"task_queues" db:"task_queues"`
	Overrides  FieldOverrides `json:"overrides"   db:"overrides"`
}

// TaskName returns the fully qualified "module.ClassName" task identifier.
func (d *JobDefinition) TaskName() string {
	return d.ModuleName + "." + d.JobClassName
}

// Validate enforces the JobDefinition invariants: identity fields present and
// within length limits, and the sensitive-variables/approval exclusion.
func (d *JobDefinition) Validate() error {
	if strings.TrimSpace(d.ModuleName) == "" {
		return apperrors.ValidationField("module_name", "module name is required")
	}
	if strings.TrimSpace(d.JobClassName) == "" {
		return apperrors.ValidationField("job_class_name", "job class name is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return apperrors.ValidationField("name", "name is required")
	}
	if err := checkLength("module_name", d.ModuleName, ModuleNameMaxLength); err != nil {
		return err
	}
	if err := checkLength("job_class_name", d.JobClassName, JobClassNameMaxLength); err != nil {
		return err
	}
	if err := checkLength("grouping", d.Grouping, GroupingMaxLength); err != nil {
		return err
	}
	if err := checkLength("name", d.Name, NameMaxLength); err != nil {
		return err
	}
	if d.SoftTimeLimit < 0 || d.TimeLimit < 0 {
		return apperrors.Validation("time limits must be >= 0")
	}
	// A job handling sensitive variables must never sit in an approval queue
	// where a reviewer could inspect its inputs.
	if d.HasSensitiveVariables && d.ApprovalRequired {
		return apperrors.Validation(
			"a job with sensitive variables cannot also require approval",
		)
	}
	return nil
}

// ApplyMetadata copies declared metadata onto every non-overridden field.
func (d *JobDefinition) ApplyMetadata(meta JobMetadata) {
	if !d.Overrides.Name {
		d.Name = meta.Name
	}
	if !d.Overrides.Grouping {
		d.Grouping = meta.Grouping
	}
	if !d.Overrides.Description {
		d.Description = meta.Description
	}
	if !d.Overrides.ApprovalRequired {
		d.ApprovalRequired = meta.ApprovalRequired
	}
	if !d.Overrides.HasSensitiveVariables {
		d.HasSensitiveVariables = meta.HasSensitiveVariables
	}
	if !d.Overrides.Hidden {
		d.Hidden = meta.Hidden
	}
	if !d.Overrides.DryRunDefault {
		d.DryRunDefault = meta.DryRunDefault
	}
	if !d.Overrides.SoftTimeLimit {
		d.SoftTimeLimit = meta.SoftTimeLimit
	}
	if !d.Overrides.TimeLimit {
		d.TimeLimit = meta.TimeLimit
	}
	if !d.Overrides.TaskQueues {
		d.TaskQueues = append([]string(nil), meta.TaskQueues...)
	}
	// Receiver capabilities and dry-run support are facts about the source
	// code, never overridable.
	d.IsJobHookReceiver = meta.IsJobHookReceiver
	d.IsJobButtonReceiver = meta.IsJobButtonReceiver
	d.ReadOnly = meta.ReadOnly
	d.SupportsDryRun = meta.SupportsDryRun
}

func checkLength(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return apperrors.ValidationField(field,
			fmt.Sprintf("%s exceeds maximum length of %d", field, maxLen))
	}
	return nil
}
