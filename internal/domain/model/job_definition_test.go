package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jobforge/jobforge/internal/errors"
)

func validDefinition() *JobDefinition {
	return &JobDefinition{
		ModuleName:   "network",
		JobClassName: "DeviceBackup",
		Name:         "Device Backup",
		Grouping:     "Network",
		Installed:    true,
		Enabled:      true,
	}
}

func TestJobDefinition_TaskName(t *testing.T) {
	d := validDefinition()
	assert.Equal(t, "network.DeviceBackup", d.TaskName())
}

func TestJobDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*JobDefinition)
		field  string
	}{
		{name: "valid", modify: func(d *JobDefinition) {}},
		{
			name:   "missing module name",
			modify: func(d *JobDefinition) { d.ModuleName = "  " },
			field:  "module_name",
		},
		{
			name:   "missing class name",
			modify: func(d *JobDefinition) { d.JobClassName = "" },
			field:  "job_class_name",
		},
		{
			name:   "missing name",
			modify: func(d *JobDefinition) { d.Name = "" },
			field:  "name",
		},
		{
			name:   "class name too long",
			modify: func(d *JobDefinition) { d.JobClassName = strings.Repeat("x", JobClassNameMaxLength+1) },
			field:  "job_class_name",
		},
		{
			name:   "name too long",
			modify: func(d *JobDefinition) { d.Name = strings.Repeat("x", NameMaxLength+1) },
			field:  "name",
		},
		{
			name:   "negative time limit",
			modify: func(d *JobDefinition) { d.TimeLimit = -1 },
		},
		{
			name: "sensitive variables exclude approval",
			modify: func(d *JobDefinition) {
				d.HasSensitiveVariables = true
				d.ApprovalRequired = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.modify(d)
			err := d.Validate()
			if tt.name == "valid" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			if tt.field != "" {
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.field, appErr.Field)
			}
		})
	}
}

func TestJobDefinition_SensitiveWithoutApprovalIsFine(t *testing.T) {
	d := validDefinition()
	d.HasSensitiveVariables = true
	assert.NoError(t, d.Validate())

	d = validDefinition()
	d.ApprovalRequired = true
	assert.NoError(t, d.Validate())
}

func TestJobDefinition_ApplyMetadata(t *testing.T) {
	meta := JobMetadata{
		Name:              "Device Backup",
		Grouping:          "Network",
		Description:       "Backs up device configs.",
		SoftTimeLimit:     60,
		TimeLimit:         120,
		TaskQueues:        []string{"network", "default"},
		IsJobHookReceiver: true,
		SupportsDryRun:    true,
	}

	t.Run("non-overridden fields resync from source", func(t *testing.T) {
		d := &JobDefinition{ModuleName: "network", JobClassName: "DeviceBackup", Name: "Old Name"}
		d.ApplyMetadata(meta)

		assert.Equal(t, "Device Backup", d.Name)
		assert.Equal(t, "Network", d.Grouping)
		assert.Equal(t, 60, d.SoftTimeLimit)
		assert.Equal(t, 120, d.TimeLimit)
		assert.Equal(t, []string{"network", "default"}, d.TaskQueues)
	})

	t.Run("overridden fields keep the stored value", func(t *testing.T) {
		d := &JobDefinition{
			ModuleName:   "network",
			JobClassName: "DeviceBackup",
			Name:         "Operator Name",
			TimeLimit:    600,
			Overrides:    FieldOverrides{Name: true, TimeLimit: true},
		}
		d.ApplyMetadata(meta)

		assert.Equal(t, "Operator Name", d.Name)
		assert.Equal(t, 600, d.TimeLimit)
		assert.Equal(t, "Network", d.Grouping, "non-overridden fields still resync")
	})

	t.Run("receiver capabilities always follow source", func(t *testing.T) {
		d := &JobDefinition{ModuleName: "network", JobClassName: "DeviceBackup"}
		d.ApplyMetadata(meta)
		assert.True(t, d.IsJobHookReceiver)
		assert.True(t, d.SupportsDryRun)

		d.ApplyMetadata(JobMetadata{Name: "Device Backup"})
		assert.False(t, d.IsJobHookReceiver, "capability removed in source clears the flag")
	})
}
