package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/testutil"
)

func backupDefinition() *model.JobDefinition {
	return &model.JobDefinition{
		ModuleName:     "network",
		JobClassName:   "DeviceBackup",
		Name:           "Device Backup",
		Grouping:       "network",
		Description:    "Backs up device configuration.",
		Enabled:        true,
		SupportsDryRun: true,
		SoftTimeLimit:  300,
		TimeLimit:      600,
		TaskQueues:     []string{"network"},
	}
}

func TestJobDefinitionRepo_UpsertRoundTrip(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		saved, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.True(t, saved.Installed, "upsert always marks the row installed")
		assert.Equal(t, []string{"network"}, saved.TaskQueues)

		got, err := repo.GetByTaskName(ctx, "network.DeviceBackup")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)
		assert.Equal(t, "Device Backup", got.Name)
		assert.Equal(t, 300, got.SoftTimeLimit)

		got, err = repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "network.DeviceBackup", got.TaskName())
	})
}

func TestJobDefinitionRepo_UpsertPreservesIDAcrossResync(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		first, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		changed := backupDefinition()
		changed.Name = "Device Backup v2"
		changed.Description = "Now with diffing."
		second, err := repo.Upsert(ctx, changed)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, "schedules keep their definition reference across resyncs")
		assert.Equal(t, "Device Backup v2", second.Name)
	})
}

func TestJobDefinitionRepo_UpsertDoesNotResurrectEnabled(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		saved, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)
		require.NoError(t, repo.SetEnabled(ctx, saved.ID, false))

		// A resync upsert must not override the operator's enabled toggle.
		resynced, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)
		assert.False(t, resynced.Enabled)
	})
}

func TestJobDefinitionRepo_GetByName(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		saved, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		got, err := repo.GetByName(ctx, "Device Backup")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)

		_, err = repo.GetByName(ctx, "No Such Job")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobDefinitionRepo_DuplicateNameConflicts(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		// A different job class may not claim an already-taken name.
		clash := backupDefinition()
		clash.ModuleName = "reports"
		clash.JobClassName = "Nightly"
		_, err = repo.Upsert(ctx, clash)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestJobDefinitionRepo_GetMissing(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		_, err := repo.GetByTaskName(ctx, "network.DoesNotExist")
		assert.True(t, apperrors.IsNotFound(err))

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobDefinitionRepo_ListFilters(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		visible, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		hidden := backupDefinition()
		hidden.JobClassName = "HiddenMaintenance"
		hidden.Name = "Hidden Maintenance"
		hidden.Hidden = true
		_, err = repo.Upsert(ctx, hidden)
		require.NoError(t, err)

		uninstalled := backupDefinition()
		uninstalled.JobClassName = "RemovedJob"
		uninstalled.Name = "Removed Job"
		_, err = repo.Upsert(ctx, uninstalled)
		require.NoError(t, err)
		_, err = repo.MarkMissingUninstalled(ctx, []string{
			"network.DeviceBackup", "network.HiddenMaintenance",
		})
		require.NoError(t, err)

		defs, err := repo.List(ctx, ListParams{InstalledOnly: true})
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, visible.ID, defs[0].ID)

		defs, err = repo.List(ctx, ListParams{InstalledOnly: true, IncludeHidden: true})
		require.NoError(t, err)
		assert.Len(t, defs, 2)

		defs, err = repo.List(ctx, ListParams{IncludeHidden: true})
		require.NoError(t, err)
		assert.Len(t, defs, 3)
	})
}

func TestJobDefinitionRepo_SetEnabled(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		saved, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		require.NoError(t, repo.SetEnabled(ctx, saved.ID, false))
		got, err := repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.False(t, got.Enabled)

		err = repo.SetEnabled(ctx, uuid.NewString(), true)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobDefinitionRepo_UpdateOverridesRoundTrip(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobDefinitionRepo(db)
		ctx := context.Background()

		saved, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		saved.Name = "Operator Renamed"
		saved.TimeLimit = 1200
		saved.Overrides.Name = true
		saved.Overrides.TimeLimit = true
		updated, err := repo.UpdateOverrides(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, "Operator Renamed", updated.Name)
		assert.Equal(t, 1200, updated.TimeLimit)
		assert.True(t, updated.Overrides.Name)
		assert.True(t, updated.Overrides.TimeLimit)
		assert.False(t, updated.Overrides.Grouping)

		got, err := repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.True(t, got.Overrides.Name, "override flags survive the round trip")
	})
}

func TestJobDefinitionRepo_MarkMissingUninstalled(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		repo := NewJobDefinitionRepoWithTimeProvider(db, tp)
		ctx := context.Background()

		keep, err := repo.Upsert(ctx, backupDefinition())
		require.NoError(t, err)

		gone := backupDefinition()
		gone.JobClassName = "Decommissioned"
		gone.Name = "Decommissioned"
		removed, err := repo.Upsert(ctx, gone)
		require.NoError(t, err)

		n, err := repo.MarkMissingUninstalled(ctx, []string{"network.DeviceBackup"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, removed.ID)
		require.NoError(t, err)
		assert.False(t, got.Installed, "missing definitions are marked, never deleted")
		assert.False(t, got.Enabled)

		got, err = repo.GetByID(ctx, keep.ID)
		require.NoError(t, err)
		assert.True(t, got.Installed)

		// Idempotent: a second pass with the same set changes nothing.
		n, err = repo.MarkMissingUninstalled(ctx, []string{"network.DeviceBackup"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
