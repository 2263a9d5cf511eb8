package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/testutil"
)

func nightlySchedule(name string) *model.ScheduledJob {
	return &model.ScheduledJob{
		Name:        name,
		TaskName:    "network.DeviceBackup",
		Interval:    model.IntervalDaily,
		Args:        json.RawMessage(`["device-9"]`),
		Kwargs:      json.RawMessage(`{"full":true}`),
		Enabled:     true,
		StartTime:   time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
		RequestedBy: "alice",
	}
}

func TestScheduledJobsRepo_CreateRoundTrip(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		saved, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, model.IntervalDaily, saved.Interval)
		assert.JSONEq(t, `["device-9"]`, string(saved.Args))
		assert.JSONEq(t, `{"full":true}`, string(saved.Kwargs))
		assert.Nil(t, saved.LastRunAt)
		assert.Zero(t, saved.TotalRunCount)

		got, err := repo.GetByName(ctx, "nightly backup")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)

		_, err = repo.GetByName(ctx, "no such schedule")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestScheduledJobsRepo_DuplicateNameConflicts(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, nightlySchedule("nightly backup"))
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestScheduledJobsRepo_MutationsTouchChangeMarker(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
		repo := NewScheduledJobsRepoWithTimeProvider(db, tp)
		ctx := context.Background()

		saved, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)
		marker, err := repo.ChangeMarker(ctx)
		require.NoError(t, err)
		assert.True(t, marker.Equal(tp.Now()), "create touches the marker")

		tp.AddTime(time.Minute)
		saved.Crontab = ""
		saved.Interval = model.IntervalHourly
		_, err = repo.Update(ctx, saved)
		require.NoError(t, err)
		marker, err = repo.ChangeMarker(ctx)
		require.NoError(t, err)
		assert.True(t, marker.Equal(tp.Now()), "update touches the marker")

		tp.AddTime(time.Minute)
		require.NoError(t, repo.SetEnabled(ctx, saved.ID, false))
		marker, err = repo.ChangeMarker(ctx)
		require.NoError(t, err)
		assert.True(t, marker.Equal(tp.Now()), "toggling touches the marker")

		tp.AddTime(time.Minute)
		require.NoError(t, repo.Delete(ctx, saved.ID))
		marker, err = repo.ChangeMarker(ctx)
		require.NoError(t, err)
		assert.True(t, marker.Equal(tp.Now()), "delete touches the marker")
	})
}

func TestScheduledJobsRepo_SetEnabledClearsLastRun(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		sj := nightlySchedule("nightly backup")
		lastRun := time.Date(2024, 2, 29, 2, 0, 0, 0, time.UTC)
		sj.LastRunAt = &lastRun
		saved, err := repo.Create(ctx, sj)
		require.NoError(t, err)
		require.NotNil(t, saved.LastRunAt)

		require.NoError(t, repo.SetEnabled(ctx, saved.ID, false))
		got, err := repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastRunAt, "a re-enable is treated as a fresh save")
		assert.False(t, got.Enabled)

		assert.True(t, apperrors.IsNotFound(repo.SetEnabled(ctx, uuid.NewString(), true)))
		assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, uuid.NewString())))
	})
}

func TestScheduledJobsRepo_ListEnabled(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, nightlySchedule("b nightly"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, nightlySchedule("a hourly"))
		require.NoError(t, err)
		off := nightlySchedule("c disabled")
		off.Enabled = false
		_, err = repo.Create(ctx, off)
		require.NoError(t, err)

		enabled, err := repo.ListEnabled(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 2)
		assert.Equal(t, "a hourly", enabled[0].Name)
		assert.Equal(t, "b nightly", enabled[1].Name)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestScheduledJobsRepo_MarkFiredAdvancesCounter(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		saved, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)

		firedAt := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
		var fired *model.ScheduledJob
		locked, err := repo.TryWithScheduleLock(ctx, saved.Name, func(ctx context.Context, tx *sql.Tx) error {
			var markErr error
			// The scheduler believes 5 runs happened; the stored counter never
			// moves backwards, so it lands at max(stored, known) + 1.
			fired, markErr = repo.MarkFiredTx(ctx, tx, MarkFiredParams{
				ID:            saved.ID,
				FiredAt:       firedAt,
				KnownRunCount: 5,
			})
			return markErr
		})
		require.NoError(t, err)
		require.True(t, locked)
		assert.Equal(t, int64(6), fired.TotalRunCount)
		require.NotNil(t, fired.LastRunAt)
		assert.True(t, fired.LastRunAt.Equal(firedAt))
		assert.True(t, fired.Enabled)
	})
}

func TestScheduledJobsRepo_MarkFiredDisableAfter(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		once := nightlySchedule("one shot")
		once.Interval = model.IntervalOnce
		saved, err := repo.Create(ctx, once)
		require.NoError(t, err)

		before, err := repo.ChangeMarker(ctx)
		require.NoError(t, err)

		locked, err := repo.TryWithScheduleLock(ctx, saved.Name, func(ctx context.Context, tx *sql.Tx) error {
			_, markErr := repo.MarkFiredTx(ctx, tx, MarkFiredParams{
				ID:           saved.ID,
				FiredAt:      time.Now().UTC(),
				DisableAfter: true,
			})
			return markErr
		})
		require.NoError(t, err)
		require.True(t, locked)

		got, err := repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.False(t, got.Enabled, "a one-off schedule turns itself off after firing")

		after, err := repo.ChangeMarker(ctx)
		require.NoError(t, err)
		assert.True(t, after.After(before),
			"disabling through a fire moves the marker so other schedulers reload")
	})
}

func TestScheduledJobsRepo_ScheduleLockRollsBackOnError(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		saved, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)

		wantErr := errors.New("enqueue failed")
		locked, err := repo.TryWithScheduleLock(ctx, saved.Name, func(ctx context.Context, tx *sql.Tx) error {
			if _, markErr := repo.MarkFiredTx(ctx, tx, MarkFiredParams{
				ID:            saved.ID,
				FiredAt:       time.Now().UTC(),
				KnownRunCount: 0,
			}); markErr != nil {
				return markErr
			}
			return wantErr
		})
		assert.True(t, locked)
		require.ErrorIs(t, err, wantErr)

		got, err := repo.GetByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastRunAt, "the fire bookkeeping rolled back with the failed dispatch")
		assert.Zero(t, got.TotalRunCount)
	})
}

func TestScheduledJobsRepo_ScheduleLockContention(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		saved, err := repo.Create(ctx, nightlySchedule("nightly backup"))
		require.NoError(t, err)

		holding := make(chan struct{})
		release := make(chan struct{})
		errCh := make(chan error, 1)
		go func() {
			_, lockErr := repo.TryWithScheduleLock(ctx, saved.Name, func(ctx context.Context, tx *sql.Tx) error {
				close(holding)
				<-release
				return nil
			})
			errCh <- lockErr
		}()

		<-holding
		locked, err := repo.TryWithScheduleLock(ctx, saved.Name, func(ctx context.Context, tx *sql.Tx) error {
			t.Error("fn must not run when the lock is held elsewhere")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, locked, "a contending scheduler skips the schedule this tick")

		close(release)
		require.NoError(t, <-errCh)
	})
}
