package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/mocks"
)

func schedulableJob(now time.Time) *model.ScheduledJob {
	backdated := now.Add(-24 * time.Hour)
	return &model.ScheduledJob{
		ID:          "sched-1",
		Name:        "nightly backup",
		TaskName:    "network.DeviceBackup",
		Interval:    model.IntervalDaily,
		StartTime:   now,
		Enabled:     true,
		LastRunAt:   &backdated,
		RequestedBy: "alice",
	}
}

func installedDefinition() *model.JobDefinition {
	return &model.JobDefinition{
		ID:           "def-1",
		ModuleName:   "network",
		JobClassName: "DeviceBackup",
		Name:         "Device Backup",
		Installed:    true,
		Enabled:      true,
	}
}

func TestSchedulerService_TickFiresDueSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)

	defs := mocks.NewMockDefinitionRepository(ctrl)
	defs.EXPECT().GetByTaskName(gomock.Any(), "network.DeviceBackup").Return(installedDefinition(), nil)

	updated := *sj
	updated.LastRunAt = &now
	updated.TotalRunCount = 1

	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), sj.Name, gomock.Any()).DoAndReturn(
		func(ctx context.Context, name string, fn func(context.Context, *sql.Tx) error) (bool, error) {
			return true, fn(ctx, nil)
		},
	)
	scheds.EXPECT().MarkFiredTx(gomock.Any(), gomock.Any(), data.MarkFiredParams{
		ID:            sj.ID,
		FiredAt:       now,
		KnownRunCount: 0,
	}).Return(&updated, nil)

	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().InsertPendingTx(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx *sql.Tx, jr *model.JobResult) (*model.JobResult, error) {
			assert.Equal(t, sj.Name, jr.Name)
			assert.Equal(t, "network.DeviceBackup", jr.TaskName)
			require.NotNil(t, jr.ScheduledJobID)
			assert.Equal(t, sj.ID, *jr.ScheduledJobID)
			require.NotNil(t, jr.User)
			assert.Equal(t, "alice", *jr.User)
			return jr, nil
		},
	)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        runs,
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.NotNil(t, sj.LastRunAt)
	assert.Equal(t, now, *sj.LastRunAt)
	assert.Equal(t, int64(1), sj.TotalRunCount)
}

func TestSchedulerService_TickSkipsWhenNotDue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)
	sj.LastRunAt = &now // fired this instant, next fire is tomorrow

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: mocks.NewMockDefinitionRepository(ctrl),
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestSchedulerService_TickReloadsOnlyWhenMarkerMoves(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	marker := now.Add(-time.Hour)

	scheds := mocks.NewMockScheduleRepository(ctrl)
	// Three ticks, but the schedule list loads twice: once initially and once
	// after the marker moves.
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(marker, nil).Times(2)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(marker.Add(time.Minute), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return(nil, nil).Times(2)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: mocks.NewMockDefinitionRepository(ctrl),
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	for i := 0; i < 3; i++ {
		_, err := svc.Tick(context.Background(), now)
		require.NoError(t, err)
	}
}

func TestSchedulerService_TickDisablesMalformedSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)
	sj.Interval = model.IntervalCustom
	sj.Crontab = "@reboot"

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)
	scheds.EXPECT().SetEnabled(gomock.Any(), sj.ID, false).Return(nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: mocks.NewMockDefinitionRepository(ctrl),
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err, "a malformed schedule never takes the tick down")
	assert.Zero(t, fired)
	assert.False(t, sj.Enabled)
}

func TestSchedulerService_TickDisablesScheduleWithInvalidArgs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)
	sj.Args = json.RawMessage(`{not json`)

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)
	scheds.EXPECT().SetEnabled(gomock.Any(), sj.ID, false).Return(nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: mocks.NewMockDefinitionRepository(ctrl),
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestSchedulerService_TickSkipsUnapproved(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)
	sj.ApprovalRequired = true

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: mocks.NewMockDefinitionRepository(ctrl),
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, fired, "a schedule awaiting approval never fires")
}

func TestSchedulerService_TickSkipsWhenLockHeldElsewhere(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)
	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), sj.Name, gomock.Any()).Return(false, nil)

	defs := mocks.NewMockDefinitionRepository(ctrl)
	defs.EXPECT().GetByTaskName(gomock.Any(), "network.DeviceBackup").Return(installedDefinition(), nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, fired, "another replica owns this schedule")
}

func TestSchedulerService_TickContinuesPastDeletedSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	gone := schedulableJob(now)
	gone.ID, gone.Name = "sched-a", "aaa"
	alive := schedulableJob(now)
	alive.ID, alive.Name = "sched-b", "bbb"

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{gone, alive}, nil)

	defs := mocks.NewMockDefinitionRepository(ctrl)
	defs.EXPECT().GetByTaskName(gomock.Any(), "network.DeviceBackup").
		Return(installedDefinition(), nil).Times(2)

	runFn := func(ctx context.Context, name string, fn func(context.Context, *sql.Tx) error) (bool, error) {
		return true, fn(ctx, nil)
	}
	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), "aaa", gomock.Any()).DoAndReturn(runFn)
	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), "bbb", gomock.Any()).DoAndReturn(runFn)

	// The first schedule's row was deleted between the set load and the fire.
	scheds.EXPECT().MarkFiredTx(gomock.Any(), gomock.Any(), data.MarkFiredParams{
		ID: "sched-a", FiredAt: now,
	}).Return(nil, apperrors.NotFoundf("scheduled job sched-a not found"))

	updated := *alive
	updated.LastRunAt = &now
	updated.TotalRunCount = 1
	scheds.EXPECT().MarkFiredTx(gomock.Any(), gomock.Any(), data.MarkFiredParams{
		ID: "sched-b", FiredAt: now,
	}).Return(&updated, nil)

	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().InsertPendingTx(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx *sql.Tx, jr *model.JobResult) (*model.JobResult, error) {
			assert.Equal(t, "bbb", jr.Name)
			return jr, nil
		},
	)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        runs,
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err, "a vanished schedule never takes the tick down")
	assert.Equal(t, 1, fired, "the schedules after the vanished one still fire")
}

func TestSchedulerService_TickReportsFireErrorAfterFullPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	broken := schedulableJob(now)
	broken.ID, broken.Name = "sched-a", "aaa"
	healthy := schedulableJob(now)
	healthy.ID, healthy.Name = "sched-b", "bbb"

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{broken, healthy}, nil)

	defs := mocks.NewMockDefinitionRepository(ctrl)
	defs.EXPECT().GetByTaskName(gomock.Any(), "network.DeviceBackup").
		Return(installedDefinition(), nil).Times(2)

	runFn := func(ctx context.Context, name string, fn func(context.Context, *sql.Tx) error) (bool, error) {
		return true, fn(ctx, nil)
	}
	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), "aaa", gomock.Any()).DoAndReturn(runFn)
	scheds.EXPECT().TryWithScheduleLock(gomock.Any(), "bbb", gomock.Any()).DoAndReturn(runFn)

	scheds.EXPECT().MarkFiredTx(gomock.Any(), gomock.Any(), data.MarkFiredParams{
		ID: "sched-a", FiredAt: now,
	}).Return(nil, errors.New("connection reset"))

	updated := *healthy
	updated.LastRunAt = &now
	updated.TotalRunCount = 1
	scheds.EXPECT().MarkFiredTx(gomock.Any(), gomock.Any(), data.MarkFiredParams{
		ID: "sched-b", FiredAt: now,
	}).Return(&updated, nil)

	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().InsertPendingTx(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx *sql.Tx, jr *model.JobResult) (*model.JobResult, error) {
			return jr, nil
		},
	)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        runs,
	})

	fired, err := svc.Tick(context.Background(), now)
	assert.Equal(t, 1, fired)
	require.Error(t, err)
	assert.ErrorContains(t, err, "aaa")
}

func TestSchedulerService_TickSkipsUnavailableJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	sj := schedulableJob(now)

	scheds := mocks.NewMockScheduleRepository(ctrl)
	scheds.EXPECT().ChangeMarker(gomock.Any()).Return(now.Add(-time.Hour), nil)
	scheds.EXPECT().ListEnabled(gomock.Any()).Return([]*model.ScheduledJob{sj}, nil)

	def := installedDefinition()
	def.Enabled = false
	defs := mocks.NewMockDefinitionRepository(ctrl)
	defs.EXPECT().GetByTaskName(gomock.Any(), "network.DeviceBackup").Return(def, nil)

	svc := NewSchedulerService(SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        mocks.NewMockRunRepository(ctrl),
	})

	fired, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestPrepareForSave_BackdatesFirstEnabledSave(t *testing.T) {
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

	sj := &model.ScheduledJob{
		Name:        "weekly report",
		TaskName:    "reports.Weekly",
		Interval:    model.IntervalWeekly,
		StartTime:   start,
		Enabled:     true,
		RequestedBy: "alice",
	}
	require.NoError(t, PrepareForSave(sj))
	require.NotNil(t, sj.LastRunAt)
	assert.Equal(t, start.Add(-7*24*time.Hour), *sj.LastRunAt)
}

func TestPrepareForSave_LeavesExistingLastRunAlone(t *testing.T) {
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	existing := start.Add(-time.Hour)

	sj := &model.ScheduledJob{
		Name:        "weekly report",
		TaskName:    "reports.Weekly",
		Interval:    model.IntervalWeekly,
		StartTime:   start,
		Enabled:     true,
		LastRunAt:   &existing,
		RequestedBy: "alice",
	}
	require.NoError(t, PrepareForSave(sj))
	assert.Equal(t, existing, *sj.LastRunAt)
}

func TestPrepareForSave_OneOffNeverBackdates(t *testing.T) {
	sj := &model.ScheduledJob{
		Name:        "one shot",
		TaskName:    "reports.Once",
		Interval:    model.IntervalOnce,
		StartTime:   time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
		Enabled:     true,
		RequestedBy: "alice",
	}
	require.NoError(t, PrepareForSave(sj))
	assert.Nil(t, sj.LastRunAt)
}

func TestPrepareForSave_RejectsInvalid(t *testing.T) {
	err := PrepareForSave(&model.ScheduledJob{Name: "x"})
	assert.Error(t, err)

	assert.Error(t, PrepareForSave(nil))
}
