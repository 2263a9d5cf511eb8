package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	"github.com/jobforge/jobforge/internal/mocks"
)

type runFunc func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error)

func (f runFunc) Run(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
	return f(ctx, rc)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()

	register := func(class string, fn runFunc) {
		require.NoError(t, c.Register(catalog.Registration{
			ModuleName: "test",
			ClassName:  class,
			Meta:       model.JobMetadata{Name: class},
			New:        func() catalog.Runner { return fn },
		}))
	}

	register("Succeeds", func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	register("Fails", func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
		return nil, catalog.Fail("bad input: %s", "missing device")
	})
	register("Panics", func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
		panic("boom")
	})
	register("Sleepy", func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return c
}

// newTestExecutor wires an Executor whose SetStatus writes are captured into
// the returned pointer.
func newTestExecutor(t *testing.T, ctrl *gomock.Controller) (*Executor, *data.SetStatusParams) {
	t.Helper()

	captured := &data.SetStatusParams{}
	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().SetStatus(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, p data.SetStatusParams) (*model.JobResult, error) {
			*captured = p
			return &model.JobResult{
				ID:        p.ID,
				Status:    p.Status,
				Result:    p.Result,
				Traceback: p.Traceback,
				WorkerID:  p.WorkerID,
			}, nil
		},
	)

	exec := NewExecutor(ExecutorOptions{
		Catalog:  testCatalog(t),
		Runs:     runs,
		Logs:     mocks.NewMockLogStore(ctrl),
		WorkerID: "worker-1",
	})
	return exec, captured
}

func TestExecutor_Completed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	exec, captured := newTestExecutor(t, ctrl)

	jr, err := exec.Execute(context.Background(), &model.JobResult{ID: "r1", TaskName: "test.Succeeds"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, jr.Status)
	assert.JSONEq(t, `{"ok":true}`, string(captured.Result))
	assert.Nil(t, captured.Traceback)
	require.NotNil(t, captured.WorkerID)
	assert.Equal(t, "worker-1", *captured.WorkerID)
}

func TestExecutor_FailErrorMarksFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	exec, captured := newTestExecutor(t, ctrl)

	jr, err := exec.Execute(context.Background(), &model.JobResult{ID: "r2", TaskName: "test.Fails"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, jr.Status)
	require.NotNil(t, captured.Traceback)
	assert.Equal(t, "bad input: missing device", *captured.Traceback)
}

func TestExecutor_PanicMarksErroredWithTraceback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	exec, captured := newTestExecutor(t, ctrl)

	jr, err := exec.Execute(context.Background(), &model.JobResult{ID: "r3", TaskName: "test.Panics"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusErrored, jr.Status)
	require.NotNil(t, captured.Traceback)
	assert.Contains(t, *captured.Traceback, "panic: boom")
	assert.Contains(t, *captured.Traceback, "goroutine", "the stack trace is captured")
}

func TestExecutor_UnregisteredClassErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	exec, captured := newTestExecutor(t, ctrl)

	jr, err := exec.Execute(context.Background(), &model.JobResult{ID: "r4", TaskName: "test.Vanished"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusErrored, jr.Status)
	require.NotNil(t, captured.Traceback)
	assert.Contains(t, *captured.Traceback, "not registered")
}

func TestExecutor_HardTimeLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	exec, captured := newTestExecutor(t, ctrl)

	jr, err := exec.Execute(context.Background(), &model.JobResult{
		ID:             "r5",
		TaskName:       "test.Sleepy",
		DispatchKwargs: json.RawMessage(`{"time_limit":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusErrored, jr.Status)
	require.NotNil(t, captured.Traceback)
	assert.Equal(t, "hard time limit of 1s exceeded", *captured.Traceback)
}

func TestExecutor_DryRunFlagReachesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var sawDryRun bool
	c := catalog.New()
	require.NoError(t, c.Register(catalog.Registration{
		ModuleName: "test",
		ClassName:  "Observer",
		Meta:       model.JobMetadata{Name: "Observer"},
		New: func() catalog.Runner {
			return runFunc(func(ctx context.Context, rc *catalog.RunContext) (json.RawMessage, error) {
				sawDryRun = rc.DryRun
				return nil, nil
			})
		},
	}))

	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().SetStatus(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, p data.SetStatusParams) (*model.JobResult, error) {
			return &model.JobResult{ID: p.ID, Status: p.Status}, nil
		},
	)

	exec := NewExecutor(ExecutorOptions{
		Catalog: c,
		Runs:    runs,
		Logs:    mocks.NewMockLogStore(ctrl),
	})

	_, err := exec.Execute(context.Background(), &model.JobResult{
		ID:       "r6",
		TaskName: "test.Observer",
		Meta:     json.RawMessage(`{"dryrun":true}`),
	})
	require.NoError(t, err)
	assert.True(t, sawDryRun)
}

func TestExecutor_NilRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exec := NewExecutor(ExecutorOptions{
		Catalog: testCatalog(t),
		Runs:    mocks.NewMockRunRepository(ctrl),
		Logs:    mocks.NewMockLogStore(ctrl),
	})

	_, err := exec.Execute(context.Background(), nil)
	assert.Error(t, err)
}
