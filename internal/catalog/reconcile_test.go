package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// memDefinitionStore is an in-memory DefinitionStore keyed by task name.
type memDefinitionStore struct {
	defs               map[string]*model.JobDefinition
	uninstalledWith    []string
	markMissingCalls   int
	uninstalledReturns int64
}

func newMemDefinitionStore() *memDefinitionStore {
	return &memDefinitionStore{defs: make(map[string]*model.JobDefinition)}
}

func (s *memDefinitionStore) GetByTaskName(ctx context.Context, taskName string) (*model.JobDefinition, error) {
	def, ok := s.defs[taskName]
	if !ok {
		return nil, apperrors.NotFoundf("job definition %s not found", taskName)
	}
	cp := *def
	return &cp, nil
}

func (s *memDefinitionStore) Upsert(ctx context.Context, def *model.JobDefinition) (*model.JobDefinition, error) {
	cp := *def
	if cp.ID == "" {
		cp.ID = "def-" + cp.TaskName()
	}
	s.defs[cp.TaskName()] = &cp
	out := cp
	return &out, nil
}

func (s *memDefinitionStore) MarkMissingUninstalled(ctx context.Context, presentTaskNames []string) (int64, error) {
	s.markMissingCalls++
	s.uninstalledWith = append([]string(nil), presentTaskNames...)

	present := make(map[string]struct{}, len(presentTaskNames))
	for _, n := range presentTaskNames {
		present[n] = struct{}{}
	}
	var flipped int64
	for name, def := range s.defs {
		if _, ok := present[name]; !ok && def.Installed {
			def.Installed = false
			flipped++
		}
	}
	s.uninstalledReturns = flipped
	return flipped, nil
}

func TestReconcile_InstallsNewDefinitions(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Registration{
		ModuleName: "network",
		ClassName:  "DeviceBackup",
		Meta: model.JobMetadata{
			Name:              "Device Backup",
			Grouping:          "Network",
			TimeLimit:         300,
			IsJobHookReceiver: true,
		},
		New: func() Runner { return noopRunner{} },
	}))

	store := newMemDefinitionStore()
	r := NewReconciler(c, store, nil)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.Uninstalled)

	def := store.defs["network.DeviceBackup"]
	require.NotNil(t, def)
	assert.True(t, def.Installed)
	assert.True(t, def.IsJobHookReceiver)
	assert.Equal(t, "Device Backup", def.Name)
	assert.Equal(t, 300, def.TimeLimit)
}

func TestReconcile_Idempotent(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(registration("system", "HealthCheck")))

	store := newMemDefinitionStore()
	r := NewReconciler(c, store, nil)

	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	first := *store.defs["system.HealthCheck"]

	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	second := *store.defs["system.HealthCheck"]

	assert.Equal(t, first, second, "a second pass against an unchanged catalog is a no-op")
}

func TestReconcile_PreservesOverrides(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Registration{
		ModuleName: "network",
		ClassName:  "DeviceBackup",
		Meta:       model.JobMetadata{Name: "Device Backup", Grouping: "Network"},
		New:        func() Runner { return noopRunner{} },
	}))

	store := newMemDefinitionStore()
	store.defs["network.DeviceBackup"] = &model.JobDefinition{
		ID:           "def-1",
		ModuleName:   "network",
		JobClassName: "DeviceBackup",
		Name:         "Operator Name",
		Grouping:     "Stale Grouping",
		Installed:    true,
		Overrides:    model.FieldOverrides{Name: true},
	}

	r := NewReconciler(c, store, nil)
	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	def := store.defs["network.DeviceBackup"]
	assert.Equal(t, "Operator Name", def.Name, "overridden field keeps the stored value")
	assert.Equal(t, "Network", def.Grouping, "non-overridden field resyncs from source")
}

func TestReconcile_MarksMissingUninstalled(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(registration("system", "HealthCheck")))

	store := newMemDefinitionStore()
	store.defs["legacy.RemovedJob"] = &model.JobDefinition{
		ID:           "def-legacy",
		ModuleName:   "legacy",
		JobClassName: "RemovedJob",
		Name:         "Removed Job",
		Installed:    true,
	}

	r := NewReconciler(c, store, nil)
	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Uninstalled)
	assert.Equal(t, []string{"system.HealthCheck"}, store.uninstalledWith)

	legacy := store.defs["legacy.RemovedJob"]
	require.NotNil(t, legacy, "rows are flipped to uninstalled, never deleted")
	assert.False(t, legacy.Installed)
}
