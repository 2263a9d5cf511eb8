package catalog

import (
	"context"
	"log/slog"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// DefinitionStore is the slice of the definition repository the reconciler
// needs.
type DefinitionStore interface {
	GetByTaskName(ctx context.Context, taskName string) (*model.JobDefinition, error)
	Upsert(ctx context.Context, def *model.JobDefinition) (*model.JobDefinition, error)
	MarkMissingUninstalled(ctx context.Context, presentTaskNames []string) (int64, error)
}

// Reconciler synchronizes the persisted definition registry with the
// in-process catalog: every registered class gets an installed row with
// non-overridden fields refreshed from source metadata, and rows whose class
// disappeared are marked uninstalled (never deleted).
type Reconciler struct {
	catalog *Catalog
	store   DefinitionStore
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(catalog *Catalog, store DefinitionStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{catalog: catalog, store: store, logger: logger}
}

// Report summarizes one reconcile pass.
type Report struct {
	Synced      int
	Uninstalled int64
}

// Reconcile is idempotent: running it twice against an unchanged catalog
// leaves the registry identical.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	var report Report

	for _, reg := range r.catalog.List() {
		if err := r.syncOne(ctx, reg); err != nil {
			return report, err
		}
		report.Synced++
	}

	uninstalled, err := r.store.MarkMissingUninstalled(ctx, r.catalog.TaskNames())
	if err != nil {
		return report, err
	}
	report.Uninstalled = uninstalled

	if r.logger != nil {
		r.logger.InfoContext(ctx, "job catalog reconciled",
			"synced", report.Synced,
			"uninstalled", report.Uninstalled,
		)
	}
	return report, nil
}

// syncOne merges declared metadata into the stored row. The merge happens
// here, not in SQL: ApplyMetadata skips fields the row has overridden, so the
// subsequent upsert writes back the stored value for those fields unchanged.
func (r *Reconciler) syncOne(ctx context.Context, reg Registration) error {
	def, err := r.store.GetByTaskName(ctx, reg.TaskName())
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return err
		}
		def = &model.JobDefinition{
			ModuleName:   reg.ModuleName,
			JobClassName: reg.ClassName,
		}
	}

	def.ApplyMetadata(reg.Meta)
	def.Installed = true

	if _, err := r.store.Upsert(ctx, def); err != nil {
		return err
	}
	return nil
}
