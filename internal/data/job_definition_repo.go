package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jobforge/jobforge/internal/data/pgxutil"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// JobDefinitionRepo provides database operations for the job definition
// registry. Rows are keyed by (module_name, job_class_name) and are never
// deleted; definitions whose source disappears are marked uninstalled.
type JobDefinitionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobDefinitionRepo creates a JobDefinitionRepo with the given database
// connection.
func NewJobDefinitionRepo(db *sql.DB) *JobDefinitionRepo {
	return &JobDefinitionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobDefinitionRepoWithTimeProvider creates a JobDefinitionRepo with a
// custom TimeProvider.
func NewJobDefinitionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobDefinitionRepo {
	return &JobDefinitionRepo{DB: db, timeProvider: tp}
}

const jobDefinitionColumns = `
  id,
  module_name,
  job_class_name,
  name,
  grouping,
  description,
  installed,
  enabled,
  is_job_hook_receiver,
  is_job_button_receiver,
  has_sensitive_variables,
  approval_required,
  hidden,
  dryrun_default,
  read_only,
  supports_dryrun,
  soft_time_limit,
  time_limit,
  task_queues,
  overrides
`

type jobDefinitionRow struct {
	ID                    string   `db:"id"`
	ModuleName            string   `db:"module_name"`
	JobClassName          string   `db:"job_class_name"`
	Name                  string   `db:"name"`
	Grouping              string   `db:"grouping"`
	Description           string   `db:"description"`
	Installed             bool     `db:"installed"`
	Enabled               bool     `db:"enabled"`
	IsJobHookReceiver     bool     `db:"is_job_hook_receiver"`
	IsJobButtonReceiver   bool     `db:"is_job_button_receiver"`
	HasSensitiveVariables bool     `db:"has_sensitive_variables"`
	ApprovalRequired      bool     `db:"approval_required"`
	Hidden                bool     `db:"hidden"`
	DryRunDefault         bool     `db:"dryrun_default"`
	ReadOnly              bool     `db:"read_only"`
	SupportsDryRun        bool     `db:"supports_dryrun"`
	SoftTimeLimit         int      `db:"soft_time_limit"`
	TimeLimit             int      `db:"time_limit"`
	TaskQueues            []string `db:"task_queues"`
	Overrides             []byte   `db:"overrides"`
}

func (r *jobDefinitionRow) toModel() (*model.JobDefinition, error) {
	def := &model.JobDefinition{
		ID:                    r.ID,
		ModuleName:            r.ModuleName,
		JobClassName:          r.JobClassName,
		Name:                  r.Name,
		Grouping:              r.Grouping,
		Description:           r.Description,
		Installed:             r.Installed,
		Enabled:               r.Enabled,
		IsJobHookReceiver:     r.IsJobHookReceiver,
		IsJobButtonReceiver:   r.IsJobButtonReceiver,
		HasSensitiveVariables: r.HasSensitiveVariables,
		ApprovalRequired:      r.ApprovalRequired,
		Hidden:                r.Hidden,
		DryRunDefault:         r.DryRunDefault,
		ReadOnly:              r.ReadOnly,
		SupportsDryRun:        r.SupportsDryRun,
		SoftTimeLimit:         r.SoftTimeLimit,
		TimeLimit:             r.TimeLimit,
		TaskQueues:            r.TaskQueues,
	}
	if len(r.Overrides) > 0 {
		if err := json.Unmarshal(r.Overrides, &def.Overrides); err != nil {
			return nil, apperrors.Deserialization("decode definition overrides", err)
		}
	}
	return def, nil
}

func rowToJobDefinition(row pgx.CollectableRow) (*model.JobDefinition, error) {
	dbRow, err := pgx.RowToStructByName[jobDefinitionRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan job definition row: %w", err)
	}
	return dbRow.toModel()
}

// Upsert inserts or updates a definition row by its (module, class) identity,
// marking it installed. The stored ID is preserved across upserts so
// schedules and results keep their references.
func (r *JobDefinitionRepo) Upsert(ctx context.Context, def *model.JobDefinition) (*model.JobDefinition, error) {
	if def == nil {
		return nil, apperrors.Validation("job definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	overrides, err := json.Marshal(def.Overrides)
	if err != nil {
		return nil, fmt.Errorf("marshal overrides: %w", err)
	}

	query := `
		INSERT INTO job_definitions (
			id, module_name, job_class_name, name, grouping, description,
			installed, enabled, is_job_hook_receiver, is_job_button_receiver,
			has_sensitive_variables, approval_required, hidden, dryrun_default,
			read_only, supports_dryrun, soft_time_limit, time_limit,
			task_queues, overrides, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			TRUE, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $20
		)
		ON CONFLICT (module_name, job_class_name) DO UPDATE SET
			name = EXCLUDED.name,
			grouping = EXCLUDED.grouping,
			description = EXCLUDED.description,
			installed = TRUE,
			is_job_hook_receiver = EXCLUDED.is_job_hook_receiver,
			is_job_button_receiver = EXCLUDED.is_job_button_receiver,
			has_sensitive_variables = EXCLUDED.has_sensitive_variables,
			approval_required = EXCLUDED.approval_required,
			hidden = EXCLUDED.hidden,
			dryrun_default = EXCLUDED.dryrun_default,
			read_only = EXCLUDED.read_only,
			supports_dryrun = EXCLUDED.supports_dryrun,
			soft_time_limit = EXCLUDED.soft_time_limit,
			time_limit = EXCLUDED.time_limit,
			task_queues = EXCLUDED.task_queues,
			overrides = EXCLUDED.overrides,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + jobDefinitionColumns

	now := r.timeProvider.Now().UTC()
	taskQueues := def.TaskQueues
	if taskQueues == nil {
		taskQueues = []string{}
	}

	var saved *model.JobDefinition
	txErr := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			uuid.NewString(), def.ModuleName, def.JobClassName, def.Name, def.Grouping, def.Description,
			def.Enabled, def.IsJobHookReceiver, def.IsJobButtonReceiver,
			def.HasSensitiveVariables, def.ApprovalRequired, def.Hidden, def.DryRunDefault,
			def.ReadOnly, def.SupportsDryRun, def.SoftTimeLimit, def.TimeLimit,
			taskQueues, overrides, now,
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobDefinition)
		if cerr != nil {
			return cerr
		}
		saved = collected
		return nil
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}
	return saved, nil
}

// GetByID fetches a definition by primary key.
func (r *JobDefinitionRepo) GetByID(ctx context.Context, id string) (*model.JobDefinition, error) {
	return r.getOne(ctx, `SELECT `+jobDefinitionColumns+` FROM job_definitions WHERE id = $1`, id)
}

// GetByName fetches a definition by its unique human name.
func (r *JobDefinitionRepo) GetByName(ctx context.Context, name string) (*model.JobDefinition, error) {
	return r.getOne(ctx, `SELECT `+jobDefinitionColumns+` FROM job_definitions WHERE name = $1`, name)
}

// GetByTaskName fetches a definition by its "module.ClassName" identity.
func (r *JobDefinitionRepo) GetByTaskName(ctx context.Context, taskName string) (*model.JobDefinition, error) {
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		WHERE module_name || '.' || job_class_name = $1`
	return r.getOne(ctx, query, taskName)
}

func (r *JobDefinitionRepo) getOne(ctx context.Context, query string, args ...any) (*model.JobDefinition, error) {
	var def *model.JobDefinition
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobDefinition)
		if cerr != nil {
			return cerr
		}
		def = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return def, nil
}

// ListParams filters List results.
type ListParams struct {
	InstalledOnly bool
	IncludeHidden bool
}

// List returns definitions ordered by grouping then name.
func (r *JobDefinitionRepo) List(ctx context.Context, p ListParams) ([]*model.JobDefinition, error) {
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		WHERE ($1::boolean IS FALSE OR installed)
		  AND ($2::boolean IS TRUE OR NOT hidden)
		ORDER BY grouping, name`

	var defs []*model.JobDefinition
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, p.InstalledOnly, p.IncludeHidden)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, rowToJobDefinition)
		if cerr != nil {
			return cerr
		}
		defs = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return defs, nil
}

// SetEnabled toggles whether new runs of this definition may be enqueued.
func (r *JobDefinitionRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_definitions
		SET enabled = $2, updated_at = $3
		WHERE id = $1
	`, id, enabled, r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("job definition %s not found", id)
	}
	return nil
}

// UpdateOverrides persists edited field values together with the override
// flags recording which fields are now authoritative in storage.
func (r *JobDefinitionRepo) UpdateOverrides(ctx context.Context, def *model.JobDefinition) (*model.JobDefinition, error) {
	if def == nil {
		return nil, apperrors.Validation("job definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	overrides, err := json.Marshal(def.Overrides)
	if err != nil {
		return nil, fmt.Errorf("marshal overrides: %w", err)
	}
	taskQueues := def.TaskQueues
	if taskQueues == nil {
		taskQueues = []string{}
	}

	query := `
		UPDATE job_definitions SET
			name = $2,
			grouping = $3,
			description = $4,
			approval_required = $5,
			has_sensitive_variables = $6,
			hidden = $7,
			dryrun_default = $8,
			soft_time_limit = $9,
			time_limit = $10,
			task_queues = $11,
			overrides = $12,
			updated_at = $13
		WHERE id = $1
		RETURNING ` + jobDefinitionColumns

	var saved *model.JobDefinition
	txErr := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			def.ID, def.Name, def.Grouping, def.Description,
			def.ApprovalRequired, def.HasSensitiveVariables, def.Hidden, def.DryRunDefault,
			def.SoftTimeLimit, def.TimeLimit, taskQueues, overrides,
			r.timeProvider.Now().UTC(),
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobDefinition)
		if cerr != nil {
			return cerr
		}
		saved = collected
		return nil
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}
	return saved, nil
}

// MarkMissingUninstalled flips installed to false for every definition whose
// task name is not in the given set. Returns the number of rows changed.
func (r *JobDefinitionRepo) MarkMissingUninstalled(ctx context.Context, presentTaskNames []string) (int64, error) {
	if presentTaskNames == nil {
		presentTaskNames = []string{}
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_definitions
		SET installed = FALSE, enabled = FALSE, updated_at = $2
		WHERE installed
		  AND NOT (module_name || '.' || job_class_name = ANY($1))
	`, presentTaskNames, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
