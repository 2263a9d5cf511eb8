package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jobforge/jobforge/internal/data/pgxutil"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// JobHookRepo provides database operations for job hooks.
type JobHookRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobHookRepo creates a JobHookRepo with the given database connection.
func NewJobHookRepo(db *sql.DB) *JobHookRepo {
	return &JobHookRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobHookRepoWithTimeProvider creates a JobHookRepo with a custom
// TimeProvider.
func NewJobHookRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobHookRepo {
	return &JobHookRepo{DB: db, timeProvider: tp}
}

const jobHookColumns = `
  id,
  name,
  enabled,
  content_types,
  job_definition_id,
  type_create,
  type_update,
  type_delete,
  created_at,
  updated_at
`

type jobHookRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Enabled         bool      `db:"enabled"`
	ContentTypes    []string  `db:"content_types"`
	JobDefinitionID string    `db:"job_definition_id"`
	TypeCreate      bool      `db:"type_create"`
	TypeUpdate      bool      `db:"type_update"`
	TypeDelete      bool      `db:"type_delete"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *jobHookRow) toModel() *model.JobHook {
	return &model.JobHook{
		ID:              r.ID,
		Name:            r.Name,
		Enabled:         r.Enabled,
		ContentTypes:    r.ContentTypes,
		JobDefinitionID: r.JobDefinitionID,
		TypeCreate:      r.TypeCreate,
		TypeUpdate:      r.TypeUpdate,
		TypeDelete:      r.TypeDelete,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func rowToJobHook(row pgx.CollectableRow) (*model.JobHook, error) {
	dbRow, err := pgx.RowToStructByName[jobHookRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan job hook row: %w", err)
	}
	return dbRow.toModel(), nil
}

// Create inserts a new hook.
func (r *JobHookRepo) Create(ctx context.Context, hook *model.JobHook) (*model.JobHook, error) {
	if hook == nil {
		return nil, apperrors.Validation("job hook is required")
	}
	if err := hook.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO job_hooks (
			id, name, enabled, content_types, job_definition_id,
			type_create, type_update, type_delete, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + jobHookColumns

	var saved *model.JobHook
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			uuid.NewString(), hook.Name, hook.Enabled, hook.ContentTypes, hook.JobDefinitionID,
			hook.TypeCreate, hook.TypeUpdate, hook.TypeDelete,
			r.timeProvider.Now().UTC(),
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobHook)
		if cerr != nil {
			return cerr
		}
		saved = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return saved, nil
}

// Update persists an edited hook.
func (r *JobHookRepo) Update(ctx context.Context, hook *model.JobHook) (*model.JobHook, error) {
	if hook == nil {
		return nil, apperrors.Validation("job hook is required")
	}
	if err := hook.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE job_hooks SET
			name = $2,
			enabled = $3,
			content_types = $4,
			job_definition_id = $5,
			type_create = $6,
			type_update = $7,
			type_delete = $8,
			updated_at = $9
		WHERE id = $1
		RETURNING ` + jobHookColumns

	var saved *model.JobHook
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			hook.ID, hook.Name, hook.Enabled, hook.ContentTypes, hook.JobDefinitionID,
			hook.TypeCreate, hook.TypeUpdate, hook.TypeDelete,
			r.timeProvider.Now().UTC(),
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobHook)
		if cerr != nil {
			return cerr
		}
		saved = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return saved, nil
}

// Delete removes a hook.
func (r *JobHookRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM job_hooks WHERE id = $1`, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("job hook %s not found", id)
	}
	return nil
}

// GetByID fetches a hook by primary key.
func (r *JobHookRepo) GetByID(ctx context.Context, id string) (*model.JobHook, error) {
	return r.getOne(ctx, `SELECT `+jobHookColumns+` FROM job_hooks WHERE id = $1`, id)
}

// GetByName fetches a hook by its unique name.
func (r *JobHookRepo) GetByName(ctx context.Context, name string) (*model.JobHook, error) {
	return r.getOne(ctx, `SELECT `+jobHookColumns+` FROM job_hooks WHERE name = $1`, name)
}

func (r *JobHookRepo) getOne(ctx context.Context, query string, args ...any) (*model.JobHook, error) {
	var hook *model.JobHook
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobHook)
		if cerr != nil {
			return cerr
		}
		hook = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return hook, nil
}

// List returns all hooks ordered by name.
func (r *JobHookRepo) List(ctx context.Context) ([]*model.JobHook, error) {
	return r.list(ctx, `SELECT `+jobHookColumns+` FROM job_hooks ORDER BY name`)
}

// ListMatching returns enabled hooks claiming the given content type and
// action, ordered by name for deterministic dispatch order.
func (r *JobHookRepo) ListMatching(ctx context.Context, contentType string, action model.ChangeAction) ([]*model.JobHook, error) {
	var actionColumn string
	switch action {
	case model.ActionCreate:
		actionColumn = "type_create"
	case model.ActionUpdate:
		actionColumn = "type_update"
	case model.ActionDelete:
		actionColumn = "type_delete"
	default:
		return nil, apperrors.Validationf("invalid change action: %q", string(action))
	}

	query := `
		SELECT ` + jobHookColumns + `
		FROM job_hooks
		WHERE enabled
		  AND ` + actionColumn + `
		  AND $1 = ANY(content_types)
		ORDER BY name`
	return r.list(ctx, query, contentType)
}

func (r *JobHookRepo) list(ctx context.Context, query string, args ...any) ([]*model.JobHook, error) {
	var out []*model.JobHook
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, rowToJobHook)
		if cerr != nil {
			return cerr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// ListOverlapping returns other hooks bound to the same job whose content
// type sets intersect the given hook's. Callers cross the action flags to
// produce the per-combination conflict list.
func (r *JobHookRepo) ListOverlapping(ctx context.Context, hook *model.JobHook) ([]*model.JobHook, error) {
	if hook == nil {
		return nil, apperrors.Validation("job hook is required")
	}

	query := `
		SELECT ` + jobHookColumns + `
		FROM job_hooks
		WHERE job_definition_id = $1
		  AND ($2::text = '' OR id::text <> $2::text)
		  AND content_types && $3::text[]
		ORDER BY name`
	return r.list(ctx, query, hook.JobDefinitionID, hook.ID, hook.ContentTypes)
}
