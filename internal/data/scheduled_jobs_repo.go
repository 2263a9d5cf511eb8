package data

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jobforge/jobforge/internal/data/pgxutil"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// ScheduledJobsRepo provides database operations for schedule management.
// Every mutation touches the schedule change marker in the same transaction
// so polling schedulers can detect staleness with a single-row read.
type ScheduledJobsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduledJobsRepo creates a ScheduledJobsRepo with the given database
// connection.
func NewScheduledJobsRepo(db *sql.DB) *ScheduledJobsRepo {
	return &ScheduledJobsRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewScheduledJobsRepoWithTimeProvider creates a ScheduledJobsRepo with a
// custom TimeProvider (useful for testing).
func NewScheduledJobsRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ScheduledJobsRepo {
	return &ScheduledJobsRepo{DB: db, timeProvider: tp}
}

// fnvHash computes an FNV-1a 64-bit hash of the given string for use as an
// advisory lock key. Advisory locks accept BIGINT; the unsigned hash is
// constrained into int64 range before casting.
func fnvHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	u := h.Sum64()
	if u > uint64(math.MaxInt64) {
		u %= uint64(math.MaxInt64)
	}
	return int64(u) // #nosec G115 -- bounded to <= MaxInt64 above
}

const scheduledJobColumns = `
  id,
  name,
  task_name,
  job_definition_id,
  interval,
  crontab,
  args,
  kwargs,
  queue,
  enabled,
  start_time,
  last_run_at,
  total_run_count,
  approval_required,
  requested_by,
  approved_by,
  approved_at,
  created_at,
  updated_at
`

type scheduledJobRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	TaskName         string         `db:"task_name"`
	JobDefinitionID  sql.NullString `db:"job_definition_id"`
	Interval         string         `db:"interval"`
	Crontab          string         `db:"crontab"`
	Args             []byte         `db:"args"`
	Kwargs           []byte         `db:"kwargs"`
	Queue            sql.NullString `db:"queue"`
	Enabled          bool           `db:"enabled"`
	StartTime        time.Time      `db:"start_time"`
	LastRunAt        sql.NullTime   `db:"last_run_at"`
	TotalRunCount    int64          `db:"total_run_count"`
	ApprovalRequired bool           `db:"approval_required"`
	RequestedBy      string         `db:"requested_by"`
	ApprovedBy       sql.NullString `db:"approved_by"`
	ApprovedAt       sql.NullTime   `db:"approved_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *scheduledJobRow) toModel() *model.ScheduledJob {
	return &model.ScheduledJob{
		ID:               r.ID,
		Name:             r.Name,
		TaskName:         r.TaskName,
		JobDefinitionID:  cloneNullableString(r.JobDefinitionID),
		Interval:         model.IntervalKind(r.Interval),
		Crontab:          r.Crontab,
		Args:             cloneJSON(r.Args, `[]`),
		Kwargs:           cloneJSON(r.Kwargs, `{}`),
		Queue:            cloneNullableString(r.Queue),
		Enabled:          r.Enabled,
		StartTime:        r.StartTime.UTC(),
		LastRunAt:        cloneNullableTime(r.LastRunAt),
		TotalRunCount:    r.TotalRunCount,
		ApprovalRequired: r.ApprovalRequired,
		RequestedBy:      r.RequestedBy,
		ApprovedBy:       cloneNullableString(r.ApprovedBy),
		ApprovedAt:       cloneNullableTime(r.ApprovedAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func rowToScheduledJob(row pgx.CollectableRow) (*model.ScheduledJob, error) {
	dbRow, err := pgx.RowToStructByName[scheduledJobRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan scheduled job row: %w", err)
	}
	return dbRow.toModel(), nil
}

// Create inserts a new schedule and touches the change marker.
func (r *ScheduledJobsRepo) Create(ctx context.Context, sj *model.ScheduledJob) (*model.ScheduledJob, error) {
	if sj == nil {
		return nil, apperrors.Validation("scheduled job is required")
	}
	if err := sj.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO scheduled_jobs (
			id, name, task_name, job_definition_id, interval, crontab,
			args, kwargs, queue, enabled, start_time, last_run_at,
			total_run_count, approval_required, requested_by, approved_by,
			approved_at, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $18
		)
		RETURNING ` + scheduledJobColumns

	now := r.timeProvider.Now().UTC()

	var saved *model.ScheduledJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, query,
				uuid.NewString(), sj.Name, sj.TaskName, sj.JobDefinitionID, string(sj.Interval), sj.Crontab,
				jsonOrDefault(sj.Args, `[]`), jsonOrDefault(sj.Kwargs, `{}`), sj.Queue,
				sj.Enabled, sj.StartTime.UTC(), utcOrNil(sj.LastRunAt),
				sj.TotalRunCount, sj.ApprovalRequired, sj.RequestedBy, sj.ApprovedBy,
				utcOrNil(sj.ApprovedAt), now,
			)
			if qerr != nil {
				return qerr
			}
			collected, cerr := pgx.CollectExactlyOneRow(rows, rowToScheduledJob)
			if cerr != nil {
				return cerr
			}
			saved = collected
			return touchChangeMarkerPgx(ctx, tx, now)
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return saved, nil
}

// Update persists an edited schedule and touches the change marker.
func (r *ScheduledJobsRepo) Update(ctx context.Context, sj *model.ScheduledJob) (*model.ScheduledJob, error) {
	if sj == nil {
		return nil, apperrors.Validation("scheduled job is required")
	}
	if err := sj.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE scheduled_jobs SET
			name = $2,
			task_name = $3,
			job_definition_id = $4,
			interval = $5,
			crontab = $6,
			args = $7,
			kwargs = $8,
			queue = $9,
			enabled = $10,
			start_time = $11,
			last_run_at = $12,
			approval_required = $13,
			requested_by = $14,
			approved_by = $15,
			approved_at = $16,
			updated_at = $17
		WHERE id = $1
		RETURNING ` + scheduledJobColumns

	now := r.timeProvider.Now().UTC()

	var saved *model.ScheduledJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, query,
				sj.ID, sj.Name, sj.TaskName, sj.JobDefinitionID, string(sj.Interval), sj.Crontab,
				jsonOrDefault(sj.Args, `[]`), jsonOrDefault(sj.Kwargs, `{}`), sj.Queue,
				sj.Enabled, sj.StartTime.UTC(), utcOrNil(sj.LastRunAt),
				sj.ApprovalRequired, sj.RequestedBy, sj.ApprovedBy, utcOrNil(sj.ApprovedAt),
				now,
			)
			if qerr != nil {
				return qerr
			}
			collected, cerr := pgx.CollectExactlyOneRow(rows, rowToScheduledJob)
			if cerr != nil {
				return cerr
			}
			saved = collected
			return touchChangeMarkerPgx(ctx, tx, now)
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return saved, nil
}

// Delete removes a schedule and touches the change marker.
func (r *ScheduledJobsRepo) Delete(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, execErr := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id)
			if execErr != nil {
				return execErr
			}
			affected, raErr := res.RowsAffected()
			if raErr != nil {
				return fmt.Errorf("rows affected: %w", raErr)
			}
			if affected == 0 {
				return apperrors.NotFoundf("scheduled job %s not found", id)
			}
			return touchChangeMarkerSQL(ctx, tx, now)
		},
	})
	return apperrors.MapDBError(err)
}

// GetByID fetches a schedule by primary key.
func (r *ScheduledJobsRepo) GetByID(ctx context.Context, id string) (*model.ScheduledJob, error) {
	return r.getOne(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id = $1`, id)
}

// GetByName fetches a schedule by its unique name.
func (r *ScheduledJobsRepo) GetByName(ctx context.Context, name string) (*model.ScheduledJob, error) {
	return r.getOne(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE name = $1`, name)
}

func (r *ScheduledJobsRepo) getOne(ctx context.Context, query string, args ...any) (*model.ScheduledJob, error) {
	var sj *model.ScheduledJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToScheduledJob)
		if cerr != nil {
			return cerr
		}
		sj = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return sj, nil
}

// ListEnabled returns every enabled schedule ordered by name. The scheduler
// loads the full set on startup and whenever the change marker moves.
func (r *ScheduledJobsRepo) ListEnabled(ctx context.Context) ([]*model.ScheduledJob, error) {
	return r.list(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE enabled ORDER BY name`)
}

// List returns all schedules ordered by name.
func (r *ScheduledJobsRepo) List(ctx context.Context) ([]*model.ScheduledJob, error) {
	return r.list(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs ORDER BY name`)
}

func (r *ScheduledJobsRepo) list(ctx context.Context, query string, args ...any) ([]*model.ScheduledJob, error) {
	var out []*model.ScheduledJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, rowToScheduledJob)
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

// MarkFiredParams carries the post-dispatch bookkeeping update for one fire.
type MarkFiredParams struct {
	ID      string
	FiredAt time.Time
	// KnownRunCount is the scheduler's in-memory counter. The stored counter
	// advances to GREATEST(stored, known) + 1 so concurrent schedulers never
	// move it backwards.
	KnownRunCount int64
	// DisableAfter turns the schedule off after this fire (one-off schedules).
	DisableAfter bool
}

// MarkFiredTx records a fire within the scheduler's transaction and returns
// the updated schedule row.
func (r *ScheduledJobsRepo) MarkFiredTx(ctx context.Context, tx *sql.Tx, p MarkFiredParams) (*model.ScheduledJob, error) {
	query := `
		UPDATE scheduled_jobs
		SET last_run_at = $2,
		    total_run_count = GREATEST(total_run_count, $3) + 1,
		    enabled = CASE WHEN $4 THEN FALSE ELSE enabled END,
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + scheduledJobColumns

	now := r.timeProvider.Now().UTC()
	rows, err := tx.QueryContext(ctx, query, p.ID, p.FiredAt.UTC(), p.KnownRunCount, p.DisableAfter, now)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if rerr := rows.Err(); rerr != nil {
			return nil, apperrors.MapDBError(rerr)
		}
		return nil, apperrors.NotFoundf("scheduled job %s not found", p.ID)
	}

	var dbRow scheduledJobRow
	if scanErr := rows.Scan(
		&dbRow.ID, &dbRow.Name, &dbRow.TaskName, &dbRow.JobDefinitionID,
		&dbRow.Interval, &dbRow.Crontab, &dbRow.Args, &dbRow.Kwargs, &dbRow.Queue,
		&dbRow.Enabled, &dbRow.StartTime, &dbRow.LastRunAt, &dbRow.TotalRunCount,
		&dbRow.ApprovalRequired, &dbRow.RequestedBy, &dbRow.ApprovedBy, &dbRow.ApprovedAt,
		&dbRow.CreatedAt, &dbRow.UpdatedAt,
	); scanErr != nil {
		return nil, fmt.Errorf("scan scheduled job row: %w", scanErr)
	}

	if p.DisableAfter {
		if markErr := touchChangeMarkerSQL(ctx, tx, now); markErr != nil {
			return nil, markErr
		}
	}
	return dbRow.toModel(), nil
}

// SetEnabled toggles a schedule. Disabling clears last_run_at so a later
// re-enable is treated as a fresh save and gets back-dated again.
func (r *ScheduledJobsRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, execErr := tx.ExecContext(ctx, `
				UPDATE scheduled_jobs
				SET enabled = $2,
				    last_run_at = CASE WHEN $2 THEN last_run_at ELSE NULL END,
				    updated_at = $3
				WHERE id = $1
			`, id, enabled, now)
			if execErr != nil {
				return execErr
			}
			affected, raErr := res.RowsAffected()
			if raErr != nil {
				return fmt.Errorf("rows affected: %w", raErr)
			}
			if affected == 0 {
				return apperrors.NotFoundf("scheduled job %s not found", id)
			}
			return touchChangeMarkerSQL(ctx, tx, now)
		},
	})
	return apperrors.MapDBError(err)
}

// ChangeMarker returns the timestamp of the most recent schedule mutation.
func (r *ScheduledJobsRepo) ChangeMarker(ctx context.Context) (time.Time, error) {
	var lastChanged time.Time
	err := r.DB.QueryRowContext(ctx, `
		SELECT last_changed FROM schedule_change_marker WHERE id = $1
	`, model.ChangeMarkerID).Scan(&lastChanged)
	if err != nil {
		return time.Time{}, apperrors.MapDBError(err)
	}
	return lastChanged.UTC(), nil
}

func touchChangeMarkerSQL(ctx context.Context, tx *sql.Tx, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_change_marker (id, last_changed)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_changed = EXCLUDED.last_changed
	`, model.ChangeMarkerID, now); err != nil {
		return fmt.Errorf("touch change marker: %w", err)
	}
	return nil
}

func touchChangeMarkerPgx(ctx context.Context, tx pgx.Tx, now time.Time) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO schedule_change_marker (id, last_changed)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_changed = EXCLUDED.last_changed
	`, model.ChangeMarkerID, now); err != nil {
		return fmt.Errorf("touch change marker: %w", err)
	}
	return nil
}

// TryWithScheduleLock attempts to acquire a transaction-scoped advisory lock
// keyed by the schedule name. If acquired, fn runs within that transaction;
// a second scheduler contending on the same schedule skips it this tick.
// Return semantics:
//   - (false, nil): lock not acquired; fn was not executed
//   - (true, nil): lock acquired; fn executed and succeeded
//   - (true, err): lock acquired; fn executed and failed with err
func (r *ScheduledJobsRepo) TryWithScheduleLock(
	ctx context.Context,
	scheduleName string,
	fn func(context.Context, *sql.Tx) error,
) (bool, error) {
	lockKey := fnvHash(scheduleName)

	var locked bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1)", lockKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock for schedule %s: %w", scheduleName, err)
			}
			if !locked {
				return nil
			}
			// A failing fn rolls the whole transaction back so the enqueue and
			// the schedule bookkeeping stay atomic.
			return fn(ctx, tx)
		},
	})
	if err != nil {
		return locked, err
	}
	return locked, nil
}
