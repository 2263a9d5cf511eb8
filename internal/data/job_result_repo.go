package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/jobforge/jobforge/internal/data/pgxutil"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// Advisory lock namespace for requeueExpired so reapers on different queues
// never contend.
const advisoryLockRequeueMajor int64 = 2001

// JobResultRepo provides database operations for job run records. A pending
// row is simultaneously the execution record and the dispatch queue entry:
// workers reserve pending rows per queue with SKIP LOCKED and hold a lease
// while running.
type JobResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// JobResultRepoConfig holds optional collaborators for JobResultRepo.
type JobResultRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewJobResultRepo creates a JobResultRepo with the given database connection
// and configuration.
func NewJobResultRepo(db *sql.DB, cfg JobResultRepoConfig) *JobResultRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobResultRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const jobResultColumns = `
  id,
  job_definition_id,
  scheduled_job_id,
  name,
  task_name,
  queue,
  status,
  run_user,
  worker_id,
  result,
  args,
  kwargs,
  dispatch_kwargs,
  traceback,
  meta,
  date_created,
  date_done,
  lease_expires_at
`

type jobResultRow struct {
	ID              string         `db:"id"`
	JobDefinitionID sql.NullString `db:"job_definition_id"`
	ScheduledJobID  sql.NullString `db:"scheduled_job_id"`
	Name            string         `db:"name"`
	TaskName        string         `db:"task_name"`
	Queue           string         `db:"queue"`
	Status          string         `db:"status"`
	RunUser         sql.NullString `db:"run_user"`
	WorkerID        sql.NullString `db:"worker_id"`
	Result          []byte         `db:"result"`
	Args            []byte         `db:"args"`
	Kwargs          []byte         `db:"kwargs"`
	DispatchKwargs  []byte         `db:"dispatch_kwargs"`
	Traceback       sql.NullString `db:"traceback"`
	Meta            []byte         `db:"meta"`
	DateCreated     time.Time      `db:"date_created"`
	DateDone        sql.NullTime   `db:"date_done"`
	LeaseExpiresAt  sql.NullTime   `db:"lease_expires_at"`
}

func (r *jobResultRow) toModel() *model.JobResult {
	jr := &model.JobResult{
		ID:              r.ID,
		JobDefinitionID: cloneNullableString(r.JobDefinitionID),
		ScheduledJobID:  cloneNullableString(r.ScheduledJobID),
		Name:            r.Name,
		TaskName:        r.TaskName,
		Queue:           r.Queue,
		Status:          model.RunStatus(r.Status),
		User:            cloneNullableString(r.RunUser),
		WorkerID:        cloneNullableString(r.WorkerID),
		Args:            cloneJSON(r.Args, `[]`),
		Kwargs:          cloneJSON(r.Kwargs, `{}`),
		DispatchKwargs:  cloneJSON(r.DispatchKwargs, `{}`),
		Traceback:       cloneNullableString(r.Traceback),
		DateCreated:     r.DateCreated.UTC(),
		DateDone:        cloneNullableTime(r.DateDone),
		LeaseExpiresAt:  cloneNullableTime(r.LeaseExpiresAt),
	}
	if len(r.Result) > 0 {
		jr.Result = cloneJSON(r.Result, `null`)
	}
	if len(r.Meta) > 0 {
		jr.Meta = cloneJSON(r.Meta, `null`)
	}
	return jr
}

func rowToJobResult(row pgx.CollectableRow) (*model.JobResult, error) {
	dbRow, err := pgx.RowToStructByName[jobResultRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan job result row: %w", err)
	}
	return dbRow.toModel(), nil
}

func scanJobResultSQL(rows *sql.Rows) (*model.JobResult, error) {
	var dbRow jobResultRow
	if err := rows.Scan(
		&dbRow.ID, &dbRow.JobDefinitionID, &dbRow.ScheduledJobID,
		&dbRow.Name, &dbRow.TaskName, &dbRow.Queue, &dbRow.Status,
		&dbRow.RunUser, &dbRow.WorkerID, &dbRow.Result,
		&dbRow.Args, &dbRow.Kwargs, &dbRow.DispatchKwargs,
		&dbRow.Traceback, &dbRow.Meta,
		&dbRow.DateCreated, &dbRow.DateDone, &dbRow.LeaseExpiresAt,
	); err != nil {
		return nil, fmt.Errorf("scan job result row: %w", err)
	}
	return dbRow.toModel(), nil
}

// queueChannel names the pg_notify channel workers listen on for a queue.
func queueChannel(queue string) string {
	return "job_queued_" + queue
}

// InsertPending inserts a pending run record in its own transaction and
// notifies workers listening on the queue channel.
func (r *JobResultRepo) InsertPending(ctx context.Context, jr *model.JobResult) (*model.JobResult, error) {
	var saved *model.JobResult
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var insertErr error
			saved, insertErr = r.InsertPendingTx(ctx, tx, jr)
			return insertErr
		},
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// InsertPendingTx inserts a pending run record within an existing transaction
// so the row only becomes visible, and the queue notification only fires, if
// the caller commits.
func (r *JobResultRepo) InsertPendingTx(ctx context.Context, tx *sql.Tx, jr *model.JobResult) (*model.JobResult, error) {
	if jr == nil {
		return nil, apperrors.Validation("job result is required")
	}
	if jr.TaskName == "" {
		return nil, apperrors.ValidationField("task_name", "task name is required")
	}
	if jr.Queue == "" {
		return nil, apperrors.ValidationField("queue", "queue is required")
	}

	query := `
		INSERT INTO job_results (
			id, job_definition_id, scheduled_job_id, name, task_name, queue,
			status, run_user, args, kwargs, dispatch_kwargs, meta, date_created
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, $10, $11, $12)
		RETURNING ` + jobResultColumns

	now := r.timeProvider.Now().UTC()
	rows, err := tx.QueryContext(ctx, query,
		uuid.NewString(), jr.JobDefinitionID, jr.ScheduledJobID, jr.Name, jr.TaskName, jr.Queue,
		jr.User, jsonOrDefault(jr.Args, `[]`), jsonOrDefault(jr.Kwargs, `{}`),
		jsonOrDefault(jr.DispatchKwargs, `{}`), []byte(jsonOrDefault(jr.Meta, `null`)), now,
	)
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
		return nil, apperrors.Internal("insert job result returned no row")
	}
	saved, scanErr := scanJobResultSQL(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	channel := queueChannel(jr.Queue)
	if _, notifyErr := tx.ExecContext(ctx,
		`SELECT pg_notify($1::text, $2::text)`, channel, saved.ID); notifyErr != nil {
		return nil, fmt.Errorf("send queue notification: %w", notifyErr)
	}
	return saved, nil
}

// SQL used by ReserveNext to atomically claim the oldest pending run.
const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM job_results
    WHERE queue = $1 AND status = 'pending'
    ORDER BY date_created ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE job_results jr
  SET status = 'running',
      worker_id = $2,
      lease_expires_at = $3
  FROM cte
  WHERE jr.id = cte.id
  RETURNING jr.id, jr.job_definition_id, jr.scheduled_job_id, jr.name, jr.task_name, jr.queue,
            jr.status, jr.run_user, jr.worker_id, jr.result, jr.args, jr.kwargs,
            jr.dispatch_kwargs, jr.traceback, jr.meta, jr.date_created, jr.date_done,
            jr.lease_expires_at`

// ReserveNext reserves the oldest pending run on the given queue. Returns
// model.ErrNoRunsAvailable when the queue is empty.
func (r *JobResultRepo) ReserveNext(ctx context.Context, queue, workerID string, leaseSeconds int) (*model.JobResult, error) {
	if leaseSeconds <= 0 {
		return nil, apperrors.Validation("leaseSeconds must be positive")
	}

	var jr *model.JobResult
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			leaseExpiresAt := r.timeProvider.Now().Add(time.Duration(leaseSeconds) * time.Second)
			rows, qerr := tx.Query(ctx, reserveNextSQL, queue, workerID, leaseExpiresAt.UTC())
			if qerr != nil {
				return fmt.Errorf("reserve run: %w", qerr)
			}
			collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobResult)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoRunsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve run: %w", cerr)
			}
			jr = collected
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoRunsAvailable) {
			return nil, model.ErrNoRunsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return jr, nil
}

// Heartbeat refreshes the lease on a running job. Returns false when the run
// is no longer running (requeued by the reaper or finished elsewhere).
func (r *JobResultRepo) Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, apperrors.Validation("leaseSeconds must be positive")
	}

	leaseExpiresAt := r.timeProvider.Now().Add(time.Duration(leaseSeconds) * time.Second).UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_results
		SET lease_expires_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, leaseExpiresAt)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetStatusParams carries a status transition for a run.
type SetStatusParams struct {
	ID        string
	Status    model.RunStatus
	Result    []byte
	Traceback *string
	Meta      []byte
	WorkerID  *string
}

// SetStatus updates the run status and returns the updated row. On terminal
// transitions date_done is set once and kept on any later write, while the
// status itself is last-write-wins. The lease is cleared when the run leaves
// the running state.
func (r *JobResultRepo) SetStatus(ctx context.Context, p SetStatusParams) (*model.JobResult, error) {
	if !p.Status.Valid() {
		return nil, apperrors.Validationf("invalid run status: %q", string(p.Status))
	}

	query := `
		UPDATE job_results
		SET status = $2,
		    result = COALESCE($3, result),
		    traceback = COALESCE($4, traceback),
		    meta = COALESCE($5, meta),
		    worker_id = COALESCE($6, worker_id),
		    date_done = CASE WHEN $7 THEN COALESCE(date_done, $8) ELSE date_done END,
		    lease_expires_at = CASE WHEN $2 = 'running' THEN lease_expires_at ELSE NULL END
		WHERE id = $1
		RETURNING ` + jobResultColumns

	now := r.timeProvider.Now().UTC()

	var jr *model.JobResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			p.ID, string(p.Status), p.Result, p.Traceback, p.Meta, p.WorkerID,
			p.Status.Terminal(), now,
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobResult)
		if cerr != nil {
			return cerr
		}
		jr = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jr, nil
}

// GetByID fetches a run by primary key.
func (r *JobResultRepo) GetByID(ctx context.Context, id string) (*model.JobResult, error) {
	var jr *model.JobResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			`SELECT `+jobResultColumns+` FROM job_results WHERE id = $1`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobResult)
		if cerr != nil {
			return cerr
		}
		jr = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jr, nil
}

// ListByScheduledJob returns the most recent runs for a schedule.
func (r *JobResultRepo) ListByScheduledJob(ctx context.Context, scheduledJobID string, limit int) ([]*model.JobResult, error) {
	if limit <= 0 {
		return nil, apperrors.Validation("limit must be positive")
	}

	var out []*model.JobResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+jobResultColumns+`
			FROM job_results
			WHERE scheduled_job_id = $1
			ORDER BY date_created DESC
			LIMIT $2
		`, scheduledJobID, limit)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, rowToJobResult)
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

// Stats returns run counts per status for the given queue.
func (r *JobResultRepo) Stats(ctx context.Context, queue string) (*model.RunStats, error) {
	var s model.RunStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending')   AS pending,
			count(*) FILTER (WHERE status = 'running')   AS running,
			count(*) FILTER (WHERE status = 'completed') AS completed,
			count(*) FILTER (WHERE status = 'errored')   AS errored,
			count(*) FILTER (WHERE status = 'failed')    AS failed
		FROM job_results
		WHERE queue = $1
	`, queue).Scan(&s.Pending, &s.Running, &s.Completed, &s.Errored, &s.Failed)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &s, nil
}

func advisoryLockRequeueMinor(queue string) int64 {
	return fnvHash(queue) % int64(1<<31)
}

// RequeueExpired moves running rows whose lease lapsed back to pending so
// another worker can pick them up. Guarded by an advisory lock per queue so
// concurrent reapers do the work once.
func (r *JobResultRepo) RequeueExpired(ctx context.Context, queue string) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor(queue)).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE job_results
				SET status = 'pending', worker_id = NULL, lease_expires_at = NULL
				WHERE queue = $1 AND status = 'running'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $2
			`, queue, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return rowsAffected, nil
}

// FailStalePending marks pending rows older than the cutoff as failed. A run
// that sat unclaimed that long points at a dead queue; failing it surfaces
// the problem instead of letting it fire arbitrarily late.
func (r *JobResultRepo) FailStalePending(ctx context.Context, queue string, olderThan time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_results
		SET status = 'failed',
		    traceback = 'run expired before any worker claimed it',
		    date_done = COALESCE(date_done, $3)
		WHERE queue = $1 AND status = 'pending' AND date_created < $2
	`, queue, olderThan.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// PruneTerminalBefore deletes terminal runs finished before the cutoff and
// returns how many were removed.
func (r *JobResultRepo) PruneTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM job_results
		WHERE status IN ('completed', 'errored', 'failed')
		  AND date_done IS NOT NULL
		  AND date_done < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// WaitForNotification blocks until a run is enqueued on the given queue or
// the context ends.
func (r *JobResultRepo) WaitForNotification(ctx context.Context, queue string) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	channel := queueChannel(queue)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type: %T", dc)
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
