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

// JobLogRepo is the append-only sink for job log entries. It holds its own
// database handle, distinct from the primary store's, so writes commit
// immediately and survive a rollback of the enclosing job transaction.
type JobLogRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobLogRepo creates a JobLogRepo on the given log store handle.
func NewJobLogRepo(db *sql.DB) *JobLogRepo {
	return &JobLogRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobLogRepoWithTimeProvider creates a JobLogRepo with a custom
// TimeProvider.
func NewJobLogRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobLogRepo {
	return &JobLogRepo{DB: db, timeProvider: tp}
}

const jobLogColumns = `
  id,
  job_result_id,
  level,
  grouping,
  message,
  log_object,
  absolute_url,
  created_at
`

type jobLogRow struct {
	ID          string         `db:"id"`
	JobResultID string         `db:"job_result_id"`
	Level       string         `db:"level"`
	Grouping    string         `db:"grouping"`
	Message     string         `db:"message"`
	LogObject   sql.NullString `db:"log_object"`
	AbsoluteURL sql.NullString `db:"absolute_url"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *jobLogRow) toModel() *model.JobLogEntry {
	return &model.JobLogEntry{
		ID:          r.ID,
		JobResultID: r.JobResultID,
		Level:       model.LogLevel(r.Level),
		Grouping:    r.Grouping,
		Message:     r.Message,
		LogObject:   cloneNullableString(r.LogObject),
		AbsoluteURL: cloneNullableString(r.AbsoluteURL),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func rowToJobLogEntry(row pgx.CollectableRow) (*model.JobLogEntry, error) {
	dbRow, err := pgx.RowToStructByName[jobLogRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan job log row: %w", err)
	}
	return dbRow.toModel(), nil
}

// Append validates, truncates, and writes one log entry. The write commits on
// its own so entries survive a rollback of the caller's transaction.
func (r *JobLogRepo) Append(ctx context.Context, entry *model.JobLogEntry) (*model.JobLogEntry, error) {
	if entry == nil {
		return nil, apperrors.Validation("log entry is required")
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entry.Truncate()

	var saved *model.JobLogEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO job_log_entries (
				id, job_result_id, level, grouping, message, log_object, absolute_url, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+jobLogColumns,
			uuid.NewString(), entry.JobResultID, string(entry.Level), entry.Grouping,
			entry.Message, entry.LogObject, entry.AbsoluteURL,
			r.timeProvider.Now().UTC(),
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectExactlyOneRow(rows, rowToJobLogEntry)
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

// ListByResult returns all entries for a run in write order.
func (r *JobLogRepo) ListByResult(ctx context.Context, jobResultID string) ([]*model.JobLogEntry, error) {
	var out []*model.JobLogEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+jobLogColumns+`
			FROM job_log_entries
			WHERE job_result_id = $1
			ORDER BY created_at, id
		`, jobResultID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectRows(rows, rowToJobLogEntry)
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

// PruneBefore deletes entries created before the cutoff.
func (r *JobLogRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM job_log_entries WHERE created_at < $1
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
