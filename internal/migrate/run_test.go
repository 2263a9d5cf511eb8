package migrate_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/internal/migrate"
	"github.com/jobforge/jobforge/internal/testutil"
)

func TestRun_Idempotent(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()

		var before int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM schema_migrations`).Scan(&before))
		require.Positive(t, before, "setup already applied the migrations")

		require.NoError(t, migrate.Run(ctx, db))
		require.NoError(t, migrate.RunLogStore(ctx, db))

		var after int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM schema_migrations`).Scan(&after))
		assert.Equal(t, before, after, "a rerun applies nothing new")
	})
}

func TestRun_CreatesCoreTables(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()

		for _, table := range []string{
			"job_definitions", "scheduled_jobs", "schedule_change_marker",
			"job_hooks", "job_results", "job_log_entries",
		} {
			var one int
			err := db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`).Scan(&one)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				t.Fatalf("table %s is not queryable: %v", table, err)
			}
		}

		var markerCount int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM schedule_change_marker`).Scan(&markerCount))
		assert.Equal(t, 1, markerCount, "the change marker singleton is seeded")
	})
}
