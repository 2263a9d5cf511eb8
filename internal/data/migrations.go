package data

import (
	"context"
	"database/sql"

	"github.com/jobforge/jobforge/internal/migrate"
)

// RunMigrations applies the primary store schema by delegating to the migrate
// package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// RunLogStoreMigrations applies the job log store schema. The log store
// commits independently of the primary store and may live in a separate
// database.
func RunLogStoreMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.RunLogStore(ctx, db)
}
