package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/odvcencio/queuehealth/internal/models"
)

// DefaultTable is the Delayed::Job table name.
const DefaultTable = "delayed_jobs"

// DB defines read access to the job queue table. Implemented by SQLite and PostgreSQL backends.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	// CountDelayedJobs returns the number of rows in the job queue table.
	CountDelayedJobs(ctx context.Context) (int64, error)
	// OldestDelayedJob returns the row with the smallest created_at. Rows
	// without a created_at are skipped; sql.ErrNoRows means none remain.
	OldestDelayedJob(ctx context.Context) (*models.DelayedJob, error)
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func resolveTable(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid job table name %q", table)
	}
	return table, nil
}
