package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odvcencio/queuehealth/internal/models"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db    *sql.DB
	table string
}

func OpenSQLite(dsn, table string) (*SQLiteDB, error) {
	table, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The job engine writes concurrently; readers must wait out its locks.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	return &SQLiteDB{db: db, table: table}, nil
}

func (s *SQLiteDB) Close() error { return s.db.Close() }

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteSchema, s.table))
	return err
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS "%[1]s" (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	priority INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	handler TEXT NOT NULL,
	last_error TEXT,
	run_at DATETIME,
	locked_at DATETIME,
	failed_at DATETIME,
	locked_by TEXT,
	queue TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS "idx_%[1]s_priority" ON "%[1]s"(priority, run_at);
CREATE INDEX IF NOT EXISTS "idx_%[1]s_created_at" ON "%[1]s"(created_at);
`

func (s *SQLiteDB) CountDelayedJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, s.table)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteDB) OldestDelayedJob(ctx context.Context) (*models.DelayedJob, error) {
	var job models.DelayedJob
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, created_at FROM "%s" WHERE created_at IS NOT NULL ORDER BY created_at ASC LIMIT 1`, s.table),
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}
