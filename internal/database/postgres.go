package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odvcencio/queuehealth/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresDB struct {
	db    *sql.DB
	table string
}

func OpenPostgres(dsn, table string) (*PostgresDB, error) {
	table, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	return &PostgresDB{db: db, table: table}, nil
}

func (p *PostgresDB) Close() error { return p.db.Close() }

func (p *PostgresDB) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(pgSchema, p.table))
	return err
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS "%[1]s" (
	id BIGSERIAL PRIMARY KEY,
	priority INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	handler TEXT NOT NULL,
	last_error TEXT,
	run_at TIMESTAMPTZ,
	locked_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ,
	locked_by TEXT,
	queue TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS "idx_%[1]s_priority" ON "%[1]s"(priority, run_at);
CREATE INDEX IF NOT EXISTS "idx_%[1]s_created_at" ON "%[1]s"(created_at);
`

func (p *PostgresDB) CountDelayedJobs(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, p.table)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PostgresDB) OldestDelayedJob(ctx context.Context) (*models.DelayedJob, error) {
	var job models.DelayedJob
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, created_at FROM "%s" WHERE created_at IS NOT NULL ORDER BY created_at ASC LIMIT 1`, p.table),
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}
