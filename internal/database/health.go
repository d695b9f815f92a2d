package database

import "database/sql"

// PoolStatsProvider exposes connection pool statistics for metrics collection.
type PoolStatsProvider interface {
	SQLDB() *sql.DB
}

func (s *SQLiteDB) SQLDB() *sql.DB { return s.db }

func (p *PostgresDB) SQLDB() *sql.DB { return p.db }
