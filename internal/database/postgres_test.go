package database

import (
	"strings"
	"testing"
)

func TestOpenPostgresRejectsInvalidTableName(t *testing.T) {
	// Table validation runs before any connection attempt, so no server is needed.
	for _, table := range []string{`jobs"; DROP TABLE users; --`, "1jobs", "delayed-jobs", strings.Repeat("a", 64)} {
		t.Run(table, func(t *testing.T) {
			db, err := OpenPostgres("postgres://queue@127.0.0.1:1/app?connect_timeout=1", table)
			if err == nil {
				db.Close()
				t.Fatalf("OpenPostgres(table=%q) error = nil, want error", table)
			}
			if !strings.Contains(err.Error(), "invalid job table name") {
				t.Fatalf("OpenPostgres(table=%q) error = %v, want invalid table error", table, err)
			}
		})
	}
}
