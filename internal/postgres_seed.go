package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreatePostgresTable runs PostgresTableDDL for table.
func CreatePostgresTable(ctx context.Context, db sqlExecer, table string) error {
	for _, stmt := range PostgresTableDDL(table) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// SeedPostgresTable inserts records with their fixture ids, skipping ids that
// already exist, then moves the identity sequence past the highest id so
// later inserts never collide with a seeded row. It returns the number of
// rows inserted.
func SeedPostgresTable[T any, P any](ctx context.Context, db sqlExecer, kind EntityKind[T, P], table string, records []T, now time.Time) (int, error) {
	quoted := sanitizeIdentifier(table)
	insert := fmt.Sprintf("INSERT INTO %s (id, data, created_at, updated_at) VALUES ($1, $2, $3, $3) ON CONFLICT (id) DO NOTHING", quoted)

	inserted := 0
	for _, record := range records {
		id := kind.ID(record)
		if id <= 0 {
			return inserted, fmt.Errorf("seed %s: record without id", kind.Name)
		}
		kind.setID(&record, 0)
		data, err := json.Marshal(record)
		if err != nil {
			return inserted, fmt.Errorf("encode %s %d: %w", kind.Name, id, err)
		}
		res, err := db.ExecContext(ctx, insert, id, string(data), now.UTC())
		if err != nil {
			return inserted, fmt.Errorf("insert %s %d: %w", kind.Name, id, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	setval := fmt.Sprintf("SELECT setval(pg_get_serial_sequence($1, 'id'), (SELECT COALESCE(MAX(id), 0) + 1 FROM %s), false)", quoted)
	if _, err := db.ExecContext(ctx, setval, quoted); err != nil {
		return inserted, fmt.Errorf("advance %s id sequence: %w", table, err)
	}
	return inserted, nil
}
