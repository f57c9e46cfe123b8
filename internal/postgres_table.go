package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/crm"
)

type postgresPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresTableDDL returns the statements creating a record table and its
// index. Ids come from an identity column and are never reused.
func PostgresTableDDL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, sanitizeIdentifier(table)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)", indexName(table, "updated_at"), sanitizeIdentifier(table)),
	}
}

// PostgresTable stores one entity as JSONB documents keyed by an identity id.
type PostgresTable[T any, P any] struct {
	kind    EntityKind[T, P]
	pool    postgresPool
	table   string
	nowFunc func() time.Time
}

// NewPostgresTable binds kind to table. The table must already exist.
func NewPostgresTable[T any, P any](kind EntityKind[T, P], pool postgresPool, table string) *PostgresTable[T, P] {
	return &PostgresTable[T, P]{
		kind:    kind,
		pool:    pool,
		table:   sanitizeIdentifier(table),
		nowFunc: time.Now,
	}
}

func (t *PostgresTable[T, P]) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	t.nowFunc = now
}

func (t *PostgresTable[T, P]) dbError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return crm.NewTransportError(fmt.Sprintf("postgres %s %s failed", op, t.kind.Name), err)
}

func (t *PostgresTable[T, P]) scan(id int64, data []byte) (T, error) {
	var r T
	if err := json.Unmarshal(data, &r); err != nil {
		return r, crm.NewInternalError(fmt.Sprintf("decode %s %d", t.kind.Name, id), err)
	}
	t.kind.setID(&r, id)
	return r, nil
}

func (t *PostgresTable[T, P]) List(ctx context.Context) ([]T, error) {
	rows, err := t.pool.Query(ctx, fmt.Sprintf("SELECT id, data FROM %s ORDER BY id", t.table))
	if err != nil {
		return []T{}, t.dbError("list", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return []T{}, t.dbError("scan", err)
		}
		r, err := t.scan(id, data)
		if err != nil {
			return []T{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return []T{}, t.dbError("list", err)
	}
	return out, nil
}

func (t *PostgresTable[T, P]) Get(ctx context.Context, id int64) (T, error) {
	var (
		zero T
		data []byte
	)
	err := t.pool.QueryRow(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = $1", t.table), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, crm.NewNotFoundError(t.kind.Name, id)
	}
	if err != nil {
		return zero, t.dbError("get", err)
	}
	return t.scan(id, data)
}

func (t *PostgresTable[T, P]) Insert(ctx context.Context, record T) (T, error) {
	var zero T
	t.kind.setID(&record, 0)
	data, err := json.Marshal(record)
	if err != nil {
		return zero, crm.NewInternalError("encode record", err)
	}
	var id int64
	query := fmt.Sprintf("INSERT INTO %s (data, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id", t.table)
	if err := t.pool.QueryRow(ctx, query, data, t.nowFunc().UTC()).Scan(&id); err != nil {
		return zero, t.dbError("insert", err)
	}
	t.kind.setID(&record, id)
	return record, nil
}

func (t *PostgresTable[T, P]) Update(ctx context.Context, id int64, mutate func(*T)) (T, error) {
	var zero T
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, t.dbError("begin", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	var data []byte
	err = tx.QueryRow(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = $1 FOR UPDATE", t.table), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, crm.NewNotFoundError(t.kind.Name, id)
	}
	if err != nil {
		return zero, t.dbError("lock", err)
	}
	current, err := t.scan(id, data)
	if err != nil {
		return zero, err
	}
	mutate(&current)
	t.kind.setID(&current, id)

	updated, err := json.Marshal(current)
	if err != nil {
		return zero, crm.NewInternalError("encode record", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET data = $2, updated_at = $3 WHERE id = $1", t.table), id, updated, t.nowFunc().UTC()); err != nil {
		return zero, t.dbError("update", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, t.dbError("commit", err)
	}
	return current, nil
}

func (t *PostgresTable[T, P]) Delete(ctx context.Context, ids []int64) (*crm.DeleteResult, error) {
	result := newDeleteResult(ids)
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.table)
	for i, id := range ids {
		tag, err := t.pool.Exec(ctx, query, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				for _, rest := range ids[i:] {
					result.Failed = append(result.Failed, crm.DeleteFailure{ID: rest, Code: crm.ErrCodeDeleteFailed, Message: ctxErr.Error()})
				}
				return result, ctxErr
			}
			result.Failed = append(result.Failed, crm.DeleteFailure{ID: id, Code: crm.ErrCodeDeleteFailed, Message: err.Error()})
			continue
		}
		if tag.RowsAffected() == 0 {
			result.Failed = append(result.Failed, crm.DeleteFailure{ID: id, Code: crm.ErrCodeRecordNotFound, Message: string(t.kind.Name) + " not found"})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}
