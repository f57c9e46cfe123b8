package internal

import (
	"context"
	"strings"

	"github.com/lychee-technology/crm"
)

// RemoteTable stores records of one entity in a record API table.
type RemoteTable[T any, P any] struct {
	kind   EntityKind[T, P]
	client *RecordClient
	table  string
}

// NewRemoteTable binds kind to the named record API table.
func NewRemoteTable[T any, P any](kind EntityKind[T, P], client *RecordClient, table string) *RemoteTable[T, P] {
	return &RemoteTable[T, P]{kind: kind, client: client, table: table}
}

func (t *RemoteTable[T, P]) decode(row map[string]any) (T, error) {
	r, err := t.kind.remote.decode(row)
	if err != nil {
		var zero T
		return zero, unexpectedShape(string(t.kind.Name)+" record", err)
	}
	return r, nil
}

func (t *RemoteTable[T, P]) List(ctx context.Context) ([]T, error) {
	codec := t.kind.remote
	rows, err := t.client.Query(ctx, t.table, codec.fields, []OrderBy{{FieldName: codec.orderBy, SortType: codec.sortType}})
	if err != nil {
		return []T{}, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		r, err := t.decode(row)
		if err != nil {
			return []T{}, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *RemoteTable[T, P]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	row, err := t.client.Get(ctx, t.table, id, t.kind.remote.fields)
	if err != nil {
		return zero, err
	}
	if row == nil {
		return zero, crm.NewNotFoundError(t.kind.Name, id)
	}
	return t.decode(row)
}

func (t *RemoteTable[T, P]) Insert(ctx context.Context, record T) (T, error) {
	var zero T
	t.kind.setID(&record, 0)
	results, err := t.client.Create(ctx, t.table, []map[string]any{t.kind.remote.encode(record)})
	if err != nil {
		return zero, err
	}
	return t.single(results[0], 0)
}

// Update reads the current record, applies mutate and writes the full record
// back. Concurrent writers are last-writer-wins.
func (t *RemoteTable[T, P]) Update(ctx context.Context, id int64, mutate func(*T)) (T, error) {
	var zero T
	current, err := t.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	mutate(&current)
	t.kind.setID(&current, id)
	results, err := t.client.Update(ctx, t.table, []map[string]any{t.kind.remote.encode(current)})
	if err != nil {
		return zero, err
	}
	return t.single(results[0], id)
}

// single turns one create/update outcome into a record or a typed error.
func (t *RemoteTable[T, P]) single(res RecordResult, id int64) (T, error) {
	var zero T
	if !res.Success {
		if len(res.Errors) > 0 {
			fields := make([]crm.FieldError, 0, len(res.Errors))
			for _, fe := range res.Errors {
				fields = append(fields, crm.FieldError{Field: fe.FieldLabel, Message: fe.Message})
			}
			failure := crm.NewValidationFailure(t.kind.Name, fields)
			failure.ID = id
			return zero, failure
		}
		if isNotFoundMessage(res.Message) && id > 0 {
			return zero, crm.NewNotFoundError(t.kind.Name, id)
		}
		return zero, backendRejected(res.Message).WithEntity(t.kind.Name, id)
	}
	if res.Data == nil {
		return zero, unexpectedShape(string(t.kind.Name)+" result", nil)
	}
	return t.decode(res.Data)
}

func (t *RemoteTable[T, P]) Delete(ctx context.Context, ids []int64) (*crm.DeleteResult, error) {
	out := newDeleteResult(ids)
	results, err := t.client.Delete(ctx, t.table, ids)
	if err != nil {
		return out, err
	}
	for i, res := range results {
		id := ids[i]
		if res.Success {
			out.Deleted = append(out.Deleted, id)
			continue
		}
		code := crm.ErrCodeDeleteFailed
		if isNotFoundMessage(res.Message) {
			code = crm.ErrCodeRecordNotFound
		}
		out.Failed = append(out.Failed, crm.DeleteFailure{ID: id, Code: code, Message: res.Message})
	}
	return out, nil
}

func isNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
