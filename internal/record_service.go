package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type recordService[T any, P any] struct {
	kind    EntityKind[T, P]
	table   Table[T]
	nowFunc func() time.Time
	creates singleflight.Group
}

// NewRecordService wraps table with the uniform record service contract.
func NewRecordService[T any, P any](kind EntityKind[T, P], table Table[T]) crm.RecordService[T, P] {
	return newRecordService(kind, table)
}

func newRecordService[T any, P any](kind EntityKind[T, P], table Table[T]) *recordService[T, P] {
	return &recordService[T, P]{
		kind:    kind,
		table:   table,
		nowFunc: time.Now,
	}
}

func (s *recordService[T, P]) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *recordService[T, P]) now() time.Time {
	return s.nowFunc().UTC()
}

func (s *recordService[T, P]) observe(ctx context.Context, op string, start time.Time, err error) {
	EmitOperation(ctx, s.kind.Name, op, err, time.Since(start))
	if err != nil {
		zap.S().Warnw("record operation failed", "entity", s.kind.Name, "operation", op, "error", err)
	}
}

func (s *recordService[T, P]) GetAll(ctx context.Context) (records []T, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "list", start, err) }()

	records, err = s.table.List(ctx)
	if err != nil {
		return []T{}, fmt.Errorf("list %s records: %w", s.kind.Name, err)
	}
	if records == nil {
		records = []T{}
	}
	zap.S().Debugw("listed records", "entity", s.kind.Name, "count", len(records))
	return records, nil
}

func (s *recordService[T, P]) GetByID(ctx context.Context, id int64) (record T, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get", start, err) }()

	if id <= 0 {
		var zero T
		return zero, crm.NewNotFoundError(s.kind.Name, id)
	}
	return s.table.Get(ctx, id)
}

func (s *recordService[T, P]) Create(ctx context.Context, record T) (created T, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "create", start, err) }()

	s.kind.setID(&record, 0)
	key, err := s.createKey(record)
	if err != nil {
		var zero T
		return zero, crm.NewInternalError("failed to fingerprint record", err)
	}

	// Identical creates in flight at the same time share one store write.
	// The write outlives any single caller; each caller waits on its own ctx.
	writeCtx := context.WithoutCancel(ctx)
	ch := s.creates.DoChan(key, func() (any, error) {
		r := record
		s.kind.stamp(&r, s.now(), true)
		return s.table.Insert(writeCtx, r)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		created = s.kind.copy(res.Val.(T))
		zap.S().Debugw("created record", "entity", s.kind.Name, "id", s.kind.id(created), "shared", res.Shared)
		return created, nil
	}
}

func (s *recordService[T, P]) createKey(record T) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return string(s.kind.Name) + ":" + hex.EncodeToString(sum[:]), nil
}

func (s *recordService[T, P]) Update(ctx context.Context, id int64, patch P) (updated T, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update", start, err) }()

	if id <= 0 {
		var zero T
		return zero, crm.NewNotFoundError(s.kind.Name, id)
	}
	now := s.now()
	updated, err = s.table.Update(ctx, id, func(r *T) {
		s.kind.apply(patch, r)
		s.kind.setID(r, id)
		s.kind.stamp(r, now, false)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	zap.S().Debugw("updated record", "entity", s.kind.Name, "id", id)
	return updated, nil
}

func (s *recordService[T, P]) Delete(ctx context.Context, ids ...int64) (result *crm.DeleteResult, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	if len(ids) == 0 {
		return newDeleteResult(nil), crm.NewValidationError("ids", "at least one id is required")
	}

	result, err = s.table.Delete(ctx, ids)
	if result == nil {
		result = newDeleteResult(ids)
	}
	EmitDeleteOutcome(ctx, s.kind.Name, len(result.Deleted), len(result.Failed))
	if err != nil {
		// result still lists whatever the store removed before the failure
		return result, fmt.Errorf("delete %s records: %w", s.kind.Name, err)
	}
	zap.S().Debugw("deleted records", "entity", s.kind.Name, "requested", len(ids), "deleted", len(result.Deleted), "failed", len(result.Failed))

	if len(result.Failed) == 0 {
		return result, nil
	}
	failures := make([]*crm.CRMError, 0, len(result.Failed))
	for _, f := range result.Failed {
		failures = append(failures, deleteFailureError(s.kind.Name, f))
	}
	if len(ids) == 1 {
		return result, failures[0]
	}
	return result, &crm.BatchError{Entity: s.kind.Name, Total: len(ids), Failures: failures}
}

func deleteFailureError(entity crm.EntityKind, f crm.DeleteFailure) *crm.CRMError {
	if f.Code == crm.ErrCodeRecordNotFound {
		return crm.NewNotFoundError(entity, f.ID)
	}
	code := f.Code
	if code == "" {
		code = crm.ErrCodeDeleteFailed
	}
	return crm.NewCRMError(crm.ErrorTypeTransport, code, f.Message).WithEntity(entity, f.ID)
}
