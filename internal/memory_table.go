package internal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/crm"
)

// MemoryTable is the in-memory mock store. Records keep insertion order and
// ids are never handed out twice, even after the highest id is deleted.
type MemoryTable[T any, P any] struct {
	kind    EntityKind[T, P]
	latency crm.LatencyConfig

	mu        sync.RWMutex
	records   []T
	highWater int64

	// commit, when set, durably records the next state before it replaces
	// the current one. A commit error leaves the table unchanged.
	commit func(records []T, highWater int64) error
}

// NewMemoryTable creates a table seeded with a private copy of seed.
func NewMemoryTable[T any, P any](kind EntityKind[T, P], seed []T, latency crm.LatencyConfig) *MemoryTable[T, P] {
	t := &MemoryTable[T, P]{kind: kind, latency: latency}
	t.load(seed, 0)
	return t
}

// load replaces the table contents. highWater is raised to the largest id in records.
func (t *MemoryTable[T, P]) load(records []T, highWater int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = t.copyAll(records)
	t.highWater = highWater
	for _, r := range t.records {
		t.highWater = max(t.highWater, t.kind.id(r))
	}
}

// state returns a copy of the records and the high-water id.
func (t *MemoryTable[T, P]) state() ([]T, int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyAll(t.records), t.highWater
}

// copyAll returns a deep copy of records that is never nil.
func (t *MemoryTable[T, P]) copyAll(records []T) []T {
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = t.kind.copy(r)
	}
	return out
}

// apply commits records and highWater, then installs them. Callers hold mu.
func (t *MemoryTable[T, P]) apply(records []T, highWater int64) error {
	if t.commit != nil {
		if err := t.commit(records, highWater); err != nil {
			return err
		}
	}
	t.records = records
	t.highWater = highWater
	return nil
}

func (t *MemoryTable[T, P]) delay(ctx context.Context, d time.Duration) error {
	if !t.latency.Enabled {
		return ctx.Err()
	}
	return sleepContext(ctx, d)
}

func (t *MemoryTable[T, P]) indexOf(id int64) int {
	return slices.IndexFunc(t.records, func(r T) bool { return t.kind.id(r) == id })
}

func (t *MemoryTable[T, P]) List(ctx context.Context) ([]T, error) {
	if err := t.delay(ctx, t.latency.List); err != nil {
		return []T{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyAll(t.records), nil
}

func (t *MemoryTable[T, P]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := t.delay(ctx, t.latency.Get); err != nil {
		return zero, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(id)
	if i < 0 {
		return zero, crm.NewNotFoundError(t.kind.Name, id)
	}
	return t.kind.copy(t.records[i]), nil
}

func (t *MemoryTable[T, P]) Insert(ctx context.Context, record T) (T, error) {
	var zero T
	if err := t.delay(ctx, t.latency.Create); err != nil {
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.highWater + 1
	record = t.kind.copy(record)
	t.kind.setID(&record, id)
	next := append(slices.Clip(t.records), record)
	if err := t.apply(next, id); err != nil {
		return zero, err
	}
	return t.kind.copy(record), nil
}

func (t *MemoryTable[T, P]) Update(ctx context.Context, id int64, mutate func(*T)) (T, error) {
	var zero T
	if err := t.delay(ctx, t.latency.Update); err != nil {
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(id)
	if i < 0 {
		return zero, crm.NewNotFoundError(t.kind.Name, id)
	}
	updated := t.kind.copy(t.records[i])
	mutate(&updated)
	updated = t.kind.copy(updated)
	t.kind.setID(&updated, id)
	next := slices.Clone(t.records)
	next[i] = updated
	if err := t.apply(next, t.highWater); err != nil {
		return zero, err
	}
	return t.kind.copy(updated), nil
}

func (t *MemoryTable[T, P]) Delete(ctx context.Context, ids []int64) (*crm.DeleteResult, error) {
	if err := t.delay(ctx, t.latency.Delete); err != nil {
		return newDeleteResult(ids), err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	result := newDeleteResult(ids)
	next := slices.Clone(t.records)
	var removed []int64
	for _, id := range ids {
		i := slices.IndexFunc(next, func(r T) bool { return t.kind.id(r) == id })
		if i < 0 {
			result.Failed = append(result.Failed, crm.DeleteFailure{
				ID:      id,
				Code:    crm.ErrCodeRecordNotFound,
				Message: string(t.kind.Name) + " not found",
			})
			continue
		}
		next = slices.Delete(next, i, i+1)
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return result, nil
	}
	if err := t.apply(next, t.highWater); err != nil {
		for _, id := range removed {
			result.Failed = append(result.Failed, crm.DeleteFailure{
				ID:      id,
				Code:    crm.ErrCodeDeleteFailed,
				Message: err.Error(),
			})
		}
		return result, err
	}
	result.Deleted = append(result.Deleted, removed...)
	return result, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
