package internal

import (
	"context"

	"github.com/lychee-technology/crm"
)

// Table is the entity store for one record type. Implementations must be
// safe for concurrent use.
type Table[T any] interface {
	// List returns every record in store order.
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
	// Insert stores record under a fresh id and returns the stored copy.
	Insert(ctx context.Context, record T) (T, error)
	// Update applies mutate to the stored record and persists the result.
	// mutate must not change the id.
	Update(ctx context.Context, id int64, mutate func(*T)) (T, error)
	// Delete removes each id independently. The returned error is reserved
	// for failures of the whole call; per-id failures go into the result.
	// The result is never nil and, on error, lists the ids already removed.
	Delete(ctx context.Context, ids []int64) (*crm.DeleteResult, error)
}

func newDeleteResult(ids []int64) *crm.DeleteResult {
	return &crm.DeleteResult{
		Requested: append([]int64(nil), ids...),
		Deleted:   make([]int64, 0, len(ids)),
		Failed:    []crm.DeleteFailure{},
	}
}
