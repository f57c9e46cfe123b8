package crm

import (
	"context"
)

// RecordService provides the uniform CRUD operations for one entity type.
// T is the record type and P its partial-update type.
type RecordService[T any, P any] interface {
	// GetAll returns every record in store order. On failure the slice is
	// empty but non-nil.
	GetAll(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id int64) (T, error)
	// Create stores record under a freshly assigned id. Any id on record is ignored.
	Create(ctx context.Context, record T) (T, error)
	// Update merges patch over the stored record. The id never changes.
	Update(ctx context.Context, id int64, patch P) (T, error)
	// Delete removes each id independently. There is no rollback.
	Delete(ctx context.Context, ids ...int64) (*DeleteResult, error)
}

type (
	ContactService  = RecordService[Contact, ContactPatch]
	DealService     = RecordService[Deal, DealPatch]
	ActivityService = RecordService[Activity, ActivityPatch]
	TaskService     = RecordService[Task, TaskPatch]
)

// Services bundles the four record services of one backend.
type Services struct {
	Contacts   ContactService
	Deals      DealService
	Activities ActivityService
	Tasks      TaskService

	// Close releases backend resources. May be nil.
	Close func() error
}

// Shutdown calls Close when set.
func (s *Services) Shutdown() error {
	if s == nil || s.Close == nil {
		return nil
	}
	return s.Close()
}
