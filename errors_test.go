package crm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRMErrorMessages(t *testing.T) {
	assert.Equal(t, "[not_found:RECORD_NOT_FOUND] deal 9: deal not found", NewNotFoundError(EntityDeal, 9).Error())
	assert.Equal(t, "[validation:VALIDATION_FAILED] field 'email': is required",
		(&CRMError{Type: ErrorTypeValidation, Code: ErrCodeValidationFailed, Message: "is required", Field: "email"}).Error())

	failure := NewValidationFailure(EntityContact, []FieldError{{Field: "email", Message: "invalid"}, {Field: "phone", Message: "is required"}})
	assert.Equal(t, "[validation:VALIDATION_FAILED] contact failed validation (email: invalid; phone: is required)", failure.Error())
}

func TestCRMErrorBuilders(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("record API unreachable", cause).WithDetail("status", 503).WithEntity(EntityTask, 3)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 503, err.Details["status"])
	assert.Equal(t, EntityTask, err.Entity)
}

func TestErrorPredicates(t *testing.T) {
	notFound := fmt.Errorf("get: %w", NewNotFoundError(EntityContact, 1))
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsValidation(notFound))
	assert.Equal(t, ErrorTypeNotFound, ErrorTypeOf(notFound))

	assert.True(t, IsValidation(NewValidationError("name", "is required")))
	assert.True(t, IsTransport(NewTransportError("down", nil)))
	assert.Equal(t, ErrorTypeInternal, ErrorTypeOf(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestBatchError(t *testing.T) {
	batch := &BatchError{
		Entity: EntityTask,
		Total:  3,
		Failures: []*CRMError{
			NewNotFoundError(EntityTask, 7),
			NewTransportError("timeout", nil).WithEntity(EntityTask, 8),
		},
	}
	assert.Equal(t, "2 of 3 task operations failed", batch.Error())
	assert.True(t, IsNotFound(batch))
	assert.True(t, IsTransport(batch))
	assert.False(t, IsValidation(batch))

	var target *CRMError
	assert.True(t, errors.As(batch, &target))
	assert.Equal(t, int64(7), target.ID)
}
