package crm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes
const (
	ErrCodeRecordNotFound   = "RECORD_NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidReference = "INVALID_REFERENCE"
	ErrCodeRequiredMissing  = "REQUIRED_FIELD_MISSING"
	ErrCodeTransportFailed  = "TRANSPORT_FAILED"
	ErrCodeUnexpectedShape  = "UNEXPECTED_RESPONSE_SHAPE"
	ErrCodeBackendRejected  = "BACKEND_REJECTED"
	ErrCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrCodeDeleteFailed     = "DELETE_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// FieldError is a backend or form rejection of a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CRMError is the error type returned by record services.
type CRMError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Entity  EntityKind     `json:"entity,omitempty"`
	ID      int64          `json:"id,omitempty"`
	Field   string         `json:"field,omitempty"`
	Fields  []FieldError   `json:"fields,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CRMError) Error() string {
	if e.Entity != "" && e.ID != 0 {
		return fmt.Sprintf("[%s:%s] %s %d: %s", e.Type, e.Code, e.Entity, e.ID, e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return fmt.Sprintf("[%s:%s] %s (%s)", e.Type, e.Code, e.Message, strings.Join(parts, "; "))
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *CRMError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail
func (e *CRMError) WithDetail(key string, value any) *CRMError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause
func (e *CRMError) WithCause(cause error) *CRMError {
	e.Cause = cause
	return e
}

// WithEntity attaches the record the error refers to
func (e *CRMError) WithEntity(entity EntityKind, id int64) *CRMError {
	e.Entity = entity
	e.ID = id
	return e
}

// WithField adds field context
func (e *CRMError) WithField(field string) *CRMError {
	e.Field = field
	return e
}

// NewCRMError creates a new CRMError
func NewCRMError(errorType ErrorType, code, message string) *CRMError {
	return &CRMError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError reports that no record with id exists in the store.
func NewNotFoundError(entity EntityKind, id int64) *CRMError {
	return &CRMError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeRecordNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Entity:  entity,
		ID:      id,
	}
}

// NewValidationError reports a single rejected field.
func NewValidationError(field, message string) *CRMError {
	return &CRMError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Field:   field,
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationFailure reports one or more rejected fields of a record.
func NewValidationFailure(entity EntityKind, fields []FieldError) *CRMError {
	return &CRMError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("%s failed validation", entity),
		Entity:  entity,
		Fields:  fields,
	}
}

// NewTransportError reports an unreachable backend or an unexpected response.
func NewTransportError(message string, cause error) *CRMError {
	return &CRMError{
		Type:    ErrorTypeTransport,
		Code:    ErrCodeTransportFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CRMError {
	return &CRMError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// BatchError is returned when some ids of a batch operation failed.
// Records that were processed before or after a failure keep their effect.
type BatchError struct {
	Entity   EntityKind
	Total    int
	Failures []*CRMError
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d %s operations failed", len(e.Failures), e.Total, e.Entity)
}

// Unwrap exposes every per-record error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// ErrorTypeOf returns the category of err, or ErrorTypeInternal when err does
// not carry one.
func ErrorTypeOf(err error) ErrorType {
	var crmErr *CRMError
	if errors.As(err, &crmErr) {
		return crmErr.Type
	}
	return ErrorTypeInternal
}

// IsNotFound reports whether err (or any error it wraps) is a NotFound error.
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a ValidationFailure.
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsTransport reports whether err is a TransportFailure.
func IsTransport(err error) bool {
	return hasType(err, ErrorTypeTransport)
}

func hasType(err error, t ErrorType) bool {
	var batch *BatchError
	if errors.As(err, &batch) {
		for _, f := range batch.Failures {
			if f.Type == t {
				return true
			}
		}
		return false
	}
	var crmErr *CRMError
	return errors.As(err, &crmErr) && crmErr.Type == t
}
