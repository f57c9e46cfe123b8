package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// parsePath parses /api/v1/{collection}, /api/v1/{collection}/{id} and
// /api/v1/{collection}/{id}/{action}.
func parsePath(path string) (collection, id, action string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", "", fmt.Errorf("invalid path: empty collection name")
	}

	parts := strings.Split(path, "/")

	switch len(parts) {
	case 1:
		return parts[0], "", "", nil
	case 2:
		return parts[0], parts[1], "", nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("invalid path format")
	}
}

// parseID parses a positive record id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseIDList parses a comma separated list such as "1,2,3".
func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("ids is required")
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// APIResponse is the standard response format. Message carries the
// user-facing notification for every mutation and every failure.
type APIResponse struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
	Fields  []crm.FieldError `json:"fields,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Message: message,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch crm.ErrorTypeOf(err) {
	case crm.ErrorTypeNotFound:
		return http.StatusNotFound
	case crm.ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case crm.ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes it with message as the notification.
// data is included for partial results such as batch deletes.
func writeServiceError(w http.ResponseWriter, err error, message string, data any) error {
	status := statusFor(err)
	resp := APIResponse{
		Success: false,
		Data:    data,
		Message: message,
		Error:   err.Error(),
	}
	if crmErr, ok := asCRMError(err); ok {
		resp.Code = crmErr.Code
		resp.Fields = crmErr.Fields
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw(message, "error", err, "status", status)
	} else {
		zap.S().Infow(message, "error", err, "status", status)
	}
	return writeJSON(w, status, resp)
}

func asCRMError(err error) (*crm.CRMError, bool) {
	var batch *crm.BatchError
	if errors.As(err, &batch) && len(batch.Failures) > 0 {
		return &crm.CRMError{Code: crm.ErrCodeDeleteFailed}, true
	}
	var crmErr *crm.CRMError
	if errors.As(err, &crmErr) {
		return crmErr, true
	}
	return nil, false
}

// readBody reads the request body up to maxBodyBytes.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// titleCase turns an entity or stage name into display text, e.g.
// "closed-won" becomes "Closed Won".
func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
