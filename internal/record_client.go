package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

// RecordClientOptions configures the record API client.
type RecordClientOptions struct {
	BaseURL    string
	ProjectID  string
	PublicKey  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Breaker    BreakerPolicy
}

// RecordClient talks to the table-based record API. It never retries; a
// circuit breaker fails calls fast while the backend keeps failing.
type RecordClient struct {
	baseURL    string
	projectID  string
	publicKey  string
	httpClient *http.Client
	breaker    *callBreaker
}

// OrderBy is one sort clause of a list query.
type OrderBy struct {
	FieldName string `json:"fieldName"`
	SortType  string `json:"sorttype"`
}

// RecordFieldError is a per-field rejection reported by the backend.
type RecordFieldError struct {
	FieldLabel string `json:"fieldLabel"`
	Message    string `json:"message"`
}

// RecordResult is the per-record outcome of a create, update or delete.
type RecordResult struct {
	Success bool               `json:"success"`
	Data    map[string]any     `json:"data,omitempty"`
	Errors  []RecordFieldError `json:"errors,omitempty"`
	Message string             `json:"message,omitempty"`
}

type recordEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Results []RecordResult  `json:"results"`
}

type queryRequest struct {
	Fields  []string  `json:"fields"`
	OrderBy []OrderBy `json:"orderBy,omitempty"`
}

type recordsRequest struct {
	Records []map[string]any `json:"records"`
}

type deleteRequest struct {
	RecordIDs []int64 `json:"RecordIds"`
}

// NewRecordClient creates a client. BaseURL is required by config validation.
func NewRecordClient(opts RecordClientOptions) *RecordClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RecordClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		projectID:  strings.TrimSpace(opts.ProjectID),
		publicKey:  strings.TrimSpace(opts.PublicKey),
		httpClient: httpClient,
		breaker:    newCallBreaker(opts.Breaker),
	}
}

func (c *RecordClient) tablePath(table string) string {
	return c.baseURL + "/v1/tables/" + table + "/records"
}

// Query lists every record of table.
func (c *RecordClient) Query(ctx context.Context, table string, fields []string, orderBy []OrderBy) ([]map[string]any, error) {
	env, err := c.do(ctx, http.MethodPost, c.tablePath(table)+"/query", queryRequest{Fields: fields, OrderBy: orderBy})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, backendRejected(env.Message)
	}
	var rows []map[string]any
	if err := decodeData(env.Data, &rows); err != nil {
		return nil, unexpectedShape("list data", err)
	}
	return rows, nil
}

// Get fetches one record. A nil map means the backend has no such record.
func (c *RecordClient) Get(ctx context.Context, table string, id int64, fields []string) (map[string]any, error) {
	url := c.tablePath(table) + "/" + strconv.FormatInt(id, 10) + "/query"
	env, err := c.do(ctx, http.MethodPost, url, queryRequest{Fields: fields})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, backendRejected(env.Message)
	}
	var row map[string]any
	if err := decodeData(env.Data, &row); err != nil {
		return nil, unexpectedShape("record data", err)
	}
	return row, nil
}

// Create submits records and returns one result per record.
func (c *RecordClient) Create(ctx context.Context, table string, records []map[string]any) ([]RecordResult, error) {
	return c.write(ctx, http.MethodPost, table, recordsRequest{Records: records}, len(records))
}

// Update submits records carrying their "Id" and returns one result per record.
func (c *RecordClient) Update(ctx context.Context, table string, records []map[string]any) ([]RecordResult, error) {
	return c.write(ctx, http.MethodPut, table, recordsRequest{Records: records}, len(records))
}

// Delete removes ids and returns one result per id.
func (c *RecordClient) Delete(ctx context.Context, table string, ids []int64) ([]RecordResult, error) {
	return c.write(ctx, http.MethodDelete, table, deleteRequest{RecordIDs: ids}, len(ids))
}

func (c *RecordClient) write(ctx context.Context, method, table string, payload any, want int) ([]RecordResult, error) {
	env, err := c.do(ctx, method, c.tablePath(table), payload)
	if err != nil {
		return nil, err
	}
	if len(env.Results) == 0 {
		if !env.Success {
			return nil, backendRejected(env.Message)
		}
		return nil, unexpectedShape("results", fmt.Errorf("response carried no results"))
	}
	if len(env.Results) != want {
		return nil, unexpectedShape("results", fmt.Errorf("expected %d results, got %d", want, len(env.Results)))
	}
	return env.Results, nil
}

func (c *RecordClient) do(ctx context.Context, method, url string, payload any) (*recordEnvelope, error) {
	if err := c.breaker.admit(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, crm.NewInternalError("failed to encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, crm.NewInternalError("failed to build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.publicKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.publicKey)
	}
	if c.projectID != "" {
		req.Header.Set("X-Project-Id", c.projectID)
	}

	zap.S().Debugw("record api request", "method", method, "url", url, "requestId", requestID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.report(false)
		return nil, crm.NewTransportError("record API unreachable", err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		c.breaker.report(false)
		return nil, crm.NewTransportError("failed to read record API response", readErr)
	}
	if resp.StatusCode >= 500 {
		c.breaker.report(false)
		return nil, crm.NewTransportError(fmt.Sprintf("record API returned status %d", resp.StatusCode), nil).
			WithDetail("requestId", requestID)
	}
	c.breaker.report(true)

	var env recordEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, unexpectedShape("envelope", err).WithDetail("status", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = fmt.Sprintf("record API returned status %d", resp.StatusCode)
		}
		return nil, backendRejected(msg).WithDetail("status", resp.StatusCode)
	}
	return &env, nil
}

// decodeData keeps numbers as json.Number so ids survive intact.
func decodeData(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func unexpectedShape(what string, cause error) *crm.CRMError {
	return crm.NewCRMError(crm.ErrorTypeTransport, crm.ErrCodeUnexpectedShape, "unexpected record API "+what).WithCause(cause)
}

func backendRejected(message string) *crm.CRMError {
	if strings.TrimSpace(message) == "" {
		message = "record API rejected the request"
	}
	return crm.NewCRMError(crm.ErrorTypeTransport, crm.ErrCodeBackendRejected, message)
}
