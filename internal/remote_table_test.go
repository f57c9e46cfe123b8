package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecordAPI serves one table of the record API from memory.
type fakeRecordAPI struct {
	t      *testing.T
	table  string
	mu     sync.Mutex
	rows   map[int64]map[string]any
	nextID int64
	// reject, when set, fails writes with per-field errors.
	reject   []RecordFieldError
	status   int
	requests []*http.Request
}

func newFakeRecordAPI(t *testing.T, table string) *fakeRecordAPI {
	return &fakeRecordAPI{t: t, table: table, rows: map[int64]map[string]any{}, nextID: 1}
}

func (f *fakeRecordAPI) put(row map[string]any) {
	id := int64(row[fieldID].(int))
	row[fieldID] = id
	f.rows[id] = row
	f.nextID = max(f.nextID, id+1)
}

func (f *fakeRecordAPI) received() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

func (f *fakeRecordAPI) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeRecordAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	base := "/v1/tables/" + f.table + "/records"
	rest := strings.TrimPrefix(r.URL.Path, base)
	switch {
	case r.Method == http.MethodPost && rest == "/query":
		data := make([]map[string]any, 0, len(f.rows))
		for id := int64(1); id < f.nextID; id++ {
			if row, ok := f.rows[id]; ok {
				data = append(data, row)
			}
		}
		f.write(w, http.StatusOK, map[string]any{"success": true, "data": data})
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/query"):
		id, err := strconv.ParseInt(strings.Trim(strings.TrimSuffix(rest, "/query"), "/"), 10, 64)
		require.NoError(f.t, err)
		f.write(w, http.StatusOK, map[string]any{"success": true, "data": f.rows[id]})
	case rest == "" && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		var req recordsRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		results := make([]RecordResult, 0, len(req.Records))
		for _, rec := range req.Records {
			if f.reject != nil {
				results = append(results, RecordResult{Success: false, Errors: f.reject})
				continue
			}
			var id int64
			if r.Method == http.MethodPost {
				id = f.nextID
				f.nextID++
			} else {
				id = int64(rec[fieldID].(float64))
				if _, ok := f.rows[id]; !ok {
					results = append(results, RecordResult{Success: false, Message: "Record does not exist"})
					continue
				}
			}
			rec[fieldID] = id
			f.rows[id] = rec
			results = append(results, RecordResult{Success: true, Data: rec})
		}
		f.write(w, http.StatusOK, map[string]any{"success": true, "results": results})
	case rest == "" && r.Method == http.MethodDelete:
		var req deleteRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		results := make([]RecordResult, 0, len(req.RecordIDs))
		for _, id := range req.RecordIDs {
			if _, ok := f.rows[id]; !ok {
				results = append(results, RecordResult{Success: false, Message: "Record not found"})
				continue
			}
			delete(f.rows, id)
			results = append(results, RecordResult{Success: true})
		}
		f.write(w, http.StatusOK, map[string]any{"success": true, "results": results})
	default:
		f.write(w, http.StatusNotFound, map[string]any{"success": false, "message": "no route"})
	}
}

func newRemoteTasks(t *testing.T, api *fakeRecordAPI, breaker BreakerPolicy) *RemoteTable[crm.Task, crm.TaskPatch] {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := NewRecordClient(RecordClientOptions{
		BaseURL:   srv.URL + "/",
		ProjectID: "proj-1",
		PublicKey: "pk-test",
		Breaker:   breaker,
	})
	return NewRemoteTable(TaskKind, client, api.table)
}

func seedRemoteTasks(api *fakeRecordAPI) {
	api.put(map[string]any{fieldID: 1, "title_c": "Send proposal", "status_c": "pending", "priority_c": "high", "due_date_c": "2024-02-12T17:00:00Z"})
	api.put(map[string]any{fieldID: 2, "title_c": "Book demo", "status_c": "completed", "priority_c": "low", "contact_id_c": map[string]any{fieldID: 4}})
}

func TestRemoteTableListAndHeaders(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	seedRemoteTasks(api)
	table := newRemoteTasks(t, api, BreakerPolicy{})

	tasks, err := table.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Send proposal", tasks[0].Title)
	assert.Equal(t, crm.RefTo(4), tasks[1].ContactID)

	requests := api.received()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "Bearer pk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "proj-1", req.Header.Get("X-Project-Id"))
	assert.NotEmpty(t, req.Header.Get("X-Request-Id"))
	assert.Equal(t, "/v1/tables/task_c/records/query", req.URL.Path)
}

func TestRemoteTableGet(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	seedRemoteTasks(api)
	table := newRemoteTasks(t, api, BreakerPolicy{})

	task, err := table.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, crm.TaskCompleted, task.Status)

	_, err = table.Get(context.Background(), 42)
	assert.True(t, crm.IsNotFound(err))
}

func TestRemoteTableInsertAndUpdate(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	seedRemoteTasks(api)
	table := newRemoteTasks(t, api, BreakerPolicy{})
	ctx := context.Background()

	created, err := table.Insert(ctx, crm.Task{ID: 99, Title: "Follow up", Status: crm.TaskPending, Priority: crm.PriorityMedium})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)

	updated, err := table.Update(ctx, 3, func(task *crm.Task) {
		task.Status = crm.TaskCompleted
		task.ID = 500
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.ID)
	assert.Equal(t, crm.TaskCompleted, updated.Status)
	assert.Equal(t, "Follow up", updated.Title)

	_, err = table.Update(ctx, 77, func(*crm.Task) {})
	assert.True(t, crm.IsNotFound(err))
}

func TestRemoteTableFieldErrorsBecomeValidation(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	api.reject = []RecordFieldError{{FieldLabel: "title_c", Message: "is required"}}
	table := newRemoteTasks(t, api, BreakerPolicy{})

	_, err := table.Insert(context.Background(), crm.Task{})
	require.Error(t, err)
	assert.True(t, crm.IsValidation(err))
	var crmErr *crm.CRMError
	require.ErrorAs(t, err, &crmErr)
	assert.Equal(t, []crm.FieldError{{Field: "title_c", Message: "is required"}}, crmErr.Fields)
}

func TestRemoteTableDeletePerID(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	seedRemoteTasks(api)
	table := newRemoteTasks(t, api, BreakerPolicy{})

	res, err := table.Delete(context.Background(), []int64{1, 9})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Deleted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, int64(9), res.Failed[0].ID)
	assert.Equal(t, crm.ErrCodeRecordNotFound, res.Failed[0].Code)
}

func TestRemoteTableServerErrorsOpenBreaker(t *testing.T) {
	api := newFakeRecordAPI(t, "task_c")
	api.status = http.StatusBadGateway
	table := newRemoteTasks(t, api, BreakerPolicy{Threshold: 2, Window: time.Minute, OpenFor: time.Minute})
	ctx := context.Background()

	for range 2 {
		_, err := table.List(ctx)
		require.Error(t, err)
		assert.True(t, crm.IsTransport(err))
	}

	_, err := table.List(ctx)
	var crmErr *crm.CRMError
	require.ErrorAs(t, err, &crmErr)
	assert.Equal(t, crm.ErrCodeCircuitOpen, crmErr.Code)
	assert.Len(t, api.received(), 2)
}

func TestRecordClientRejectedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid project"}`))
	}))
	defer srv.Close()

	client := NewRecordClient(RecordClientOptions{BaseURL: srv.URL})
	_, err := client.Query(context.Background(), "contact_c", nil, nil)
	var crmErr *crm.CRMError
	require.ErrorAs(t, err, &crmErr)
	assert.Equal(t, crm.ErrCodeBackendRejected, crmErr.Code)
	assert.Equal(t, "Invalid project", crmErr.Message)
}

func TestRecordClientUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"results":[]}`))
	}))
	defer srv.Close()

	client := NewRecordClient(RecordClientOptions{BaseURL: srv.URL})
	_, err := client.Delete(context.Background(), "contact_c", []int64{1, 2})
	var crmErr *crm.CRMError
	require.ErrorAs(t, err, &crmErr)
	assert.Equal(t, crm.ErrCodeUnexpectedShape, crmErr.Code)
}
