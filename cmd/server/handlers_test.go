package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Message string           `json:"message"`
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Fields  []crm.FieldError `json:"fields"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	services, err := factory.NewMemoryServices(context.Background(), crm.DefaultConfig())
	require.NoError(t, err)
	server, err := NewServer(services, crm.BackendMemory)
	require.NoError(t, err)
	server.now = func() time.Time { return time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC) }
	server.RegisterRoutes(nil)
	return server
}

func doRequest(t *testing.T, server *Server, method, target, body string) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		action     string
		wantErr    bool
	}{
		{path: "/api/v1/contacts", collection: "contacts"},
		{path: "/api/v1/contacts/", collection: "contacts"},
		{path: "/api/v1/deals/3", collection: "deals", id: "3"},
		{path: "/api/v1/deals/3/stage", collection: "deals", id: "3", action: "stage"},
		{path: "/api/v1/", wantErr: true},
		{path: "/api/v1/a/b/c/d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			collection, id, action, err := parsePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.collection, collection)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDList("")
	assert.Error(t, err)
	_, err = parseIDList("1,x")
	assert.Error(t, err)
	_, err = parseIDList("0")
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(crm.NewNotFoundError(crm.EntityDeal, 9)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(crm.NewValidationError("email", "is required")))
	assert.Equal(t, http.StatusBadGateway, statusFor(crm.NewTransportError("down", nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Closed Won", titleCase("closed-won"))
	assert.Equal(t, "Contact", titleCase("contact"))
}

func TestHealthSetsRequestID(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestListContacts(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/contacts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var contacts []crm.Contact
	require.NoError(t, json.Unmarshal(resp.Data, &contacts))
	assert.Len(t, contacts, 5)
	assert.Equal(t, "John Smith", contacts[0].Name)
}

func TestCreateContactAppliesDefaults(t *testing.T) {
	server := newTestServer(t)
	body := `{"name":"Ada Lovelace","company":"Analytical Engines","email":"ada@example.com","phone":"555-0100"}`
	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/contacts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Contact created successfully", resp.Message)

	var created crm.Contact
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, int64(6), created.ID)
	assert.Equal(t, crm.IndustryOther, created.Industry)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateContactValidation(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/contacts", `{"name":"Ada","company":"AE"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to create contact", resp.Message)
	assert.Equal(t, crm.ErrCodeValidationFailed, resp.Code)
	require.Len(t, resp.Fields, 2)
	assert.Equal(t, "email", resp.Fields[0].Field)
	assert.Equal(t, "phone", resp.Fields[1].Field)
}

func TestGetMissingRecord(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/deals/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, crm.ErrCodeRecordNotFound, resp.Code)
}

func TestInvalidID(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/v1/deals/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownCollection(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/v1/widgets", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDeal(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodPut, "/api/v1/deals/2", `{"id":42,"value":30000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Deal updated successfully", resp.Message)

	var deal crm.Deal
	require.NoError(t, json.Unmarshal(resp.Data, &deal))
	assert.Equal(t, int64(2), deal.ID)
	assert.Equal(t, 30000.0, deal.Value)
	assert.Equal(t, "Analytics Platform Pilot", deal.Title)
}

func TestUpdateRejectsBadEnum(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodPut, "/api/v1/tasks/1", `{"priority":"urgent"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "priority", resp.Fields[0].Field)
}

func TestDeleteSingle(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodDelete, "/api/v1/activities/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Activity deleted successfully", resp.Message)

	rec, _ = doRequest(t, server, http.MethodGet, "/api/v1/activities/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteBatchPartialFailure(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodDelete, "/api/v1/tasks?ids=1,99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Deleted 1 of 2 tasks", resp.Message)
	assert.Equal(t, crm.ErrCodeDeleteFailed, resp.Code)

	var result crm.DeleteResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, []int64{1}, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, int64(99), result.Failed[0].ID)
}

func TestDeleteBatchRequiresIDs(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodDelete, "/api/v1/tasks", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDealStageAction(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodPatch, "/api/v1/deals/4/stage", `{"stage":"negotiation"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Deal moved to Negotiation", resp.Message)

	rec, resp = doRequest(t, server, http.MethodPatch, "/api/v1/deals/4/stage", `{"stage":"won"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Failed to update deal stage", resp.Message)
}

func TestTaskToggleAction(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/tasks/4/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Task marked as pending", resp.Message)

	rec, resp = doRequest(t, server, http.MethodPost, "/api/v1/tasks/4/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task marked as completed", resp.Message)

	rec, _ = doRequest(t, server, http.MethodPost, "/api/v1/tasks/99/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownAction(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodPost, "/api/v1/contacts/1/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDealsViewFiltersItemsNotSummary(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/views/deals?q=platform", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Items []struct {
			ID          int64  `json:"id"`
			Title       string `json:"title"`
			ContactName string `json:"contactName"`
		} `json:"items"`
		Summary crm.DealSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Analytics Platform Pilot", view.Items[0].Title)
	assert.Equal(t, "Sarah Johnson", view.Items[0].ContactName)
	assert.Equal(t, 6, view.Summary.Total)
	assert.Equal(t, 1, view.Summary.WonCount)
}

func TestTasksViewLabels(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/views/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Items []struct {
			ID       int64        `json:"id"`
			DueLabel crm.DueLabel `json:"dueLabel"`
			DealName string       `json:"dealTitle"`
		} `json:"items"`
		Summary crm.TaskSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Len(t, view.Items, 5)
	assert.Equal(t, int64(1), view.Items[0].ID)
	assert.Equal(t, crm.DueOverdue, view.Items[0].DueLabel)
	assert.Equal(t, crm.DueToday, view.Items[1].DueLabel)
	assert.Equal(t, "Analytics Platform Pilot", view.Items[1].DealName)

	assert.Equal(t, 1, view.Summary.Overdue)
	assert.Equal(t, 1, view.Summary.DueToday)
	assert.Equal(t, 4, view.Summary.Pending)
	assert.Equal(t, 1, view.Summary.Completed)
}

func TestDashboardView(t *testing.T) {
	server := newTestServer(t)
	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/views/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var dashboard crm.Dashboard
	require.NoError(t, json.Unmarshal(resp.Data, &dashboard))
	assert.Equal(t, 5, dashboard.Contacts)
	assert.Equal(t, 6, dashboard.TotalDeals)
	assert.Len(t, dashboard.RecentDeals, 5)
	assert.LessOrEqual(t, len(dashboard.RecentActivities), 5)
}

func TestUnknownView(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/v1/views/reports", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingContacts struct {
	crm.ContactService
}

func (failingContacts) GetAll(context.Context) ([]crm.Contact, error) {
	return []crm.Contact{}, crm.NewTransportError("record API unreachable", nil)
}

func TestViewLoadFailureIsReportedOnce(t *testing.T) {
	server := newTestServer(t)
	server.services.Contacts = failingContacts{}

	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/views/deals", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to load deals", resp.Message)
	assert.True(t, strings.Contains(resp.Error, "record API unreachable"))
}
