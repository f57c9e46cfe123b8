package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
	"go.uber.org/zap"
)

// collectionHandler serves the CRUD routes of one collection.
type collectionHandler interface {
	list(w http.ResponseWriter, r *http.Request)
	get(w http.ResponseWriter, r *http.Request, id int64)
	create(w http.ResponseWriter, r *http.Request)
	update(w http.ResponseWriter, r *http.Request, id int64)
	remove(w http.ResponseWriter, r *http.Request, ids []int64)
}

// recordHandler adapts a RecordService to HTTP. Bodies are checked by the
// schema validator before they are decoded into T or P.
type recordHandler[T any, P any] struct {
	entity    crm.EntityKind
	plural    string
	service   crm.RecordService[T, P]
	validator *internal.SchemaValidator
	defaults  func(*T)
}

func newRecordHandler[T any, P any](entity crm.EntityKind, plural string, service crm.RecordService[T, P], validator *internal.SchemaValidator, defaults func(*T)) *recordHandler[T, P] {
	return &recordHandler[T, P]{
		entity:    entity,
		plural:    plural,
		service:   service,
		validator: validator,
		defaults:  defaults,
	}
}

func (h *recordHandler[T, P]) label() string {
	return titleCase(string(h.entity))
}

// list handles GET /api/v1/{collection}
func (h *recordHandler[T, P]) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.GetAll(r.Context())
	if err != nil {
		writeServiceError(w, err, fmt.Sprintf("Failed to load %s", h.plural), records)
		return
	}
	writeSuccess(w, http.StatusOK, records, "")
}

// get handles GET /api/v1/{collection}/{id}
func (h *recordHandler[T, P]) get(w http.ResponseWriter, r *http.Request, id int64) {
	record, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, fmt.Sprintf("Failed to load %s", h.entity), nil)
		return
	}
	writeSuccess(w, http.StatusOK, record, "")
}

// create handles POST /api/v1/{collection}
func (h *recordHandler[T, P]) create(w http.ResponseWriter, r *http.Request) {
	failure := fmt.Sprintf("Failed to create %s", h.entity)
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if err := h.validator.ValidateCreate(h.entity, body); err != nil {
		writeServiceError(w, err, failure, nil)
		return
	}
	var record T
	if err := json.Unmarshal(body, &record); err != nil {
		writeServiceError(w, crm.NewValidationError("body", err.Error()).WithCause(err), failure, nil)
		return
	}
	if h.defaults != nil {
		h.defaults(&record)
	}

	created, err := h.service.Create(r.Context(), record)
	if err != nil {
		writeServiceError(w, err, failure, nil)
		return
	}
	writeSuccess(w, http.StatusCreated, created, fmt.Sprintf("%s created successfully", h.label()))
}

// update handles PUT /api/v1/{collection}/{id}
func (h *recordHandler[T, P]) update(w http.ResponseWriter, r *http.Request, id int64) {
	failure := fmt.Sprintf("Failed to update %s", h.entity)
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if err := h.validator.ValidatePatch(h.entity, body); err != nil {
		writeServiceError(w, err, failure, nil)
		return
	}
	var patch P
	if err := json.Unmarshal(body, &patch); err != nil {
		writeServiceError(w, crm.NewValidationError("body", err.Error()).WithCause(err), failure, nil)
		return
	}

	updated, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, failure, nil)
		return
	}
	writeSuccess(w, http.StatusOK, updated, fmt.Sprintf("%s updated successfully", h.label()))
}

// remove handles DELETE /api/v1/{collection}/{id} and DELETE /api/v1/{collection}?ids=
func (h *recordHandler[T, P]) remove(w http.ResponseWriter, r *http.Request, ids []int64) {
	result, err := h.service.Delete(r.Context(), ids...)
	if err != nil {
		message := fmt.Sprintf("Failed to delete %s", h.entity)
		if len(ids) > 1 {
			deleted := 0
			if result != nil {
				deleted = len(result.Deleted)
			}
			message = fmt.Sprintf("Deleted %d of %d %s", deleted, len(ids), h.plural)
		}
		writeServiceError(w, err, message, result)
		return
	}
	message := fmt.Sprintf("%s deleted successfully", h.label())
	if len(ids) > 1 {
		message = fmt.Sprintf("%d %s deleted successfully", len(ids), h.plural)
	}
	writeSuccess(w, http.StatusOK, result, message)
}

// handleDealStage handles PATCH /api/v1/deals/{id}/stage with {"stage": "..."}.
// Any stage may move to any other, including out of a closed stage.
func (s *Server) handleDealStage(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Stage crm.Stage `json:"stage"`
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeServiceError(w, crm.NewValidationError("stage", "request body must be a JSON object").WithCause(err), "Failed to update deal stage", nil)
		return
	}
	if !slices.Contains(crm.PipelineStages, req.Stage) {
		writeServiceError(w, crm.NewValidationError("stage", fmt.Sprintf("unknown stage %q", req.Stage)), "Failed to update deal stage", nil)
		return
	}

	deal, err := s.services.Deals.Update(r.Context(), id, crm.DealPatch{Stage: crm.Some(req.Stage)})
	if err != nil {
		writeServiceError(w, err, "Failed to update deal stage", nil)
		return
	}
	writeSuccess(w, http.StatusOK, deal, fmt.Sprintf("Deal moved to %s", titleCase(string(deal.Stage))))
}

// handleTaskToggle handles POST /api/v1/tasks/{id}/toggle, flipping the
// task between pending and completed.
func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	task, err := s.services.Tasks.GetByID(ctx, id)
	if err != nil {
		writeServiceError(w, err, "Failed to update task", nil)
		return
	}
	next := crm.TaskCompleted
	if task.Status == crm.TaskCompleted {
		next = crm.TaskPending
	}
	updated, err := s.services.Tasks.Update(ctx, id, crm.TaskPatch{Status: crm.Some(next)})
	if err != nil {
		writeServiceError(w, err, "Failed to update task", nil)
		return
	}
	message := "Task marked as pending"
	if updated.Status == crm.TaskCompleted {
		message = "Task marked as completed"
	}
	writeSuccess(w, http.StatusOK, updated, message)
}

// apiHandler dispatches /api/v1/ requests by collection, id, action and method.
func (s *Server) apiHandler(w http.ResponseWriter, r *http.Request) {
	collection, rawID, action, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if collection == "views" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if rawID == "" || action != "" {
			writeError(w, http.StatusNotFound, "Unknown view")
			return
		}
		s.handleView(w, r, rawID)
		return
	}

	h, ok := s.collections[collection]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown collection %q", collection))
		return
	}

	if rawID == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		case http.MethodDelete:
			ids, err := parseIDList(r.URL.Query().Get("ids"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.remove(w, r, ids)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if action != "" {
		switch {
		case collection == "deals" && action == "stage" && r.Method == http.MethodPatch:
			s.handleDealStage(w, r, id)
		case collection == "tasks" && action == "toggle" && r.Method == http.MethodPost:
			s.handleTaskToggle(w, r, id)
		default:
			writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown action %q", action))
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.remove(w, r, []int64{id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := writeSuccess(w, http.StatusOK, map[string]string{"status": "ok", "backend": string(s.backend)}, ""); err != nil {
		zap.S().Warnw("failed to write health response", "error", err)
	}
}

func contactDefaults(c *crm.Contact) {
	if c.Industry == "" {
		c.Industry = crm.IndustryOther
	}
}

func dealDefaults(d *crm.Deal) {
	if d.Stage == "" {
		d.Stage = crm.StageLead
	}
}

func taskDefaults(t *crm.Task) {
	if t.Status == "" {
		t.Status = crm.TaskPending
	}
	if t.Priority == "" {
		t.Priority = crm.PriorityMedium
	}
}
