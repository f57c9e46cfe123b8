package main

import (
	"net/http"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
)

type dealRow struct {
	crm.Deal
	ContactName string `json:"contactName"`
}

type activityRow struct {
	crm.Activity
	ContactName string `json:"contactName"`
	DealTitle   string `json:"dealTitle"`
}

type taskRow struct {
	crm.Task
	ContactName string       `json:"contactName"`
	DealTitle   string       `json:"dealTitle"`
	DueLabel    crm.DueLabel `json:"dueLabel"`
}

type contactsView struct {
	Items   []crm.Contact      `json:"items"`
	Summary crm.ContactSummary `json:"summary"`
}

type dealsView struct {
	Items   []dealRow       `json:"items"`
	Summary crm.DealSummary `json:"summary"`
}

type activitiesView struct {
	Items   []activityRow       `json:"items"`
	Summary crm.ActivitySummary `json:"summary"`
}

type tasksView struct {
	Items   []taskRow       `json:"items"`
	Summary crm.TaskSummary `json:"summary"`
}

var viewLoads = map[string]internal.LoadSet{
	"dashboard":  internal.LoadAllSet,
	"contacts":   {Contacts: true},
	"deals":      {Contacts: true, Deals: true},
	"activities": {Contacts: true, Deals: true, Activities: true},
	"tasks":      {Contacts: true, Deals: true, Tasks: true},
}

// handleView handles GET /api/v1/views/{name}. The collections a view needs
// are loaded together; if any load fails the whole view fails with one
// message. Summaries are always computed over the unfiltered collections.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request, name string) {
	want, ok := viewLoads[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown view")
		return
	}
	cols, err := internal.LoadCollections(r.Context(), s.services, want)
	if err != nil {
		writeServiceError(w, err, "Failed to load "+name, nil)
		return
	}

	q := r.URL.Query()
	search := q.Get("q")
	now := s.now()
	dir := crm.NewDirectory(cols.Contacts, cols.Deals)

	var data any
	switch name {
	case "dashboard":
		data = crm.BuildDashboard(cols.Contacts, cols.Deals, cols.Activities, cols.Tasks, now)
	case "contacts":
		data = contactsView{
			Items: crm.FilterContacts(cols.Contacts, crm.ContactFilter{
				Search:   search,
				Industry: crm.Industry(q.Get("industry")),
			}),
			Summary: crm.SummarizeContacts(cols.Contacts),
		}
	case "deals":
		deals := crm.FilterDeals(cols.Deals, crm.DealFilter{Search: search, Stage: crm.Stage(q.Get("stage"))})
		rows := make([]dealRow, 0, len(deals))
		for _, d := range deals {
			rows = append(rows, dealRow{Deal: d, ContactName: dir.ContactName(d.ContactID)})
		}
		data = dealsView{Items: rows, Summary: crm.SummarizeDeals(cols.Deals)}
	case "activities":
		activities := crm.SortActivitiesNewestFirst(crm.FilterActivities(cols.Activities, crm.ActivityFilter{
			Search: search,
			Type:   crm.ActivityType(q.Get("type")),
		}))
		rows := make([]activityRow, 0, len(activities))
		for _, a := range activities {
			rows = append(rows, activityRow{
				Activity:    a,
				ContactName: dir.ContactName(a.ContactID),
				DealTitle:   dir.DealTitle(a.DealID),
			})
		}
		data = activitiesView{Items: rows, Summary: crm.SummarizeActivities(cols.Activities)}
	case "tasks":
		tasks := crm.SortTasksByDueDate(crm.FilterTasks(cols.Tasks, crm.TaskFilter{
			Search:   search,
			Status:   crm.TaskStatus(q.Get("status")),
			Priority: crm.Priority(q.Get("priority")),
		}))
		rows := make([]taskRow, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, taskRow{
				Task:        t,
				ContactName: dir.ContactName(t.ContactID),
				DealTitle:   dir.DealTitle(t.DealID),
				DueLabel:    crm.TaskDueLabel(t, now),
			})
		}
		data = tasksView{Items: rows, Summary: crm.SummarizeTasks(cols.Tasks, now)}
	}
	writeSuccess(w, http.StatusOK, data, "")
}
