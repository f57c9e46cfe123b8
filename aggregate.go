package crm

import (
	"slices"
	"strings"
	"time"
)

// StageColumn is one column of the deal pipeline board.
type StageColumn struct {
	Stage Stage   `json:"stage"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
	Deals []Deal  `json:"deals"`
}

// DealSummary aggregates a deal collection.
type DealSummary struct {
	Total         int           `json:"total"`
	TotalValue    float64       `json:"totalValue"`
	PipelineValue float64       `json:"pipelineValue"`
	WonValue      float64       `json:"wonValue"`
	WonCount      int           `json:"wonCount"`
	LostCount     int           `json:"lostCount"`
	ByStage       []StageColumn `json:"byStage"`
}

// SummarizeDeals computes totals and the per-stage board. Pipeline value
// covers every deal that is not closed-won or closed-lost.
func SummarizeDeals(deals []Deal) DealSummary {
	s := DealSummary{Total: len(deals)}
	columns := make(map[Stage]*StageColumn, len(PipelineStages))
	s.ByStage = make([]StageColumn, len(PipelineStages))
	for i, stage := range PipelineStages {
		s.ByStage[i] = StageColumn{Stage: stage, Deals: []Deal{}}
		columns[stage] = &s.ByStage[i]
	}

	for _, d := range deals {
		s.TotalValue += d.Value
		switch d.Stage {
		case StageClosedWon:
			s.WonValue += d.Value
			s.WonCount++
		case StageClosedLost:
			s.LostCount++
		default:
			s.PipelineValue += d.Value
		}
		if col, ok := columns[d.Stage]; ok {
			col.Count++
			col.Value += d.Value
			col.Deals = append(col.Deals, d)
		}
	}
	return s
}

// TaskSummary counts tasks by due state. Overdue and due-today only count
// pending tasks and may overlap when a task is due earlier today.
type TaskSummary struct {
	Total     int `json:"total"`
	Overdue   int `json:"overdue"`
	DueToday  int `json:"dueToday"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// SummarizeTasks counts tasks relative to now.
func SummarizeTasks(tasks []Task, now time.Time) TaskSummary {
	s := TaskSummary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			s.Completed++
			continue
		case TaskPending:
			s.Pending++
		default:
			continue
		}
		if t.DueDate.Before(now) {
			s.Overdue++
		}
		if sameDay(t.DueDate, now) {
			s.DueToday++
		}
	}
	return s
}

// ActivitySummary counts activities per type.
type ActivitySummary struct {
	Total  int                  `json:"total"`
	ByType map[ActivityType]int `json:"byType"`
}

// SummarizeActivities counts activities per type. Every known type is
// present in the result, possibly with zero.
func SummarizeActivities(activities []Activity) ActivitySummary {
	s := ActivitySummary{Total: len(activities), ByType: make(map[ActivityType]int, len(ActivityTypes))}
	for _, t := range ActivityTypes {
		s.ByType[t] = 0
	}
	for _, a := range activities {
		s.ByType[a.Type]++
	}
	return s
}

// ContactSummary describes a contact collection.
type ContactSummary struct {
	Total      int        `json:"total"`
	Companies  int        `json:"companies"`
	Industries []Industry `json:"industries"`
}

// SummarizeContacts counts distinct companies (case-insensitive) and lists
// the industries in use, sorted.
func SummarizeContacts(contacts []Contact) ContactSummary {
	companies := make(map[string]struct{})
	industries := make(map[Industry]struct{})
	for _, c := range contacts {
		if name := strings.ToLower(strings.TrimSpace(c.Company)); name != "" {
			companies[name] = struct{}{}
		}
		if c.Industry != "" {
			industries[c.Industry] = struct{}{}
		}
	}
	out := ContactSummary{Total: len(contacts), Companies: len(companies), Industries: make([]Industry, 0, len(industries))}
	for ind := range industries {
		out.Industries = append(out.Industries, ind)
	}
	slices.Sort(out.Industries)
	return out
}

// Dashboard is the overview across all four entities.
type Dashboard struct {
	Contacts         int        `json:"contacts"`
	TotalDeals       int        `json:"totalDeals"`
	WonDeals         int        `json:"wonDeals"`
	TotalValue       float64    `json:"totalValue"`
	PipelineValue    float64    `json:"pipelineValue"`
	PendingTasks     int        `json:"pendingTasks"`
	RecentActivities []Activity `json:"recentActivities"`
	RecentDeals      []Deal     `json:"recentDeals"`
}

const dashboardListSize = 5

// BuildDashboard computes the overview. Recent deals are the first deals in
// store order.
func BuildDashboard(contacts []Contact, deals []Deal, activities []Activity, tasks []Task, now time.Time) Dashboard {
	deal := SummarizeDeals(deals)
	task := SummarizeTasks(tasks, now)

	recentDeals := slices.Clone(deals)
	if len(recentDeals) > dashboardListSize {
		recentDeals = recentDeals[:dashboardListSize]
	}
	if recentDeals == nil {
		recentDeals = []Deal{}
	}

	return Dashboard{
		Contacts:         len(contacts),
		TotalDeals:       deal.Total,
		WonDeals:         deal.WonCount,
		TotalValue:       deal.TotalValue,
		PipelineValue:    deal.PipelineValue,
		PendingTasks:     task.Pending,
		RecentActivities: RecentActivities(activities, dashboardListSize),
		RecentDeals:      recentDeals,
	}
}

// DueLabel classifies a task's due date for display.
type DueLabel string

const (
	DueCompleted DueLabel = "completed"
	DueOverdue   DueLabel = "overdue"
	DueToday     DueLabel = "today"
	DueTomorrow  DueLabel = "tomorrow"
	DueUpcoming  DueLabel = "upcoming"
)

// TaskDueLabel returns the display label of t at now. A task due later today
// is "today" rather than "overdue".
func TaskDueLabel(t Task, now time.Time) DueLabel {
	switch {
	case t.Status == TaskCompleted:
		return DueCompleted
	case sameDay(t.DueDate, now):
		return DueToday
	case sameDay(t.DueDate, now.AddDate(0, 0, 1)):
		return DueTomorrow
	case t.DueDate.Before(now):
		return DueOverdue
	default:
		return DueUpcoming
	}
}

// Directory resolves reference ids to display names.
type Directory struct {
	contacts map[int64]string
	deals    map[int64]string
}

// UnknownName is shown for references whose record no longer exists.
const UnknownName = "unknown"

// NewDirectory indexes contacts and deals by id.
func NewDirectory(contacts []Contact, deals []Deal) *Directory {
	d := &Directory{
		contacts: make(map[int64]string, len(contacts)),
		deals:    make(map[int64]string, len(deals)),
	}
	for _, c := range contacts {
		d.contacts[c.ID] = c.Name
	}
	for _, deal := range deals {
		d.deals[deal.ID] = deal.Title
	}
	return d
}

// ContactName returns the contact's name, "" for an empty reference and
// UnknownName for an orphan.
func (d *Directory) ContactName(ref Ref) string {
	return lookupName(d.contacts, ref)
}

// DealTitle returns the deal's title, "" for an empty reference and
// UnknownName for an orphan.
func (d *Directory) DealTitle(ref Ref) string {
	return lookupName(d.deals, ref)
}

func lookupName(names map[int64]string, ref Ref) string {
	id, ok := ref.Get()
	if !ok {
		return ""
	}
	if name, found := names[id]; found {
		return name
	}
	return UnknownName
}
