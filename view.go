package crm

import (
	"slices"
	"strings"
	"time"
)

// ContactFilter narrows a contact list. Empty fields are inactive.
type ContactFilter struct {
	Search   string   `json:"search,omitempty"`
	Industry Industry `json:"industry,omitempty"`
}

// DealFilter narrows a deal list. Empty fields are inactive.
type DealFilter struct {
	Search string `json:"search,omitempty"`
	Stage  Stage  `json:"stage,omitempty"`
}

// ActivityFilter narrows an activity list. Empty fields are inactive.
type ActivityFilter struct {
	Search string       `json:"search,omitempty"`
	Type   ActivityType `json:"type,omitempty"`
}

// TaskFilter narrows a task list. Empty fields are inactive.
type TaskFilter struct {
	Search   string     `json:"search,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
	Priority Priority   `json:"priority,omitempty"`
}

// matchesSearch reports whether term is a case-insensitive substring of any
// field. A blank term matches everything.
func matchesSearch(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func filterSlice[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterContacts returns the contacts matching every active predicate, in input order.
func FilterContacts(contacts []Contact, f ContactFilter) []Contact {
	return filterSlice(contacts, func(c Contact) bool {
		if f.Industry != "" && c.Industry != f.Industry {
			return false
		}
		return matchesSearch(f.Search, c.Name, c.Company, c.Email)
	})
}

// FilterDeals returns the deals matching every active predicate, in input order.
func FilterDeals(deals []Deal, f DealFilter) []Deal {
	return filterSlice(deals, func(d Deal) bool {
		if f.Stage != "" && d.Stage != f.Stage {
			return false
		}
		return matchesSearch(f.Search, d.Title)
	})
}

// FilterActivities returns the activities matching every active predicate, in input order.
func FilterActivities(activities []Activity, f ActivityFilter) []Activity {
	return filterSlice(activities, func(a Activity) bool {
		if f.Type != "" && a.Type != f.Type {
			return false
		}
		return matchesSearch(f.Search, a.Subject, a.Notes)
	})
}

// FilterTasks returns the tasks matching every active predicate, in input order.
func FilterTasks(tasks []Task, f TaskFilter) []Task {
	return filterSlice(tasks, func(t Task) bool {
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		if f.Priority != "" && t.Priority != f.Priority {
			return false
		}
		return matchesSearch(f.Search, t.Title)
	})
}

// SortActivitiesNewestFirst returns a copy of activities ordered by date,
// newest first. Equal dates keep their input order.
func SortActivitiesNewestFirst(activities []Activity) []Activity {
	out := slices.Clone(activities)
	if out == nil {
		out = []Activity{}
	}
	slices.SortStableFunc(out, func(a, b Activity) int {
		return b.Date.Compare(a.Date)
	})
	return out
}

// SortTasksByDueDate returns a copy of tasks ordered by due date, earliest first.
func SortTasksByDueDate(tasks []Task) []Task {
	out := slices.Clone(tasks)
	if out == nil {
		out = []Task{}
	}
	slices.SortStableFunc(out, func(a, b Task) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return out
}

// RecentActivities returns at most n activities, newest first.
func RecentActivities(activities []Activity, n int) []Activity {
	sorted := SortActivitiesNewestFirst(activities)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// sameDay reports whether t falls on the calendar day of now, in now's location.
func sameDay(t, now time.Time) bool {
	t = t.In(now.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
