package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EntityKind names one of the four record types held by the CRM.
type EntityKind string

const (
	EntityContact  EntityKind = "contact"
	EntityDeal     EntityKind = "deal"
	EntityActivity EntityKind = "activity"
	EntityTask     EntityKind = "task"
)

// Industry is the enumerated industry of a contact.
type Industry string

const (
	IndustryTechnology    Industry = "technology"
	IndustryFinance       Industry = "finance"
	IndustryHealthcare    Industry = "healthcare"
	IndustryManufacturing Industry = "manufacturing"
	IndustryRetail        Industry = "retail"
	IndustryConsulting    Industry = "consulting"
	IndustryOther         Industry = "other"
)

// Industries lists every valid industry in display order.
var Industries = []Industry{
	IndustryTechnology,
	IndustryFinance,
	IndustryHealthcare,
	IndustryManufacturing,
	IndustryRetail,
	IndustryConsulting,
	IndustryOther,
}

// Stage is a deal's position in the sales pipeline.
type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageClosedWon   Stage = "closed-won"
	StageClosedLost  Stage = "closed-lost"
)

// PipelineStages lists the stages in pipeline order.
var PipelineStages = []Stage{
	StageLead,
	StageQualified,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

// IsTerminal reports whether the stage closes the deal.
// Moving a deal out of a terminal stage is allowed.
func (s Stage) IsTerminal() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// IsOpen reports whether the stage counts towards the open pipeline.
func (s Stage) IsOpen() bool {
	return !s.IsTerminal()
}

// ActivityType is the kind of logged interaction.
type ActivityType string

const (
	ActivityCall    ActivityType = "call"
	ActivityMeeting ActivityType = "meeting"
	ActivityEmail   ActivityType = "email"
	ActivityNote    ActivityType = "note"
)

// ActivityTypes lists every activity type in display order.
var ActivityTypes = []ActivityType{ActivityCall, ActivityMeeting, ActivityEmail, ActivityNote}

// TaskStatus is the completion state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Ref is an optional reference to another record by id. The zero value is
// "no reference". It encodes as JSON null or a positive integer.
type Ref struct {
	ID    int64
	Valid bool
}

// RefTo returns a reference to id. Non-positive ids yield an empty reference.
func RefTo(id int64) Ref {
	if id <= 0 {
		return Ref{}
	}
	return Ref{ID: id, Valid: true}
}

// Get returns the referenced id and whether the reference is set.
func (r Ref) Get() (int64, bool) {
	return r.ID, r.Valid
}

func (r Ref) String() string {
	if !r.Valid {
		return "none"
	}
	return fmt.Sprintf("%d", r.ID)
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Ref{}
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("reference must be an integer id or null: %w", err)
	}
	if id <= 0 {
		return fmt.Errorf("reference id must be positive, got %d", id)
	}
	*r = Ref{ID: id, Valid: true}
	return nil
}

// Optional carries one field of a partial update. Set is true when the field
// was supplied, including an explicit JSON null.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a supplied optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	var zero T
	o.Value = zero
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		// Let types with their own null handling (Ref) see the literal.
		if u, ok := any(&o.Value).(json.Unmarshaler); ok {
			return u.UnmarshalJSON(data)
		}
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Contact is a person the sales team works with.
type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Industry  Industry  `json:"industry"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Deal is an opportunity moving through the pipeline.
type Deal struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	ContactID         Ref       `json:"contactId"`
	Value             float64   `json:"value"`
	Stage             Stage     `json:"stage"`
	Probability       int       `json:"probability"`
	ExpectedCloseDate time.Time `json:"expectedCloseDate"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Activity is a logged interaction.
type Activity struct {
	ID        int64        `json:"id"`
	Type      ActivityType `json:"type"`
	ContactID Ref          `json:"contactId"`
	DealID    Ref          `json:"dealId"`
	Subject   string       `json:"subject"`
	Notes     string       `json:"notes"`
	Date      time.Time    `json:"date"`
	Duration  *int         `json:"duration,omitempty"` // minutes
}

// Task is a to-do item, optionally tied to a contact or deal.
type Task struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	ContactID Ref        `json:"contactId"`
	DealID    Ref        `json:"dealId"`
	DueDate   time.Time  `json:"dueDate"`
	Status    TaskStatus `json:"status"`
	Priority  Priority   `json:"priority"`
}

// ContactPatch is a partial update of a contact. ID is accepted on the wire
// and ignored.
type ContactPatch struct {
	ID       Optional[int64]    `json:"id"`
	Name     Optional[string]   `json:"name"`
	Company  Optional[string]   `json:"company"`
	Email    Optional[string]   `json:"email"`
	Phone    Optional[string]   `json:"phone"`
	Industry Optional[Industry] `json:"industry"`
	Notes    Optional[string]   `json:"notes"`
}

// Apply merges the supplied fields over c.
func (p ContactPatch) Apply(c *Contact) {
	if p.Name.Set {
		c.Name = p.Name.Value
	}
	if p.Company.Set {
		c.Company = p.Company.Value
	}
	if p.Email.Set {
		c.Email = p.Email.Value
	}
	if p.Phone.Set {
		c.Phone = p.Phone.Value
	}
	if p.Industry.Set {
		c.Industry = p.Industry.Value
	}
	if p.Notes.Set {
		c.Notes = p.Notes.Value
	}
}

// DealPatch is a partial update of a deal.
type DealPatch struct {
	ID                Optional[int64]     `json:"id"`
	Title             Optional[string]    `json:"title"`
	ContactID         Optional[Ref]       `json:"contactId"`
	Value             Optional[float64]   `json:"value"`
	Stage             Optional[Stage]     `json:"stage"`
	Probability       Optional[int]       `json:"probability"`
	ExpectedCloseDate Optional[time.Time] `json:"expectedCloseDate"`
}

// Apply merges the supplied fields over d.
func (p DealPatch) Apply(d *Deal) {
	if p.Title.Set {
		d.Title = p.Title.Value
	}
	if p.ContactID.Set {
		d.ContactID = p.ContactID.Value
	}
	if p.Value.Set {
		d.Value = p.Value.Value
	}
	if p.Stage.Set {
		d.Stage = p.Stage.Value
	}
	if p.Probability.Set {
		d.Probability = p.Probability.Value
	}
	if p.ExpectedCloseDate.Set {
		d.ExpectedCloseDate = p.ExpectedCloseDate.Value
	}
}

// ActivityPatch is a partial update of an activity.
type ActivityPatch struct {
	ID        Optional[int64]        `json:"id"`
	Type      Optional[ActivityType] `json:"type"`
	ContactID Optional[Ref]          `json:"contactId"`
	DealID    Optional[Ref]          `json:"dealId"`
	Subject   Optional[string]       `json:"subject"`
	Notes     Optional[string]       `json:"notes"`
	Date      Optional[time.Time]    `json:"date"`
	Duration  Optional[*int]         `json:"duration"`
}

// Apply merges the supplied fields over a.
func (p ActivityPatch) Apply(a *Activity) {
	if p.Type.Set {
		a.Type = p.Type.Value
	}
	if p.ContactID.Set {
		a.ContactID = p.ContactID.Value
	}
	if p.DealID.Set {
		a.DealID = p.DealID.Value
	}
	if p.Subject.Set {
		a.Subject = p.Subject.Value
	}
	if p.Notes.Set {
		a.Notes = p.Notes.Value
	}
	if p.Date.Set {
		a.Date = p.Date.Value
	}
	if p.Duration.Set {
		a.Duration = p.Duration.Value
	}
}

// TaskPatch is a partial update of a task.
type TaskPatch struct {
	ID        Optional[int64]      `json:"id"`
	Title     Optional[string]     `json:"title"`
	ContactID Optional[Ref]        `json:"contactId"`
	DealID    Optional[Ref]        `json:"dealId"`
	DueDate   Optional[time.Time]  `json:"dueDate"`
	Status    Optional[TaskStatus] `json:"status"`
	Priority  Optional[Priority]   `json:"priority"`
}

// Apply merges the supplied fields over t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.ContactID.Set {
		t.ContactID = p.ContactID.Value
	}
	if p.DealID.Set {
		t.DealID = p.DealID.Value
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Value
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
}

// DeleteFailure records why one id of a delete request was not removed.
type DeleteFailure struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DeleteResult reports the per-id outcome of a delete request.
type DeleteResult struct {
	Requested []int64         `json:"requested"`
	Deleted   []int64         `json:"deleted"`
	Failed    []DeleteFailure `json:"failed"`
}

// Success is true only when every requested id was deleted.
func (r *DeleteResult) Success() bool {
	return r != nil && len(r.Failed) == 0 && len(r.Deleted) == len(r.Requested)
}
