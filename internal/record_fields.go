package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/crm"
)

// remoteCodec maps a record type to the record API's field names.
type remoteCodec[T any] struct {
	fields   []string
	orderBy  string
	sortType string
	encode   func(T) map[string]any
	decode   func(map[string]any) (T, error)
}

const (
	fieldID         = "Id"
	fieldName       = "Name"
	fieldCreatedOn  = "CreatedOn"
	fieldModifiedOn = "ModifiedOn"
	dateLayout      = "2006-01-02"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

// fieldReader extracts typed values from a loosely typed record. The first
// failure is kept in err; missing and null fields read as zero values.
type fieldReader struct {
	m   map[string]any
	err error
}

func (r *fieldReader) fail(key string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s: expected %s, got %T", key, want, v)
	}
}

func (r *fieldReader) raw(key string) (any, bool) {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *fieldReader) str(key string) string {
	v, ok := r.raw(key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		r.fail(key, v, "string")
		return ""
	}
}

func (r *fieldReader) float(key string) float64 {
	v, ok := r.raw(key)
	if !ok {
		return 0
	}
	f, err := toFloat(v)
	if err != nil {
		r.fail(key, v, "number")
	}
	return f
}

func (r *fieldReader) int(key string) int64 {
	f := r.float(key)
	if f != math.Trunc(f) {
		r.fail(key, f, "integer")
		return 0
	}
	return int64(f)
}

func (r *fieldReader) optInt(key string) *int {
	if _, ok := r.raw(key); !ok {
		return nil
	}
	n := int(r.int(key))
	return &n
}

// ref reads a lookup field, which the record API returns either as a bare id
// or as an object carrying "Id".
func (r *fieldReader) ref(key string) crm.Ref {
	v, ok := r.raw(key)
	if !ok {
		return crm.Ref{}
	}
	if obj, isObj := v.(map[string]any); isObj {
		v, ok = obj[fieldID]
		if !ok || v == nil {
			return crm.Ref{}
		}
	}
	f, err := toFloat(v)
	if err != nil || f != math.Trunc(f) {
		r.fail(key, v, "lookup id")
		return crm.Ref{}
	}
	return crm.RefTo(int64(f))
}

func (r *fieldReader) time(key string) time.Time {
	v, ok := r.raw(key)
	if !ok {
		return time.Time{}
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail(key, v, "timestamp")
		return time.Time{}
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	r.fail(key, v, "timestamp")
	return time.Time{}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func refValue(r crm.Ref) any {
	if id, ok := r.Get(); ok {
		return id
	}
	return nil
}

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func dateValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

// withID adds the record id for updates. Creates omit it.
func withID(fields map[string]any, id int64) map[string]any {
	if id > 0 {
		fields[fieldID] = id
	}
	return fields
}

var contactCodec = remoteCodec[crm.Contact]{
	fields:   []string{fieldID, fieldName, "company_c", "email_c", "phone_c", "industry_c", "notes_c", fieldCreatedOn, fieldModifiedOn},
	orderBy:  fieldName,
	sortType: "ASC",
	encode: func(c crm.Contact) map[string]any {
		return withID(map[string]any{
			fieldName:    c.Name,
			"company_c":  c.Company,
			"email_c":    c.Email,
			"phone_c":    c.Phone,
			"industry_c": string(c.Industry),
			"notes_c":    c.Notes,
		}, c.ID)
	},
	decode: func(m map[string]any) (crm.Contact, error) {
		r := &fieldReader{m: m}
		c := crm.Contact{
			ID:        r.int(fieldID),
			Name:      r.str(fieldName),
			Company:   r.str("company_c"),
			Email:     r.str("email_c"),
			Phone:     r.str("phone_c"),
			Industry:  crm.Industry(r.str("industry_c")),
			Notes:     r.str("notes_c"),
			CreatedAt: r.time(fieldCreatedOn),
			UpdatedAt: r.time(fieldModifiedOn),
		}
		return c, r.err
	},
}

var dealCodec = remoteCodec[crm.Deal]{
	fields:   []string{fieldID, fieldName, "title_c", "contact_id_c", "value_c", "stage_c", "probability_c", "expected_close_date_c", fieldCreatedOn, fieldModifiedOn},
	orderBy:  "title_c",
	sortType: "ASC",
	encode: func(d crm.Deal) map[string]any {
		return withID(map[string]any{
			fieldName:               d.Title,
			"title_c":               d.Title,
			"contact_id_c":          refValue(d.ContactID),
			"value_c":               d.Value,
			"stage_c":               string(d.Stage),
			"probability_c":         d.Probability,
			"expected_close_date_c": dateValue(d.ExpectedCloseDate),
		}, d.ID)
	},
	decode: func(m map[string]any) (crm.Deal, error) {
		r := &fieldReader{m: m}
		d := crm.Deal{
			ID:                r.int(fieldID),
			Title:             r.str("title_c"),
			ContactID:         r.ref("contact_id_c"),
			Value:             r.float("value_c"),
			Stage:             crm.Stage(r.str("stage_c")),
			Probability:       int(r.int("probability_c")),
			ExpectedCloseDate: r.time("expected_close_date_c"),
			CreatedAt:         r.time(fieldCreatedOn),
			UpdatedAt:         r.time(fieldModifiedOn),
		}
		if d.Title == "" {
			d.Title = r.str(fieldName)
		}
		return d, r.err
	},
}

var activityCodec = remoteCodec[crm.Activity]{
	fields:   []string{fieldID, fieldName, "type_c", "contact_id_c", "deal_id_c", "subject_c", "notes_c", "date_c", "duration_c"},
	orderBy:  "date_c",
	sortType: "DESC",
	encode: func(a crm.Activity) map[string]any {
		fields := map[string]any{
			fieldName:      a.Subject,
			"type_c":       string(a.Type),
			"contact_id_c": refValue(a.ContactID),
			"deal_id_c":    refValue(a.DealID),
			"subject_c":    a.Subject,
			"notes_c":      a.Notes,
			"date_c":       timeValue(a.Date),
			"duration_c":   nil,
		}
		if a.Duration != nil {
			fields["duration_c"] = *a.Duration
		}
		return withID(fields, a.ID)
	},
	decode: func(m map[string]any) (crm.Activity, error) {
		r := &fieldReader{m: m}
		a := crm.Activity{
			ID:        r.int(fieldID),
			Type:      crm.ActivityType(r.str("type_c")),
			ContactID: r.ref("contact_id_c"),
			DealID:    r.ref("deal_id_c"),
			Subject:   r.str("subject_c"),
			Notes:     r.str("notes_c"),
			Date:      r.time("date_c"),
			Duration:  r.optInt("duration_c"),
		}
		return a, r.err
	},
}

var taskCodec = remoteCodec[crm.Task]{
	fields:   []string{fieldID, fieldName, "title_c", "contact_id_c", "deal_id_c", "due_date_c", "status_c", "priority_c"},
	orderBy:  "due_date_c",
	sortType: "ASC",
	encode: func(t crm.Task) map[string]any {
		return withID(map[string]any{
			fieldName:      t.Title,
			"title_c":      t.Title,
			"contact_id_c": refValue(t.ContactID),
			"deal_id_c":    refValue(t.DealID),
			"due_date_c":   timeValue(t.DueDate),
			"status_c":     string(t.Status),
			"priority_c":   string(t.Priority),
		}, t.ID)
	},
	decode: func(m map[string]any) (crm.Task, error) {
		r := &fieldReader{m: m}
		t := crm.Task{
			ID:        r.int(fieldID),
			Title:     r.str("title_c"),
			ContactID: r.ref("contact_id_c"),
			DealID:    r.ref("deal_id_c"),
			DueDate:   r.time("due_date_c"),
			Status:    crm.TaskStatus(r.str("status_c")),
			Priority:  crm.Priority(r.str("priority_c")),
		}
		if t.Title == "" {
			t.Title = r.str(fieldName)
		}
		return t, r.err
	},
}
