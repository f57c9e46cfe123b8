package main

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/crm"
)

// NewContactMapper maps a contact export with the columns
// Name, Company, Email, Phone, Industry, Notes.
func NewContactMapper() RecordMapper {
	return NewMapperBuilder(crm.EntityContact).
		RequiredWith("Name", "name", Trim()).
		RequiredWith("Company", "company", Trim()).
		RequiredWith("Email", "email", ToLower()).
		RequiredWith("Phone", "phone", Trim()).
		MapWith("Industry", "industry", Default(Enum(crm.Industries...), string(crm.IndustryOther))).
		MapWith("Notes", "notes", Default(Trim(), "")).
		Build()
}

// NewDealMapper maps a pipeline export with the columns
// Title, Contact ID, Value, Stage, Probability, Expected Close.
func NewDealMapper() RecordMapper {
	return NewMapperBuilder(crm.EntityDeal).
		RequiredWith("Title", "title", Trim()).
		MapWith("Contact ID", "contactId", toRefID()).
		RequiredWith("Value", "value", ToMoney()).
		MapWith("Stage", "stage", Default(Enum(crm.PipelineStages...), string(crm.StageLead))).
		RequiredWith("Probability", "probability", ToInt()).
		RequiredWith("Expected Close", "expectedCloseDate", ToDate("2006-01-02", "01/02/2006", "2006-01-02T15:04:05Z07:00")).
		Build()
}

// NewTaskMapper maps a to-do export with the columns
// Title, Contact ID, Deal ID, Due, Status, Priority.
func NewTaskMapper() RecordMapper {
	return NewMapperBuilder(crm.EntityTask).
		RequiredWith("Title", "title", Trim()).
		MapWith("Contact ID", "contactId", toRefID()).
		MapWith("Deal ID", "dealId", toRefID()).
		RequiredWith("Due", "dueDate", ToDate("2006-01-02", "01/02/2006", "2006-01-02T15:04:05Z07:00")).
		MapWith("Status", "status", Default(Enum(crm.TaskPending, crm.TaskCompleted), string(crm.TaskPending))).
		MapWith("Priority", "priority", Default(Enum(crm.PriorityLow, crm.PriorityMedium, crm.PriorityHigh), string(crm.PriorityMedium))).
		Build()
}

// mapperFor resolves the -entity flag.
func mapperFor(entity string) (RecordMapper, error) {
	switch crm.EntityKind(strings.ToLower(entity)) {
	case crm.EntityContact:
		return NewContactMapper(), nil
	case crm.EntityDeal:
		return NewDealMapper(), nil
	case crm.EntityTask:
		return NewTaskMapper(), nil
	default:
		return nil, fmt.Errorf("unknown entity %q. Supported entities: contact, deal, task", entity)
	}
}

// toRefID reads an optional record reference. Blank and "none" cells become
// JSON null.
func toRefID() FieldMapper {
	return Custom(func(v string) (any, error) {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, "none") {
			return nil, nil
		}
		id, err := ToInt().Map(v)
		if err != nil {
			return nil, err
		}
		if id.(int) <= 0 {
			return nil, fmt.Errorf("reference id must be positive")
		}
		return id, nil
	})
}
