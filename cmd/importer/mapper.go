package main

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/crm"
)

// FieldMapper converts one CSV cell into a record field value.
type FieldMapper interface {
	Map(csvValue string) (any, error)
}

// FieldMapping binds a CSV column to a record field.
type FieldMapping struct {
	CSVColumn string
	Field     string
	Mapper    FieldMapper
	Required  bool
}

// RecordMapper turns CSV rows into record bodies for one entity.
type RecordMapper interface {
	Entity() crm.EntityKind
	MapRecord(row map[string]string) (map[string]any, error)
	Mappings() []FieldMapping
}

// MapperBuilder assembles a RecordMapper column by column.
type MapperBuilder struct {
	entity   crm.EntityKind
	mappings []FieldMapping
}

// NewMapperBuilder starts a mapper for entity.
func NewMapperBuilder(entity crm.EntityKind) *MapperBuilder {
	return &MapperBuilder{entity: entity}
}

// Map copies a column verbatim into field.
func (b *MapperBuilder) Map(csvColumn, field string) *MapperBuilder {
	return b.MapWith(csvColumn, field, Identity())
}

// MapWith maps a column through mapper.
func (b *MapperBuilder) MapWith(csvColumn, field string, mapper FieldMapper) *MapperBuilder {
	b.mappings = append(b.mappings, FieldMapping{
		CSVColumn: csvColumn,
		Field:     field,
		Mapper:    mapper,
	})
	return b
}

// Required maps a column that must be present and non-empty.
func (b *MapperBuilder) Required(csvColumn, field string) *MapperBuilder {
	return b.RequiredWith(csvColumn, field, Identity())
}

// RequiredWith maps a required column through mapper.
func (b *MapperBuilder) RequiredWith(csvColumn, field string, mapper FieldMapper) *MapperBuilder {
	b.mappings = append(b.mappings, FieldMapping{
		CSVColumn: csvColumn,
		Field:     field,
		Mapper:    mapper,
		Required:  true,
	})
	return b
}

// Build returns the finished mapper.
func (b *MapperBuilder) Build() RecordMapper {
	return &recordMapper{
		entity:   b.entity,
		mappings: append([]FieldMapping(nil), b.mappings...),
	}
}

type recordMapper struct {
	entity   crm.EntityKind
	mappings []FieldMapping
}

func (m *recordMapper) Entity() crm.EntityKind {
	return m.entity
}

func (m *recordMapper) Mappings() []FieldMapping {
	return m.mappings
}

// MapRecord applies every mapping to row. Nil results are left out of the
// body so schema defaults and required checks see a missing field.
func (m *recordMapper) MapRecord(row map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(m.mappings))
	for _, mapping := range m.mappings {
		raw, ok := row[mapping.CSVColumn]
		if mapping.Required && (!ok || strings.TrimSpace(raw) == "") {
			return nil, &MappingError{
				CSVColumn: mapping.CSVColumn,
				Field:     mapping.Field,
				Message:   "required field is missing or empty",
			}
		}

		value, err := mapping.Mapper.Map(raw)
		if err != nil {
			return nil, &MappingError{
				CSVColumn: mapping.CSVColumn,
				Field:     mapping.Field,
				Message:   err.Error(),
				Value:     raw,
			}
		}
		if value == nil {
			continue
		}
		out[mapping.Field] = value
	}
	return out, nil
}

// MappingError reports a cell that could not be mapped.
type MappingError struct {
	CSVColumn string
	Field     string
	Message   string
	Value     string
}

func (e *MappingError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("mapping error for column %q -> %q: %s (value: %q)", e.CSVColumn, e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("mapping error for column %q -> %q: %s", e.CSVColumn, e.Field, e.Message)
}
