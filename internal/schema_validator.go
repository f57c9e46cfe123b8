package internal

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/crm"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

type entitySchema struct {
	required []string
	props    map[string]*jsonschema.Resolved
}

// SchemaValidator checks request bodies against the entity JSON schemas
// before they reach a record service. Each property is validated on its own
// so every rejected field is reported.
type SchemaValidator struct {
	schemas map[crm.EntityKind]*entitySchema
}

// NewSchemaValidator loads the embedded entity schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	v := &SchemaValidator{schemas: make(map[crm.EntityKind]*entitySchema)}
	for _, entity := range []crm.EntityKind{crm.EntityContact, crm.EntityDeal, crm.EntityActivity, crm.EntityTask} {
		data, err := embeddedSchemas.ReadFile("schemas/" + string(entity) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", entity, err)
		}
		es, err := compileEntitySchema(data)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", entity, err)
		}
		v.schemas[entity] = es
	}
	return v, nil
}

func compileEntitySchema(data []byte) (*entitySchema, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	es := &entitySchema{
		required: slices.Clone(schema.Required),
		props:    make(map[string]*jsonschema.Resolved, len(schema.Properties)),
	}
	for name, prop := range schema.Properties {
		resolved, err := prop.Resolve(&jsonschema.ResolveOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve property %s: %w", name, err)
		}
		es.props[name] = resolved
	}
	return es, nil
}

// ValidateCreate checks a full record body. Required fields must be present
// and non-null.
func (v *SchemaValidator) ValidateCreate(entity crm.EntityKind, body []byte) error {
	return v.validate(entity, body, true)
}

// ValidatePatch checks a partial update body. Only supplied fields are checked.
func (v *SchemaValidator) ValidatePatch(entity crm.EntityKind, body []byte) error {
	return v.validate(entity, body, false)
}

func (v *SchemaValidator) validate(entity crm.EntityKind, body []byte, full bool) error {
	es, ok := v.schemas[entity]
	if !ok {
		return crm.NewInternalError(fmt.Sprintf("no schema for %s", entity), nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return crm.NewValidationError("body", "request body is required")
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return crm.NewValidationError("body", "request body must be a JSON object").WithCause(err)
	}

	var fields []crm.FieldError
	if full {
		for _, name := range es.required {
			if value, present := doc[name]; !present || value == nil {
				fields = append(fields, crm.FieldError{Field: name, Message: "is required"})
			}
		}
	}
	for name, value := range doc {
		prop, known := es.props[name]
		if !known {
			continue
		}
		if full && value == nil && slices.Contains(es.required, name) {
			continue // already reported
		}
		if err := prop.Validate(value); err != nil {
			fields = append(fields, crm.FieldError{Field: name, Message: err.Error()})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	slices.SortFunc(fields, func(a, b crm.FieldError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return crm.NewValidationFailure(entity, fields)
}
