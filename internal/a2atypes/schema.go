package a2atypes

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaRegistry compiles and holds JSON Schemas keyed by skill ID, used to
// validate a message's "data" parts against whatever input contract a skill
// declares (spec.md §4.1: "data parts are opaque to the protocol core but
// MAY be schema-validated by the node"). A node with no schemas registered
// skips this check entirely — schema validation is additive, never a
// prerequisite for the structural checks in ValidateIncomingMessage.
type SchemaRegistry struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates it
// with skillID. A later call for the same skillID replaces the prior
// schema.
func (r *SchemaRegistry) Register(skillID string, schemaJSON []byte) error {
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("schema %q: decode: %w", skillID, err)
	}
	c := jsonschema.NewCompiler()
	resourceName := "skill:" + skillID
	if err := c.AddResource(resourceName, res); err != nil {
		return fmt.Errorf("schema %q: add resource: %w", skillID, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("schema %q: compile: %w", skillID, err)
	}
	r.schemas[skillID] = schema
	return nil
}

// ValidateData validates raw (a part's Data, a json.RawMessage) against the
// schema registered for skillID. Returns nil if no schema is registered for
// that skill — absence of a schema is not an error.
func (r *SchemaRegistry) ValidateData(skillID string, raw json.RawMessage) *ProtocolError {
	schema, ok := r.schemas[skillID]
	if !ok {
		return nil
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return NewProtocolError(ErrInvalidParams, "skill %q: data part is not valid JSON: %v", skillID, err)
	}
	if err := schema.Validate(inst); err != nil {
		return NewProtocolError(ErrInvalidParams, "skill %q: data part failed schema validation: %v", skillID, err)
	}
	return nil
}
