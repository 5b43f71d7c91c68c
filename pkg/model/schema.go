package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaType discriminates the payload-schema variants. Only JSON Schema is
// supported today; the tag leaves room for future variants (e.g. Avro).
type SchemaType string

const SchemaTypeJSON SchemaType = "json"

const (
	draftURI7 = "http://json-schema.org/draft-07/schema#"
	draftURI6 = "http://json-schema.org/draft-06/schema#"
	draftURI4 = "http://json-schema.org/draft-04/schema#"
)

// ValidationError describes one way a payload failed a schema.
type ValidationError struct {
	Message string
	Field   string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// JSONSchema pairs a raw JSON Schema document with its compiled form. The raw
// document is the source of truth: equality, hashing, and serialization use
// it alone, and the compiled schema is rebuilt whenever the document is
// loaded or deserialized.
type JSONSchema struct {
	raw      json.RawMessage
	draft    gojsonschema.Draft
	compiled *gojsonschema.Schema
}

// NewJSONSchema compiles raw into a validator. The draft is taken from the
// document's $schema declaration (Draft-04/06/07); absent or unrecognized
// declarations fall back to Draft-07.
func NewJSONSchema(raw json.RawMessage) (*JSONSchema, error) {
	draft := detectDraft(raw)
	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = draft
	loader.AutoDetect = false
	compiled, err := loader.Compile(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema: %w", err)
	}
	return &JSONSchema{raw: compactJSON(raw), draft: draft, compiled: compiled}, nil
}

func detectDraft(raw json.RawMessage) gojsonschema.Draft {
	var doc struct {
		Schema string `json:"$schema"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Schema == "" {
		return gojsonschema.Draft7
	}
	switch doc.Schema {
	case draftURI7:
		return gojsonschema.Draft7
	case draftURI6:
		return gojsonschema.Draft6
	case draftURI4:
		return gojsonschema.Draft4
	}
	log.Warn().Str("$schema", doc.Schema).Msg("Unrecognized JSON schema draft, falling back to Draft-07.")
	return gojsonschema.Draft7
}

func compactJSON(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// Raw returns the schema document as stored.
func (s *JSONSchema) Raw() json.RawMessage {
	return s.raw
}

// IsValid reports whether doc satisfies the schema. Documents the validator
// itself cannot process are treated as invalid.
func (s *JSONSchema) IsValid(doc any) bool {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	return err == nil && result.Valid()
}

// Validate checks doc against the schema and returns every violation.
func (s *JSONSchema) Validate(doc any) ([]ValidationError, error) {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]ValidationError, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		violations = append(violations, ValidationError{
			Message: resultErr.Description(),
			Field:   resultErr.Field(),
		})
	}
	return violations, nil
}

// Equal compares by raw document only.
func (s *JSONSchema) Equal(other *JSONSchema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return bytes.Equal(s.raw, other.raw)
}

func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	return s.raw, nil
}

func (s *JSONSchema) UnmarshalJSON(b []byte) error {
	parsed, err := NewJSONSchema(b)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Schema is the tagged payload-schema wrapper: {"type": "json", "data": …}.
type Schema struct {
	Type SchemaType
	JSON *JSONSchema
}

// NewJSONSchemaWrapper compiles raw and wraps it as a Schema.
func NewJSONSchemaWrapper(raw json.RawMessage) (Schema, error) {
	compiled, err := NewJSONSchema(raw)
	if err != nil {
		return Schema{}, err
	}
	return Schema{Type: SchemaTypeJSON, JSON: compiled}, nil
}

// IsValid reports whether doc satisfies the wrapped schema.
func (s Schema) IsValid(doc any) bool {
	switch s.Type {
	case SchemaTypeJSON:
		return s.JSON.IsValid(doc)
	}
	return false
}

// Validate checks doc against the wrapped schema.
func (s Schema) Validate(doc any) ([]ValidationError, error) {
	switch s.Type {
	case SchemaTypeJSON:
		return s.JSON.Validate(doc)
	}
	return nil, fmt.Errorf("cannot validate against schema type %q", s.Type)
}

// Equal compares by type and raw document.
func (s Schema) Equal(other Schema) bool {
	return s.Type == other.Type && s.JSON.Equal(other.JSON)
}

type schemaEnvelope struct {
	Type SchemaType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s Schema) MarshalJSON() ([]byte, error) {
	switch s.Type {
	case SchemaTypeJSON:
		return json.Marshal(schemaEnvelope{Type: s.Type, Data: s.JSON.Raw()})
	}
	return nil, fmt.Errorf("cannot serialize schema type %q", s.Type)
}

func (s *Schema) UnmarshalJSON(b []byte) error {
	var env schemaEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case SchemaTypeJSON:
		parsed, err := NewJSONSchemaWrapper(env.Data)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	return fmt.Errorf("unknown schema type %q", env.Type)
}

// DataSchema is a named payload constraint scoped to an event type and an
// optional event version. Field names keep the original snake_case wire form
// for back-compat.
type DataSchema struct {
	Name         string            `json:"name"`
	Description  *string           `json:"description,omitempty"`
	Schema       Schema            `json:"schema"`
	EventType    string            `json:"event_type"`
	EventVersion *string           `json:"event_version,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AppliesTo reports whether the schema is selected for an event of the given
// type and version. Selection is exact: versions match only when both are
// absent or both are present and equal.
func (d DataSchema) AppliesTo(eventType string, eventVersion *string) bool {
	if d.EventType != eventType {
		return false
	}
	if d.EventVersion == nil && eventVersion == nil {
		return true
	}
	if d.EventVersion == nil || eventVersion == nil {
		return false
	}
	return *d.EventVersion == *eventVersion
}

// TopicValidationConfig attaches a DataSchema to a topic.
type TopicValidationConfig struct {
	ID     uuid.UUID  `json:"id"`
	Topic  Topic      `json:"topic"`
	Schema DataSchema `json:"schema"`
}
