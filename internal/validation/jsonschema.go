package validation

import (
	"bytes"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/cdnflow/pkg/schema"
)

const (
	documentSchemaURL   = "https://cdnflow.dev/schemas/document.json"
	savedSchemaURL      = "https://cdnflow.dev/schemas/saved.json"
	collectionSchemaURL = "https://cdnflow.dev/schemas/collection.json"
)

// documentSchemaJSON describes an import file or a single persisted document.
// Unknown properties are tolerated so files written by other tools still load.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://cdnflow.dev/schemas/document.json",
  "type": "object",
  "required": ["name", "nodes", "edges"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "version": { "type": "string" },
    "nodes": { "type": "array", "items": { "$ref": "#/$defs/node" } },
    "edges": { "type": "array", "items": { "$ref": "#/$defs/edge" } },
    "createdAt": { "type": "string", "format": "date-time" },
    "updatedAt": { "type": "string", "format": "date-time" },
    "exportedAt": { "type": "string", "format": "date-time" }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type", "position", "data"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "position": {
          "type": "object",
          "required": ["x", "y"],
          "properties": { "x": { "type": "number" }, "y": { "type": "number" } }
        },
        "data": {
          "type": "object",
          "required": ["label"],
          "properties": {
            "label": { "type": "string" },
            "config": {
              "type": ["object", "null"],
              "additionalProperties": { "$ref": "#/$defs/configValue" }
            },
            "status": {
              "enum": ["idle", "waiting", "running", "success", "completed", "error", "warning"]
            },
            "metrics": { "type": "object" }
          }
        }
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "type": ["string", "null"] },
        "targetHandle": { "type": ["string", "null"] },
        "isExecuting": { "type": "boolean" },
        "style": { "type": "object" },
        "data": { "type": "object" }
      }
    },
    "configValue": {
      "oneOf": [
        { "type": "string" },
        { "type": "number" },
        { "type": "boolean" },
        { "type": "null" },
        { "type": "array", "items": { "type": "string" } }
      ]
    }
  }
}`

// savedSchemaJSON describes one entry of the persisted collection.
const savedSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://cdnflow.dev/schemas/saved.json",
  "allOf": [
    { "$ref": "document.json" },
    { "required": ["id", "createdAt", "updatedAt"] }
  ]
}`

// collectionSchemaJSON describes the persisted collection record.
const collectionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://cdnflow.dev/schemas/collection.json",
  "type": "array",
  "items": { "$ref": "saved.json" }
}`

// JSONSchemaValidator checks raw JSON records before they are decoded.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	documentSchema   *jsonschema.Schema
	savedSchema      *jsonschema.Schema
	collectionSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the document and collection schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		documentSchemaURL:   documentSchemaJSON,
		savedSchemaURL:      savedSchemaJSON,
		collectionSchemaURL: collectionSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	docSchema, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	savedSchema, err := c.Compile(savedSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile saved schema: %w", err)
	}
	colSchema, err := c.Compile(collectionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile collection schema: %w", err)
	}

	return &JSONSchemaValidator{
		documentSchema:   docSchema,
		savedSchema:      savedSchema,
		collectionSchema: colSchema,
	}, nil
}

// ValidateDocument checks an import file or single document record.
func (v *JSONSchemaValidator) ValidateDocument(raw []byte) error {
	return validateRaw(v.documentSchema, raw)
}

// ValidateCollectionItem checks one saved document, which additionally needs
// an id and timestamps.
func (v *JSONSchemaValidator) ValidateCollectionItem(raw []byte) error {
	return validateRaw(v.savedSchema, raw)
}

// ValidateCollection checks the persisted collection record.
func (v *JSONSchemaValidator) ValidateCollection(raw []byte) error {
	return validateRaw(v.collectionSchema, raw)
}

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "malformed JSON").WithCause(err)
	}
	if err := s.Validate(inst); err != nil {
		return toCdnflowError(err)
	}
	return nil
}

// toCdnflowError converts a jsonschema.ValidationError into a CdnflowError
// listing each leaf violation with its instance location.
func toCdnflowError(err error) *schema.CdnflowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
