package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/pkg/schema"
)

// DocumentValidator orchestrates the validation pipeline for workflow
// documents:
// 1. Structural (JSON Schema, raw input only)
// 2. Semantic (unique ids, registered types, edge endpoints, handles)
// 3. Topology (cycles, reachability from sources)
// 4. Lint (CEL rules)
// Stages 3 and 4 only produce warnings.
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
	types      TypeLookup
	lint       *Linter
}

// NewDocumentValidator creates a DocumentValidator. rules may be nil for the
// default lint rules.
func NewDocumentValidator(types TypeLookup, rules []LintRule) (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{
		jsonSchema: jsv,
		types:      types,
		lint:       NewLinter(cel, types, rules),
	}, nil
}

// Linter returns the validator's lint stage.
func (dv *DocumentValidator) Linter() *Linter {
	return dv.lint
}

// Validate runs the semantic, topology and lint stages on a decoded
// document. Semantic errors short-circuit the later stages.
func (dv *DocumentValidator) Validate(ctx context.Context, doc *schema.WorkflowDocument) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow document is nil")
		return r
	}

	result := validateSemantic(doc.Nodes, doc.Edges, dv.types)
	if !result.Valid() {
		return result
	}
	result.Merge(validateTopology(doc.Nodes, doc.Edges, dv.types))

	lint, err := dv.lint.Lint(ctx, doc)
	if err != nil {
		result.AddWarning("/", schema.ErrorCode(err), err.Error())
		return result
	}
	result.Merge(lint)
	return result
}

// ParseImport decodes an import file into a document ready to enter the
// collection. The file must pass the structural and semantic stages; any
// failure is reported as IMPORT_PARSE_ERROR with the underlying issues in
// Details. A missing id gets a fresh one and missing timestamps are set to
// now. Warnings from the later stages are returned alongside the document.
func (dv *DocumentValidator) ParseImport(ctx context.Context, raw []byte, now time.Time) (*schema.WorkflowDocument, *schema.ValidationResult, error) {
	if err := dv.jsonSchema.ValidateDocument(raw); err != nil {
		return nil, nil, importError(err)
	}

	var doc schema.WorkflowDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, importError(schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err))
	}

	result := dv.Validate(ctx, &doc)
	if err := result.ToError(); err != nil {
		return nil, result, importError(err)
	}

	if doc.ID == "" {
		doc.ID = NewWorkflowID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	doc.Nodes = schema.CloneNodes(doc.Nodes)
	doc.Edges = schema.CloneEdges(doc.Edges)
	return &doc, result, nil
}

// ParseCollection decodes the persisted collection record. Entries that fail
// validation are dropped and reported in the returned result; the rest load.
func (dv *DocumentValidator) ParseCollection(ctx context.Context, raw []byte) ([]schema.WorkflowDocument, *schema.ValidationResult, error) {
	result := &schema.ValidationResult{}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "collection record is not a JSON array").WithCause(err)
	}

	docs := make([]schema.WorkflowDocument, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("[%d]", i)
		if err := dv.jsonSchema.ValidateCollectionItem(item); err != nil {
			result.AddError(path, schema.ErrorCode(err), err.Error())
			continue
		}
		var doc schema.WorkflowDocument
		if err := json.Unmarshal(item, &doc); err != nil {
			result.AddError(path, schema.ErrCodeValidation, err.Error())
			continue
		}
		sem := validateSemantic(doc.Nodes, doc.Edges, dv.types)
		if !sem.Valid() {
			for _, issue := range sem.Errors {
				result.AddError(path+"."+issue.Path, issue.Code, issue.Message)
			}
			continue
		}
		doc.Nodes = schema.CloneNodes(doc.Nodes)
		doc.Edges = schema.CloneEdges(doc.Edges)
		docs = append(docs, doc)
	}
	return docs, result, nil
}

// NewWorkflowID returns a fresh workflow identifier.
func NewWorkflowID() string {
	return "workflow_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func importError(cause error) error {
	ce := schema.NewError(schema.ErrCodeImportParse, "invalid workflow file").WithCause(cause)
	var inner *schema.CdnflowError
	if errors.As(cause, &inner) {
		ce.Message = "invalid workflow file: " + inner.Message
		if inner.Details != nil {
			ce = ce.WithDetails(inner.Details)
		}
	}
	return ce
}
