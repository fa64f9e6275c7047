package expressions

import (
	"context"
	"encoding/json"

	"github.com/rendis/cdnflow/pkg/schema"
)

// Engine evaluates expressions over a plain-data snapshot of workflows.
// Three implementations: CEL (lint rules), GoJQ and Expr (queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// DocumentData converts a document into the data map seen by expressions:
//   - workflow: document metadata (id, name, version, ...)
//   - nodes:    list of node objects in list order
//   - edges:    list of edge objects in list order
//
// Values use JSON shapes, so numbers are float64 and field names follow the
// persisted record.
func DocumentData(doc *schema.WorkflowDocument) (map[string]any, error) {
	if doc == nil {
		return map[string]any{
			"workflow": map[string]any{},
			"nodes":    []any{},
			"edges":    []any{},
		}, nil
	}
	raw, err := toPlain(doc)
	if err != nil {
		return nil, err
	}
	m, _ := raw.(map[string]any)
	nodes, _ := m["nodes"].([]any)
	edges, _ := m["edges"].([]any)
	delete(m, "nodes")
	delete(m, "edges")
	if nodes == nil {
		nodes = []any{}
	}
	if edges == nil {
		edges = []any{}
	}
	return map[string]any{"workflow": m, "nodes": nodes, "edges": edges}, nil
}

// CollectionData converts saved documents into {"workflows": [...]}, the input
// of collection-wide queries.
func CollectionData(docs []schema.WorkflowDocument) (map[string]any, error) {
	if docs == nil {
		docs = []schema.WorkflowDocument{}
	}
	raw, err := toPlain(docs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflows": raw}, nil
}

func toPlain(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to serialize expression data").WithCause(err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to decode expression data").WithCause(err)
	}
	return out, nil
}

// Registry maps engine names to engines.
type Registry struct {
	engines map[string]Engine
	names   []string
}

// NewRegistry creates a registry; later engines win on name clashes.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		if _, exists := r.engines[e.Name()]; !exists {
			r.names = append(r.names, e.Name())
		}
		r.engines[e.Name()] = e
	}
	return r
}

// DefaultRegistry holds the cel, jq and expr engines.
func DefaultRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewRegistry(NewGoJQEngine(), NewExprEngine(), celEngine), nil
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "unknown expression engine %q", name).
			WithDetails(map[string]any{"available": r.names})
	}
	return e, nil
}

// Names returns engine names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
