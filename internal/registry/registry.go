package registry

import (
	"slices"
	"strings"

	"github.com/rendis/cdnflow/pkg/schema"
)

// Registry is the closed catalog of node types. It is immutable once built
// and safe for concurrent use.
type Registry struct {
	byType map[string]schema.NodeTypeDescriptor
	order  []string
}

// New builds a registry from descriptors, preserving their order.
// Returns error on an empty or duplicate type identifier.
func New(descs ...schema.NodeTypeDescriptor) (*Registry, error) {
	r := &Registry{
		byType: make(map[string]schema.NodeTypeDescriptor, len(descs)),
		order:  make([]string, 0, len(descs)),
	}
	for _, d := range descs {
		if strings.TrimSpace(d.Type) == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "node type identifier is empty")
		}
		if _, exists := r.byType[d.Type]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "node type %q already registered", d.Type)
		}
		if d.Provider == "" {
			d.Provider = schema.ProviderGeneric
		}
		r.byType[d.Type] = cloneDescriptor(d)
		r.order = append(r.order, d.Type)
	}
	return r, nil
}

// Lookup returns a copy of the descriptor for typeID.
func (r *Registry) Lookup(typeID string) (schema.NodeTypeDescriptor, error) {
	d, ok := r.byType[typeID]
	if !ok {
		return schema.NodeTypeDescriptor{}, schema.NewErrorf(schema.ErrCodeUnknownNodeType, "unknown node type %q", typeID)
	}
	return cloneDescriptor(d), nil
}

// Has reports whether typeID is registered.
func (r *Registry) Has(typeID string) bool {
	_, ok := r.byType[typeID]
	return ok
}

// Count returns the number of registered node types.
func (r *Registry) Count() int {
	return len(r.order)
}

// Types returns the registered identifiers in catalog order.
func (r *Registry) Types() []string {
	return slices.Clone(r.order)
}

// List returns every descriptor in catalog order.
func (r *Registry) List() []schema.NodeTypeDescriptor {
	return r.filter(func(schema.NodeTypeDescriptor) bool { return true })
}

// ByCategory returns the descriptors of one category in catalog order.
func (r *Registry) ByCategory(c schema.Category) []schema.NodeTypeDescriptor {
	return r.filter(func(d schema.NodeTypeDescriptor) bool { return d.Category == c })
}

// ByProvider returns the descriptors of one provider in catalog order.
func (r *Registry) ByProvider(p schema.Provider) []schema.NodeTypeDescriptor {
	return r.filter(func(d schema.NodeTypeDescriptor) bool { return d.Provider == p })
}

func (r *Registry) filter(keep func(schema.NodeTypeDescriptor) bool) []schema.NodeTypeDescriptor {
	out := make([]schema.NodeTypeDescriptor, 0, len(r.order))
	for _, id := range r.order {
		if d := r.byType[id]; keep(d) {
			out = append(out, cloneDescriptor(d))
		}
	}
	return out
}

func cloneDescriptor(d schema.NodeTypeDescriptor) schema.NodeTypeDescriptor {
	d.DefaultConfig = d.DefaultConfig.Clone()
	fields := make([]schema.ConfigField, len(d.ConfigSchema))
	for i, f := range d.ConfigSchema {
		f.Options = slices.Clone(f.Options)
		if f.DefaultValue != nil {
			v := *f.DefaultValue
			if items, ok := v.AsList(); ok {
				v = schema.ListValue(items...)
			}
			f.DefaultValue = &v
		}
		fields[i] = f
	}
	d.ConfigSchema = fields
	d.Outputs = slices.Clone(d.Outputs)
	if d.Outputs == nil {
		d.Outputs = []schema.OutputPort{}
	}
	return d
}
