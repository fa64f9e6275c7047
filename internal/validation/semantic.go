package validation

import (
	"fmt"

	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

// TypeLookup resolves node type descriptors. *registry.Registry satisfies it.
type TypeLookup interface {
	Lookup(typeID string) (schema.NodeTypeDescriptor, error)
}

// validateSemantic checks referential integrity of a node/edge set:
// unique ids, registered node types, existing edge endpoints, and declared
// handles. Handle problems are warnings since older files may predate a port.
func validateSemantic(nodes []schema.GraphNode, edges []schema.GraphEdge, types TypeLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	byID := make(map[string]schema.NodeTypeDescriptor, len(nodes))
	known := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if known[n.ID] {
			result.AddError(path+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		known[n.ID] = true

		if types == nil {
			continue
		}
		desc, err := types.Lookup(n.Type)
		if err != nil {
			result.AddError(path+".type", schema.ErrCodeUnknownNodeType,
				fmt.Sprintf("node %q references unknown node type %q", n.ID, n.Type))
			continue
		}
		byID[n.ID] = desc
	}

	seenEdges := make(map[string]bool, len(edges))
	for i, e := range edges {
		path := fmt.Sprintf("edges[%d]", i)
		if seenEdges[e.ID] {
			result.AddError(path+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate edge id %q", e.ID))
			continue
		}
		seenEdges[e.ID] = true

		if !known[e.Source] {
			result.AddError(path+".source", schema.ErrCodeNodeNotFound,
				fmt.Sprintf("edge %q references non-existent source node %q", e.ID, e.Source))
		}
		if !known[e.Target] {
			result.AddError(path+".target", schema.ErrCodeNodeNotFound,
				fmt.Sprintf("edge %q references non-existent target node %q", e.ID, e.Target))
		}

		if desc, ok := byID[e.Source]; ok && e.SourceHandle != "" {
			if _, ok := desc.Output(e.SourceHandle); !ok {
				result.AddWarning(path+".sourceHandle", schema.ErrCodePortNotFound,
					fmt.Sprintf("node type %q has no output port %q", desc.Type, e.SourceHandle))
			}
		}
		if e.TargetHandle != "" && e.TargetHandle != registry.InputPortID {
			result.AddWarning(path+".targetHandle", schema.ErrCodePortNotFound,
				fmt.Sprintf("unknown target handle %q", e.TargetHandle))
		}
	}

	return result
}
