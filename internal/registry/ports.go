package registry

import "github.com/rendis/cdnflow/pkg/schema"

// InputPortID is the handle id of the single input port of a node.
const InputPortID = "input"

// PortLayout is the set of ports a node type exposes on the canvas.
type PortLayout struct {
	HasInput  bool                `json:"hasInput"`
	HasOutput bool                `json:"hasOutput"`
	Outputs   []schema.OutputPort `json:"outputs"`
}

// Ports applies the port-visibility policy: the input is suppressed iff the
// category is source; outputs are suppressed iff the category is destination
// or the descriptor declares none.
func Ports(d schema.NodeTypeDescriptor) PortLayout {
	layout := PortLayout{
		HasInput:  d.Category != schema.CategorySource,
		HasOutput: d.Category != schema.CategoryDestination && len(d.Outputs) > 0,
		Outputs:   []schema.OutputPort{},
	}
	if layout.HasOutput {
		layout.Outputs = append(layout.Outputs, d.Outputs...)
	}
	return layout
}
