package diagram

import "github.com/rendis/cdnflow/pkg/schema"

// NodeKind classifies a diagram node by the category of its node type.
type NodeKind string

const (
	NodeKindSource       NodeKind = "source"
	NodeKindCache        NodeKind = "cache"
	NodeKindOptimization NodeKind = "optimization"
	NodeKindSecurity     NodeKind = "security"
	NodeKindMonitoring   NodeKind = "monitoring"
	NodeKindRouting      NodeKind = "routing"
	NodeKindDestination  NodeKind = "destination"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents one placed node in the diagram.
type Node struct {
	ID       string
	Label    string
	Type     string
	Provider schema.Provider
	Kind     NodeKind
	Color    string
	Status   *StatusOverlay
}

// StatusOverlay carries run state for a node.
type StatusOverlay struct {
	Status  schema.NodeStatus
	Metrics *schema.NodeMetrics
}

// Edge represents a connection between two nodes.
type Edge struct {
	From      string
	To        string
	Label     string
	Color     string
	Executing bool
}
