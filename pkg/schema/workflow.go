package schema

import "time"

// Provider groups node types by vendor in the palette.
type Provider string

const (
	ProviderAlibaba    Provider = "alibaba"
	ProviderAWS        Provider = "aws"
	ProviderCloudflare Provider = "cloudflare"
	ProviderGeneric    Provider = "generic"
)

// Category determines port visibility for a node type.
type Category string

const (
	CategorySource       Category = "source"
	CategoryCache        Category = "cache"
	CategoryOptimization Category = "optimization"
	CategorySecurity     Category = "security"
	CategoryMonitoring   Category = "monitoring"
	CategoryRouting      Category = "routing"
	CategoryDestination  Category = "destination"
)

// FieldKind is the form control kind of a configurable field.
type FieldKind string

const (
	FieldText        FieldKind = "text"
	FieldNumber      FieldKind = "number"
	FieldBoolean     FieldKind = "boolean"
	FieldSelect      FieldKind = "select"
	FieldMultiselect FieldKind = "multiselect"
	FieldRange       FieldKind = "range"
)

// OutputKind is the semantic type of an output port.
type OutputKind string

const (
	OutputSuccess   OutputKind = "success"
	OutputWarning   OutputKind = "warning"
	OutputError     OutputKind = "error"
	OutputData      OutputKind = "data"
	OutputCacheHit  OutputKind = "cache_hit"
	OutputCacheMiss OutputKind = "cache_miss"
	OutputBlocked   OutputKind = "blocked"
	OutputPassed    OutputKind = "passed"
)

// NodeStatus is the display status of a node on the canvas.
type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusWaiting   NodeStatus = "waiting"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
	NodeStatusWarning   NodeStatus = "warning"
)

// FieldOption is one choice of a select or multiselect field.
type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ConfigField describes one configurable field of a node type.
type ConfigField struct {
	Key          string        `json:"key"`
	Label        string        `json:"label"`
	Kind         FieldKind     `json:"type"`
	Required     bool          `json:"required,omitempty"`
	DefaultValue *ConfigValue  `json:"defaultValue,omitempty"`
	Options      []FieldOption `json:"options,omitempty"`
	Min          *float64      `json:"min,omitempty"`
	Max          *float64      `json:"max,omitempty"`
	Description  string        `json:"description,omitempty"`
}

// OutputPort describes a named output of a node type.
type OutputPort struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Kind        OutputKind `json:"type"`
	Color       string     `json:"color"`
	Description string     `json:"description,omitempty"`
}

// NodeTypeDescriptor is the static registry entry for one node type.
type NodeTypeDescriptor struct {
	Type          string        `json:"type"`
	Label         string        `json:"label"`
	Description   string        `json:"description"`
	Provider      Provider      `json:"provider"`
	Category      Category      `json:"category"`
	Icon          string        `json:"icon"`
	Color         string        `json:"color"`
	DefaultConfig Config        `json:"defaultConfig"`
	ConfigSchema  []ConfigField `json:"configSchema"`
	Outputs       []OutputPort  `json:"outputs"`
}

// Field returns the schema entry for key.
func (d *NodeTypeDescriptor) Field(key string) (ConfigField, bool) {
	for _, f := range d.ConfigSchema {
		if f.Key == key {
			return f, true
		}
	}
	return ConfigField{}, false
}

// Output returns the output port with the given id.
func (d *NodeTypeDescriptor) Output(id string) (OutputPort, bool) {
	for _, o := range d.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return OutputPort{}, false
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeMetrics is the optional traffic summary shown on a node.
type NodeMetrics struct {
	RequestCount int64   `json:"requestCount"`
	HitRate      float64 `json:"hitRate"`
	Bandwidth    float64 `json:"bandwidth"`
	Latency      float64 `json:"latency"`
	ErrorRate    float64 `json:"errorRate"`
}

// NodeData is the payload of a graph node.
type NodeData struct {
	Label   string       `json:"label"`
	Config  Config       `json:"config"`
	Status  NodeStatus   `json:"status,omitempty"`
	Metrics *NodeMetrics `json:"metrics,omitempty"`
}

// GraphNode is one placed node in a workflow document.
type GraphNode struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Clone returns a deep copy of the node.
func (n GraphNode) Clone() GraphNode {
	n.Data.Config = n.Data.Config.Clone()
	if n.Data.Metrics != nil {
		m := *n.Data.Metrics
		n.Data.Metrics = &m
	}
	return n
}

// EdgeStyle is the stroke of an edge.
type EdgeStyle struct {
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// EdgeData carries traffic hints and the source port's output kind.
type EdgeData struct {
	Bandwidth  *float64   `json:"bandwidth,omitempty"`
	Latency    *float64   `json:"latency,omitempty"`
	OutputType OutputKind `json:"outputType,omitempty"`
}

// GraphEdge is a directed connection between two nodes.
type GraphEdge struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Target       string    `json:"target"`
	SourceHandle string    `json:"sourceHandle,omitempty"`
	TargetHandle string    `json:"targetHandle,omitempty"`
	IsExecuting  bool      `json:"isExecuting"`
	Style        EdgeStyle `json:"style"`
	Data         EdgeData  `json:"data"`
}

// Clone returns a deep copy of the edge.
func (e GraphEdge) Clone() GraphEdge {
	if e.Data.Bandwidth != nil {
		b := *e.Data.Bandwidth
		e.Data.Bandwidth = &b
	}
	if e.Data.Latency != nil {
		l := *e.Data.Latency
		e.Data.Latency = &l
	}
	return e
}

// WorkflowDocument is one saved or in-progress workflow.
type WorkflowDocument struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Version     string      `json:"version"`
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// DefaultDocumentVersion is assigned to newly created documents.
const DefaultDocumentVersion = "1.0.0"

// Clone returns a deep copy of the document.
func (d *WorkflowDocument) Clone() *WorkflowDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Nodes = CloneNodes(d.Nodes)
	out.Edges = CloneEdges(d.Edges)
	return &out
}

// CloneNodes deep-copies a node slice. The result is never nil.
func CloneNodes(nodes []GraphNode) []GraphNode {
	out := make([]GraphNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneEdges deep-copies an edge slice. The result is never nil.
func CloneEdges(edges []GraphEdge) []GraphEdge {
	out := make([]GraphEdge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

// ExportDocument is the downloadable snapshot of the working set.
type ExportDocument struct {
	Name       string      `json:"name"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	ExportedAt time.Time   `json:"exportedAt"`
}

// DefaultExportName is used when the working set has no document name.
const DefaultExportName = "untitled-workflow"

// FileName returns the download file name for the export.
func (e *ExportDocument) FileName() string {
	name := e.Name
	if name == "" {
		name = DefaultExportName
	}
	return name + ".json"
}
