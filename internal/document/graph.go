package document

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

// DefaultEdgeColor is used when the source port declares no color.
const DefaultEdgeColor = "#9ca3af"

// DefaultStrokeWidth is the stroke width of new edges.
const DefaultStrokeWidth = 2

// TypeLookup resolves node type descriptors. *registry.Registry satisfies it.
type TypeLookup interface {
	Lookup(typeID string) (schema.NodeTypeDescriptor, error)
}

// IDFunc returns a fresh identifier with the given prefix.
type IDFunc func(prefix string) string

// NewID is the default IDFunc: "<prefix>-<uuid>".
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDFunc overrides id generation for new nodes and edges.
func WithIDFunc(fn IDFunc) Option {
	return func(g *Graph) { g.newID = fn }
}

// Graph is the working set of one workflow: ordered nodes, edges and the
// current selection. An adjacency index (node id -> incident edge ids) is kept
// in step with the edge list so a node deletion removes exactly its incident
// edges.
//
// Graph methods mutate the receiver. Callers that need copy-on-write clone
// first; a failed method leaves the graph unchanged.
type Graph struct {
	nodes    []schema.GraphNode
	edges    []schema.GraphEdge
	nodeIdx  map[string]int
	edgeIdx  map[string]int
	incident map[string]map[string]struct{}

	selectedNode string
	selectedEdge string

	types TypeLookup
	newID IDFunc
}

// New creates an empty graph.
func New(types TypeLookup, opts ...Option) *Graph {
	g := &Graph{
		nodeIdx:  make(map[string]int),
		edgeIdx:  make(map[string]int),
		incident: make(map[string]map[string]struct{}),
		types:    types,
		newID:    NewID,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// FromDocument builds a graph from stored nodes and edges. It rejects
// duplicate ids, unknown node types, and edges whose endpoints are missing.
func FromDocument(types TypeLookup, nodes []schema.GraphNode, edges []schema.GraphEdge, opts ...Option) (*Graph, error) {
	g := New(types, opts...)
	for _, n := range nodes {
		if err := g.InsertNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.InsertEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Clone returns a deep copy sharing only the type lookup and id function.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		nodes:        schema.CloneNodes(g.nodes),
		edges:        schema.CloneEdges(g.edges),
		nodeIdx:      maps.Clone(g.nodeIdx),
		edgeIdx:      maps.Clone(g.edgeIdx),
		incident:     make(map[string]map[string]struct{}, len(g.incident)),
		selectedNode: g.selectedNode,
		selectedEdge: g.selectedEdge,
		types:        g.types,
		newID:        g.newID,
	}
	for id, set := range g.incident {
		out.incident[id] = maps.Clone(set)
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns a deep copy of the nodes in list order.
func (g *Graph) Nodes() []schema.GraphNode { return schema.CloneNodes(g.nodes) }

// Edges returns a deep copy of the edges in list order.
func (g *Graph) Edges() []schema.GraphEdge { return schema.CloneEdges(g.edges) }

// NodeIDs returns node ids in list order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (schema.GraphNode, bool) {
	i, ok := g.nodeIdx[id]
	if !ok {
		return schema.GraphNode{}, false
	}
	return g.nodes[i].Clone(), true
}

// Edge returns a copy of the edge with the given id.
func (g *Graph) Edge(id string) (schema.GraphEdge, bool) {
	i, ok := g.edgeIdx[id]
	if !ok {
		return schema.GraphEdge{}, false
	}
	return g.edges[i].Clone(), true
}

// IncidentEdges returns the ids of edges touching nodeID, in edge list order.
func (g *Graph) IncidentEdges(nodeID string) []string {
	return g.sortedEdgeIDs(g.incident[nodeID], func(schema.GraphEdge) bool { return true })
}

// OutgoingEdges returns the ids of edges whose source is nodeID, in edge list order.
func (g *Graph) OutgoingEdges(nodeID string) []string {
	return g.sortedEdgeIDs(g.incident[nodeID], func(e schema.GraphEdge) bool { return e.Source == nodeID })
}

func (g *Graph) sortedEdgeIDs(set map[string]struct{}, keep func(schema.GraphEdge) bool) []string {
	idx := make([]int, 0, len(set))
	for id := range set {
		if i := g.edgeIdx[id]; keep(g.edges[i]) {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.edges[i].ID
	}
	return out
}

// Selection returns the selected node and edge ids; at most one is non-empty.
func (g *Graph) Selection() (nodeID, edgeID string) {
	return g.selectedNode, g.selectedEdge
}

// AddNode places a new node of typeID at pos. The node gets a fresh id, the
// descriptor's label, a by-value copy of its default config and status idle.
func (g *Graph) AddNode(typeID string, pos schema.Position) (schema.GraphNode, error) {
	desc, err := g.types.Lookup(typeID)
	if err != nil {
		return schema.GraphNode{}, err
	}
	n := schema.GraphNode{
		ID:       g.newID(typeID),
		Type:     typeID,
		Position: pos,
		Data: schema.NodeData{
			Label:  desc.Label,
			Config: desc.DefaultConfig.Clone(),
			Status: schema.NodeStatusIdle,
		},
	}
	if err := g.InsertNode(n); err != nil {
		return schema.GraphNode{}, err
	}
	return n.Clone(), nil
}

// InsertNode appends an existing node, keeping its id and data.
func (g *Graph) InsertNode(n schema.GraphNode) error {
	if n.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node id is empty")
	}
	if _, exists := g.nodeIdx[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node %q already exists", n.ID).WithNode(n.ID)
	}
	if _, err := g.types.Lookup(n.Type); err != nil {
		if ce, ok := err.(*schema.CdnflowError); ok {
			return ce.WithNode(n.ID)
		}
		return err
	}
	n = n.Clone()
	if n.Data.Config == nil {
		n.Data.Config = schema.Config{}
	}
	g.nodeIdx[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// NodePatch is a partial node update. Nil fields are left unchanged; Config
// entries replace the keys they name.
type NodePatch struct {
	Position *schema.Position    `json:"position,omitempty"`
	Label    *string             `json:"label,omitempty"`
	Config   schema.Config       `json:"config,omitempty"`
	Status   *schema.NodeStatus  `json:"status,omitempty"`
	Metrics  *schema.NodeMetrics `json:"metrics,omitempty"`
}

// UpdateNode merges patch into the node.
func (g *Graph) UpdateNode(id string, patch NodePatch) (schema.GraphNode, error) {
	i, ok := g.nodeIdx[id]
	if !ok {
		return schema.GraphNode{}, nodeNotFound(id)
	}
	n := g.nodes[i].Clone()
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Label != nil {
		n.Data.Label = *patch.Label
	}
	for k, v := range patch.Config.Clone() {
		n.Data.Config[k] = v
	}
	if patch.Status != nil {
		n.Data.Status = *patch.Status
	}
	if patch.Metrics != nil {
		m := *patch.Metrics
		n.Data.Metrics = &m
	}
	g.nodes[i] = n
	return n.Clone(), nil
}

// DeleteNode removes the node and every edge incident to it, and clears the
// selection if it pointed at anything removed. Returns the removed edge ids.
func (g *Graph) DeleteNode(id string) ([]string, error) {
	i, ok := g.nodeIdx[id]
	if !ok {
		return nil, nodeNotFound(id)
	}
	removed := g.IncidentEdges(id)
	g.removeEdges(removed)
	delete(g.incident, id)

	g.nodes = slices.Delete(g.nodes, i, i+1)
	delete(g.nodeIdx, id)
	for j := i; j < len(g.nodes); j++ {
		g.nodeIdx[g.nodes[j].ID] = j
	}
	if g.selectedNode == id {
		g.selectedNode = ""
	}
	return removed, nil
}

// Connection is a raw connection gesture from the rendering surface.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// AddEdge validates a connection and appends the resulting edge. Both
// endpoints must exist and expose the ports involved; a handle, when given,
// must name a declared port. Color and output kind come from the source port.
func (g *Graph) AddEdge(c Connection) (schema.GraphEdge, error) {
	src, ok := g.nodeIdx[c.Source]
	if !ok {
		return schema.GraphEdge{}, nodeNotFound(c.Source)
	}
	dst, ok := g.nodeIdx[c.Target]
	if !ok {
		return schema.GraphEdge{}, nodeNotFound(c.Target)
	}

	srcDesc, err := g.types.Lookup(g.nodes[src].Type)
	if err != nil {
		return schema.GraphEdge{}, err
	}
	dstDesc, err := g.types.Lookup(g.nodes[dst].Type)
	if err != nil {
		return schema.GraphEdge{}, err
	}

	out := registry.Ports(srcDesc)
	if !out.HasOutput {
		return schema.GraphEdge{}, schema.NewErrorf(schema.ErrCodePortNotFound,
			"node type %q has no output port", srcDesc.Type).WithNode(c.Source)
	}
	if !registry.Ports(dstDesc).HasInput {
		return schema.GraphEdge{}, schema.NewErrorf(schema.ErrCodePortNotFound,
			"node type %q has no input port", dstDesc.Type).WithNode(c.Target)
	}
	if c.TargetHandle != "" && c.TargetHandle != registry.InputPortID {
		return schema.GraphEdge{}, schema.NewErrorf(schema.ErrCodePortNotFound,
			"unknown target handle %q", c.TargetHandle).WithNode(c.Target)
	}

	color := DefaultEdgeColor
	var kind schema.OutputKind
	if c.SourceHandle != "" {
		p, ok := srcDesc.Output(c.SourceHandle)
		if !ok {
			return schema.GraphEdge{}, schema.NewErrorf(schema.ErrCodePortNotFound,
				"unknown source handle %q", c.SourceHandle).WithNode(c.Source)
		}
		if p.Color != "" {
			color = p.Color
		}
		kind = p.Kind
	}

	for _, id := range g.OutgoingEdges(c.Source) {
		e := g.edges[g.edgeIdx[id]]
		if e.Target == c.Target && e.SourceHandle == c.SourceHandle && e.TargetHandle == c.TargetHandle {
			return schema.GraphEdge{}, schema.NewError(schema.ErrCodeConflict, "connection already exists").WithEdge(id)
		}
	}

	e := schema.GraphEdge{
		ID:           g.newID("edge"),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
		Style:        schema.EdgeStyle{Stroke: color, StrokeWidth: DefaultStrokeWidth},
		Data:         schema.EdgeData{OutputType: kind},
	}
	if err := g.InsertEdge(e); err != nil {
		return schema.GraphEdge{}, err
	}
	return e, nil
}

// InsertEdge appends an existing edge after checking its endpoints exist.
func (g *Graph) InsertEdge(e schema.GraphEdge) error {
	if e.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "edge id is empty")
	}
	if _, exists := g.edgeIdx[e.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "edge %q already exists", e.ID).WithEdge(e.ID)
	}
	for _, end := range []string{e.Source, e.Target} {
		if _, ok := g.nodeIdx[end]; !ok {
			return nodeNotFound(end).WithEdge(e.ID)
		}
	}
	g.edgeIdx[e.ID] = len(g.edges)
	g.edges = append(g.edges, e.Clone())
	g.link(e.Source, e.ID)
	g.link(e.Target, e.ID)
	return nil
}

// EdgePatch is a partial edge update. Endpoints are immutable; delete and
// reconnect to move an edge.
type EdgePatch struct {
	Style       *schema.EdgeStyle `json:"style,omitempty"`
	Data        *schema.EdgeData  `json:"data,omitempty"`
	IsExecuting *bool             `json:"isExecuting,omitempty"`
}

// UpdateEdge merges patch into the edge.
func (g *Graph) UpdateEdge(id string, patch EdgePatch) (schema.GraphEdge, error) {
	i, ok := g.edgeIdx[id]
	if !ok {
		return schema.GraphEdge{}, edgeNotFound(id)
	}
	e := g.edges[i].Clone()
	if patch.Style != nil {
		e.Style = *patch.Style
	}
	if patch.Data != nil {
		e.Data = schema.GraphEdge{Data: *patch.Data}.Clone().Data
	}
	if patch.IsExecuting != nil {
		e.IsExecuting = *patch.IsExecuting
	}
	g.edges[i] = e
	return e.Clone(), nil
}

// DeleteEdge removes one edge and clears the selection if it was selected.
func (g *Graph) DeleteEdge(id string) error {
	if _, ok := g.edgeIdx[id]; !ok {
		return edgeNotFound(id)
	}
	g.removeEdges([]string{id})
	return nil
}

// SelectNode selects a node and clears any edge selection. An empty id clears
// the node selection.
func (g *Graph) SelectNode(id string) error {
	if id != "" {
		if _, ok := g.nodeIdx[id]; !ok {
			return nodeNotFound(id)
		}
		g.selectedEdge = ""
	}
	g.selectedNode = id
	return nil
}

// SelectEdge selects an edge and clears any node selection. An empty id clears
// the edge selection.
func (g *Graph) SelectEdge(id string) error {
	if id != "" {
		if _, ok := g.edgeIdx[id]; !ok {
			return edgeNotFound(id)
		}
		g.selectedNode = ""
	}
	g.selectedEdge = id
	return nil
}

// ClearSelection drops both selections.
func (g *Graph) ClearSelection() {
	g.selectedNode, g.selectedEdge = "", ""
}

// SetNodeStatus sets the display status of one node.
func (g *Graph) SetNodeStatus(id string, status schema.NodeStatus) error {
	i, ok := g.nodeIdx[id]
	if !ok {
		return nodeNotFound(id)
	}
	g.nodes[i].Data.Status = status
	return nil
}

// SetEdgeExecuting toggles the executing flag of one edge.
func (g *Graph) SetEdgeExecuting(id string, executing bool) error {
	i, ok := g.edgeIdx[id]
	if !ok {
		return edgeNotFound(id)
	}
	g.edges[i].IsExecuting = executing
	return nil
}

// SetOutgoingExecuting toggles every edge leaving nodeID and returns their ids.
func (g *Graph) SetOutgoingExecuting(nodeID string, executing bool) []string {
	ids := g.OutgoingEdges(nodeID)
	for _, id := range ids {
		g.edges[g.edgeIdx[id]].IsExecuting = executing
	}
	return ids
}

// ResetStatuses sets every node to idle and every edge to not executing.
func (g *Graph) ResetStatuses() {
	for i := range g.nodes {
		g.nodes[i].Data.Status = schema.NodeStatusIdle
	}
	for i := range g.edges {
		g.edges[i].IsExecuting = false
	}
}

func (g *Graph) link(nodeID, edgeID string) {
	set, ok := g.incident[nodeID]
	if !ok {
		set = make(map[string]struct{})
		g.incident[nodeID] = set
	}
	set[edgeID] = struct{}{}
}

// removeEdges drops the given edges from the list, the index and the
// adjacency sets of both endpoints.
func (g *Graph) removeEdges(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		e := g.edges[g.edgeIdx[id]]
		delete(g.incident[e.Source], id)
		delete(g.incident[e.Target], id)
		drop[id] = struct{}{}
		if g.selectedEdge == id {
			g.selectedEdge = ""
		}
	}
	g.edges = slices.DeleteFunc(g.edges, func(e schema.GraphEdge) bool {
		_, gone := drop[e.ID]
		return gone
	})
	clear(g.edgeIdx)
	for i, e := range g.edges {
		g.edgeIdx[e.ID] = i
	}
}

func nodeNotFound(id string) *schema.CdnflowError {
	return schema.NewErrorf(schema.ErrCodeNodeNotFound, "node %q not found", id).WithNode(id)
}

func edgeNotFound(id string) *schema.CdnflowError {
	return schema.NewErrorf(schema.ErrCodeEdgeNotFound, "edge %q not found", id).WithEdge(id)
}
