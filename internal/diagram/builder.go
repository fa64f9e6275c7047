package diagram

import (
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// Build constructs a DiagramModel from a workflow document. Node statuses
// come from the document unless statuses is given, in which case they
// override it (for example statuses replayed from a run log). Idle nodes
// carry no overlay.
func Build(doc *schema.WorkflowDocument, types validation.TypeLookup, statuses map[string]schema.NodeStatus) (*DiagramModel, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no workflow to draw")
	}

	nodes := make([]*Node, 0, len(doc.Nodes))
	known := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		gn := &doc.Nodes[i]
		desc, err := types.Lookup(gn.Type)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownNodeType, "diagram: node %s: %s", gn.ID, err.Error()).
				WithNode(gn.ID).WithCause(err)
		}
		node := &Node{
			ID:       gn.ID,
			Label:    nodeLabel(gn, desc),
			Type:     gn.Type,
			Provider: desc.Provider,
			Kind:     NodeKind(desc.Category),
			Color:    desc.Color,
		}
		overlayStatus(node, gn, statuses)
		nodes = append(nodes, node)
		known[gn.ID] = true
	}

	edges := make([]Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		edges = append(edges, Edge{
			From:      e.Source,
			To:        e.Target,
			Label:     e.SourceHandle,
			Color:     e.Style.Stroke,
			Executing: e.IsExecuting,
		})
	}

	return &DiagramModel{
		Title:  titleFromDoc(doc),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(nodes, edges),
	}, nil
}

// nodeLabel prefers the user label and falls back to the type's label.
func nodeLabel(gn *schema.GraphNode, desc schema.NodeTypeDescriptor) string {
	if gn.Data.Label != "" {
		return gn.Data.Label
	}
	if desc.Label != "" {
		return desc.Label
	}
	return gn.ID
}

func overlayStatus(node *Node, gn *schema.GraphNode, statuses map[string]schema.NodeStatus) {
	status := gn.Data.Status
	if st, ok := statuses[gn.ID]; ok {
		status = st
	}
	if status == "" || status == schema.NodeStatusIdle {
		return
	}
	node.Status = &StatusOverlay{Status: status, Metrics: gn.Data.Metrics}
}

// buildLevels groups nodes by longest distance from a node with no
// incoming edge. Nodes on a cycle that no root reaches go to a final level.
// Order within a level follows the document order.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	if len(nodes) == 0 {
		return nil
	}
	inDegree := make(map[string]int, len(nodes))
	next := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range edges {
		inDegree[e.To]++
		next[e.From] = append(next[e.From], e.To)
	}

	level := make(map[string]int, len(nodes))
	var queue []string
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	maxLevel := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range next[id] {
			if level[id]+1 > level[to] {
				level[to] = level[id] + 1
			}
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
		maxLevel = max(maxLevel, level[id])
	}

	levels := make([][]string, maxLevel+1)
	var cyclic []string
	for _, n := range nodes {
		if inDegree[n.ID] > 0 {
			cyclic = append(cyclic, n.ID)
			continue
		}
		levels[level[n.ID]] = append(levels[level[n.ID]], n.ID)
	}
	if len(cyclic) > 0 {
		levels = append(levels, cyclic)
	}
	return levels
}

// titleFromDoc uses the document name.
func titleFromDoc(doc *schema.WorkflowDocument) string {
	if doc.Name != "" {
		return doc.Name
	}
	return schema.DefaultExportName
}
