package validation

import (
	"fmt"

	"github.com/rendis/cdnflow/pkg/schema"
)

// validateTopology analyzes the edge graph: cycle detection (Kahn's algorithm)
// and reachability from source-category nodes (BFS). Both produce warnings
// only; a pipeline with a loop or a detached node is still a valid document.
// Edges with unknown endpoints are ignored here; semantic checks report them.
func validateTopology(nodes []schema.GraphNode, edges []schema.GraphEdge, types TypeLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(nodes) == 0 {
		return result
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	// forward[id] = successors, inDegree counts distinct predecessors.
	forward := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		forward[e.Source] = append(forward[e.Source], e.Target)
		inDegree[e.Target]++
	}

	// Kahn's algorithm in node list order for deterministic output.
	remaining := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		remaining[n.ID] = inDegree[n.ID]
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range forward[id] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(known) {
		result.AddWarning("edges", schema.ErrCodeCycleDetected, "pipeline contains a cycle")
	}

	if types == nil {
		return result
	}
	var roots []string
	for _, n := range nodes {
		if d, err := types.Lookup(n.Type); err == nil && d.Category == schema.CategorySource {
			roots = append(roots, n.ID)
		}
	}
	if len(roots) == 0 {
		return result
	}

	reachable := make(map[string]bool, len(nodes))
	bfs := append([]string(nil), roots...)
	for _, r := range roots {
		reachable[r] = true
	}
	for len(bfs) > 0 {
		id := bfs[0]
		bfs = bfs[1:]
		for _, next := range forward[id] {
			if !reachable[next] {
				reachable[next] = true
				bfs = append(bfs, next)
			}
		}
	}

	for i, n := range nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from any source node", n.ID))
		}
	}

	return result
}
