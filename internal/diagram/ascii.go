package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/cdnflow/pkg/schema"
)

// statusTag returns a short ASCII indicator for a node status.
func statusTag(status schema.NodeStatus) string {
	switch status {
	case schema.NodeStatusWaiting:
		return "[WAIT]"
	case schema.NodeStatusRunning:
		return "[RUN]"
	case schema.NodeStatusSuccess, schema.NodeStatusCompleted:
		return "[OK]"
	case schema.NodeStatusError:
		return "[FAIL]"
	case schema.NodeStatusWarning:
		return "[WARN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters followed by the
// list of connections.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n--- connections ---\n")
		for _, edge := range model.Edges {
			renderEdge(&b, model, edge)
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}

	if node.Status != nil {
		if tag := statusTag(node.Status.Status); tag != "" {
			contentLines = append(contentLines, tag)
		}
		if m := node.Status.Metrics; m != nil && m.Latency > 0 {
			contentLines = append(contentLines, fmt.Sprintf("%gms", m.Latency))
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderEdge writes one connection line. Executing edges use a double arrow.
func renderEdge(b *strings.Builder, model *DiagramModel, edge Edge) {
	arrow := "─→"
	if edge.Executing {
		arrow = "═⇒"
	}
	label := ""
	if edge.Label != "" {
		label = " (" + edge.Label + ")"
	}
	fmt.Fprintf(b, "  %s %s %s%s\n", labelOf(model, edge.From), arrow, labelOf(model, edge.To), label)
}

func labelOf(model *DiagramModel, id string) string {
	if n := findNode(model.Nodes, id); n != nil {
		return firstLine(n.Label)
	}
	return id
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
