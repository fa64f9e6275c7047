package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/cdnflow/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Executing edges are drawn thick.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")

	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Executing {
			arrow = "==>"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef waiting fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#c27c0e,stroke:#8a5c14,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Status == nil {
			continue
		}
		if cls := mermaidStatusClass(node.Status.Status); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with a shape per kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindSource:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindDestination:
		return fmt.Sprintf("%s((%q))", id, label)
	case NodeKindCache:
		return fmt.Sprintf("%s[(%q)]", id, label)
	case NodeKindSecurity:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindRouting:
		return fmt.Sprintf("%s{%q}", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidStatusClass maps a node status to a Mermaid class name.
func mermaidStatusClass(status schema.NodeStatus) string {
	switch status {
	case schema.NodeStatusWaiting:
		return "waiting"
	case schema.NodeStatusRunning:
		return "running"
	case schema.NodeStatusSuccess, schema.NodeStatusCompleted:
		return "success"
	case schema.NodeStatusError:
		return "error"
	case schema.NodeStatusWarning:
		return "warning"
	default:
		return ""
	}
}
