package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCdnflowServer(t *testing.T) {
	s := NewCdnflowServer(CdnflowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName    string
		description string
	}{
		{"cdnflow.palette", "List the node types that can be placed in a pipeline"},
		{"cdnflow.workflows", "Manage saved workflows and the open document"},
		{"cdnflow.edit", "Change the working set: add, update, configure, connect or delete nodes and edges"},
		{"cdnflow.run", "Simulate a run of the working set, stop it, or inspect past runs"},
		{"cdnflow.export", "Export the working set as an import-compatible document"},
		{"cdnflow.import", "Open an exported document as the current workflow"},
		{"cdnflow.validate", "Check the working set for structural problems and lint findings"},
		{"cdnflow.query", "Evaluate an expression over the working set or the saved collection"},
		{"cdnflow.diagram", "Generate a visual diagram of the working set. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"},
		{"cdnflow.settings", "Read, change or reset the editor settings"},
	}

	s := NewCdnflowServer(CdnflowServerDeps{})
	require.Len(t, s.mcpServer.ListTools(), len(tests))

	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
