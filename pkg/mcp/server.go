package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/settings"
	"github.com/rendis/cdnflow/internal/simulator"
	"github.com/rendis/cdnflow/internal/store"
)

// CdnflowServerDeps holds the dependencies for creating a CdnflowServer.
type CdnflowServerDeps struct {
	Registry   *registry.Registry
	Collection *collection.Store
	Settings   *settings.Store
	Simulator  *simulator.Simulator
	Engines    *expressions.Registry
	// Records backs run status overlays on diagrams. Optional.
	Records       store.Store
	DiagramBinDir string
	Logger        *slog.Logger
}

// CdnflowServer wraps an MCP server with editor tool handlers.
type CdnflowServer struct {
	registry      *registry.Registry
	collection    *collection.Store
	settings      *settings.Store
	simulator     *simulator.Simulator
	engines       *expressions.Registry
	records       store.Store
	diagramBinDir string
	logger        *slog.Logger
	sessions      *SessionRegistry
	notifier      AgentNotifier
	mcpServer     *server.MCPServer
}

// NewCdnflowServer creates a new CdnflowServer with every tool registered.
func NewCdnflowServer(deps CdnflowServerDeps) *CdnflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &CdnflowServer{
		registry:      deps.Registry,
		collection:    deps.Collection,
		settings:      deps.Settings,
		simulator:     deps.Simulator,
		engines:       deps.Engines,
		records:       deps.Records,
		diagramBinDir: deps.DiagramBinDir,
		logger:        logger,
		sessions:      NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"cdnflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("cdnflow edits CDN acceleration pipelines. Use cdnflow.palette to discover node types, cdnflow.edit to place and connect nodes, cdnflow.workflows to save and switch documents, cdnflow.run to simulate a run, and cdnflow.diagram to see the result."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CdnflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CdnflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *CdnflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: paletteTool(), Handler: s.handlePalette},
		{Tool: workflowsTool(), Handler: s.handleWorkflows},
		{Tool: editTool(), Handler: s.handleEdit},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: importTool(), Handler: s.handleImport},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: settingsTool(), Handler: s.handleSettings},
	}
}

// --- Tool definitions ---

func paletteTool() mcp.Tool {
	return mcp.NewTool("cdnflow.palette",
		mcp.WithDescription("List the node types that can be placed in a pipeline"),
		mcp.WithString("category", mcp.Description("Only types of this category (source, cache, optimization, security, monitoring, routing, destination)")),
		mcp.WithString("provider", mcp.Description("Only types of this provider (alibaba, aws, cloudflare, generic)")),
		mcp.WithString("type", mcp.Description("Describe a single type, including its ports")),
	)
}

func workflowsTool() mcp.Tool {
	return mcp.NewTool("cdnflow.workflows",
		mcp.WithDescription("Manage saved workflows and the open document"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("state", "list", "get", "create", "save", "save_as", "switch", "duplicate", "delete", "clear"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("id", mcp.Description("Workflow id (get, switch, duplicate, delete)")),
		mcp.WithString("name", mcp.Description("Workflow name (create, save_as)")),
		mcp.WithString("description", mcp.Description("Workflow description (create, save_as)")),
	)
}

func editTool() mcp.Tool {
	return mcp.NewTool("cdnflow.edit",
		mcp.WithDescription("Change the working set: add, update, configure, connect or delete nodes and edges"),
		mcp.WithString("operation", mcp.Required(),
			mcp.Enum("add_node", "update_node", "configure_node", "delete_node", "select_node",
				"connect", "update_edge", "delete_edge", "select_edge"),
			mcp.Description("Edit to apply"),
		),
		mcp.WithString("id", mcp.Description("Target node or edge id")),
		mcp.WithString("type", mcp.Description("Node type (add_node)")),
		mcp.WithObject("position", mcp.Description("Canvas position {x, y} (add_node)")),
		mcp.WithObject("patch", mcp.Description("Fields to merge (update_node, update_edge)")),
		mcp.WithString("label", mcp.Description("New node label (configure_node)")),
		mcp.WithObject("config", mcp.Description("Configuration values to merge (configure_node)")),
		mcp.WithObject("connection", mcp.Description("{source, target, sourceHandle, targetHandle} (connect)")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("cdnflow.run",
		mcp.WithDescription("Simulate a run of the working set, stop it, or inspect past runs"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("start", "stop", "status", "list"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("run_id", mcp.Description("Run id (status)")),
		mcp.WithString("workflow_id", mcp.Description("Only runs of this workflow (list)")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs returned (list, default 20)")),
		mcp.WithString("agent_id", mcp.Description("Agent to notify when a started run ends")),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("cdnflow.export",
		mcp.WithDescription("Export the working set as an import-compatible document"),
	)
}

func importTool() mcp.Tool {
	return mcp.NewTool("cdnflow.import",
		mcp.WithDescription("Open an exported document as the current workflow"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Export document {name, nodes, edges}")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("cdnflow.validate",
		mcp.WithDescription("Check the working set for structural problems and lint findings"),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("cdnflow.query",
		mcp.WithDescription("Evaluate an expression over the working set or the saved collection"),
		mcp.WithString("engine", mcp.Required(), mcp.Enum("cel", "jq", "expr"), mcp.Description("Expression language")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression to evaluate")),
		mcp.WithString("scope", mcp.Enum("current", "saved"), mcp.Description("Data to query (default: current)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("cdnflow.diagram",
		mcp.WithDescription("Generate a visual diagram of the working set. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay the node statuses recorded by this run")),
	)
}

func settingsTool() mcp.Tool {
	return mcp.NewTool("cdnflow.settings",
		mcp.WithDescription("Read, change or reset the editor settings"),
		mcp.WithString("action", mcp.Required(), mcp.Enum("get", "update", "reset"), mcp.Description("Operation to perform")),
		mcp.WithObject("patch", mcp.Description("Settings to change (update)")),
	)
}
