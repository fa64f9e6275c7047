package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/expressions"
	"github.com/rendis/cdnflow/internal/metrics"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/settings"
	"github.com/rendis/cdnflow/internal/simulator"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Registry   *registry.Registry
	Collection *collection.Store
	Settings   *settings.Store
	Simulator  *simulator.Simulator
	Engines    *expressions.Registry
	Hub        streaming.EventHub
	// Records is used to replay run logs onto diagrams. Optional.
	Records store.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// DiagramBinDir is searched for the mermaid-ascii binary.
	DiagramBinDir string
}

// PanelServer serves the JSON API and event stream consumed by the
// rendering surface.
type PanelServer struct {
	deps     PanelDeps
	validate *validator.Validate
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{
		deps:     deps,
		validate: validation.NewStructValidator(),
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	// Palette.
	mux.HandleFunc("GET /api/node-types", s.handleListNodeTypes)
	mux.HandleFunc("GET /api/node-types/{type}", s.handleGetNodeType)

	// Collection.
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("POST /api/workflows/save", s.handleSaveCurrent)
	mux.HandleFunc("POST /api/workflows/save-as", s.handleSaveAs)
	mux.HandleFunc("POST /api/workflows/clear", s.handleClearWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/duplicate", s.handleDuplicateWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/switch", s.handleSwitchWorkflow)
	mux.HandleFunc("POST /api/manager/toggle", s.handleToggleManager)

	// Working set.
	mux.HandleFunc("POST /api/nodes", s.handleAddNode)
	mux.HandleFunc("PATCH /api/nodes/{id}", s.handleUpdateNode)
	mux.HandleFunc("PUT /api/nodes/{id}/config", s.handleConfigureNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", s.handleDeleteNode)
	mux.HandleFunc("POST /api/nodes/{id}/select", s.handleSelectNode)
	mux.HandleFunc("POST /api/edges", s.handleAddEdge)
	mux.HandleFunc("PATCH /api/edges/{id}", s.handleUpdateEdge)
	mux.HandleFunc("DELETE /api/edges/{id}", s.handleDeleteEdge)
	mux.HandleFunc("POST /api/edges/{id}/select", s.handleSelectEdge)

	// Files, checks and queries.
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/diagram", s.handleDiagram)

	// Simulation.
	mux.HandleFunc("POST /api/run", s.handleStartRun)
	mux.HandleFunc("POST /api/run/stop", s.handleStopRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)

	// Settings.
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("DELETE /api/settings", s.handleResetSettings)

	// SSE stream.
	mux.HandleFunc("GET /sse/events", s.handleSSE)

	return mux
}

func (s *PanelServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
