package panel

import (
	"net/http"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

// --- Palette ---

func (s *PanelServer) handleListNodeTypes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var types []schema.NodeTypeDescriptor
	switch {
	case q.Get("category") != "":
		types = s.deps.Registry.ByCategory(schema.Category(q.Get("category")))
	case q.Get("provider") != "":
		types = s.deps.Registry.ByProvider(schema.Provider(q.Get("provider")))
	default:
		types = s.deps.Registry.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types, "total": len(types)})
}

func (s *PanelServer) handleGetNodeType(w http.ResponseWriter, r *http.Request) {
	desc, err := s.deps.Registry.Lookup(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":  desc,
		"ports": registry.Ports(desc),
	})
}

// --- Collection ---

// stateView is the editor state as the rendering surface sees it.
type stateView struct {
	WorkingSet     *schema.WorkflowDocument `json:"workingSet"`
	CurrentID      string                   `json:"currentId,omitempty"`
	Saved          []workflowSummary        `json:"saved"`
	SelectedNodeID string                   `json:"selectedNodeId,omitempty"`
	SelectedEdgeID string                   `json:"selectedEdgeId,omitempty"`
	IsRunning      bool                     `json:"isRunning"`
	RunID          string                   `json:"runId,omitempty"`
	ManagerVisible bool                     `json:"managerVisible"`
}

func (s *PanelServer) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Collection.State()
	nodeID, edgeID := st.Selection()
	view := stateView{
		WorkingSet:     st.WorkingSet(),
		Saved:          summarize(st.Saved),
		SelectedNodeID: nodeID,
		SelectedEdgeID: edgeID,
		IsRunning:      st.IsRunning,
		RunID:          st.RunID,
		ManagerVisible: st.ManagerVisible,
	}
	if st.Current != nil {
		view.CurrentID = st.Current.ID
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *PanelServer) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	saved := s.deps.Collection.SavedDocuments()
	writeJSON(w, http.StatusOK, map[string]any{"workflows": summarize(saved), "total": len(saved)})
}

func (s *PanelServer) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, ok := s.deps.Collection.State().SavedDocument(id)
	if !ok {
		writeError(w, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type namedRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (s *PanelServer) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body namedRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.dispatch(w, r, collection.CreateWorkflow{Name: body.Name, Description: body.Description}, http.StatusCreated)
}

func (s *PanelServer) handleSaveCurrent(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.SaveCurrent{}, http.StatusOK)
}

func (s *PanelServer) handleSaveAs(w http.ResponseWriter, r *http.Request) {
	var body namedRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.dispatch(w, r, collection.SaveAs{Name: body.Name, Description: body.Description}, http.StatusCreated)
}

func (s *PanelServer) handleClearWorkflow(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.ClearWorkflow{}, http.StatusOK)
}

func (s *PanelServer) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.DeleteWorkflow{ID: r.PathValue("id")}, http.StatusOK)
}

func (s *PanelServer) handleDuplicateWorkflow(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.DuplicateWorkflow{ID: r.PathValue("id")}, http.StatusCreated)
}

func (s *PanelServer) handleSwitchWorkflow(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.SwitchWorkflow{ID: r.PathValue("id")}, http.StatusOK)
}

func (s *PanelServer) handleToggleManager(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.ToggleManager{}, http.StatusOK)
}

// --- Working set ---

type addNodeRequest struct {
	Type     string          `json:"type" validate:"required"`
	Position schema.Position `json:"position"`
}

func (s *PanelServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var body addNodeRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.dispatch(w, r, collection.AddNode{Type: body.Type, Position: body.Position}, http.StatusCreated)
}

func (s *PanelServer) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var patch document.NodePatch
	if !s.decode(w, r, &patch) {
		return
	}
	s.dispatch(w, r, collection.UpdateNode{ID: r.PathValue("id"), Patch: patch}, http.StatusOK)
}

type configureRequest struct {
	Label  *string       `json:"label,omitempty"`
	Config schema.Config `json:"config"`
}

func (s *PanelServer) handleConfigureNode(w http.ResponseWriter, r *http.Request) {
	var body configureRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.dispatch(w, r, collection.ConfigureNode{ID: r.PathValue("id"), Label: body.Label, Config: body.Config}, http.StatusOK)
}

func (s *PanelServer) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.DeleteNode{ID: r.PathValue("id")}, http.StatusOK)
}

func (s *PanelServer) handleSelectNode(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.SelectNode{ID: r.PathValue("id")}, http.StatusOK)
}

type addEdgeRequest struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

func (s *PanelServer) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var body addEdgeRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.dispatch(w, r, collection.AddEdge{Connection: document.Connection{
		Source:       body.Source,
		Target:       body.Target,
		SourceHandle: body.SourceHandle,
		TargetHandle: body.TargetHandle,
	}}, http.StatusCreated)
}

func (s *PanelServer) handleUpdateEdge(w http.ResponseWriter, r *http.Request) {
	var patch document.EdgePatch
	if !s.decode(w, r, &patch) {
		return
	}
	s.dispatch(w, r, collection.UpdateEdge{ID: r.PathValue("id"), Patch: patch}, http.StatusOK)
}

func (s *PanelServer) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.DeleteEdge{ID: r.PathValue("id")}, http.StatusOK)
}

func (s *PanelServer) handleSelectEdge(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, collection.SelectEdge{ID: r.PathValue("id")}, http.StatusOK)
}
