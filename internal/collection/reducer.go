package collection

import (
	"strings"
	"time"

	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// DuplicateSuffix is appended to the name of a duplicated document.
const DuplicateSuffix = " (copy)"

// Change describes what a successful intent did. Event is empty when the
// intent was a no-op.
type Change struct {
	Event      string
	WorkflowID string
	NodeID     string
	EdgeID     string
	Payload    any
	// SavedChanged is set when the saved collection must be persisted.
	SavedChanged bool
}

// Intent is a mutation request. Implementations live in this package.
type Intent interface {
	// Kind identifies the intent in logs and metrics.
	Kind() string
	apply(r *Reducer, s *State) (Change, error)
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithClock overrides the time source used for document timestamps.
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) { r.now = now }
}

// WithWorkflowIDs overrides workflow id generation.
func WithWorkflowIDs(fn func() string) ReducerOption {
	return func(r *Reducer) { r.newWorkflowID = fn }
}

// WithGraphOptions sets the options used for every working set the reducer
// builds.
func WithGraphOptions(opts ...document.Option) ReducerOption {
	return func(r *Reducer) { r.graphOpts = opts }
}

// Reducer applies intents to states. It holds only immutable dependencies
// and is safe for concurrent use.
type Reducer struct {
	types         document.TypeLookup
	form          *validation.FormValidator
	now           func() time.Time
	newWorkflowID func() string
	graphOpts     []document.Option
}

// NewReducer creates a Reducer over the given node types.
func NewReducer(types validation.TypeLookup, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		types:         types,
		form:          validation.NewFormValidator(types),
		now:           time.Now,
		newWorkflowID: validation.NewWorkflowID,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Initial returns the empty collection for this reducer.
func (r *Reducer) Initial() State {
	return NewState(r.types, r.graphOpts...)
}

// Reduce applies intent to a copy of state. On error the returned state is
// the input state, so a failed intent never partially mutates anything.
func (r *Reducer) Reduce(state State, intent Intent) (State, Change, error) {
	next := state.clone()
	change, err := intent.apply(r, &next)
	if err != nil {
		return state, Change{}, err
	}
	if change.Event == "" {
		return state, change, nil
	}
	return next, change, nil
}

func (r *Reducer) timestamp() time.Time {
	return r.now().UTC()
}

func (r *Reducer) emptyGraph() *document.Graph {
	return document.New(r.types, r.graphOpts...)
}

// --- Working set ---

// AddNode places a node of Type at Position.
type AddNode struct {
	Type     string          `json:"type"`
	Position schema.Position `json:"position"`
}

func (AddNode) Kind() string { return "AddNode" }

func (i AddNode) apply(_ *Reducer, s *State) (Change, error) {
	n, err := s.Graph.AddNode(i.Type, i.Position)
	if err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventNodeAdded, NodeID: n.ID, Payload: n}, nil
}

// UpdateNode merges a patch into a node. Config keys are not validated.
type UpdateNode struct {
	ID    string             `json:"id"`
	Patch document.NodePatch `json:"patch"`
}

func (UpdateNode) Kind() string { return "UpdateNode" }

func (i UpdateNode) apply(_ *Reducer, s *State) (Change, error) {
	n, err := s.Graph.UpdateNode(i.ID, i.Patch)
	if err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventNodeUpdated, NodeID: n.ID, Payload: n}, nil
}

// ConfigureNode is a human edit from the configuration form. Every config
// key is checked against the node type's schema before it is applied.
type ConfigureNode struct {
	ID     string        `json:"id"`
	Label  *string       `json:"label,omitempty"`
	Config schema.Config `json:"config"`
}

func (ConfigureNode) Kind() string { return "ConfigureNode" }

func (i ConfigureNode) apply(r *Reducer, s *State) (Change, error) {
	n, ok := s.Graph.Node(i.ID)
	if !ok {
		return Change{}, schema.NewErrorf(schema.ErrCodeNodeNotFound, "node %q not found", i.ID).WithNode(i.ID)
	}
	if i.Label != nil && strings.TrimSpace(*i.Label) == "" {
		return Change{}, schema.NewError(schema.ErrCodeValidation, "label must not be empty").WithNode(i.ID)
	}
	if err := r.form.ValidateConfig(n.Type, i.Config).ToError(); err != nil {
		if ce, ok := err.(*schema.CdnflowError); ok {
			return Change{}, ce.WithNode(i.ID)
		}
		return Change{}, err
	}
	n, err := s.Graph.UpdateNode(i.ID, document.NodePatch{Label: i.Label, Config: i.Config})
	if err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventNodeUpdated, NodeID: n.ID, Payload: n}, nil
}

// DeleteNode removes a node and its incident edges.
type DeleteNode struct {
	ID string `json:"id"`
}

func (DeleteNode) Kind() string { return "DeleteNode" }

func (i DeleteNode) apply(_ *Reducer, s *State) (Change, error) {
	removed, err := s.Graph.DeleteNode(i.ID)
	if err != nil {
		return Change{}, err
	}
	return Change{
		Event:   schema.EventNodeDeleted,
		NodeID:  i.ID,
		Payload: map[string]any{"removedEdges": removed},
	}, nil
}

// AddEdge connects two nodes.
type AddEdge struct {
	Connection document.Connection `json:"connection"`
}

func (AddEdge) Kind() string { return "AddEdge" }

func (i AddEdge) apply(_ *Reducer, s *State) (Change, error) {
	e, err := s.Graph.AddEdge(i.Connection)
	if err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventEdgeAdded, EdgeID: e.ID, Payload: e}, nil
}

// UpdateEdge merges a patch into an edge.
type UpdateEdge struct {
	ID    string             `json:"id"`
	Patch document.EdgePatch `json:"patch"`
}

func (UpdateEdge) Kind() string { return "UpdateEdge" }

func (i UpdateEdge) apply(_ *Reducer, s *State) (Change, error) {
	e, err := s.Graph.UpdateEdge(i.ID, i.Patch)
	if err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventEdgeUpdated, EdgeID: e.ID, Payload: e}, nil
}

// DeleteEdge removes one edge.
type DeleteEdge struct {
	ID string `json:"id"`
}

func (DeleteEdge) Kind() string { return "DeleteEdge" }

func (i DeleteEdge) apply(_ *Reducer, s *State) (Change, error) {
	if err := s.Graph.DeleteEdge(i.ID); err != nil {
		return Change{}, err
	}
	return Change{Event: schema.EventEdgeDeleted, EdgeID: i.ID}, nil
}

// SelectNode selects a node, clearing any edge selection. An empty ID
// clears the node selection.
type SelectNode struct {
	ID string `json:"id"`
}

func (SelectNode) Kind() string { return "SelectNode" }

func (i SelectNode) apply(_ *Reducer, s *State) (Change, error) {
	if err := s.Graph.SelectNode(i.ID); err != nil {
		return Change{}, err
	}
	return selectionChange(s), nil
}

// SelectEdge selects an edge, clearing any node selection. An empty ID
// clears the edge selection.
type SelectEdge struct {
	ID string `json:"id"`
}

func (SelectEdge) Kind() string { return "SelectEdge" }

func (i SelectEdge) apply(_ *Reducer, s *State) (Change, error) {
	if err := s.Graph.SelectEdge(i.ID); err != nil {
		return Change{}, err
	}
	return selectionChange(s), nil
}

func selectionChange(s *State) Change {
	node, edge := s.Graph.Selection()
	return Change{
		Event:   schema.EventSelectionChange,
		NodeID:  node,
		EdgeID:  edge,
		Payload: map[string]string{"nodeId": node, "edgeId": edge},
	}
}

// --- Collection ---

// CreateWorkflow creates an empty document, saves it and opens it.
type CreateWorkflow struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (CreateWorkflow) Kind() string { return "CreateWorkflow" }

func (i CreateWorkflow) apply(r *Reducer, s *State) (Change, error) {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		return Change{}, schema.NewError(schema.ErrCodeNameRequired, "workflow name is required")
	}
	now := r.timestamp()
	doc := schema.WorkflowDocument{
		ID:          r.newWorkflowID(),
		Name:        name,
		Description: i.Description,
		Version:     schema.DefaultDocumentVersion,
		Nodes:       []schema.GraphNode{},
		Edges:       []schema.GraphEdge{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.stopRun()
	s.Saved = append(s.Saved, doc)
	s.Current = doc.Clone()
	s.Graph = r.emptyGraph()
	s.ManagerVisible = false
	return Change{Event: schema.EventWorkflowCreated, WorkflowID: doc.ID, Payload: doc.Clone(), SavedChanged: true}, nil
}

// SaveCurrent writes the working set into the open document. Fails with
// NEEDS_NAME when no document is open.
type SaveCurrent struct{}

func (SaveCurrent) Kind() string { return "SaveCurrent" }

func (SaveCurrent) apply(r *Reducer, s *State) (Change, error) {
	if s.Current == nil {
		return Change{}, schema.NewError(schema.ErrCodeNeedsName, "no workflow is open: a name is needed to save")
	}
	doc := s.Document()
	doc.UpdatedAt = r.timestamp()
	if i := s.savedIndex(doc.ID); i >= 0 {
		s.Saved[i] = *doc
	} else {
		s.Saved = append(s.Saved, *doc)
	}
	s.Current = doc.Clone()
	return Change{Event: schema.EventWorkflowSaved, WorkflowID: doc.ID, Payload: doc, SavedChanged: true}, nil
}

// SaveAs saves the working set as a new document and opens it.
type SaveAs struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (SaveAs) Kind() string { return "SaveAs" }

func (i SaveAs) apply(r *Reducer, s *State) (Change, error) {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		return Change{}, schema.NewError(schema.ErrCodeNameRequired, "workflow name is required")
	}
	desc := i.Description
	if desc == "" {
		desc = "CDN acceleration workflow - " + name
	}
	now := r.timestamp()
	doc := schema.WorkflowDocument{
		ID:          r.newWorkflowID(),
		Name:        name,
		Description: desc,
		Version:     schema.DefaultDocumentVersion,
		Nodes:       s.Graph.Nodes(),
		Edges:       s.Graph.Edges(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Saved = append(s.Saved, doc)
	s.Current = doc.Clone()
	return Change{Event: schema.EventWorkflowSaved, WorkflowID: doc.ID, Payload: doc.Clone(), SavedChanged: true}, nil
}

// DeleteWorkflow removes a saved document. Deleting the open document also
// closes it and clears the working set.
type DeleteWorkflow struct {
	ID string `json:"id"`
}

func (DeleteWorkflow) Kind() string { return "DeleteWorkflow" }

func (i DeleteWorkflow) apply(r *Reducer, s *State) (Change, error) {
	idx := s.savedIndex(i.ID)
	isCurrent := s.Current != nil && s.Current.ID == i.ID
	if idx < 0 && !isCurrent {
		return Change{}, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", i.ID)
	}
	if idx >= 0 {
		s.Saved = append(s.Saved[:idx], s.Saved[idx+1:]...)
	}
	if isCurrent {
		s.stopRun()
		s.Current = nil
		s.Graph = r.emptyGraph()
	}
	return Change{
		Event:        schema.EventWorkflowDeleted,
		WorkflowID:   i.ID,
		Payload:      map[string]bool{"wasCurrent": isCurrent},
		SavedChanged: idx >= 0,
	}, nil
}

// DuplicateWorkflow saves a deep copy of a saved document under a new id.
// The open document does not change.
type DuplicateWorkflow struct {
	ID string `json:"id"`
}

func (DuplicateWorkflow) Kind() string { return "DuplicateWorkflow" }

func (i DuplicateWorkflow) apply(r *Reducer, s *State) (Change, error) {
	src, ok := s.SavedDocument(i.ID)
	if !ok {
		return Change{}, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", i.ID)
	}
	now := r.timestamp()
	src.ID = r.newWorkflowID()
	src.Name += DuplicateSuffix
	src.CreatedAt = now
	src.UpdatedAt = now
	s.Saved = append(s.Saved, *src)
	return Change{
		Event:        schema.EventWorkflowDuplicated,
		WorkflowID:   src.ID,
		Payload:      map[string]string{"sourceId": i.ID, "id": src.ID},
		SavedChanged: true,
	}, nil
}

// SwitchWorkflow opens a saved document. An unknown id is a silent no-op.
type SwitchWorkflow struct {
	ID string `json:"id"`
}

func (SwitchWorkflow) Kind() string { return "SwitchWorkflow" }

func (i SwitchWorkflow) apply(r *Reducer, s *State) (Change, error) {
	doc, ok := s.SavedDocument(i.ID)
	if !ok {
		return Change{}, nil
	}
	g, err := document.FromDocument(r.types, doc.Nodes, doc.Edges, r.graphOpts...)
	if err != nil {
		return Change{}, err
	}
	s.stopRun()
	s.Current = doc
	s.Graph = g
	s.ManagerVisible = false
	return Change{Event: schema.EventWorkflowSwitched, WorkflowID: doc.ID, Payload: doc.Clone()}, nil
}

// ImportWorkflow opens an already parsed import file as the current
// document. It is not added to the saved collection until saved.
type ImportWorkflow struct {
	Document *schema.WorkflowDocument `json:"document"`
}

func (ImportWorkflow) Kind() string { return "ImportWorkflow" }

func (i ImportWorkflow) apply(r *Reducer, s *State) (Change, error) {
	if i.Document == nil {
		return Change{}, schema.NewError(schema.ErrCodeImportParse, "invalid workflow file: no document")
	}
	g, err := document.FromDocument(r.types, i.Document.Nodes, i.Document.Edges, r.graphOpts...)
	if err != nil {
		return Change{}, schema.NewError(schema.ErrCodeImportParse, "invalid workflow file: "+err.Error()).WithCause(err)
	}
	s.stopRun()
	s.Current = i.Document.Clone()
	s.Graph = g
	return Change{Event: schema.EventWorkflowImported, WorkflowID: i.Document.ID, Payload: i.Document.Clone()}, nil
}

// LoadWorkflows replaces the saved collection with documents read from
// storage.
type LoadWorkflows struct {
	Documents []schema.WorkflowDocument `json:"documents"`
}

func (LoadWorkflows) Kind() string { return "LoadWorkflows" }

func (i LoadWorkflows) apply(_ *Reducer, s *State) (Change, error) {
	s.Saved = make([]schema.WorkflowDocument, len(i.Documents))
	for k := range i.Documents {
		s.Saved[k] = *i.Documents[k].Clone()
	}
	return Change{Event: schema.EventWorkflowsLoaded, Payload: map[string]int{"count": len(s.Saved)}}, nil
}

// ClearWorkflow closes the open document and empties the working set.
type ClearWorkflow struct{}

func (ClearWorkflow) Kind() string { return "ClearWorkflow" }

func (ClearWorkflow) apply(r *Reducer, s *State) (Change, error) {
	var id string
	if s.Current != nil {
		id = s.Current.ID
	}
	s.stopRun()
	s.Current = nil
	s.Graph = r.emptyGraph()
	return Change{Event: schema.EventWorkflowCleared, WorkflowID: id}, nil
}

// ToggleManager flips the workflow manager panel.
type ToggleManager struct{}

func (ToggleManager) Kind() string { return "ToggleManager" }

func (ToggleManager) apply(_ *Reducer, s *State) (Change, error) {
	s.ManagerVisible = !s.ManagerVisible
	return Change{Event: schema.EventManagerToggled, Payload: map[string]bool{"visible": s.ManagerVisible}}, nil
}
