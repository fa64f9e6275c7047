package collection

import (
	"time"

	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/pkg/schema"
)

// State is one immutable snapshot of the collection. Reduce never mutates
// the State it receives.
//
// Current holds the metadata of the open document; its node and edge lists
// are not kept in step while editing. Graph is the live working set and
// exists even when no document is open.
type State struct {
	Current        *schema.WorkflowDocument
	Graph          *document.Graph
	Saved          []schema.WorkflowDocument
	IsRunning      bool
	RunID          string
	ManagerVisible bool
}

// NewState returns the empty collection.
func NewState(types document.TypeLookup, opts ...document.Option) State {
	return State{
		Graph: document.New(types, opts...),
		Saved: []schema.WorkflowDocument{},
	}
}

func (s State) clone() State {
	out := s
	out.Current = s.Current.Clone()
	out.Graph = s.Graph.Clone()
	out.Saved = make([]schema.WorkflowDocument, len(s.Saved))
	for i := range s.Saved {
		out.Saved[i] = *s.Saved[i].Clone()
	}
	return out
}

// Document returns the open document with the working set's nodes and
// edges, or nil when no document is open.
func (s State) Document() *schema.WorkflowDocument {
	if s.Current == nil {
		return nil
	}
	doc := s.Current.Clone()
	doc.Nodes = s.Graph.Nodes()
	doc.Edges = s.Graph.Edges()
	return doc
}

// WorkingSet returns the working set as an unsaved document. Name and id
// come from the open document when there is one.
func (s State) WorkingSet() *schema.WorkflowDocument {
	if doc := s.Document(); doc != nil {
		return doc
	}
	return &schema.WorkflowDocument{
		Nodes: s.Graph.Nodes(),
		Edges: s.Graph.Edges(),
	}
}

// SavedDocument returns a copy of the saved document with the given id.
func (s State) SavedDocument(id string) (*schema.WorkflowDocument, bool) {
	i := s.savedIndex(id)
	if i < 0 {
		return nil, false
	}
	return s.Saved[i].Clone(), true
}

// Selection returns the selected node and edge ids.
func (s State) Selection() (nodeID, edgeID string) {
	return s.Graph.Selection()
}

// Export snapshots the working set for download. Fails with
// NOTHING_TO_EXPORT when there are no nodes.
func (s State) Export(now func() time.Time) (*schema.ExportDocument, error) {
	if s.Graph.Len() == 0 {
		return nil, schema.NewError(schema.ErrCodeNothingToExport, "nothing to export: the workflow has no nodes")
	}
	name := schema.DefaultExportName
	if s.Current != nil && s.Current.Name != "" {
		name = s.Current.Name
	}
	return &schema.ExportDocument{
		Name:       name,
		Nodes:      s.Graph.Nodes(),
		Edges:      s.Graph.Edges(),
		ExportedAt: now().UTC(),
	}, nil
}

func (s State) savedIndex(id string) int {
	for i := range s.Saved {
		if s.Saved[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) stopRun() {
	if s.IsRunning {
		s.Graph.ResetStatuses()
	}
	s.IsRunning = false
	s.RunID = ""
}
