package collection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

func TestCreateThenDuplicate(t *testing.T) {
	r, _ := newTestReducer(t)
	s := r.Initial()

	s, c := mustReduce(t, r, s, CreateWorkflow{Name: "Test"})
	assert.Equal(t, schema.EventWorkflowCreated, c.Event)
	assert.True(t, c.SavedChanged)
	require.Len(t, s.Saved, 1)
	require.NotNil(t, s.Current)
	assert.Equal(t, "Test", s.Current.Name)
	assert.Equal(t, schema.DefaultDocumentVersion, s.Current.Version)
	assert.Empty(t, s.Document().Nodes)
	assert.False(t, s.ManagerVisible)

	original := s.Saved[0].ID
	s, c = mustReduce(t, r, s, DuplicateWorkflow{ID: original})
	require.Len(t, s.Saved, 2)
	assert.NotEqual(t, original, s.Saved[1].ID)
	assert.Equal(t, "Test (copy)", s.Saved[1].Name)
	assert.Equal(t, s.Saved[1].ID, c.WorkflowID)
	assert.Equal(t, original, s.Current.ID, "duplicating does not switch")
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	r, _ := newTestReducer(t)
	s := r.Initial()

	for _, name := range []string{"", "   ", "\t\n"} {
		next, _, err := r.Reduce(s, CreateWorkflow{Name: name})
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeNameRequired))
		assert.Empty(t, next.Saved)
		assert.Nil(t, next.Current)
	}
}

func TestIntentKind(t *testing.T) {
	tests := []struct {
		intent Intent
		want   string
	}{
		{CreateWorkflow{Name: "Edge"}, "CreateWorkflow"},
		{SaveAs{Name: "Edge"}, "SaveAs"},
		{SaveCurrent{}, "SaveCurrent"},
		{AddNode{Type: registry.TypeWAF}, "AddNode"},
		{StopRun{}, "StopRun"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.intent.Kind())
		})
	}

	var create CreateWorkflow
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Edge","description":"d"}`), &create))
	assert.Equal(t, CreateWorkflow{Name: "Edge", Description: "d"}, create)
}

func TestCreateWorkflowTrimsNameAndClosesManager(t *testing.T) {
	r, _ := newTestReducer(t)
	s, _ := mustReduce(t, r, r.Initial(), ToggleManager{})
	require.True(t, s.ManagerVisible)

	s, _ = mustReduce(t, r, s, CreateWorkflow{Name: "  Edge  ", Description: "pipeline"})
	assert.Equal(t, "Edge", s.Current.Name)
	assert.Equal(t, "pipeline", s.Current.Description)
	assert.False(t, s.ManagerVisible)
}

func TestSaveCurrent(t *testing.T) {
	t.Run("needs a name without an open document", func(t *testing.T) {
		r, _ := newTestReducer(t)
		s, _ := mustReduce(t, r, r.Initial(), AddNode{Type: registry.TypeOriginServer})
		_, _, err := r.Reduce(s, SaveCurrent{})
		assert.True(t, schema.IsCode(err, schema.ErrCodeNeedsName))
	})

	t.Run("twice replaces in place", func(t *testing.T) {
		r, _ := newTestReducer(t)
		s, _ := mustReduce(t, r, r.Initial(), CreateWorkflow{Name: "A"})
		s, _ = mustReduce(t, r, s, CreateWorkflow{Name: "B"})
		s, _ = mustReduce(t, r, s, SwitchWorkflow{ID: s.Saved[0].ID})
		s, ids := pipeline(t, r, s)

		s, _ = mustReduce(t, r, s, SaveCurrent{})
		first := s.Saved[0].UpdatedAt
		s, c := mustReduce(t, r, s, SaveCurrent{})
		second := s.Saved[0].UpdatedAt

		require.Len(t, s.Saved, 2)
		assert.Equal(t, "A", s.Saved[0].Name, "position is preserved")
		assert.True(t, second.After(first))
		assert.True(t, s.Current.UpdatedAt.Equal(second))
		assert.Len(t, s.Saved[0].Nodes, len(ids))
		assert.Len(t, s.Saved[0].Edges, 2)
		assert.Equal(t, schema.EventWorkflowSaved, c.Event)
	})

	t.Run("appends an imported document", func(t *testing.T) {
		r, _ := newTestReducer(t)
		doc := &schema.WorkflowDocument{ID: "workflow_imported", Name: "Imported"}
		s, _ := mustReduce(t, r, r.Initial(), ImportWorkflow{Document: doc})
		assert.Empty(t, s.Saved)

		s, _ = mustReduce(t, r, s, SaveCurrent{})
		require.Len(t, s.Saved, 1)
		assert.Equal(t, "workflow_imported", s.Saved[0].ID)
	})
}

func TestSaveAs(t *testing.T) {
	r, _ := newTestReducer(t)
	s, ids := pipeline(t, r, r.Initial())

	_, _, err := r.Reduce(s, SaveAs{Name: " "})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNameRequired))

	s, c := mustReduce(t, r, s, SaveAs{Name: "Edge pipeline"})
	require.Len(t, s.Saved, 1)
	assert.Equal(t, c.WorkflowID, s.Current.ID)
	assert.Equal(t, "CDN acceleration workflow - Edge pipeline", s.Saved[0].Description)
	assert.Len(t, s.Saved[0].Nodes, len(ids))
}

func TestDeleteNodeCascades(t *testing.T) {
	r, _ := newTestReducer(t)
	s, ids := pipeline(t, r, r.Initial())
	s, _ = mustReduce(t, r, s, SelectNode{ID: ids[1]})

	s, c := mustReduce(t, r, s, DeleteNode{ID: ids[1]})
	assert.Equal(t, schema.EventNodeDeleted, c.Event)
	assert.Len(t, c.Payload.(map[string]any)["removedEdges"], 2)

	for _, e := range s.Graph.Edges() {
		assert.NotEqual(t, ids[1], e.Source)
		assert.NotEqual(t, ids[1], e.Target)
	}
	assert.Zero(t, s.Graph.EdgeCount())
	node, edge := s.Selection()
	assert.Empty(t, node)
	assert.Empty(t, edge)
}

func TestFailedIntentLeavesStateUnchanged(t *testing.T) {
	r, _ := newTestReducer(t)
	s, ids := pipeline(t, r, r.Initial())

	tests := []struct {
		name   string
		intent Intent
		code   string
	}{
		{"edge to missing node", AddEdge{Connection: document.Connection{Source: ids[0], Target: "ghost"}}, schema.ErrCodeNodeNotFound},
		{"edge from missing node", AddEdge{Connection: document.Connection{Source: "ghost", Target: ids[0]}}, schema.ErrCodeNodeNotFound},
		{"unknown type", AddNode{Type: "quantum-cache"}, schema.ErrCodeUnknownNodeType},
		{"update missing node", UpdateNode{ID: "ghost"}, schema.ErrCodeNodeNotFound},
		{"delete missing edge", DeleteEdge{ID: "ghost"}, schema.ErrCodeEdgeNotFound},
		{"select missing edge", SelectEdge{ID: "ghost"}, schema.ErrCodeEdgeNotFound},
		{"delete missing workflow", DeleteWorkflow{ID: "ghost"}, schema.ErrCodeNotFound},
		{"duplicate missing workflow", DuplicateWorkflow{ID: "ghost"}, schema.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, change, err := r.Reduce(s, tt.intent)
			require.Error(t, err)
			assert.Equal(t, tt.code, schema.ErrorCode(err))
			assert.Empty(t, change.Event)
			assert.Equal(t, s.Graph.Len(), next.Graph.Len())
			assert.Equal(t, s.Graph.Edges(), next.Graph.Edges())
		})
	}
}

func TestReduceCopiesOnWrite(t *testing.T) {
	r, _ := newTestReducer(t)
	s0 := r.Initial()
	s1, _ := mustReduce(t, r, s0, AddNode{Type: registry.TypeOriginServer})
	s2, _ := mustReduce(t, r, s1, CreateWorkflow{Name: "X"})

	assert.Zero(t, s0.Graph.Len())
	assert.Equal(t, 1, s1.Graph.Len())
	assert.Empty(t, s1.Saved)
	assert.Len(t, s2.Saved, 1)
}

func TestSelectionIsExclusive(t *testing.T) {
	r, _ := newTestReducer(t)
	s, ids := pipeline(t, r, r.Initial())
	edges := s.Graph.Edges()

	steps := []struct {
		intent   Intent
		wantNode string
		wantEdge string
	}{
		{SelectNode{ID: ids[0]}, ids[0], ""},
		{SelectEdge{ID: edges[0].ID}, "", edges[0].ID},
		{SelectEdge{ID: edges[1].ID}, "", edges[1].ID},
		{SelectNode{ID: ids[2]}, ids[2], ""},
		{SelectNode{ID: ""}, "", ""},
		{SelectEdge{ID: edges[0].ID}, "", edges[0].ID},
		{DeleteEdge{ID: edges[0].ID}, "", ""},
	}
	for _, step := range steps {
		var c Change
		s, c = mustReduce(t, r, s, step.intent)
		node, edge := s.Selection()
		assert.Equal(t, step.wantNode, node, step.intent.Kind())
		assert.Equal(t, step.wantEdge, edge, step.intent.Kind())
		assert.False(t, node != "" && edge != "")
		if c.Event == schema.EventSelectionChange {
			assert.Equal(t, step.wantNode, c.NodeID)
		}
	}
}

func TestConfigureNode(t *testing.T) {
	r, _ := newTestReducer(t)
	s, ids := pipeline(t, r, r.Initial())
	cache := ids[1]

	label := "Tokyo edge"
	s, c := mustReduce(t, r, s, ConfigureNode{ID: cache, Label: &label, Config: schema.Config{"ttl": schema.NumberValue(7200)}})
	assert.Equal(t, schema.EventNodeUpdated, c.Event)
	n, _ := s.Graph.Node(cache)
	assert.Equal(t, "Tokyo edge", n.Data.Label)
	assert.True(t, n.Data.Config["ttl"].Equal(schema.NumberValue(7200)))
	assert.True(t, n.Data.Config["maxSize"].Equal(schema.StringValue("10GB")), "untouched keys survive")

	tests := []struct {
		name   string
		intent ConfigureNode
		code   string
	}{
		{"below minimum", ConfigureNode{ID: cache, Config: schema.Config{"ttl": schema.NumberValue(10)}}, schema.ErrCodeValidation},
		{"wrong kind", ConfigureNode{ID: cache, Config: schema.Config{"ttl": schema.StringValue("long")}}, schema.ErrCodeValidation},
		{"unknown key", ConfigureNode{ID: cache, Config: schema.Config{"color": schema.StringValue("red")}}, schema.ErrCodeValidation},
		{"missing node", ConfigureNode{ID: "ghost"}, schema.ErrCodeNodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := r.Reduce(s, tt.intent)
			require.Error(t, err)
			assert.Equal(t, tt.code, schema.ErrorCode(err))
			n, _ := next.Graph.Node(cache)
			assert.True(t, n.Data.Config["ttl"].Equal(schema.NumberValue(7200)))
		})
	}

	t.Run("empty label", func(t *testing.T) {
		empty := " "
		_, _, err := r.Reduce(s, ConfigureNode{ID: cache, Label: &empty})
		assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	})
}

func TestDeleteWorkflow(t *testing.T) {
	r, _ := newTestReducer(t)
	s, _ := mustReduce(t, r, r.Initial(), CreateWorkflow{Name: "A"})
	s, _ = mustReduce(t, r, s, CreateWorkflow{Name: "B"})
	s, _ = pipeline(t, r, s)
	a, b := s.Saved[0].ID, s.Saved[1].ID

	s, c := mustReduce(t, r, s, DeleteWorkflow{ID: a})
	assert.False(t, c.Payload.(map[string]bool)["wasCurrent"])
	assert.Equal(t, b, s.Current.ID)
	assert.Equal(t, 3, s.Graph.Len())

	s, c = mustReduce(t, r, s, DeleteWorkflow{ID: b})
	assert.True(t, c.Payload.(map[string]bool)["wasCurrent"])
	assert.True(t, c.SavedChanged)
	assert.Nil(t, s.Current)
	assert.Zero(t, s.Graph.Len())
	assert.Empty(t, s.Saved)
}

func TestSwitchWorkflow(t *testing.T) {
	r, _ := newTestReducer(t)
	s, _ := mustReduce(t, r, r.Initial(), CreateWorkflow{Name: "A"})
	s, ids := pipeline(t, r, s)
	s, _ = mustReduce(t, r, s, SaveCurrent{})
	a := s.Current.ID
	s, _ = mustReduce(t, r, s, CreateWorkflow{Name: "B"})
	require.Zero(t, s.Graph.Len())

	t.Run("unknown id is a no-op", func(t *testing.T) {
		next, c, err := r.Reduce(s, SwitchWorkflow{ID: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, c.Event)
		assert.Equal(t, s.Current.ID, next.Current.ID)
	})

	s, _ = mustReduce(t, r, s, AddNode{Type: registry.TypeWAF})
	s, _ = mustReduce(t, r, s, StartRun{RunID: "run-1"})
	s, _ = mustReduce(t, r, s, ToggleManager{})
	s, _ = mustReduce(t, r, s, SelectNode{ID: s.Graph.NodeIDs()[0]})

	s, c := mustReduce(t, r, s, SwitchWorkflow{ID: a})
	assert.Equal(t, schema.EventWorkflowSwitched, c.Event)
	assert.Equal(t, a, s.Current.ID)
	assert.Equal(t, ids, s.Graph.NodeIDs())
	assert.Equal(t, 2, s.Graph.EdgeCount())
	assert.False(t, s.IsRunning)
	assert.Empty(t, s.RunID)
	assert.False(t, s.ManagerVisible)
	node, edge := s.Selection()
	assert.Empty(t, node)
	assert.Empty(t, edge)
}

func TestImportWorkflow(t *testing.T) {
	r, _ := newTestReducer(t)
	s, _ := pipeline(t, r, r.Initial())

	t.Run("nil document", func(t *testing.T) {
		_, _, err := r.Reduce(s, ImportWorkflow{})
		assert.True(t, schema.IsCode(err, schema.ErrCodeImportParse))
	})

	t.Run("dangling edge rejected without mutation", func(t *testing.T) {
		doc := &schema.WorkflowDocument{
			Name:  "broken",
			Nodes: []schema.GraphNode{{ID: "o1", Type: registry.TypeOriginServer}},
			Edges: []schema.GraphEdge{{ID: "e1", Source: "o1", Target: "gone"}},
		}
		next, _, err := r.Reduce(s, ImportWorkflow{Document: doc})
		assert.True(t, schema.IsCode(err, schema.ErrCodeImportParse))
		assert.Equal(t, 3, next.Graph.Len())
	})

	t.Run("replaces the working set", func(t *testing.T) {
		doc := &schema.WorkflowDocument{
			ID:    "workflow_x",
			Name:  "imported",
			Nodes: []schema.GraphNode{{ID: "o1", Type: registry.TypeOriginServer, Data: schema.NodeData{Label: "Origin"}}},
		}
		next, c := mustReduce(t, r, s, ImportWorkflow{Document: doc})
		assert.Equal(t, schema.EventWorkflowImported, c.Event)
		assert.False(t, c.SavedChanged)
		assert.Equal(t, []string{"o1"}, next.Graph.NodeIDs())
		assert.Equal(t, "imported", next.Current.Name)
	})
}

func TestClearWorkflowAndToggleManager(t *testing.T) {
	r, _ := newTestReducer(t)
	s, _ := mustReduce(t, r, r.Initial(), CreateWorkflow{Name: "A"})
	s, _ = pipeline(t, r, s)

	s, c := mustReduce(t, r, s, ClearWorkflow{})
	assert.Equal(t, schema.EventWorkflowCleared, c.Event)
	assert.Nil(t, s.Current)
	assert.Zero(t, s.Graph.Len())
	assert.Len(t, s.Saved, 1, "clearing keeps saved documents")

	s, c = mustReduce(t, r, s, ToggleManager{})
	assert.True(t, s.ManagerVisible)
	assert.Equal(t, map[string]bool{"visible": true}, c.Payload)
	s, _ = mustReduce(t, r, s, ToggleManager{})
	assert.False(t, s.ManagerVisible)
}

func TestLoadWorkflows(t *testing.T) {
	r, _ := newTestReducer(t)
	docs := []schema.WorkflowDocument{{ID: "workflow_a", Name: "A"}, {ID: "workflow_b", Name: "B"}}

	s, c := mustReduce(t, r, r.Initial(), LoadWorkflows{Documents: docs})
	assert.False(t, c.SavedChanged, "loading does not write back")
	require.Len(t, s.Saved, 2)
	docs[0].Name = "mutated"
	assert.Equal(t, "A", s.Saved[0].Name)
}

func TestExport(t *testing.T) {
	r, clock := newTestReducer(t)

	_, err := r.Initial().Export(clock.Now)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNothingToExport))

	s, _ := pipeline(t, r, r.Initial())
	exp, err := s.Export(clock.Now)
	require.NoError(t, err)
	assert.Equal(t, schema.DefaultExportName, exp.Name)
	assert.Equal(t, "untitled-workflow.json", exp.FileName())
	assert.Len(t, exp.Nodes, 3)
	assert.Len(t, exp.Edges, 2)
	assert.False(t, exp.ExportedAt.IsZero())

	s, _ = mustReduce(t, r, s, SaveAs{Name: "edge"})
	exp, err = s.Export(clock.Now)
	require.NoError(t, err)
	assert.Equal(t, "edge.json", exp.FileName())
}
