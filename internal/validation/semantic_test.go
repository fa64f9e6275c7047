package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/pkg/schema"
)

func node(id, typeID string) schema.GraphNode {
	return schema.GraphNode{ID: id, Type: typeID, Data: schema.NodeData{Label: id, Config: schema.Config{}}}
}

func edge(id, source, target, handle string) schema.GraphEdge {
	return schema.GraphEdge{ID: id, Source: source, Target: target, SourceHandle: handle, TargetHandle: registry.InputPortID}
}

func TestSemantic_ValidPipeline(t *testing.T) {
	nodes := []schema.GraphNode{
		node("origin", registry.TypeOriginServer),
		node("cache", registry.TypeEdgeCache),
		node("user", registry.TypeEndUser),
	}
	edges := []schema.GraphEdge{
		edge("e1", "origin", "cache", "success"),
		edge("e2", "cache", "user", "hit"),
	}
	result := validateSemantic(nodes, edges, registry.Builtin())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestSemantic_DuplicateNodeID(t *testing.T) {
	nodes := []schema.GraphNode{node("a", registry.TypeWAF), node("a", registry.TypeWAF)}
	result := validateSemantic(nodes, nil, registry.Builtin())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeConflict, result.Errors[0].Code)
	assert.Equal(t, "nodes[1].id", result.Errors[0].Path)
}

func TestSemantic_DuplicateEdgeID(t *testing.T) {
	nodes := []schema.GraphNode{node("a", registry.TypeWAF), node("b", registry.TypeEndUser)}
	edges := []schema.GraphEdge{edge("e", "a", "b", "passed"), edge("e", "a", "b", "blocked")}
	result := validateSemantic(nodes, edges, registry.Builtin())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeConflict, result.Errors[0].Code)
}

func TestSemantic_UnknownNodeType(t *testing.T) {
	nodes := []schema.GraphNode{node("a", "quantum-cache")}
	result := validateSemantic(nodes, nil, registry.Builtin())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeUnknownNodeType, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "quantum-cache")
}

func TestSemantic_DanglingEdge(t *testing.T) {
	nodes := []schema.GraphNode{node("a", registry.TypeWAF)}
	edges := []schema.GraphEdge{edge("e", "ghost", "phantom", "")}
	result := validateSemantic(nodes, edges, registry.Builtin())
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "edges[0].source", result.Errors[0].Path)
	assert.Equal(t, "edges[0].target", result.Errors[1].Path)
	for _, e := range result.Errors {
		assert.Equal(t, schema.ErrCodeNodeNotFound, e.Code)
	}
}

func TestSemantic_UnknownHandlesAreWarnings(t *testing.T) {
	nodes := []schema.GraphNode{node("a", registry.TypeWAF), node("b", registry.TypeEndUser)}
	e := edge("e", "a", "b", "teleport")
	e.TargetHandle = "side"
	result := validateSemantic(nodes, []schema.GraphEdge{e}, registry.Builtin())
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, schema.ErrCodePortNotFound, result.Warnings[0].Code)
	assert.Equal(t, schema.ErrCodePortNotFound, result.Warnings[1].Code)
}

func TestSemantic_NilLookupSkipsTypeChecks(t *testing.T) {
	nodes := []schema.GraphNode{node("a", "anything")}
	result := validateSemantic(nodes, nil, nil)
	assert.True(t, result.Valid())
}
