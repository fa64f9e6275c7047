package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/diagram"
	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/simulator"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/pkg/schema"
)

// handlePalette lists node types, or describes one with its ports.
func (s *CdnflowServer) handlePalette(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if typeID := req.GetString("type", ""); typeID != "" {
		desc, err := s.registry.Lookup(typeID)
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(map[string]any{"type": desc, "ports": registry.Ports(desc)})
	}

	var types []schema.NodeTypeDescriptor
	switch {
	case req.GetString("category", "") != "":
		types = s.registry.ByCategory(schema.Category(req.GetString("category", "")))
	case req.GetString("provider", "") != "":
		types = s.registry.ByProvider(schema.Provider(req.GetString("provider", "")))
	default:
		types = s.registry.List()
	}
	return marshalResult(map[string]any{"types": types, "total": len(types)})
}

// handleWorkflows manages the saved collection and the open document.
func (s *CdnflowServer) handleWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	id := req.GetString("id", "")
	name := req.GetString("name", "")
	description := req.GetString("description", "")

	var intent collection.Intent
	switch action {
	case "state":
		return marshalResult(s.stateSummary())
	case "list":
		return marshalResult(map[string]any{"workflows": s.collection.SavedDocuments()})
	case "get":
		doc, ok := s.collection.State().SavedDocument(id)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found", id)), nil
		}
		return marshalResult(doc)
	case "create":
		intent = collection.CreateWorkflow{Name: name, Description: description}
	case "save":
		intent = collection.SaveCurrent{}
	case "save_as":
		intent = collection.SaveAs{Name: name, Description: description}
	case "switch":
		intent = collection.SwitchWorkflow{ID: id}
	case "duplicate":
		intent = collection.DuplicateWorkflow{ID: id}
	case "delete":
		intent = collection.DeleteWorkflow{ID: id}
	case "clear":
		intent = collection.ClearWorkflow{}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
	return s.dispatch(ctx, intent)
}

// handleEdit applies one working set edit.
func (s *CdnflowServer) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, err := req.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError("operation is required"), nil
	}
	id := req.GetString("id", "")

	var intent collection.Intent
	switch op {
	case "add_node":
		typeID, err := req.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError("type is required"), nil
		}
		var pos schema.Position
		if err := decodeArg(req, "position", &pos); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent = collection.AddNode{Type: typeID, Position: pos}
	case "update_node":
		var patch document.NodePatch
		if err := decodeArg(req, "patch", &patch); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent = collection.UpdateNode{ID: id, Patch: patch}
	case "configure_node":
		var cfg schema.Config
		if err := decodeArg(req, "config", &cfg); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ci := collection.ConfigureNode{ID: id, Config: cfg}
		if label := req.GetString("label", ""); label != "" {
			ci.Label = &label
		}
		intent = ci
	case "delete_node":
		intent = collection.DeleteNode{ID: id}
	case "select_node":
		intent = collection.SelectNode{ID: id}
	case "connect":
		var conn document.Connection
		if err := decodeArg(req, "connection", &conn); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent = collection.AddEdge{Connection: conn}
	case "update_edge":
		var patch document.EdgePatch
		if err := decodeArg(req, "patch", &patch); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		intent = collection.UpdateEdge{ID: id, Patch: patch}
	case "delete_edge":
		intent = collection.DeleteEdge{ID: id}
	case "select_edge":
		intent = collection.SelectEdge{ID: id}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown operation: %s", op)), nil
	}
	return s.dispatch(ctx, intent)
}

// handleRun starts, stops or inspects simulation runs.
func (s *CdnflowServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "start":
		run, err := s.simulator.Start(ctx)
		if err != nil {
			return toolError(err), nil
		}
		if agentID := req.GetString("agent_id", ""); agentID != "" {
			s.captureSession(ctx, agentID)
			go s.notifyWhenDone(agentID, run)
		}
		return marshalResult(map[string]any{"run_id": run.ID, "execution": run.Execution()})
	case "stop":
		change, err := s.simulator.Stop(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(map[string]any{"ok": true, "event": change.Event})
	case "status":
		runID := req.GetString("run_id", "")
		if runID == "" {
			active := s.simulator.Active()
			if active == nil {
				return marshalResult(map[string]any{"running": false})
			}
			runID = active.ID
		}
		exec, err := s.simulator.Execution(ctx, runID)
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(exec)
	case "list":
		filter := store.ExecutionFilter{
			WorkflowID: req.GetString("workflow_id", ""),
			Limit:      req.GetInt("limit", 20),
		}
		execs, err := s.simulator.Executions(ctx, filter)
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(map[string]any{"runs": execs})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// notifyWhenDone pushes the final run record to the agent that started it.
func (s *CdnflowServer) notifyWhenDone(agentID string, run *simulator.Run) {
	<-run.Done()
	exec := run.Execution()
	payload := map[string]any{
		"type":    "run_finished",
		"run_id":  exec.ID,
		"status":  exec.Status,
		"metrics": exec.Metrics,
	}
	if err := s.notifier.Notify(context.Background(), agentID, payload); err != nil {
		s.logger.Warn("run notification failed", "agent_id", agentID, "run_id", exec.ID, "error", err)
	}
}

// handleExport returns the working set as an export document.
func (s *CdnflowServer) handleExport(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exp, err := s.collection.Export()
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"file_name": exp.FileName(), "document": exp})
}

// handleImport opens an export document as the current workflow.
func (s *CdnflowServer) handleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseStringMap(req, "document", nil)
	if raw == nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}
	doc, result, err := s.collection.Import(ctx, data)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"workflow": doc, "warnings": result.Warnings})
}

// handleValidate runs the document checks over the working set.
func (s *CdnflowServer) handleValidate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.collection.Validate(ctx)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleQuery evaluates an expression over a collection snapshot.
func (s *CdnflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	engine, err := req.RequireString("engine")
	if err != nil {
		return mcp.NewToolResultError("engine is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	if s.engines == nil {
		return mcp.NewToolResultError("queries are disabled"), nil
	}
	scope := collection.QueryScope(req.GetString("scope", string(collection.ScopeWorkingSet)))

	result, err := s.collection.Query(ctx, s.engines, engine, expression, scope)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"result": result})
}

// handleDiagram renders the working set in the requested format.
func (s *CdnflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	var statuses map[string]schema.NodeStatus
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.records == nil {
			return mcp.NewToolResultError("run history is not available"), nil
		}
		replayed, err := store.NewRunLog(s.records).Replay(ctx, runID)
		if err != nil {
			return toolError(err), nil
		}
		statuses = replayed
	}

	model, err := diagram.Build(s.collection.State().WorkingSet(), s.registry, statuses)
	if err != nil {
		return toolError(err), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCIIAuto(ctx, model, s.diagramBinDir)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, err := diagram.RenderImage(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// handleSettings reads, patches or resets the editor settings.
func (s *CdnflowServer) handleSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	switch action {
	case "get":
		return marshalResult(s.settings.Get())
	case "update":
		var patch schema.SettingsPatch
		if err := decodeArg(req, "patch", &patch); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		gs, err := s.settings.Update(ctx, patch)
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(gs)
	case "reset":
		return marshalResult(s.settings.Reset(ctx))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// --- Internal helpers ---

// dispatch applies an intent and reports what changed.
func (s *CdnflowServer) dispatch(ctx context.Context, intent collection.Intent) (*mcp.CallToolResult, error) {
	change, err := s.collection.Dispatch(ctx, intent)
	if err != nil {
		return toolError(err), nil
	}
	out := map[string]any{"event": change.Event}
	if change.WorkflowID != "" {
		out["workflow_id"] = change.WorkflowID
	}
	if change.NodeID != "" {
		out["node_id"] = change.NodeID
	}
	if change.EdgeID != "" {
		out["edge_id"] = change.EdgeID
	}
	if change.Payload != nil {
		out["payload"] = change.Payload
	}
	return marshalResult(out)
}

// stateSummary describes the open document and the run state.
func (s *CdnflowServer) stateSummary() map[string]any {
	st := s.collection.State()
	nodeID, edgeID := st.Selection()
	out := map[string]any{
		"working_set":      st.WorkingSet(),
		"saved_count":      len(st.Saved),
		"is_running":       st.IsRunning,
		"run_id":           st.RunID,
		"selected_node_id": nodeID,
		"selected_edge_id": edgeID,
	}
	if st.Current != nil {
		out["current_id"] = st.Current.ID
	}
	return out
}

// decodeArg converts an object argument into v. A missing argument leaves v
// untouched.
func decodeArg(req mcp.CallToolRequest, key string, v any) error {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

// toolError reports err as a tool error. CdnflowError messages carry their
// code as a "[CODE]" prefix.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// captureSession maps the agent ID to its current MCP session for notifications.
func (s *CdnflowServer) captureSession(ctx context.Context, agentID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
