package panel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/diagram"
	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/pkg/schema"
)

// --- Files ---

// handleExport downloads the working set as an export file.
func (s *PanelServer) handleExport(w http.ResponseWriter, _ *http.Request) {
	exp, err := s.deps.Collection.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		writeError(w, schema.NewErrorf(schema.ErrCodeStore, "marshal export: %v", err).WithCause(err))
		return
	}
	attachment(w, exp.FileName())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleImport opens an uploaded export file as the current document.
// Warnings are returned alongside the document; a rejected file returns
// the errors found.
func (s *PanelServer) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, result, err := s.deps.Collection.Import(r.Context(), raw)
	if err != nil {
		var ce *schema.CdnflowError
		if !errors.As(err, &ce) {
			writeError(w, err)
			return
		}
		writeJSON(w, statusFor(ce.Code), map[string]any{"error": ce, "validation": result})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"workflow": doc, "validation": result})
}

// --- Checks and queries ---

func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Collection.Validate(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

type queryRequest struct {
	Engine     string `json:"engine" validate:"required,oneof=cel jq expr"`
	Expression string `json:"expression" validate:"required"`
	Scope      string `json:"scope" validate:"omitempty,oneof=current saved"`
}

func (s *PanelServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engines == nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "queries are disabled"))
		return
	}
	var body queryRequest
	if !s.decode(w, r, &body) {
		return
	}
	result, err := s.deps.Collection.Query(r.Context(), s.deps.Engines, body.Engine, body.Expression, collection.QueryScope(body.Scope))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleDiagram renders the working set. format is mermaid (default), ascii
// or png. run overlays the statuses recorded by a past run.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var statuses map[string]schema.NodeStatus
	if runID := q.Get("run"); runID != "" {
		if s.deps.Records == nil {
			writeError(w, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID))
			return
		}
		replayed, err := store.NewRunLog(s.deps.Records).Replay(ctx, runID)
		if err != nil {
			writeError(w, err)
			return
		}
		statuses = replayed
	}

	model, err := diagram.Build(s.deps.Collection.State().WorkingSet(), s.deps.Registry, statuses)
	if err != nil {
		writeError(w, err)
		return
	}

	switch format := q.Get("format"); format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderMermaid(model)))
	case "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderASCIIAuto(ctx, model, s.deps.DiagramBinDir)))
	case "png":
		img, err := diagram.RenderImage(ctx, model)
		if err != nil {
			writeError(w, schema.NewErrorf(schema.ErrCodeStore, "render image: %v", err).WithCause(err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	default:
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format))
	}
}

// --- Simulation ---

func (s *PanelServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Simulator.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"runId": run.ID, "execution": run.Execution()})
}

func (s *PanelServer) handleStopRun(w http.ResponseWriter, r *http.Request) {
	change, err := s.deps.Simulator.Stop(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changeView(change))
}

func (s *PanelServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ExecutionFilter{
		WorkflowID: q.Get("workflow"),
		Limit:      queryInt(r, "limit", 50),
	}
	if st := q.Get("status"); st != "" {
		status := schema.ExecutionStatus(st)
		filter.Status = &status
	}
	execs, err := s.deps.Simulator.Executions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": execs, "total": len(execs)})
}

func (s *PanelServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Simulator.Execution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- Settings ---

func (s *PanelServer) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *PanelServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch schema.SettingsPatch
	if !s.decode(w, r, &patch) {
		return
	}
	gs, err := s.deps.Settings.Update(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (s *PanelServer) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Reset(r.Context()))
}
