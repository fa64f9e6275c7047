package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

// maxBodyBytes caps request bodies, import files included.
const maxBodyBytes = 4 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON error body with the status its code maps to.
func writeError(w http.ResponseWriter, err error) {
	var ce *schema.CdnflowError
	if !errors.As(err, &ce) {
		ce = schema.NewError("INTERNAL", err.Error())
	}
	writeJSON(w, statusFor(ce.Code), map[string]any{"error": ce})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound, schema.ErrCodeNodeNotFound, schema.ErrCodeEdgeNotFound, schema.ErrCodePortNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeAlreadyRunning, schema.ErrCodeCancelled:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeUnknownNodeType, schema.ErrCodeNameRequired,
		schema.ErrCodeNeedsName, schema.ErrCodeNothingToExport, schema.ErrCodeImportParse,
		schema.ErrCodeEmptyWorkflow, schema.ErrCodeInvalidTransition, schema.ErrCodeCycleDetected,
		schema.ErrCodeEvaluation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and validates its struct tags. It writes
// the error response and returns false on failure.
func (s *PanelServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %v", err).WithCause(err))
		return false
	}
	if err := validation.ValidateStruct(s.validate, v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// readBody reads a raw body up to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read body: %v", err).WithCause(err)
	}
	return data, nil
}

// dispatch applies an intent and writes the resulting change.
func (s *PanelServer) dispatch(w http.ResponseWriter, r *http.Request, intent collection.Intent, status int) {
	change, err := s.deps.Collection.Dispatch(r.Context(), intent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, changeView(change))
}

// changeResponse is the JSON shape of an applied intent.
type changeResponse struct {
	Event      string `json:"event"`
	WorkflowID string `json:"workflowId,omitempty"`
	NodeID     string `json:"nodeId,omitempty"`
	EdgeID     string `json:"edgeId,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

func changeView(c collection.Change) changeResponse {
	return changeResponse{
		Event:      c.Event,
		WorkflowID: c.WorkflowID,
		NodeID:     c.NodeID,
		EdgeID:     c.EdgeID,
		Payload:    c.Payload,
	}
}

// workflowSummary lists a saved document without its graph.
type workflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func summarize(docs []schema.WorkflowDocument) []workflowSummary {
	out := make([]workflowSummary, len(docs))
	for i, d := range docs {
		out[i] = workflowSummary{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Version:     d.Version,
			Nodes:       len(d.Nodes),
			Edges:       len(d.Edges),
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		}
	}
	return out
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// attachment sets the download headers for a file name.
func attachment(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}
