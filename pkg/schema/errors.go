package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUnknownNodeType   = "UNKNOWN_NODE_TYPE"
	ErrCodeNodeNotFound      = "NODE_NOT_FOUND"
	ErrCodeEdgeNotFound      = "EDGE_NOT_FOUND"
	ErrCodePortNotFound      = "PORT_NOT_FOUND"
	ErrCodeNameRequired      = "NAME_REQUIRED"
	ErrCodeNeedsName         = "NEEDS_NAME"
	ErrCodeNothingToExport   = "NOTHING_TO_EXPORT"
	ErrCodeImportParse       = "IMPORT_PARSE_ERROR"
	ErrCodeEmptyWorkflow     = "EMPTY_WORKFLOW"
	ErrCodeAlreadyRunning    = "ALREADY_RUNNING"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeEvaluation        = "EVALUATION_ERROR"
)

// CdnflowError is the structured error type for all cdnflow operations.
type CdnflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	EdgeID  string         `json:"edge_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CdnflowError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	case e.EdgeID != "":
		return fmt.Sprintf("[%s] edge %s: %s", e.Code, e.EdgeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CdnflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CdnflowError.
func NewError(code, message string) *CdnflowError {
	return &CdnflowError{Code: code, Message: message}
}

// NewErrorf creates a new CdnflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *CdnflowError {
	return &CdnflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *CdnflowError) WithNode(nodeID string) *CdnflowError {
	e.NodeID = nodeID
	return e
}

// WithEdge attaches an edge ID to the error.
func (e *CdnflowError) WithEdge(edgeID string) *CdnflowError {
	e.EdgeID = edgeID
	return e
}

// WithCause attaches an underlying cause.
func (e *CdnflowError) WithCause(err error) *CdnflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CdnflowError) WithDetails(details map[string]any) *CdnflowError {
	e.Details = details
	return e
}

// ErrorCode returns the code of the first CdnflowError in err's chain, or "".
func ErrorCode(err error) string {
	var ce *CdnflowError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
