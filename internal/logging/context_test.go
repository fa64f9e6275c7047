package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", WorkflowID(ctx))
	assert.Equal(t, "", NodeID(ctx))
	assert.Equal(t, "", RunID(ctx))

	ctx = WithWorkflowID(ctx, "workflow_123")
	ctx = WithNodeID(ctx, "edge-cache-1")
	ctx = WithRunID(ctx, "run-42")

	assert.Equal(t, "workflow_123", WorkflowID(ctx))
	assert.Equal(t, "edge-cache-1", NodeID(ctx))
	assert.Equal(t, "run-42", RunID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithRunID(WithNodeID(WithWorkflowID(context.Background(), "workflow_abc"), "waf-1"), "run-7")

	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=workflow_abc")
	assert.Contains(t, output, "node_id=waf-1")
	assert.Contains(t, output, "run_id=run-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(WithWorkflowID(context.Background(), "workflow_only"), logger).Info("partial")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=workflow_only")
	assert.NotContains(t, output, "node_id")
	assert.NotContains(t, output, "run_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRunID(WithWorkflowID(context.Background(), "workflow_h"), "run-h")
	logger.With("component", "simulator").InfoContext(ctx, "node transition")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "workflow_h", rec["workflow_id"])
	assert.Equal(t, "run-h", rec["run_id"])
	assert.Equal(t, "simulator", rec["component"])
	assert.NotContains(t, rec, "node_id")
}

func TestCorrelationHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.WithGroup("store").InfoContext(WithNodeID(context.Background(), "n1"), "write", "key", "anycdn-workflows")

	assert.Contains(t, buf.String(), "store.key=anycdn-workflows")
	assert.Contains(t, buf.String(), "node_id=n1")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := New(&buf, "json", level)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelInfo)
	logger.InfoContext(WithRunID(context.Background(), "run-1"), "shown")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "run-1", rec["run_id"])
}
