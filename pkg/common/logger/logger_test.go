package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithTraceAndMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	traceFn := func(context.Context) string { return "trace-123" }
	log := NewWithMetadata(&buf, LevelInfo, "scanguard", traceFn, Events{}, map[string]string{"pod": "p-1"})

	log.With("component", "test").Info(context.Background(), "scan started", "job_id", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "scan started", rec["msg"])
	assert.Equal(t, "scanguard", rec["service"])
	assert.Equal(t, "p-1", rec["pod"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, "abc", rec["job_id"])
	assert.Equal(t, "trace-123", rec["trace_id"])
}

func TestLogger_RespectsMinLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "scanguard", nil)

	log.Info(context.Background(), "dropped")
	log.Debug(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_ErrorEventFires(t *testing.T) {
	t.Parallel()

	var got Record
	events := Events{Error: func(_ context.Context, r Record) { got = r }}

	var buf bytes.Buffer
	log := NewWithEvents(&buf, LevelDebug, "scanguard", nil, events)
	log.Error(context.Background(), "quarantine failed", "quarantine_id", "q-1")

	assert.Equal(t, "quarantine failed", got.Message)
	assert.Equal(t, "q-1", got.Attributes["quarantine_id"])
}

func TestNoop_DiscardsEverything(t *testing.T) {
	t.Parallel()

	log := Noop().With("component", "x")
	log.Error(context.Background(), "ignored")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
