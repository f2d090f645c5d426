package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*DeckLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = &buf
	return NewLogger(cfg), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestDeckLogger_ContextAttributes(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithComponent("controller").WithRun("s-1", "r-1").WithContext("agent", "echo").Info("started", "attempt", 2)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "started", lines[0]["msg"])
	assert.Equal(t, "controller", lines[0]["component"])
	assert.Equal(t, "s-1", lines[0]["session_id"])
	assert.Equal(t, "r-1", lines[0]["run_id"])
	assert.Equal(t, "echo", lines[0]["agent"])
	assert.EqualValues(t, 2, lines[0]["attempt"])
}

func TestDeckLogger_WithDoesNotLeak(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	_ = l.WithContext("k", "v")
	l.Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "k")
}

func TestDeckLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "w", lines[0]["msg"])
	assert.Equal(t, "e", lines[1]["msg"])
}

func TestDomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	RunFinished(l, "r-1", "echo", "failed", time.Second, errors.New("boom"))
	StepFinished(l, 1, "writer", time.Millisecond, true)
	ModelCall(l, "mock", 12, time.Millisecond, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "r-1", lines[0]["run_id"])
	assert.EqualValues(t, 1, lines[1]["step_index"])
	assert.Equal(t, "model call completed", lines[2]["msg"])
	assert.EqualValues(t, 12, lines[2]["token_count"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: &buf, Component: "server"})
	l.Info("listening", "addr", ":8080")
	assert.Contains(t, buf.String(), "msg=listening")
	assert.Contains(t, buf.String(), "component=server")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("ignored", "k", "v")
}
