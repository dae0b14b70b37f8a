package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("ledger request failed", zap.String("op", "reconcile"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "ledger request failed", entry["msg"])
	assert.Equal(t, "reconcile", entry["op"])
	assert.Contains(t, entry, "ts")
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	require.NoError(t, err)

	logger.Debug("session started", zap.Int64("chat_id", 42))
	require.NoError(t, logger.Sync())

	assert.Contains(t, buf.String(), "session started")
	assert.Contains(t, buf.String(), `"chat_id": 42`)
}

func TestNewRejectsUnknownLevelAndFormat(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, "parse log level")

	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, `unsupported log format "xml"`)
}
