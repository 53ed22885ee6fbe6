package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: WARN, Mode: NORMAL, JSON: true, Output: &buf})
	require.NoError(t, err)

	log.Info("dropped %d", 1)
	log.Warn("kept %s", "warning")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept warning", entry["message"])
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: DEBUG, JSON: true, Output: &buf})
	require.NoError(t, err)

	log.With("gateway").Debug("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "gateway", entry["component"])
}

func TestLoggerFullModeAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: INFO, Mode: FULL, JSON: true, Output: &buf})
	require.NoError(t, err)

	log.Info("where am i")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestParseLevelAndMode(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
	assert.Equal(t, FULL, ParseMode("Full"))
	assert.Equal(t, NORMAL, ParseMode(""))
}
