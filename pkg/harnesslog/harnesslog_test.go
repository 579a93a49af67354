package harnesslog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	l.Info("scenario loaded", "scenario_id", "core-quorum-write", "seed", 42)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "scenario loaded", decoded["message"])
	assert.Equal(t, "core-quorum-write", decoded["scenario_id"])
	assert.Equal(t, float64(42), decoded["seed"])
}

func TestDebugSuppressedBelowInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	l.Debug("should not appear")
	assert.Empty(t, buf.String())
}

func TestWithFieldAddsToChildLoggerOnly(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	child := base.WithField("replica_id", "r0")
	child.Info("event")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "r0", decoded["replica_id"])
}

func TestAddFieldsFlagsOddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	l.Info("oops", "only-a-key")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "odd number of fields", decoded["error"])
}
