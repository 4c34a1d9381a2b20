package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_CreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Setup(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "logging.json"))
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "info", m["default"])
}

func TestSetup_AppliesLevels(t *testing.T) {
	dir := t.TempDir()
	cfg := map[string]string{"default": "warn", "oauth2": "debug", "queue": "nonsense"}
	raw, _ := json.Marshal(cfg)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logging.json"), raw, 0o644))

	require.NoError(t, Setup(dir))

	assert.True(t, New("oauth2").enabled(LevelDebug))
	// Unlisted categories inherit the default threshold.
	assert.False(t, New("gate").enabled(LevelInfo))
	assert.True(t, New("gate").enabled(LevelError))
	// Unknown level names fall back to info.
	assert.True(t, New("queue").enabled(LevelInfo))
	assert.False(t, New("queue").enabled(LevelDebug))
}
