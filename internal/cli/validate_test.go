package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidFile(t *testing.T) {
	path := writeConfig(t, "https://collector.test")

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config valid")
	assert.Contains(t, out, path)
}

func TestValidate_ConfigFlag(t *testing.T) {
	path := writeConfig(t, "https://collector.test")

	out, err := execute(t, "--format", "json", "--config", path, "validate")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	cfg := data["config"].(map[string]any)
	assert.Equal(t, testKey, cfg["game_key"])
	assert.NotContains(t, cfg, "game_secret")
}

func TestValidate_SchemaViolation(t *testing.T) {
	path := writeConfig(t, "https://collector.test", "batch_size: 900")

	out, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Contains(t, details["field"], "batch_size")
}

func TestValidate_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flush_intervall: 3s\n"), 0o644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_CONFIG")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
