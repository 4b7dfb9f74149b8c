package cli

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/store"
)

// seedStore creates an empty database where the config at path points.
func seedStore(t *testing.T, path string) {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.EnsureSchema(context.Background(), false))
}

func TestStatus_NoDatabase(t *testing.T) {
	path := writeConfig(t, "https://collector.test")

	out, err := execute(t, "--config", path, "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no database")
}

func TestStatus_EmptyStore(t *testing.T) {
	path := writeConfig(t, "https://collector.test")
	seedStore(t, path)

	out, err := execute(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending:       0")
	assert.Contains(t, out, "open sessions: 0")
}

func TestStatus_JSON(t *testing.T) {
	path := writeConfig(t, "https://collector.test")
	seedStore(t, path)

	out, err := execute(t, "--format", "json", "--config", path, "status")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Contains(t, data["database"], "beacon.db")
	stats := data["stats"].(map[string]any)
	assert.Equal(t, float64(0), stats["pending"])
}

func TestStatus_DoesNotRepairSchema(t *testing.T) {
	path := writeConfig(t, "https://collector.test")
	seedStore(t, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	_, err = st.DB().Exec("DROP TABLE sessions")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "--config", path, "status")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "sessions")

	st, err = store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	defer st.Close()
	var n int
	require.NoError(t, st.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sessions'").Scan(&n))
	assert.Zero(t, n)
}

func TestStatus_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "ftp://collector.test")

	_, err := execute(t, "--config", path, "status")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestStatusReport_String(t *testing.T) {
	r := StatusReport{Database: "/tmp/beacon.db"}
	r.Stats.Pending = 3
	r.Stats.ByCategory = map[string]int{"design": 2, "business": 1}

	s := r.String()
	assert.Contains(t, s, "pending:       3")
	assert.Less(t, strings.Index(s, "business"), strings.Index(s, "design"))
}
