package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "salesboard.db", cfg.DBPath)
	assert.Equal(t, 256<<10, cfg.SyncThresholdBytes)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10, cfg.TopN)
	assert.NotEmpty(t, cfg.CORSOrigins)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesboard.yaml")
	yaml := "port: 9090\ndb_path: /tmp/test.db\nstale_after: 5m\ntop_n: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 3, cfg.TopN)
	// Values the file doesn't mention keep their defaults
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o600))

	t.Setenv("SALESBOARD_PORT", "9191")
	t.Setenv("SALESBOARD_SESSION_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, "from-env", cfg.SessionSecret)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
