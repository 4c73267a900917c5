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
	t.Setenv("DB_PATH", "")
	os.Unsetenv("DB_PATH")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "kitchen.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30, cfg.ReceivingRateLimit)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: An env file overriding a few values
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_ADDR=:9090\nLOG_FORMAT=console\nRECEIVING_RATE_LIMIT=5\n"), 0o600))
	for _, k := range []string{"APP_ADDR", "LOG_FORMAT", "RECEIVING_RATE_LIMIT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	// WHEN
	cfg, err := Load(path)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 5, cfg.ReceivingRateLimit)
}

func TestLoad_ProcessEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PATH=from-file.db\n"), 0o600))
	t.Setenv("DB_PATH", ":memory:")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DBPath)
}

func TestValidate(t *testing.T) {
	base := Config{DBPath: "x.db", LogFormat: "json", ReceivingRateLimit: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.LogFormat = "xml"
	assert.Error(t, bad.Validate())

	bad = base
	bad.ReceivingRateLimit = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.DBPath = ""
	assert.Error(t, bad.Validate())
}
