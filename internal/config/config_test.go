package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9000\ndatabase:\n  driver: sqlite\n  name: forms\n  path: /tmp/ff\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), yaml, 0o644))
	t.Setenv("FORMFLOW_LOGGING_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, cfg.Database.DSN(), "/tmp/ff/forms.db")
	assert.Contains(t, cfg.Database.DSN(), "foreign_keys(1)")
}

func TestDSN_Postgres(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "forms"}
	assert.Equal(t, "postgres://u:p@db:5432/forms?sslmode=disable", d.DSN())
}
