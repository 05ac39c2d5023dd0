package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "default host must stay on loopback")
	assert.Equal(t, config.SecurityDevelopment, cfg.Server.SecurityMode)
	assert.Equal(t, time.Hour, cfg.Watch.RecencyWindow)
	assert.True(t, cfg.Watch.Recursive)
	assert.Contains(t, cfg.Watch.Extensions, ".pdf")
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, []string{"qdrant", "pgvector", "sqlite"}, cfg.Vector.Backends)
	assert.Equal(t, "gpt-4o-mini", cfg.Intelligence.ChatModel)
	assert.False(t, cfg.Intelligence.Enabled())
	assert.Equal(t, filepath.Join("./data", "fileflow.db"), cfg.Storage.DatabasePath())
	assert.Equal(t, filepath.Join("./data", "backups"), cfg.Storage.BackupPath())
	assert.Equal(t, 10, cfg.Storage.BackupKeep)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FILEFLOW_WATCH_DIR", "/srv/inbox")
	t.Setenv("FILEFLOW_WATCH_RECENCY_WINDOW", "30m")
	t.Setenv("FILEFLOW_VECTOR_QDRANT_ADDR", "qdrant:6334")
	t.Setenv("FILEFLOW_VECTOR_BACKENDS", "pgvector,sqlite")
	t.Setenv("FILEFLOW_SERVER_PORT", "9000")
	t.Setenv("FILEFLOW_INTELLIGENCE_API_KEY", "sk-test")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/inbox", cfg.Watch.Dir)
	assert.Equal(t, 30*time.Minute, cfg.Watch.RecencyWindow)
	assert.Equal(t, "qdrant:6334", cfg.Vector.Qdrant.Addr)
	assert.Equal(t, []string{"pgvector", "sqlite"}, cfg.Vector.Backends)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.True(t, cfg.Intelligence.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fileflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
watch:
  dir: /home/me/Documents
  extensions: [".txt", ".md"]
  debounce: 2s
vector:
  dimension: 768
  postgres:
    dsn: postgres://localhost/fileflow
intelligence:
  base_url: http://localhost:11434
log:
  level: debug
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/home/me/Documents", cfg.Watch.Dir)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Watch.Extensions)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 768, cfg.Vector.Dimension)
	assert.Equal(t, "postgres://localhost/fileflow", cfg.Vector.Postgres.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Intelligence.Enabled(), "a local endpoint needs no key")

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 2, cfg.Watch.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty watch dir", func(c *config.Config) { c.Watch.Dir = "" }},
		{"no workers", func(c *config.Config) { c.Watch.Workers = 0 }},
		{"bad dimension", func(c *config.Config) { c.Vector.Dimension = -1 }},
		{"no backends", func(c *config.Config) { c.Vector.Backends = nil }},
		{"unknown backend", func(c *config.Config) { c.Vector.Backends = []string{"faiss"} }},
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }},
		{"unknown security mode", func(c *config.Config) { c.Server.SecurityMode = "open" }},
		{"production without token", func(c *config.Config) { c.Server.SecurityMode = config.SecurityProduction }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Server.SecurityMode = config.SecurityProduction
	cfg.Server.APIToken = "secret"
	assert.NoError(t, cfg.Validate())
}
