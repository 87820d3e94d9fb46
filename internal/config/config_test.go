package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "watcher", cfg.Watcher.Name)
	assert.Equal(t, "hoamx_com", cfg.Watcher.DefaultTenant)
	assert.Equal(t, []string{"hoamx_com"}, cfg.Watcher.Tenants)
	assert.Equal(t, 50, cfg.Watcher.BatchSize)
	assert.Equal(t, "contact_messages", cfg.Watcher.SourceTable)
	assert.Equal(t, "contact.created", cfg.Watcher.EventType)
	assert.Equal(t, "x-agent-key", cfg.Dispatch.AuthHeader)
	assert.Equal(t, 20*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 25*time.Second, cfg.Server.PollTimeout)
	assert.Equal(t, "postgres", cfg.Lock.Driver)
	assert.Empty(t, cfg.Dispatch.URLs)
	assert.Equal(t, "test", cfg.Env)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  name: watcher
  user: app
  password: pw
watcher:
  agent_key: k
  default_tenant: acme
  tenants: [globex, acme]
  batch_size: 10
dispatch:
  urls:
    - https://a.example.com/hook
    - " https://b.example.com/hook "
  breaker:
    enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app:pw@db.internal:5432/watcher?sslmode=disable", cfg.Database.WriteDSN)
	assert.Equal(t, cfg.Database.WriteDSN, cfg.Database.ReadDSN)
	assert.Equal(t, []string{"globex", "acme"}, cfg.Watcher.Tenants)
	assert.Equal(t, []string{"https://a.example.com/hook", "https://b.example.com/hook"}, cfg.Dispatch.URLs)
	assert.True(t, cfg.Dispatch.Breaker.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FlatEnvironmentNames(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u@localhost/db")
	t.Setenv("WATCHER_AGENT_KEY", "secret")
	t.Setenv("DOWNSTREAM_URLS", "https://a.example.com, https://b.example.com,")
	t.Setenv("TENANT_DEFAULT", "acme")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("POLL_TIMEOUT_SECONDS", "30")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u@localhost/db", cfg.Database.WriteDSN)
	assert.Equal(t, "secret", cfg.Watcher.AgentKey)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Dispatch.URLs)
	assert.Equal(t, "acme", cfg.Watcher.DefaultTenant)
	assert.Equal(t, []string{"acme"}, cfg.Watcher.Tenants)
	assert.Equal(t, 25, cfg.Watcher.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Server.PollTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "database.write_dsn")
	assert.Contains(t, err.Error(), "watcher.agent_key")

	cfg.Database.WriteDSN = "postgres://x"
	cfg.Watcher.AgentKey = "k"
	cfg.Watcher.BatchSize = 501
	assert.ErrorIs(t, cfg.Validate(), ErrIncomplete)
}

func TestValidate_LockPoolSize(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	cfg.Database.WriteDSN = "postgres://x"
	cfg.Watcher.AgentKey = "k"
	require.Equal(t, "postgres", cfg.Lock.Driver)

	cfg.Database.MaxConns = 1
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "database.max_conns")
	assert.ErrorIs(t, cfg.ValidateLockPool(), ErrIncomplete)

	cfg.Database.MaxConns = 2
	assert.NoError(t, cfg.Validate())

	cfg.Database.MaxConns = 0
	assert.NoError(t, cfg.Validate())

	cfg.Database.MaxConns = 1
	cfg.Lock.Driver = "redis"
	assert.NoError(t, cfg.Validate())
}
