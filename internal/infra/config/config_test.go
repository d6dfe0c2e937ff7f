package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Session.MaxMessages)
	assert.Equal(t, "tools", cfg.LLM.Provider.Dialect)
	assert.Equal(t, 5*time.Second, cfg.Bridge.StatusCacheTTL)
	assert.Equal(t, 5, cfg.Bridge.ContactLimit)
	assert.Equal(t, []string{"hola", "hi", "hello"}, cfg.Tools.GreetingPrefixes)
	require.NoError(t, Validate(cfg))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
llm:
  provider:
    model: gpt-4o-mini
    dialect: functions
session:
  max_messages: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Provider.Model)
	assert.Equal(t, "functions", cfg.LLM.Provider.Dialect)
	assert.Equal(t, 4, cfg.Session.MaxMessages)
	// untouched fields keep their defaults
	assert.Equal(t, "https://api.github.com", cfg.Tools.RepoSearchBaseURL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Addr, cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COURIER_SERVER_ADDR", ":7070")
	t.Setenv("COURIER_LLM_API_KEY", "sk-test")
	t.Setenv("COURIER_LLM_DIALECT", "functions")
	t.Setenv("COURIER_SESSION_MAX_MESSAGES", "6")
	t.Setenv("COURIER_BRIDGE_ENABLED", "true")
	t.Setenv("COURIER_BRIDGE_API_URL", "http://bridge:8080")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.LLM.Provider.APIKey)
	assert.Equal(t, "functions", cfg.LLM.Provider.Dialect)
	assert.Equal(t, 6, cfg.Session.MaxMessages)
	assert.True(t, cfg.Bridge.Enabled)
	assert.Equal(t, "http://bridge:8080", cfg.Bridge.APIURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Session.MaxMessages = 0
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.LLM.Provider.Dialect = "grpc"
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.Bridge.Enabled = true
	cfg.Bridge.APIURL = ""
	assert.Error(t, Validate(cfg))
}
