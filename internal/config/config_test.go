package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("JOURNAI_CONFIG_DIR", t.TempDir())
	t.Setenv("JOURNAI_LLM_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4000, cfg.Analysis.MaxTextChars)
	assert.InDelta(t, 0.40, cfg.Analysis.DyadThreshold, 1e-9)
	assert.Equal(t, []string{"User", "System:", "JournAI:"}, cfg.Chat.Stop)
}

func TestLoadFileMergesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite3
llm:
  provider: claude
  model: claude-3-5-haiku-latest
  timeout: 30s
analysis:
  max_text_chars: 1200
`), 0600))
	t.Setenv("JOURNAI_LLM_MODEL", "override-model")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "override-model", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1200, cfg.Analysis.MaxTextChars)
	// untouched sections keep their defaults
	assert.Equal(t, 400, cfg.Chat.MaxTokens)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.DyadThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Inbox.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Inbox.Dir = "/tmp/inbox"
	assert.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("JOURNAI_CONFIG_DIR", t.TempDir())

	cfg := Default()
	cfg.Server.Addr = "0.0.0.0:9000"
	require.NoError(t, cfg.Save())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", loaded.Server.Addr)
}
