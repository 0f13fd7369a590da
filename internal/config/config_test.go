package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("STORE_QUOTA_BYTES", "")

	cfg := Load()
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout)
	assert.Equal(t, 5<<20, cfg.StoreQuotaBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("STORE_QUOTA_BYTES", "not-a-number")

	cfg := Load()
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 15*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 5<<20, cfg.StoreQuotaBytes, "unparsable ints fall back to the default")
}

func TestValidate(t *testing.T) {
	cfg := Config{LLMProvider: "claude", StoreBackend: BackendMemory, StoreQuotaBytes: 10}
	assert.ErrorContains(t, cfg.Validate(), "LLM_PROVIDER")

	cfg = Config{LLMProvider: ProviderGemini, StoreBackend: "s3", StoreQuotaBytes: 10}
	assert.ErrorContains(t, cfg.Validate(), "STORE_BACKEND")

	cfg = Config{LLMProvider: ProviderGemini, StoreBackend: BackendMemory}
	assert.ErrorContains(t, cfg.Validate(), "STORE_QUOTA_BYTES")
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StoreBackend: BackendSQLite, Database: filepath.Join(dir, "nested", "decks.db")}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, filepath.Join(dir, "nested"))
}
