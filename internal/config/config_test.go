package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9632", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "chromem", cfg.VectorStore.Backend)
	assert.Equal(t, 3, cfg.Chain.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Chain.Retry.InitialDelay)
	assert.Equal(t, 5, cfg.Chain.Breaker.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Chain.Breaker.CoolDown)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "fastembed", cfg.Providers[0].ID)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8000"
logging:
  level: debug
providers:
  - id: local
    type: fastembed
  - id: hosted
    type: tei
    base_url: http://tei:8080
chain:
  providers: [local, hosted]
  max_total: 15s
vectorstore:
  backend: chromem
  chromem:
    vector_size: 768
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "hosted", cfg.Providers[1].ID)
	assert.Equal(t, []string{"local", "hosted"}, cfg.Chain.Providers)
	assert.Equal(t, 15*time.Second, cfg.Chain.MaxTotal)
	assert.Equal(t, 768, cfg.VectorStore.Chromem.VectorSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8000\"\n"), 0o600))

	t.Setenv("VECTORD_SERVER__ADDR", ":7000")
	t.Setenv("VECTORD_LOGGING__LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":9632", cfg.Server.Addr)
}

func TestValidateRejectsBadProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing id",
			cfg:  Config{Providers: []ProviderConfig{{Type: "tei", BaseURL: "http://x"}}},
		},
		{
			name: "duplicate id",
			cfg: Config{Providers: []ProviderConfig{
				{ID: "a", Type: "fastembed"},
				{ID: "a", Type: "fastembed"},
			}},
		},
		{
			name: "unknown type",
			cfg:  Config{Providers: []ProviderConfig{{ID: "a", Type: "cohere"}}},
		},
		{
			name: "tei without base url",
			cfg:  Config{Providers: []ProviderConfig{{ID: "a", Type: "tei"}}},
		},
		{
			name: "openai without key",
			cfg:  Config{Providers: []ProviderConfig{{ID: "a", Type: "openai"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestValidateChainReferencesConfiguredProviders(t *testing.T) {
	cfg := Config{Providers: []ProviderConfig{{ID: "a", Type: "fastembed"}}}
	cfg.ApplyDefaults()
	cfg.Chain.Providers = []string{"a", "ghost"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestProviderConfigRedactsKey(t *testing.T) {
	p := ProviderConfig{ID: "openai", Type: "openai", APIKey: "sk-secret"}

	assert.Equal(t, "[REDACTED]", p.APIKey.String())
	assert.Equal(t, "sk-secret", p.ToEmbedding().APIKey)
}

func TestLoadRejectsOversizeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
