package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DESPENSA_CACHE_DIR", "")
	t.Setenv("DESPENSA_SUPERMARKET", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("RECIPES_API_URL", "")
	t.Setenv("DESPENSA_LOG_LEVEL", "")
	t.Setenv("DESPENSA_LOG_TO_BLOB", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache", cfg.Storage.Dir)
	assert.Equal(t, "Mercadona", cfg.Supermarket)
	assert.False(t, cfg.Telemetry.Enabled())
	assert.Empty(t, cfg.Recipes.URL)
	assert.Equal(t, "info", cfg.Telemetry.Level)
	assert.False(t, cfg.Telemetry.LogToBlob)
}

func TestLoadTrimsTrailingSlash(t *testing.T) {
	t.Setenv("RECIPES_API_URL", "https://example.supabase.co/")
	t.Setenv("GENERATOR_URL", "https://fn.example.com/api/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co", cfg.Recipes.URL)
	assert.Equal(t, "https://fn.example.com/api", cfg.Generator.URL)
}
