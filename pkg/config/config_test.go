package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bandeira-tech/b3nd-sdk/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CORS_ORIGIN", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("SCHEMA_MODULE", "")
	t.Setenv("DATABASE_URL", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Nil(t, cfg.CORSOrigins)
	assert.Equal(t, "memory://", cfg.BackendURL)
	assert.Empty(t, cfg.SchemaModule)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example")
	t.Setenv("BACKEND_URL", "postgres://localhost/db")
	t.Setenv("SCHEMA_MODULE", "/etc/b3nd/schema.yaml")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "postgres://localhost/db", cfg.BackendURL)
	assert.Equal(t, "/etc/b3nd/schema.yaml", cfg.SchemaModule)
}

func TestLoad_CORSOriginWildcardMeansAllowAll(t *testing.T) {
	t.Setenv("CORS_ORIGIN", "*")

	cfg := config.Load()

	assert.Nil(t, cfg.CORSOrigins)
}

func TestParseBackendURLs_Default(t *testing.T) {
	specs := config.ParseBackendURLs("")

	if assert.Len(t, specs, 1) {
		assert.Equal(t, "memory", specs[0].Kind)
		assert.Equal(t, "memory://", specs[0].Raw)
	}
}

func TestParseBackendURLs_MultipleSchemes(t *testing.T) {
	specs := config.ParseBackendURLs("memory://, postgres://localhost/db ,ws://peer.example/ws")

	if assert.Len(t, specs, 3) {
		assert.Equal(t, "memory", specs[0].Kind)
		assert.Equal(t, "postgres", specs[1].Kind)
		assert.Equal(t, "postgres://localhost/db", specs[1].Raw)
		assert.Equal(t, "ws", specs[2].Kind)
	}
}
