package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg := Load()

	assert.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.ModelBackend)
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("DB_PATH", "/custom/db.sqlite")
	t.Setenv("MODEL_BACKEND", "claude")
	t.Setenv("CLAUDE_API_KEY", "sk-test123")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "nutri-prod")
	t.Setenv("LOG_FORMAT", "text")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/custom/db.sqlite", cfg.DBPath)
	assert.Equal(t, "claude", cfg.ModelBackend)
	assert.Equal(t, "sk-test123", cfg.ClaudeAPIKey)
	assert.Equal(t, "nutri-prod", cfg.GCPProject)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VERTEX_MODEL=from-file\nPHOTO_BUCKET=file-bucket\n"), 0600))

	t.Setenv("VERTEX_MODEL", "from-env")
	// Registers cleanup so the value loaded from the file is removed afterwards.
	t.Setenv("PHOTO_BUCKET", "")
	require.NoError(t, os.Unsetenv("PHOTO_BUCKET"))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.VertexModel)
	assert.Equal(t, "file-bucket", cfg.PhotoBucket)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "ollama", mutate: func(c *Config) { c.ModelBackend = "ollama" }},
		{name: "unknown model backend", mutate: func(c *Config) { c.ModelBackend = "openai" }, wantErr: "MODEL_BACKEND"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.PhotoBackend = "gcs" }, wantErr: "PHOTO_BUCKET"},
		{name: "gcs with bucket", mutate: func(c *Config) { c.PhotoBackend = "gcs"; c.PhotoBucket = "b" }},
		{name: "photos disabled", mutate: func(c *Config) { c.PhotoBackend = "none" }},
		{name: "unknown photo backend", mutate: func(c *Config) { c.PhotoBackend = "s3" }, wantErr: "PHOTO_BACKEND"},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fromEnvDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// fromEnvDefaults builds a Config with every variable unset.
func fromEnvDefaults(t *testing.T) *Config {
	t.Helper()
	for _, key := range []string{"MODEL_BACKEND", "PHOTO_BACKEND", "PHOTO_BUCKET", "LOG_FORMAT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return fromEnv()
}
