package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "http://localhost:11434", cfg.Backend.BaseURL)
	assert.Equal(t, "qwen2.5vl:latest", cfg.Backend.Model)
	assert.Equal(t, 180*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 768, cfg.Image.MaxDimension)
	assert.Equal(t, 150, cfg.Image.DPI)
	assert.Equal(t, "png", cfg.Image.Encoding)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "docparse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: http://gpu-box:11434
  model: llava:13b
  timeout: 60s
image:
  max_dimension: 1024
  encoding: jpeg
`), 0o600))

	t.Setenv("MODEL_NAME", "qwen2.5vl:7b")
	t.Setenv("PORT", "9000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://gpu-box:11434", cfg.Backend.BaseURL)
	assert.Equal(t, "qwen2.5vl:7b", cfg.Backend.Model)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 1024, cfg.Image.MaxDimension)
	assert.Equal(t, "jpeg", cfg.Image.Encoding)
	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	// untouched keys keep their defaults
	assert.Equal(t, 150, cfg.Image.DPI)
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "ollama"
	cfg.Image.Encoding = "webp"
	cfg.Image.MaxDimension = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "backend.base_url")
	assert.Contains(t, err.Error(), "image.encoding")
	assert.Contains(t, err.Error(), "image.max_dimension")
}
