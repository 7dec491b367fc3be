package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[window]
name = "demo"

[renderer]
texture_array_capacity = 64
depth_compare = "less"
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Window.Name)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, uint32(64), cfg.Renderer.TextureArrayCapacity)
	assert.Equal(t, "less", cfg.Renderer.DepthCompare)
	assert.Equal(t, uint32(100), cfg.Renderer.DescriptorPoolSize)
	assert.Equal(t, [3]float32{1, 1, 1}, cfg.Renderer.ClearColor)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	_, err := ParseConfig([]byte(`
[renderer]
depth_compare = "greater"
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = ParseConfig([]byte(`[window`))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bloom.Enabled = true
	cfg.Log.Level = DebugLevel

	data, err := cfg.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
