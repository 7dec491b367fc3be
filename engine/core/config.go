package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Name   string `toml:"name"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type LogConfig struct {
	Level LogLevel `toml:"level"`
}

type RendererConfig struct {
	VSync      bool `toml:"vsync"`
	Validation bool `toml:"validation"`
	// HazardTracking makes the command buffer verify the src stage/access of
	// every image transition against the last recorded access.
	HazardTracking bool `toml:"hazard_tracking"`
	// DepthCompare is "less" or "less_or_equal". Depth is always cleared to 1.
	DepthCompare         string     `toml:"depth_compare"`
	FrameAllocatorSize   uint64     `toml:"frame_allocator_size"`
	TextureArrayCapacity uint32     `toml:"texture_array_capacity"`
	DescriptorPoolSize   uint32     `toml:"descriptor_pool_size"`
	MaxQueries           uint32     `toml:"max_queries"`
	ClearColor           [3]float32 `toml:"clear_color"`
	ShaderDir            string     `toml:"shader_dir"`
}

type BloomConfig struct {
	Enabled      bool    `toml:"enabled"`
	Threshold    float32 `toml:"threshold"`
	FilterRadius float32 `toml:"filter_radius"`
}

type AssetsConfig struct {
	Root      string `toml:"root"`
	HotReload bool   `toml:"hot_reload"`
}

// EngineConfig is the full engine configuration, usually read from a TOML file.
type EngineConfig struct {
	Window   WindowConfig   `toml:"window"`
	Log      LogConfig      `toml:"log"`
	Renderer RendererConfig `toml:"renderer"`
	Bloom    BloomConfig    `toml:"bloom"`
	Assets   AssetsConfig   `toml:"assets"`
}

func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Window: WindowConfig{
			Name:   "Abyss",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Log: LogConfig{Level: InfoLevel},
		Renderer: RendererConfig{
			VSync:                true,
			Validation:           false,
			HazardTracking:       false,
			DepthCompare:         "less_or_equal",
			FrameAllocatorSize:   8 * 1024 * 1024,
			TextureArrayCapacity: 128,
			DescriptorPoolSize:   100,
			MaxQueries:           16,
			ClearColor:           [3]float32{1, 1, 1},
			ShaderDir:            "shaders",
		},
		Bloom: BloomConfig{
			Enabled:      false,
			Threshold:    1,
			FilterRadius: 0.005,
		},
		Assets: AssetsConfig{
			Root:      "assets",
			HotReload: false,
		},
	}
}

// ParseConfig decodes TOML on top of the defaults, so missing keys keep their default value.
func ParseConfig(data []byte) (*EngineConfig, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads the config at path. A missing file yields the defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			LogWarn("config file %s not found, using defaults", path)
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

func (c *EngineConfig) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("%w: window size must be non-zero", ErrInvalidConfig)
	}
	switch c.Renderer.DepthCompare {
	case "less", "less_or_equal":
	default:
		return fmt.Errorf("%w: unknown depth_compare %q", ErrInvalidConfig, c.Renderer.DepthCompare)
	}
	if c.Renderer.TextureArrayCapacity == 0 {
		return fmt.Errorf("%w: texture_array_capacity must be positive", ErrInvalidConfig)
	}
	if c.Renderer.DescriptorPoolSize == 0 {
		return fmt.Errorf("%w: descriptor_pool_size must be positive", ErrInvalidConfig)
	}
	if c.Renderer.FrameAllocatorSize < 64*1024 {
		return fmt.Errorf("%w: frame_allocator_size must be at least 64KiB", ErrInvalidConfig)
	}
	return nil
}

// Encode renders the configuration back to TOML.
func (c *EngineConfig) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
