package gputest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
)

// DefaultConfig is small enough to make capacity errors easy to provoke.
func DefaultConfig() gpu.Config {
	return gpu.Config{
		FrameAllocatorSize: 1 << 20,
		DescriptorPoolSize: 100,
		RuntimeArrayCount:  8,
		MaxQueries:         4,
		HazardTracking:     true,
	}
}

// NewContext builds a gpu.Context on a fresh fake driver and destroys it when the test ends.
func NewContext(t testing.TB, configs ...gpu.Config) (*gpu.Context, *Driver) {
	t.Helper()
	cfg := DefaultConfig()
	if len(configs) > 0 {
		cfg = configs[0]
	}
	driver := NewDriver()
	ctx, err := gpu.NewContext(driver, cfg)
	require.NoError(t, err)
	t.Cleanup(ctx.Destroy)
	return ctx, driver
}
