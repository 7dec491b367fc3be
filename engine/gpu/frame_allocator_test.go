package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func TestFrameAllocator(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	f := ctx.Frame

	a, mem, err := f.Allocate(10)
	require.NoError(t, err)
	copy(mem, "0123456789")
	b, err := f.AllocateData([]byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), a.Offset)
	assert.Equal(t, uint64(256), b.Offset)
	assert.Same(t, a.Buffer, b.Buffer)
	data := driver.Buffers[a.Buffer.Handle].Data
	assert.Equal(t, "0123456789", string(data[:10]))
	assert.Equal(t, "abc", string(data[256:259]))

	ctx.NewFrame()
	assert.Zero(t, f.Used())
	assert.Equal(t, uint64(259), f.Peak())
	c, _, err := f.Allocate(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Offset)

	_, _, err = f.Allocate(f.Capacity())
	assert.ErrorIs(t, err, gpu.ErrFrameAllocatorFull)
}

func TestBuffers(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	gpuOnly, err := ctx.CreateBuffer(64, gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)

	_, err = gpuOnly.Sub(32, 33)
	assert.ErrorIs(t, err, gpu.ErrOutOfBounds)
	_, err = gpuOnly.Map()
	assert.ErrorIs(t, err, gpu.ErrNotMappable)

	before := len(driver.Buffers)
	static, err := ctx.CreateStaticBuffer(gpu.BufferUsageVertex, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, driver.Buffers[static.Handle].Data)
	assert.Len(t, driver.Buffers, before+1, "staging buffer is released")
	assert.Equal(t, gpu.BufferUsageVertex|gpu.BufferUsageTransferDst, static.Usage)

	host, err := ctx.CreateBuffer(8, gpu.BufferUsageUniform, gpu.MemoryCPUToGPU)
	require.NoError(t, err)
	require.NoError(t, host.Write(4, []byte{9, 9}))
	assert.Equal(t, []byte{0, 0, 0, 0, 9, 9, 0, 0}, driver.Buffers[host.Handle].Data)
	assert.ErrorIs(t, host.Write(7, []byte{1, 2}), gpu.ErrOutOfBounds)
}
