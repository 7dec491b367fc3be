package gpu_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

type testRecord struct {
	Value float32
	Index uint32
	_     [2]uint32
}

func upload[T any](t *testing.T, ctx *gpu.Context, g *gpu.GrowableStorageBuffer[T]) *gputest.Recorder {
	t.Helper()
	var rec *gputest.Recorder
	require.NoError(t, ctx.Run(func(cb *gpu.CommandBuffer) error {
		rec = cb.Recorder().(*gputest.Recorder)
		return g.Upload(cb)
	}))
	return rec
}

func TestGrowableBufferUploads(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	g := gpu.NewGrowableStorageBuffer[testRecord](ctx, "records")
	assert.Equal(t, uint64(16), g.RecordSize())

	upload(t, ctx, g)
	require.NotNil(t, g.Buffer())
	assert.Equal(t, uint64(16), g.Capacity())

	for i := 0; i < 3; i++ {
		assert.Equal(t, i, g.Add(testRecord{Value: float32(i) + 0.5, Index: uint32(i)}))
	}
	rec := upload(t, ctx, g)
	assert.GreaterOrEqual(t, g.Capacity(), uint64(3*16))
	assert.Equal(t, []string{gputest.OpCopyBuffer, gputest.OpBarrier}, rec.Ops())

	barrier := rec.Find(gputest.OpBarrier)[0]
	assert.Equal(t, gpu.StageTransfer, barrier.SrcStage)
	assert.Equal(t, gpu.StageFragmentShader, barrier.DstStage)
	require.Len(t, barrier.BufferBarriers, 1)
	assert.Equal(t, gpu.AccessTransferWrite, barrier.BufferBarriers[0].SrcAccess)
	assert.Equal(t, gpu.AccessShaderRead, barrier.BufferBarriers[0].DstAccess)

	data := driver.Buffers[g.Buffer().Handle].Data
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(data[32:])))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[36:]))
}

func TestGrowableBufferNeverShrinks(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	g := gpu.NewGrowableStorageBuffer[testRecord](ctx, "records").ReadAt(gpu.StageVertexShader)

	for i := 0; i < 10; i++ {
		g.Add(testRecord{Index: uint32(i)})
	}
	upload(t, ctx, g)
	grown := g.Buffer()
	capacity := g.Capacity()
	assert.GreaterOrEqual(t, capacity, uint64(10*16))

	set, err := ctx.Descriptors.GetSet(g.Descriptor())
	require.NoError(t, err)
	setHandle := set.Handle

	g.Clear()
	assert.Zero(t, g.Len())
	g.Add(testRecord{})
	rec := upload(t, ctx, g)
	assert.Same(t, grown, g.Buffer())
	assert.Equal(t, capacity, g.Capacity())
	assert.Equal(t, gpu.StageVertexShader, rec.Find(gputest.OpBarrier)[0].DstStage)

	// Growing replaces the buffer and drops sets that pointed at the old one.
	for i := 0; i < 30; i++ {
		g.Add(testRecord{})
	}
	upload(t, ctx, g)
	assert.NotSame(t, grown, g.Buffer())
	assert.GreaterOrEqual(t, g.Capacity(), uint64(31*16))
	assert.GreaterOrEqual(t, g.Capacity(), 2*capacity)
	assert.Contains(t, driver.FreedSets, setHandle)
	assert.Equal(t, gpu.NullHandle, set.Handle)
	assert.NotContains(t, driver.Buffers, grown.Handle)
}
