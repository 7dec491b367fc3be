package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func newRecording(t *testing.T, ctx *gpu.Context) (*gpu.CommandBuffer, *gputest.Recorder) {
	t.Helper()
	cb, err := ctx.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	return cb, cb.Recorder().(*gputest.Recorder)
}

func colorTarget(t *testing.T, ctx *gpu.Context) *gpu.Image {
	t.Helper()
	img, err := ctx.CreateImage(gpu.Extent{Width: 64, Height: 32}, gpu.ImageUsageColorAttachment|gpu.ImageUsageSampled, gpu.FormatRGBA8Unorm)
	require.NoError(t, err)
	return img
}

func depthTarget(t *testing.T, ctx *gpu.Context) *gpu.Image {
	t.Helper()
	img, err := ctx.CreateImage(gpu.Extent{Width: 64, Height: 32}, gpu.ImageUsageDepthStencilAttachment, gpu.FormatD32Sfloat)
	require.NoError(t, err)
	return img
}

func TestCommandBufferStates(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, err := ctx.NewCommandBuffer()
	require.NoError(t, err)
	assert.Equal(t, gpu.CommandBufferReady, cb.State())

	assert.ErrorIs(t, cb.End(), gpu.ErrInvalidCommandBufferState)
	require.NoError(t, cb.Begin())
	assert.Equal(t, gpu.CommandBufferRecording, cb.State())
	assert.ErrorIs(t, cb.Begin(), gpu.ErrInvalidCommandBufferState)
	assert.ErrorIs(t, cb.MarkSubmitted(), gpu.ErrInvalidCommandBufferState)

	require.NoError(t, cb.End())
	assert.Equal(t, gpu.CommandBufferRecordingEnded, cb.State())
	require.NoError(t, cb.MarkSubmitted())
	assert.Equal(t, gpu.CommandBufferSubmitted, cb.State())

	require.NoError(t, cb.Reset())
	assert.Equal(t, gpu.CommandBufferReady, cb.State())
	assert.Equal(t, 1, cb.Recorder().(*gputest.Recorder).Resets)

	ctx.FreeCommandBuffer(cb)
	assert.Equal(t, gpu.CommandBufferNotAllocated, cb.State())
	assert.ErrorIs(t, cb.Reset(), gpu.ErrInvalidCommandBufferState)
}

func TestBindingRequiresPipeline(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, _ := newRecording(t, ctx)
	buf, err := ctx.CreateBuffer(64, gpu.BufferUsageUniform, gpu.MemoryGPUOnly)
	require.NoError(t, err)
	set, err := ctx.Descriptors.GetSet(buf.All().Uniform())
	require.NoError(t, err)

	assert.ErrorIs(t, cb.BindDescriptorSet(0, set), gpu.ErrNoPipelineBound)
	assert.ErrorIs(t, cb.PushConstants([]byte{1, 2, 3, 4}), gpu.ErrNoPipelineBound)

	vs, fs := sceneShaders()
	p, err := ctx.Pipelines.Create(gpu.GraphicsPipelineOptions{Name: "scene", VertexShader: vs, FragmentShader: fs})
	require.NoError(t, err)
	require.NoError(t, cb.BindPipeline(p))
	require.NoError(t, cb.PushConstants(make([]byte, 116)))
	assert.ErrorIs(t, cb.PushConstants(make([]byte, 120)), gpu.ErrOutOfBounds)

	// Draws only happen inside a render pass.
	assert.ErrorIs(t, cb.Draw(3, 1), gpu.ErrInvalidCommandBufferState)
}

func TestCopyBufferSizeMismatch(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, rec := newRecording(t, ctx)
	a, err := ctx.CreateBuffer(128, gpu.BufferUsageTransferSrc, gpu.MemoryCPUToGPU)
	require.NoError(t, err)
	b, err := ctx.CreateBuffer(256, gpu.BufferUsageTransferDst, gpu.MemoryGPUOnly)
	require.NoError(t, err)

	assert.ErrorIs(t, cb.CopyBuffer(a.All(), b.All()), gpu.ErrCopySizeMismatch)

	dst, err := b.Sub(128, 128)
	require.NoError(t, err)
	require.NoError(t, cb.CopyBuffer(a.All(), dst))
	copies := rec.Find(gputest.OpCopyBuffer)
	require.Len(t, copies, 1)
	assert.Equal(t, uint64(128), copies[0].DstOffset)
}

func TestTransitionImageTracksLayout(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, rec := newRecording(t, ctx)
	color := colorTarget(t, ctx)
	depth := depthTarget(t, ctx)

	require.NoError(t, cb.TransitionImage(color, gpu.LayoutColorAttachment,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite))
	require.NoError(t, cb.TransitionImage(color, gpu.LayoutShaderReadOnly,
		gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite, gpu.StageFragmentShader, gpu.AccessShaderRead))
	require.NoError(t, cb.TransitionImage(depth, gpu.LayoutDepthStencilAttachment,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageEarlyFragmentTests, gpu.AccessDepthStencilWrite))

	barriers := rec.Find(gputest.OpBarrier)
	require.Len(t, barriers, 3)
	first := barriers[0].ImageBarriers[0]
	assert.Equal(t, gpu.LayoutUndefined, first.OldLayout)
	assert.Equal(t, gpu.LayoutColorAttachment, first.NewLayout)
	assert.False(t, first.Depth)

	second := barriers[1].ImageBarriers[0]
	assert.Equal(t, gpu.LayoutColorAttachment, second.OldLayout)
	assert.Equal(t, gpu.StageColorAttachmentOutput, barriers[1].SrcStage)
	assert.Equal(t, gpu.StageFragmentShader, barriers[1].DstStage)

	assert.True(t, barriers[2].ImageBarriers[0].Depth)
	assert.Equal(t, gpu.LayoutShaderReadOnly, color.Layout)
	assert.Equal(t, gpu.LayoutDepthStencilAttachment, depth.Layout)
}

func TestHazardTracking(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, _ := newRecording(t, ctx)
	img := colorTarget(t, ctx)

	require.NoError(t, cb.TransitionImage(img, gpu.LayoutTransferDst,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageTransfer, gpu.AccessTransferWrite))
	err := cb.TransitionImage(img, gpu.LayoutShaderReadOnly,
		gpu.StageFragmentShader, gpu.AccessShaderRead, gpu.StageFragmentShader, gpu.AccessShaderRead)
	assert.ErrorIs(t, err, gpu.ErrHazardMismatch)
	assert.Equal(t, gpu.LayoutTransferDst, img.Layout)

	require.NoError(t, cb.TransitionImage(img, gpu.LayoutShaderReadOnly,
		gpu.StageTransfer, gpu.AccessTransferWrite, gpu.StageFragmentShader, gpu.AccessShaderRead))

	cfg := gputest.DefaultConfig()
	cfg.HazardTracking = false
	trusting, _ := gputest.NewContext(t, cfg)
	cb2, _ := newRecording(t, trusting)
	img2 := colorTarget(t, trusting)
	require.NoError(t, cb2.TransitionImage(img2, gpu.LayoutTransferDst,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageTransfer, gpu.AccessTransferWrite))
	assert.NoError(t, cb2.TransitionImage(img2, gpu.LayoutShaderReadOnly,
		gpu.StageFragmentShader, gpu.AccessShaderRead, gpu.StageFragmentShader, gpu.AccessShaderRead))
}

func TestBeginRenderPass(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	cb, rec := newRecording(t, ctx)
	color := colorTarget(t, ctx)
	depth := depthTarget(t, ctx)
	depth2 := depthTarget(t, ctx)

	assert.ErrorIs(t, cb.BeginRenderPass(gpu.LoadAttachment(color)), gpu.ErrAttachmentLayout)

	for _, img := range []*gpu.Image{depth, depth2} {
		require.NoError(t, cb.TransitionImage(img, gpu.LayoutDepthStencilAttachment,
			gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageEarlyFragmentTests, gpu.AccessDepthStencilWrite))
	}
	require.NoError(t, cb.TransitionImage(color, gpu.LayoutColorAttachment,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite))

	err := cb.BeginRenderPass(gpu.ClearColorAttachment(color, 0, 0, 0, 1), gpu.ClearDepthAttachment(depth, 1), gpu.ClearDepthAttachment(depth2, 1))
	assert.ErrorIs(t, err, gpu.ErrMultipleDepthAttachments)
	assert.Equal(t, gpu.CommandBufferRecording, cb.State())

	require.NoError(t, cb.BeginRenderPass(gpu.ClearDepthAttachment(depth, 1), gpu.ClearColorAttachment(color, 1, 1, 1, 1)))
	assert.Equal(t, gpu.CommandBufferInRenderPass, cb.State())
	assert.Equal(t, gpu.Extent{Width: 64, Height: 32}, cb.RenderExtent())
	assert.ErrorIs(t, cb.TransitionImage(color, gpu.LayoutShaderReadOnly,
		gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite, gpu.StageFragmentShader, gpu.AccessShaderRead),
		gpu.ErrInvalidCommandBufferState)
	require.NoError(t, cb.EndRenderPass())

	passes := rec.Find(gputest.OpBeginRenderPass)
	require.Len(t, passes, 1)
	pass := passes[0].RenderPass
	require.Len(t, pass.Colors, 1)
	require.NotNil(t, pass.Depth)
	assert.Equal(t, float32(1), pass.Depth.Clear.Depth)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, pass.Colors[0].Clear.Color)

	viewports := rec.Find(gputest.OpSetViewport)
	require.Len(t, viewports, 1)
	assert.Equal(t, float32(64), viewports[0].Viewport.Width)
	assert.Len(t, rec.Find(gputest.OpSetScissor), 1)
}

func TestGroupsAndQueries(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	cb, rec := newRecording(t, ctx)
	require.NoError(t, ctx.Queries.Reset(cb))

	cb.BeginGroup("frame")
	for i := 0; i < 4; i++ {
		require.NoError(t, cb.BeginQuery("pass"+string(rune('A'+i))))
		require.NoError(t, cb.EndQuery())
	}
	assert.ErrorIs(t, cb.BeginQuery("one too many"), gpu.ErrTooManyQueries)
	cb.BeginGroup("left open")
	cb.EndGroup()
	cb.BeginGroup("also open")
	require.NoError(t, cb.End())

	assert.Len(t, rec.Find(gputest.OpBeginLabel), 3)
	assert.Len(t, rec.Find(gputest.OpEndLabel), 3)
	assert.Len(t, rec.Find(gputest.OpTimestamp), 8)

	require.NoError(t, ctx.SubmitFrame(cb))
	require.NoError(t, ctx.WaitForFrame())
	results := ctx.Queries.Results()
	assert.Len(t, results, 4)
	assert.Equal(t, int64(1000), results["passA"].Nanoseconds())
	assert.Len(t, driver.FrameSubmissions(), 1)
}
