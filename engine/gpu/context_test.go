package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func fenceSignaled(t *testing.T, driver *gputest.Driver) bool {
	t.Helper()
	require.Len(t, driver.Fences, 1)
	for _, signaled := range driver.Fences {
		return signaled
	}
	return false
}

func TestFrameFlow(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	require.NoError(t, ctx.WaitForFrame())

	driver.SkipAcquires = 1
	_, _, err := ctx.AcquireFrame()
	assert.ErrorIs(t, err, core.ErrFrameSkipped)
	assert.True(t, fenceSignaled(t, driver), "a skipped frame leaves the fence signaled")
	require.NoError(t, ctx.WaitForFrame())

	img, index, err := ctx.AcquireFrame()
	require.NoError(t, err)
	assert.False(t, fenceSignaled(t, driver))
	assert.True(t, img.IsSwapchain())
	assert.Equal(t, driver.SwapchainExtent, img.Extent)

	cb, err := ctx.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.TransitionImage(img, gpu.LayoutColorAttachment,
		gpu.StageTopOfPipe, gpu.AccessNone, gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite))
	require.NoError(t, cb.BeginRenderPass(gpu.ClearColorAttachment(img, 0, 0, 0, 1)))
	require.NoError(t, cb.EndRenderPass())
	require.NoError(t, cb.TransitionImage(img, gpu.LayoutPresentSrc,
		gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite, gpu.StageBottomOfPipe, gpu.AccessNone))
	require.NoError(t, cb.End())
	require.NoError(t, ctx.SubmitFrame(cb))
	require.NoError(t, ctx.Present(index))

	assert.Equal(t, gpu.CommandBufferSubmitted, cb.State())
	assert.True(t, fenceSignaled(t, driver))
	assert.Equal(t, []uint32{index}, driver.Presents)
	sub, ok := driver.LastSubmission()
	require.True(t, ok)
	assert.Equal(t, gpu.StageColorAttachmentOutput, sub.Stage)
	assert.NotEqual(t, gpu.NullHandle, sub.Wait)
	assert.NotEqual(t, gpu.NullHandle, sub.Signal)

	// Destroying a swapchain image is a no-op; the swapchain owns it.
	ctx.DestroyImage(img)
	assert.NotEqual(t, gpu.NullHandle, img.Handle)
}

func TestSwapchainImagesAreReused(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	seen := make(map[gpu.Handle]*gpu.Image)
	for i := 0; i < 6; i++ {
		img, _, err := ctx.AcquireFrame()
		require.NoError(t, err)
		if prev, ok := seen[img.Handle]; ok {
			assert.Same(t, prev, img)
		}
		seen[img.Handle] = img
	}
	assert.Len(t, seen, 3)

	old := seen[driver.SwapchainImages[0]]
	old.Layout = gpu.LayoutPresentSrc
	driver.Resize(gpu.Extent{Width: 320, Height: 200})
	img, _, err := ctx.AcquireFrame()
	require.NoError(t, err)
	assert.NotSame(t, old, img)
	assert.Equal(t, gpu.Extent{Width: 320, Height: 200}, img.Extent)
	assert.Equal(t, gpu.LayoutUndefined, img.Layout)
}

func TestSamplersAreShared(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	a, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterNearest, gpu.AddressModeClampToEdge)
	require.NoError(t, err)
	b, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterNearest, gpu.AddressModeClampToEdge)
	require.NoError(t, err)
	c, err := ctx.CreateSampler(gpu.FilterNearest, gpu.FilterNearest, gpu.AddressModeClampToEdge)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, driver.Created["sampler"])

	ctx.DestroySampler(a)
	d, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterNearest, gpu.AddressModeClampToEdge)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
}

func TestUploadImage(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	img, err := ctx.CreateImage(gpu.Extent{Width: 2, Height: 2}, gpu.ImageUsageSampled|gpu.ImageUsageTransferDst, gpu.FormatRGBA8Unorm)
	require.NoError(t, err)
	require.NoError(t, ctx.UploadImage(img, make([]byte, 16)))
	assert.Equal(t, gpu.LayoutShaderReadOnly, img.Layout)

	sub, ok := driver.LastSubmission()
	require.True(t, ok)
	assert.True(t, sub.OneShot)
	assert.Len(t, gputest.Find(sub.Commands, gputest.OpCopyBufferToImage), 1)
	assert.Len(t, gputest.Find(sub.Commands, gputest.OpBarrier), 2)
}
