package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func TestTextureArraySlots(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	ta, err := gpu.NewTextureArray(ctx, 2)
	require.NoError(t, err)

	smp, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeRepeat)
	require.NoError(t, err)
	images := make([]*gpu.Image, 3)
	for i := range images {
		images[i], err = ctx.CreateImage(gpu.Extent{Width: 1, Height: 1}, gpu.ImageUsageSampled, gpu.FormatRGBA8Unorm)
		require.NoError(t, err)
	}

	first, err := ta.Add(images[0], smp)
	require.NoError(t, err)
	second, err := ta.Add(images[1], smp)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(2), second)

	_, err = ta.Add(images[2], smp)
	assert.ErrorIs(t, err, gpu.ErrTextureArrayFull)

	writes := driver.Sets[ta.Set().Handle].Writes
	require.Len(t, writes, 2)
	assert.Equal(t, uint32(1), writes[1].ArrayElement)
	assert.Equal(t, gpu.DescriptorImageSampler, writes[1].Kind)
	assert.Equal(t, images[1].Handle, writes[1].Image)

	ta.Remove(first)
	reused, err := ta.Add(images[2], smp)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reused)

	ctx.DestroyImage(images[1])
	assert.Equal(t, 1, ta.Len())
	again, err := ta.Add(images[0], smp)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), again)
}

func TestTextureArrayLayoutIsShared(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	ta, err := gpu.NewTextureArray(ctx, 8)
	require.NoError(t, err)

	layout, err := ctx.Descriptors.GetLayout(gpu.BindingArray(gpu.DescriptorImageSampler, 8))
	require.NoError(t, err)
	assert.Same(t, layout, ta.Layout())
	assert.Equal(t, 8, ta.Capacity())

	pool := driver.Sets[ta.Set().Handle].Pool
	assert.True(t, driver.Pools[pool].Desc.UpdateAfterBind)
}
