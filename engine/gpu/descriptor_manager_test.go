package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func TestGetSetMemoizesByValue(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	buf, err := ctx.CreateBuffer(1024, gpu.BufferUsageUniform|gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)

	a, err := buf.Sub(0, 256)
	require.NoError(t, err)
	b, err := buf.Sub(0, 256)
	require.NoError(t, err)

	first, err := ctx.Descriptors.GetSet(a.Uniform(), b.Storage())
	require.NoError(t, err)
	second, err := ctx.Descriptors.GetSet(b.Uniform(), a.Storage())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, driver.Created["set"])

	writes := driver.Sets[first.Handle].Writes
	require.Len(t, writes, 2)
	assert.Equal(t, gpu.DescriptorUniformBuffer, writes[0].Kind)
	assert.Equal(t, buf.Handle, writes[0].Buffer)
	assert.Equal(t, uint64(256), writes[0].Range)
	assert.Equal(t, uint32(1), writes[1].Binding)

	other, err := buf.Sub(256, 256)
	require.NoError(t, err)
	shifted, err := ctx.Descriptors.GetSet(other.Uniform(), a.Storage())
	require.NoError(t, err)
	assert.NotSame(t, first, shifted)

	// Same resources bound under a different kind is another set.
	kinds, err := ctx.Descriptors.GetSet(a.Storage(), a.Storage())
	require.NoError(t, err)
	assert.NotSame(t, first, kinds)
	assert.Equal(t, 3, driver.Created["set"])
	assert.Equal(t, 3, ctx.Descriptors.CachedSets())
}

func TestGetSetImageSamplerEquality(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	img, err := ctx.CreateImage(gpu.Extent{Width: 4, Height: 4}, gpu.ImageUsageSampled, gpu.FormatRGBA8Unorm)
	require.NoError(t, err)
	linear, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeRepeat)
	require.NoError(t, err)
	again, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeRepeat)
	require.NoError(t, err)
	nearest, err := ctx.CreateSampler(gpu.FilterNearest, gpu.FilterNearest, gpu.AddressModeRepeat)
	require.NoError(t, err)
	assert.Same(t, linear, again)

	s1, err := ctx.Descriptors.GetSet(img.WithSampler(linear))
	require.NoError(t, err)
	s2, err := ctx.Descriptors.GetSet(img.WithSampler(again))
	require.NoError(t, err)
	s3, err := ctx.Descriptors.GetSet(img.WithSampler(nearest))
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, 2, driver.Created["set"])
	assert.Equal(t, gpu.LayoutShaderReadOnly, driver.Sets[s1.Handle].Writes[0].Layout)
}

func TestDestroyPurgesCachedSets(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	buf, err := ctx.CreateBuffer(256, gpu.BufferUsageUniform, gpu.MemoryGPUOnly)
	require.NoError(t, err)
	img, err := ctx.CreateImage(gpu.Extent{Width: 2, Height: 2}, gpu.ImageUsageSampled, gpu.FormatR8Unorm)
	require.NoError(t, err)
	smp, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeRepeat)
	require.NoError(t, err)

	withBuffer, err := ctx.Descriptors.GetSet(buf.All().Uniform())
	require.NoError(t, err)
	withImage, err := ctx.Descriptors.GetSet(img.WithSampler(smp))
	require.NoError(t, err)
	stale := withBuffer.Handle

	ctx.DestroyBuffer(buf)
	assert.Equal(t, []gpu.Handle{stale}, driver.FreedSets)
	assert.Equal(t, gpu.NullHandle, withBuffer.Handle)
	assert.Equal(t, 1, ctx.Descriptors.CachedSets())

	kept, err := ctx.Descriptors.GetSet(img.WithSampler(smp))
	require.NoError(t, err)
	assert.Same(t, withImage, kept)
}

func TestOnDestroyResourceForcesNewSet(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	buf, err := ctx.CreateBuffer(256, gpu.BufferUsageStorage, gpu.MemoryGPUOnly)
	require.NoError(t, err)

	first, err := ctx.Descriptors.GetSet(buf.All().Storage(), gpu.EmptyDescriptor)
	require.NoError(t, err)
	old := first.Handle

	ctx.Descriptors.OnDestroyResource(buf)

	second, err := ctx.Descriptors.GetSet(buf.All().Storage(), gpu.EmptyDescriptor)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, old, second.Handle)
	assert.NotContains(t, driver.Sets, old)
	assert.Equal(t, 2, driver.Created["set"])
}

func TestGetLayout(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	d := ctx.Descriptors

	l1, err := d.GetLayout(gpu.Binding(gpu.DescriptorUniformBuffer), gpu.DescriptorInfo{}, gpu.Binding(gpu.DescriptorStorageBuffer))
	require.NoError(t, err)
	l2, err := d.GetLayout(gpu.Binding(gpu.DescriptorUniformBuffer), gpu.DescriptorInfo{}, gpu.Binding(gpu.DescriptorStorageBuffer))
	require.NoError(t, err)
	assert.Same(t, l1, l2)

	native := driver.SetLayouts[l1.Handle]
	require.Len(t, native.Bindings, 2)
	assert.Equal(t, uint32(0), native.Bindings[0].Binding)
	assert.Equal(t, uint32(2), native.Bindings[1].Binding)
	assert.False(t, native.UpdateAfterBind)

	bindless, err := d.GetLayout(gpu.BindingArray(gpu.DescriptorImageSampler, 64))
	require.NoError(t, err)
	assert.NotSame(t, l1, bindless)
	assert.True(t, driver.SetLayouts[bindless.Handle].UpdateAfterBind)
	assert.True(t, driver.SetLayouts[bindless.Handle].Bindings[0].Bindless)

	_, err = d.GetLayout(gpu.Binding(gpu.DescriptorUniformBuffer), gpu.BindingArray(gpu.DescriptorImageSampler, 0))
	assert.ErrorIs(t, err, gpu.ErrInvalidDescriptorCount)
	assert.Equal(t, 2, d.CachedLayouts())
}
