package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func sceneShaders() (*gpu.ShaderModule, *gpu.ShaderModule) {
	vs := gpu.NewShaderModule("scene.vert", gputest.BuildShader(gpu.ShaderStageVertex, 116,
		gputest.ShaderBinding{Set: 0, Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1},
		gputest.ShaderBinding{Set: 0, Binding: 1, Kind: gpu.DescriptorStorageBuffer, Count: 1},
	))
	fs := gpu.NewShaderModule("scene.frag", gputest.BuildShader(gpu.ShaderStageFragment, 116,
		gputest.ShaderBinding{Set: 0, Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1},
		gputest.ShaderBinding{Set: 0, Binding: 2, Kind: gpu.DescriptorStorageBuffer, Count: 1},
		gputest.ShaderBinding{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: 0},
	))
	return vs, fs
}

func TestCreatePipelineDerivesLayout(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	vs, fs := sceneShaders()

	p, err := ctx.Pipelines.Create(gpu.GraphicsPipelineOptions{
		Name:           "scene",
		Topology:       gpu.TopologyTriangleList,
		Colors:         []gpu.ColorAttachmentOptions{{Format: gpu.FormatBGRA8Unorm}},
		Depth:          &gpu.DepthOptions{Format: gpu.FormatD32Sfloat, Write: true, Compare: gpu.CompareLessOrEqual},
		VertexShader:   vs,
		FragmentShader: fs,
	})
	require.NoError(t, err)
	require.Len(t, p.Layout.SetLayouts, 2)
	assert.Equal(t, uint32(116), p.Layout.PushConstantSize)

	set0, err := ctx.Descriptors.GetLayout(
		gpu.Binding(gpu.DescriptorUniformBuffer),
		gpu.Binding(gpu.DescriptorStorageBuffer),
		gpu.Binding(gpu.DescriptorStorageBuffer),
	)
	require.NoError(t, err)
	assert.Same(t, set0, p.Set(0))

	// Runtime arrays take the configured count.
	set1, err := ctx.Descriptors.GetLayout(gpu.BindingArray(gpu.DescriptorImageSampler, 8))
	require.NoError(t, err)
	assert.Same(t, set1, p.Set(1))

	desc := driver.Pipelines[p.Handle]
	require.Len(t, desc.Stages, 2)
	assert.Equal(t, "main", desc.Stages[0].Entry)
	assert.Equal(t, gpu.ShaderStageFragment, desc.Stages[1].Stage)
	assert.Equal(t, gpu.CompareLessOrEqual, desc.Depth.Compare)

	for _, b := range p.Bindings {
		if b.Set == 0 && b.Binding == 0 {
			assert.Equal(t, gpu.ShaderStageVertex|gpu.ShaderStageFragment, b.Stages)
		}
	}
}

func TestCreatePipelineBindingConflict(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	vs := gpu.NewShaderModule("a.vert", gputest.BuildShader(gpu.ShaderStageVertex, 0,
		gputest.ShaderBinding{Set: 0, Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1}))
	fs := gpu.NewShaderModule("a.frag", gputest.BuildShader(gpu.ShaderStageFragment, 0,
		gputest.ShaderBinding{Set: 0, Binding: 0, Kind: gpu.DescriptorStorageBuffer, Count: 1}))

	_, err := ctx.Pipelines.Create(gpu.GraphicsPipelineOptions{Name: "broken", VertexShader: vs, FragmentShader: fs})
	require.ErrorIs(t, err, gpu.ErrBindingConflict)

	var conflict *gpu.BindingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, gpu.DescriptorUniformBuffer, conflict.First)
	assert.Equal(t, gpu.DescriptorStorageBuffer, conflict.Second)
	assert.Zero(t, driver.Created["pipeline"])
}

func TestCreatePipelineMissingEntryPoint(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	vs, _ := sceneShaders()

	_, err := ctx.Pipelines.Create(gpu.GraphicsPipelineOptions{Name: "no-fs", VertexShader: vs, FragmentShader: vs})
	assert.ErrorIs(t, err, gpu.ErrNoEntryPoint)
}

func TestPipelineLayoutMemo(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	a, err := ctx.Descriptors.GetLayout(gpu.Binding(gpu.DescriptorUniformBuffer))
	require.NoError(t, err)
	b, err := ctx.Descriptors.GetLayout(gpu.Binding(gpu.DescriptorStorageBuffer))
	require.NoError(t, err)

	l1, err := ctx.Pipelines.GetLayout(16, a, b)
	require.NoError(t, err)
	l2, err := ctx.Pipelines.GetLayout(16, a, b)
	require.NoError(t, err)
	l3, err := ctx.Pipelines.GetLayout(16, b, a)
	require.NoError(t, err)
	l4, err := ctx.Pipelines.GetLayout(32, a, b)
	require.NoError(t, err)

	assert.Same(t, l1, l2)
	assert.NotSame(t, l1, l3)
	assert.NotSame(t, l1, l4)
	assert.Equal(t, 3, driver.Created["pipeline_layout"])
}

func TestLayoutFillsMissingSets(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	layout, err := ctx.Pipelines.LayoutFromBindings(0, []gpu.BindingInfo{
		{Set: 2, Binding: 1, Kind: gpu.DescriptorStorageBuffer, Count: 1},
	})
	require.NoError(t, err)
	require.Len(t, layout.SetLayouts, 3)

	empty, err := ctx.Descriptors.GetLayout()
	require.NoError(t, err)
	assert.Same(t, empty, layout.SetLayouts[0])
	assert.Same(t, empty, layout.SetLayouts[1])
	assert.Equal(t, []gpu.DescriptorInfo{{}, gpu.Binding(gpu.DescriptorStorageBuffer)}, layout.SetLayouts[2].Bindings)
}

func TestReflectionIsCachedPerModule(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	vs, _ := sceneShaders()

	first, err := ctx.Pipelines.Reflect(vs)
	require.NoError(t, err)
	second, err := ctx.Pipelines.Reflect(vs)
	require.NoError(t, err)
	assert.Same(t, first, second)

	ctx.Pipelines.Forget(vs)
	third, err := ctx.Pipelines.Reflect(vs)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}
