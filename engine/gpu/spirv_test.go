package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
)

func TestReflectSPIRV(t *testing.T) {
	code := gputest.BuildShader(gpu.ShaderStageFragment, 64,
		gputest.ShaderBinding{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: 0},
		gputest.ShaderBinding{Set: 0, Binding: 3, Kind: gpu.DescriptorStorageImage, Count: 4},
		gputest.ShaderBinding{Set: 0, Binding: 1, Kind: gpu.DescriptorSampler, Count: 1},
		gputest.ShaderBinding{Set: 0, Binding: 0, Kind: gpu.DescriptorAccelStruct, Count: 1},
	)

	info, err := gpu.ReflectSPIRV(code)
	require.NoError(t, err)

	entry, ok := info.Entry(gpu.ShaderStageFragment)
	require.True(t, ok)
	assert.Equal(t, "main", entry)
	_, ok = info.Entry(gpu.ShaderStageVertex)
	assert.False(t, ok)
	assert.Equal(t, uint32(64), info.PushConstantSize)

	require.Len(t, info.Bindings, 4)
	got := make([]gpu.BindingInfo, len(info.Bindings))
	for i, b := range info.Bindings {
		b.Name = ""
		got[i] = b
	}
	stage := gpu.ShaderStageFragment
	assert.Equal(t, []gpu.BindingInfo{
		{Set: 0, Binding: 0, Kind: gpu.DescriptorAccelStruct, Count: 1, Stages: stage},
		{Set: 0, Binding: 1, Kind: gpu.DescriptorSampler, Count: 1, Stages: stage},
		{Set: 0, Binding: 3, Kind: gpu.DescriptorStorageImage, Count: 4, Stages: stage},
		{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: 0, Stages: stage},
	}, got)
}

func TestReflectPushConstantLayout(t *testing.T) {
	// struct { mat4 model; mat3 normal; uint material; } with std430 offsets.
	m := gputest.NewModule()
	m.EntryPoint(gpu.ShaderStageVertex, "vs_main")
	f32, u32, vec3, vec4, mat3, mat4 := m.ID(), m.ID(), m.ID(), m.ID(), m.ID(), m.ID()
	m.Op(gputest.OpTypeFloat, f32, 32)
	m.Op(gputest.OpTypeInt, u32, 32, 0)
	m.Op(gputest.OpTypeVector, vec3, f32, 3)
	m.Op(gputest.OpTypeVector, vec4, f32, 4)
	m.Op(gputest.OpTypeMatrix, mat3, vec3, 3)
	m.Op(gputest.OpTypeMatrix, mat4, vec4, 4)
	block := m.ID()
	m.Op(gputest.OpTypeStruct, block, mat4, mat3, u32)
	m.Op(gputest.OpMemberDecorate, block, 0, gputest.DecorationOffset, 0)
	m.Op(gputest.OpMemberDecorate, block, 0, gputest.DecorationMatrixStride, 16)
	m.Op(gputest.OpMemberDecorate, block, 1, gputest.DecorationOffset, 64)
	m.Op(gputest.OpMemberDecorate, block, 1, gputest.DecorationMatrixStride, 16)
	m.Op(gputest.OpMemberDecorate, block, 2, gputest.DecorationOffset, 112)
	ptr, v := m.ID(), m.ID()
	m.Op(gputest.OpTypePointer, ptr, gputest.StoragePushConstant, block)
	m.Op(gputest.OpVariable, ptr, v, gputest.StoragePushConstant)

	info, err := gpu.ReflectSPIRV(m.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(116), info.PushConstantSize)
	entry, ok := info.Entry(gpu.ShaderStageVertex)
	require.True(t, ok)
	assert.Equal(t, "vs_main", entry)
	assert.Empty(t, info.Bindings)
}

func TestReflectRejectsGarbage(t *testing.T) {
	_, err := gpu.ReflectSPIRV([]byte{1, 2, 3})
	assert.ErrorIs(t, err, gpu.ErrInvalidSPIRV)

	_, err = gpu.ReflectSPIRV(make([]byte, 40))
	assert.ErrorIs(t, err, gpu.ErrInvalidSPIRV)
}

func TestMergeBindings(t *testing.T) {
	vs := &gpu.ShaderInfo{Bindings: []gpu.BindingInfo{
		{Set: 0, Binding: 1, Kind: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.ShaderStageVertex},
	}}
	fs := &gpu.ShaderInfo{Bindings: []gpu.BindingInfo{
		{Set: 0, Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.ShaderStageFragment},
		{Set: 0, Binding: 1, Kind: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.ShaderStageFragment},
	}}

	merged, err := gpu.MergeBindings(vs, fs)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, uint32(0), merged[0].Binding)
	assert.Equal(t, gpu.ShaderStageVertex|gpu.ShaderStageFragment, merged[1].Stages)
}

func TestMergeBindingsKeepsRuntimeArrays(t *testing.T) {
	runtime := func(stage gpu.ShaderStage) *gpu.ShaderInfo {
		return &gpu.ShaderInfo{Bindings: []gpu.BindingInfo{
			{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: 0, Stages: stage},
		}}
	}
	fixed := func(stage gpu.ShaderStage, count uint32) *gpu.ShaderInfo {
		return &gpu.ShaderInfo{Bindings: []gpu.BindingInfo{
			{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: count, Stages: stage},
		}}
	}

	for name, infos := range map[string][]*gpu.ShaderInfo{
		"runtime first": {runtime(gpu.ShaderStageVertex), fixed(gpu.ShaderStageFragment, 4)},
		"runtime last":  {fixed(gpu.ShaderStageVertex, 4), runtime(gpu.ShaderStageFragment)},
	} {
		t.Run(name, func(t *testing.T) {
			merged, err := gpu.MergeBindings(infos...)
			require.NoError(t, err)
			require.Len(t, merged, 1)
			assert.Zero(t, merged[0].Count)
		})
	}

	merged, err := gpu.MergeBindings(fixed(gpu.ShaderStageVertex, 2), fixed(gpu.ShaderStageFragment, 8))
	require.NoError(t, err)
	assert.Equal(t, uint32(8), merged[0].Count)
}
