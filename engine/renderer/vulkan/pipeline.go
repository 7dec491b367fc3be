package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type vulkanPipelineLayout struct {
	Handle    vk.PipelineLayout
	PushStage vk.ShaderStageFlags
}

// Push constants are visible to the vertex and fragment stages.
const pushConstantStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)

func (d *Driver) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.Handle, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		l, ok := d.setLayouts.get(h)
		if !ok {
			return gpu.NullHandle, fmt.Errorf("unknown descriptor set layout %d", h)
		}
		setLayouts[i] = l
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.PushConstantSize > 0 {
		// The device only guarantees 128 bytes with 4-byte alignment.
		if desc.PushConstantSize > d.context.Device.Properties.Limits.MaxPushConstantsSize {
			return gpu.NullHandle, fmt.Errorf("push constant block of %d bytes exceeds the device limit of %d",
				desc.PushConstantSize, d.context.Device.Properties.Limits.MaxPushConstantsSize)
		}
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: pushConstantStages,
			Offset:     0,
			Size:       desc.PushConstantSize,
		}}
	}

	var layout vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.device(), &info, d.context.Allocator, &layout)
	if err := vkCheck("vkCreatePipelineLayout", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.pipelineLayouts.put(d.handles.allocate(), &vulkanPipelineLayout{Handle: layout, PushStage: pushConstantStages}), nil
}

func (d *Driver) DestroyPipelineLayout(h gpu.Handle) {
	if l, ok := d.pipelineLayouts.take(h); ok {
		vk.DestroyPipelineLayout(d.device(), l.Handle, d.context.Allocator)
	}
}

func spirvWords(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
}

func (d *Driver) createShaderModule(stage gpu.ShaderStageDesc) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	res := vk.CreateShaderModule(d.device(), &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(stage.Code)),
		PCode:    spirvWords(stage.Code),
	}, d.context.Allocator, &module)
	if err := vkCheck("vkCreateShaderModule", res); err != nil {
		return nil, fmt.Errorf("shader %s: %w", stage.Name, err)
	}
	return module, nil
}

func blendAttachment(mode gpu.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch mode {
	case gpu.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.AlphaBlendOp = vk.BlendOpAdd
	case gpu.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorOne
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
		state.AlphaBlendOp = vk.BlendOpAdd
	default:
		state.BlendEnable = vk.False
	}
	return state
}

func (d *Driver) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Handle, error) {
	layout, ok := d.pipelineLayouts.get(desc.Layout)
	if !ok {
		return gpu.NullHandle, fmt.Errorf("pipeline %s: unknown layout %d", desc.Name, desc.Layout)
	}
	key, err := pipelineRenderpassKey(desc)
	if err != nil {
		return gpu.NullHandle, err
	}
	renderpass, err := d.passes.renderpass(d.context, key)
	if err != nil {
		return gpu.NullHandle, err
	}

	// Modules are only needed until the pipeline is built.
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Stages))
	defer func() {
		for _, s := range stages {
			vk.DestroyShaderModule(d.device(), s.Module, d.context.Allocator)
		}
	}()
	for _, stage := range desc.Stages {
		module, err := d.createShaderModule(stage)
		if err != nil {
			core.LogError(err.Error())
			return gpu.NullHandle, err
		}
		entry := stage.Entry
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(stage.Stage),
			Module: module,
			PName:  VulkanSafeString(entry),
		})
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.Vertex.Stride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(desc.Vertex.Attributes))
		for i, a := range desc.Vertex.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vk.Format(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.Vertex.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopology(desc.Topology),
	}

	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(desc.Cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.Depth != nil {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOp(desc.Depth.Compare)
		if desc.Depth.Write {
			depthStencil.DepthWriteEnable = vk.True
		}
		depthStencil.MaxDepthBounds = 1.0
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, len(desc.Colors))
	for i, c := range desc.Colors {
		blends[i] = blendAttachment(c.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout.Handle,
		RenderPass:          renderpass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.device(), vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, d.context.Allocator, pipelines)
	if err := vkCheck("vkCreateGraphicsPipelines", res); err != nil {
		err = fmt.Errorf("pipeline %s: %w", desc.Name, err)
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}

	core.LogDebug("graphics pipeline %s created", desc.Name)
	return d.pipelines.put(d.handles.allocate(), pipelines[0]), nil
}

func (d *Driver) DestroyPipeline(h gpu.Handle) {
	if p, ok := d.pipelines.take(h); ok {
		vk.DestroyPipeline(d.device(), p, d.context.Allocator)
	}
}
