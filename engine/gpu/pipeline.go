package gpu

/**
 * @brief A pipeline layout: the descriptor set layouts plus one push constant range.
 */
type PipelineLayout struct {
	/** @brief The native layout handle. */
	Handle Handle
	/** @brief Set layouts, indexed by set number. Unused sets hold the empty layout. */
	SetLayouts []*DescriptorLayout
	/** @brief Push constant block size in bytes, visible to every stage. */
	PushConstantSize uint32
}

type ColorAttachmentOptions struct {
	Format Format
	Blend  BlendMode
}

type DepthOptions struct {
	Format  Format
	Write   bool
	Compare CompareOp
}

/**
 * @brief Declarative description of a graphics pipeline.
 */
type GraphicsPipelineOptions struct {
	Name           string
	Topology       Topology
	Cull           CullMode
	Vertex         VertexLayout
	Colors         []ColorAttachmentOptions
	Depth          *DepthOptions
	VertexShader   *ShaderModule
	FragmentShader *ShaderModule
	/** @brief Optional. When nil the layout is derived from shader reflection. */
	Layout *PipelineLayout
}

type GraphicsPipeline struct {
	Handle   Handle
	Name     string
	Layout   *PipelineLayout
	Options  GraphicsPipelineOptions
	Bindings []BindingInfo
}

// Set returns the layout the pipeline expects at set index, or nil.
func (p *GraphicsPipeline) Set(index int) *DescriptorLayout {
	if index < 0 || index >= len(p.Layout.SetLayouts) {
		return nil
	}
	return p.Layout.SetLayouts[index]
}
