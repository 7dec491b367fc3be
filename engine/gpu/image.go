package gpu

type Image struct {
	resource
	Handle Handle
	Extent Extent
	Format Format
	Usage  ImageUsage
	// Layout is the layout the last recorded transition left the image in.
	// Only CommandBuffer writes it.
	Layout ImageLayout

	lastStage  PipelineStage
	lastAccess Access
	swapchain  bool
}

func (i *Image) IsDepth() bool {
	return i.Usage&ImageUsageDepthStencilAttachment != 0
}

// IsSwapchain reports whether the image belongs to the presentation engine.
func (i *Image) IsSwapchain() bool {
	return i.swapchain
}

// LastAccess returns the stage and access of the last recorded use, for hazard checks.
func (i *Image) LastAccess() (PipelineStage, Access) {
	return i.lastStage, i.lastAccess
}

func (i *Image) resetAccess() {
	i.lastStage = StageNone
	i.lastAccess = AccessNone
}

func (i *Image) WithSampler(s *Sampler) Descriptor {
	return Descriptor{Kind: DescriptorImageSampler, Image: i, Sampler: s}
}

func (i *Image) Sampled() Descriptor {
	return Descriptor{Kind: DescriptorSampledImage, Image: i}
}

func (i *Image) Storage() Descriptor {
	return Descriptor{Kind: DescriptorStorageImage, Image: i}
}
