package gpu

type Sampler struct {
	resource
	Handle Handle
	Desc   SamplerDesc
}

func (s *Sampler) Descriptor() Descriptor {
	return Descriptor{Kind: DescriptorSampler, Sampler: s}
}
