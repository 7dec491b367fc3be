package gpu

// AccelStruct is an acceleration structure handle. Building it is left to the caller;
// the engine only binds it.
type AccelStruct struct {
	resource
	Handle Handle
	Size   uint64
}

func (a *AccelStruct) Descriptor() Descriptor {
	return Descriptor{Kind: DescriptorAccelStruct, Accel: a}
}
