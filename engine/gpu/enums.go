package gpu

// Enum values mirror the Vulkan numeric values so a driver can convert by cast.

type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Format uint32

const (
	FormatUndefined    Format = 0
	FormatR8Unorm      Format = 9
	FormatRGBA8Unorm   Format = 37
	FormatRGBA8Srgb    Format = 43
	FormatBGRA8Unorm   Format = 44
	FormatBGRA8Srgb    Format = 50
	FormatRGBA16Sfloat Format = 97
	FormatR32Sfloat    Format = 100
	FormatRG32Sfloat   Format = 103
	FormatRGB32Sfloat  Format = 106
	FormatRGBA32Sfloat Format = 109
	FormatD32Sfloat    Format = 126
)

func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat
}

// BytesPerPixel returns the texel size, or 0 for formats that are not sampled textures.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb, FormatR32Sfloat, FormatD32Sfloat:
		return 4
	case FormatRGBA16Sfloat, FormatRG32Sfloat:
		return 8
	case FormatRGB32Sfloat:
		return 12
	case FormatRGBA32Sfloat:
		return 16
	}
	return 0
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x1
	ImageUsageTransferDst            ImageUsage = 0x2
	ImageUsageSampled                ImageUsage = 0x4
	ImageUsageStorage                ImageUsage = 0x8
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

type MemoryClass int

const (
	// MemoryGPUOnly buffers are device local and written through copies.
	MemoryGPUOnly MemoryClass = iota
	// MemoryCPUToGPU buffers are host visible and coherent, so they can be mapped.
	MemoryCPUToGPU
)

func (m MemoryClass) String() string {
	if m == MemoryCPUToGPU {
		return "cpu_to_gpu"
	}
	return "gpu_only"
}

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type AddressMode uint32

const (
	AddressModeRepeat         AddressMode = 0
	AddressModeMirroredRepeat AddressMode = 1
	AddressModeClampToEdge    AddressMode = 2
)

type ImageLayout uint32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutGeneral                ImageLayout = 1
	LayoutColorAttachment        ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutShaderReadOnly         ImageLayout = 5
	LayoutTransferSrc            ImageLayout = 6
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color_attachment"
	case LayoutDepthStencilAttachment:
		return "depth_stencil_attachment"
	case LayoutShaderReadOnly:
		return "shader_read_only"
	case LayoutTransferSrc:
		return "transfer_src"
	case LayoutTransferDst:
		return "transfer_dst"
	case LayoutPresentSrc:
		return "present_src"
	}
	return "unknown"
}

type PipelineStage uint32

const (
	StageNone                  PipelineStage = 0
	StageTopOfPipe             PipelineStage = 0x1
	StageDrawIndirect          PipelineStage = 0x2
	StageVertexInput           PipelineStage = 0x4
	StageVertexShader          PipelineStage = 0x8
	StageFragmentShader        PipelineStage = 0x80
	StageEarlyFragmentTests    PipelineStage = 0x100
	StageLateFragmentTests     PipelineStage = 0x200
	StageColorAttachmentOutput PipelineStage = 0x400
	StageComputeShader         PipelineStage = 0x800
	StageTransfer              PipelineStage = 0x1000
	StageBottomOfPipe          PipelineStage = 0x2000
	StageAllGraphics           PipelineStage = 0x8000
	StageAllCommands           PipelineStage = 0x10000
)

type Access uint32

const (
	AccessNone                 Access = 0
	AccessIndexRead            Access = 0x2
	AccessVertexAttributeRead  Access = 0x4
	AccessUniformRead          Access = 0x8
	AccessShaderRead           Access = 0x20
	AccessShaderWrite          Access = 0x40
	AccessColorAttachmentRead  Access = 0x80
	AccessColorAttachmentWrite Access = 0x100
	AccessDepthStencilRead     Access = 0x200
	AccessDepthStencilWrite    Access = 0x400
	AccessTransferRead         Access = 0x800
	AccessTransferWrite        Access = 0x1000
	AccessHostWrite            Access = 0x4000
	AccessMemoryRead           Access = 0x8000
	AccessMemoryWrite          Access = 0x10000
)

const writeAccessMask = AccessShaderWrite | AccessColorAttachmentWrite | AccessDepthStencilWrite |
	AccessTransferWrite | AccessHostWrite | AccessMemoryWrite

// Writes keeps only the write bits of a.
func (a Access) Writes() Access {
	return a & writeAccessMask
}

type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageFragment ShaderStage = 0x10
	ShaderStageCompute  ShaderStage = 0x20
	ShaderStageAll      ShaderStage = 0x7FFFFFFF
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "mixed"
}

// DescriptorKind is the type of a single descriptor binding. Empty marks an unused slot.
type DescriptorKind uint8

const (
	DescriptorEmpty DescriptorKind = iota
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorImageSampler
	DescriptorSampler
	DescriptorAccelStruct
)

var descriptorKindNames = [...]string{
	DescriptorEmpty:         "empty",
	DescriptorUniformBuffer: "uniform_buffer",
	DescriptorStorageBuffer: "storage_buffer",
	DescriptorSampledImage:  "sampled_image",
	DescriptorStorageImage:  "storage_image",
	DescriptorImageSampler:  "image_sampler",
	DescriptorSampler:       "sampler",
	DescriptorAccelStruct:   "accel_struct",
}

func (k DescriptorKind) String() string {
	if int(k) < len(descriptorKindNames) {
		return descriptorKindNames[k]
	}
	return "unknown"
}

// AllDescriptorKinds lists every bindable kind, used to size descriptor pools.
var AllDescriptorKinds = []DescriptorKind{
	DescriptorUniformBuffer,
	DescriptorStorageBuffer,
	DescriptorSampledImage,
	DescriptorStorageImage,
	DescriptorImageSampler,
	DescriptorSampler,
}

type CompareOp uint32

const (
	CompareNever       CompareOp = 0
	CompareLess        CompareOp = 1
	CompareEqual       CompareOp = 2
	CompareLessOrEqual CompareOp = 3
	CompareGreater     CompareOp = 4
	CompareAlways      CompareOp = 7
)

// ParseCompareOp accepts the configuration spelling of a depth compare op.
func ParseCompareOp(s string) (CompareOp, bool) {
	switch s {
	case "less":
		return CompareLess, true
	case "less_or_equal":
		return CompareLessOrEqual, true
	}
	return CompareNever, false
}

type Topology uint32

const (
	TopologyPointList     Topology = 0
	TopologyLineList      Topology = 1
	TopologyTriangleList  Topology = 3
	TopologyTriangleStrip Topology = 4
)

type CullMode uint32

const (
	CullNone  CullMode = 0
	CullFront CullMode = 1
	CullBack  CullMode = 2
)

type BlendMode int

const (
	BlendNone BlendMode = iota
	// BlendAlpha is src*srcAlpha + dst*(1-srcAlpha).
	BlendAlpha
	// BlendAdditive is src + dst.
	BlendAdditive
)

type IndexType uint32

const (
	IndexUint16 IndexType = 0
	IndexUint32 IndexType = 1
)

func (t IndexType) Size() uint64 {
	if t == IndexUint16 {
		return 2
	}
	return 4
}

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)
