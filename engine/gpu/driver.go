package gpu

// Handle is an opaque native object owned by a Driver. Zero is the null handle.
type Handle uint64

const NullHandle Handle = 0

type BufferDesc struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryClass
}

type ImageDesc struct {
	Extent Extent
	Format Format
	Usage  ImageUsage
}

type SamplerDesc struct {
	Mag     Filter
	Min     Filter
	Address AddressMode
}

type AccelStructDesc struct {
	Size uint64
}

type LayoutBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	// Bindless arrays are update-after-bind and partially bound.
	Bindless bool
}

type DescriptorLayoutDesc struct {
	Bindings        []LayoutBinding
	UpdateAfterBind bool
}

type DescriptorPoolDesc struct {
	MaxSets         uint32
	PerKind         uint32
	UpdateAfterBind bool
}

// DescriptorWrite updates one array element of a binding in a set.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Kind         DescriptorKind
	Buffer       Handle
	Offset       uint64
	Range        uint64
	Image        Handle
	Layout       ImageLayout
	Sampler      Handle
	Accel        Handle
}

type PipelineLayoutDesc struct {
	SetLayouts       []Handle
	PushConstantSize uint32
}

type ShaderStageDesc struct {
	Stage ShaderStage
	Name  string
	Entry string
	Code  []byte
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type ColorTarget struct {
	Format Format
	Blend  BlendMode
}

type DepthState struct {
	Format  Format
	Write   bool
	Compare CompareOp
}

type GraphicsPipelineDesc struct {
	Name     string
	Layout   Handle
	Stages   []ShaderStageDesc
	Topology Topology
	Cull     CullMode
	Vertex   VertexLayout
	Colors   []ColorTarget
	Depth    *DepthState
}

// SwapchainImage is what AcquireNextImage hands out for the frame.
type SwapchainImage struct {
	Index  uint32
	Image  Handle
	Extent Extent
	Format Format
	// Generation changes every time the swapchain is recreated.
	Generation uint64
}

type Limits struct {
	MinUniformOffsetAlignment uint64
	MinStorageOffsetAlignment uint64
	TimestampPeriod           float32
}

// Driver creates and destroys native objects and talks to the device queue.
// Every method is called from the render thread only.
type Driver interface {
	Limits() Limits

	CreateBuffer(desc BufferDesc) (Handle, error)
	DestroyBuffer(h Handle)
	MapBuffer(h Handle) ([]byte, error)
	UnmapBuffer(h Handle)

	CreateImage(desc ImageDesc) (Handle, error)
	DestroyImage(h Handle)
	CreateSampler(desc SamplerDesc) (Handle, error)
	DestroySampler(h Handle)
	CreateAccelStruct(desc AccelStructDesc) (Handle, error)
	DestroyAccelStruct(h Handle)

	CreateDescriptorSetLayout(desc DescriptorLayoutDesc) (Handle, error)
	DestroyDescriptorSetLayout(h Handle)
	CreateDescriptorPool(desc DescriptorPoolDesc) (Handle, error)
	DestroyDescriptorPool(h Handle)
	AllocateDescriptorSet(pool, layout Handle) (Handle, error)
	FreeDescriptorSet(pool, set Handle) error
	UpdateDescriptorSet(set Handle, writes []DescriptorWrite)

	CreatePipelineLayout(desc PipelineLayoutDesc) (Handle, error)
	DestroyPipelineLayout(h Handle)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Handle, error)
	DestroyPipeline(h Handle)

	CreateQueryPool(count uint32) (Handle, error)
	DestroyQueryPool(h Handle)
	// QueryResults returns raw timestamps, false when they are not available yet.
	QueryResults(pool Handle, first, count uint32) ([]uint64, bool, error)

	CreateFence(signaled bool) (Handle, error)
	WaitFence(h Handle, timeout uint64) error
	ResetFence(h Handle) error
	DestroyFence(h Handle)
	CreateSemaphore() (Handle, error)
	DestroySemaphore(h Handle)

	NewRecorder() (Recorder, error)
	FreeRecorder(r Recorder)
	// SubmitAndWait runs a finished recording and blocks until the queue is idle.
	SubmitAndWait(r Recorder) error
	// Submit queues r, waiting on wait at waitStage and signaling signal and fence.
	Submit(r Recorder, wait Handle, waitStage PipelineStage, signal, fence Handle) error

	// AcquireNextImage returns core.ErrFrameSkipped when no image is available this tick.
	AcquireNextImage(signal Handle) (SwapchainImage, error)
	Present(wait Handle, imageIndex uint32) error
	WaitIdle() error
}

type ImageBarrier struct {
	Image     Handle
	Depth     bool
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
}

type BufferBarrier struct {
	Buffer    Handle
	Offset    uint64
	Size      uint64
	SrcAccess Access
	DstAccess Access
}

type ClearValue struct {
	Color [4]float32
	Depth float32
}

type AttachmentDesc struct {
	Image  Handle
	Format Format
	Layout ImageLayout
	Load   LoadOp
	Clear  ClearValue
}

type RenderPassDesc struct {
	Extent Extent
	Colors []AttachmentDesc
	Depth  *AttachmentDesc
}

type BlitRegion struct {
	Src Rect
	Dst Rect
}

// Recorder records native commands into one command buffer.
type Recorder interface {
	Begin(oneTime bool) error
	End() error
	Reset() error

	PipelineBarrier(srcStage, dstStage PipelineStage, images []ImageBarrier, buffers []BufferBarrier)
	BeginRenderPass(desc RenderPassDesc)
	EndRenderPass()

	BindGraphicsPipeline(pipeline Handle)
	BindDescriptorSets(layout Handle, first uint32, sets []Handle)
	PushConstants(layout Handle, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Handle, offsets []uint64)
	BindIndexBuffer(buffer Handle, offset uint64, indexType IndexType)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)

	CopyBuffer(src, dst Handle, srcOffset, dstOffset, size uint64)
	CopyBufferToImage(src Handle, srcOffset uint64, dst Handle, layout ImageLayout, extent Extent)
	BlitImage(src Handle, srcLayout ImageLayout, dst Handle, dstLayout ImageLayout, region BlitRegion, filter Filter)

	ResetQueryPool(pool Handle, first, count uint32)
	WriteTimestamp(stage PipelineStage, pool Handle, query uint32)

	BeginLabel(name string)
	EndLabel()
}
