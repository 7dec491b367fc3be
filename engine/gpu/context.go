package gpu

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/core"
)

type Config struct {
	FrameAllocatorSize uint64
	DescriptorPoolSize uint32
	// RuntimeArrayCount sizes unbounded descriptor arrays, usually the texture array capacity.
	RuntimeArrayCount uint32
	MaxQueries        uint32
	HazardTracking    bool
}

func ConfigFromRenderer(rc core.RendererConfig) Config {
	return Config{
		FrameAllocatorSize: rc.FrameAllocatorSize,
		DescriptorPoolSize: rc.DescriptorPoolSize,
		RuntimeArrayCount:  rc.TextureArrayCapacity,
		MaxQueries:         rc.MaxQueries,
		HazardTracking:     rc.HazardTracking,
	}
}

/**
 * @brief Context owns the driver and every manager built on top of it. All
 * resources are created and destroyed through it, so caches that point at a
 * resource hear about its destruction before the native object goes away.
 */
type Context struct {
	driver Driver
	config Config

	Descriptors *DescriptorManager
	Pipelines   *PipelineManager
	Frame       *FrameAllocator
	Queries     *QueryManager

	nextID           uint64
	samplers         map[SamplerDesc]*Sampler
	destroyListeners []func(Resource)

	swapchainImages     map[Handle]*Image
	swapchainGeneration uint64
	sync                *FrameSync
}

func NewContext(driver Driver, config Config) (*Context, error) {
	if config.RuntimeArrayCount == 0 {
		config.RuntimeArrayCount = 128
	}
	ctx := &Context{
		driver:          driver,
		config:          config,
		samplers:        make(map[SamplerDesc]*Sampler),
		swapchainImages: make(map[Handle]*Image),
	}

	descriptors, err := NewDescriptorManager(driver, config.DescriptorPoolSize)
	if err != nil {
		return nil, err
	}
	ctx.Descriptors = descriptors
	ctx.destroyListeners = append(ctx.destroyListeners, descriptors.OnDestroyResource)
	ctx.Pipelines = NewPipelineManager(driver, descriptors, config.RuntimeArrayCount)

	if ctx.Frame, err = NewFrameAllocator(ctx, config.FrameAllocatorSize); err != nil {
		ctx.Destroy()
		return nil, err
	}
	if config.MaxQueries > 0 {
		if ctx.Queries, err = NewQueryManager(driver, config.MaxQueries); err != nil {
			ctx.Destroy()
			return nil, err
		}
	}
	if ctx.sync, err = newFrameSync(driver); err != nil {
		ctx.Destroy()
		return nil, err
	}
	core.LogInfo("gpu context created (frame allocator %d bytes, descriptor pool %d)", config.FrameAllocatorSize, config.DescriptorPoolSize)
	return ctx, nil
}

func (c *Context) Driver() Driver {
	return c.driver
}

func (c *Context) Config() Config {
	return c.config
}

// OnDestroy registers fn to run before any resource is released. Listeners run
// in registration order; the descriptor manager is always first.
func (c *Context) OnDestroy(fn func(Resource)) {
	c.destroyListeners = append(c.destroyListeners, fn)
}

func (c *Context) newResource(name string) resource {
	c.nextID++
	return resource{id: c.nextID, name: name}
}

func (c *Context) notifyDestroy(r Resource) {
	for _, fn := range c.destroyListeners {
		fn(r)
	}
}

func (c *Context) CreateBuffer(size uint64, usage BufferUsage, memory MemoryClass) (*Buffer, error) {
	handle, err := c.driver.CreateBuffer(BufferDesc{Size: size, Usage: usage, Memory: memory})
	if err != nil {
		err = fmt.Errorf("failed to create %s buffer of %d bytes: %w", memory, size, err)
		core.LogError(err.Error())
		return nil, err
	}
	b := &Buffer{
		resource: c.newResource("buffer"),
		Handle:   handle,
		Size:     size,
		Usage:    usage,
		Memory:   memory,
		ctx:      c,
	}
	return b, nil
}

// CreateStaticBuffer creates a GPU only buffer holding data, uploaded through a
// temporary staging buffer.
func (c *Context) CreateStaticBuffer(usage BufferUsage, data []byte) (*Buffer, error) {
	size := uint64(len(data))
	buffer, err := c.CreateBuffer(size, usage|BufferUsageTransferDst, MemoryGPUOnly)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return buffer, nil
	}
	staging, err := c.CreateBuffer(size, BufferUsageTransferSrc, MemoryCPUToGPU)
	if err != nil {
		c.DestroyBuffer(buffer)
		return nil, err
	}
	defer c.DestroyBuffer(staging)

	if err := staging.Write(0, data); err != nil {
		c.DestroyBuffer(buffer)
		return nil, err
	}
	if err := c.Run(func(cb *CommandBuffer) error {
		return cb.CopyBuffer(staging.All(), buffer.All())
	}); err != nil {
		c.DestroyBuffer(buffer)
		return nil, err
	}
	return buffer, nil
}

func (c *Context) CreateImage(extent Extent, usage ImageUsage, format Format) (*Image, error) {
	handle, err := c.driver.CreateImage(ImageDesc{Extent: extent, Format: format, Usage: usage})
	if err != nil {
		err = fmt.Errorf("failed to create %dx%d image: %w", extent.Width, extent.Height, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &Image{
		resource: c.newResource("image"),
		Handle:   handle,
		Extent:   extent,
		Format:   format,
		Usage:    usage,
		Layout:   LayoutUndefined,
	}, nil
}

// UploadImage fills img with tightly packed pixels and leaves it shader readable.
func (c *Context) UploadImage(img *Image, pixels []byte) error {
	staging, err := c.CreateBuffer(uint64(len(pixels)), BufferUsageTransferSrc, MemoryCPUToGPU)
	if err != nil {
		return err
	}
	defer c.DestroyBuffer(staging)
	if err := staging.Write(0, pixels); err != nil {
		return err
	}
	return c.Run(func(cb *CommandBuffer) error {
		if err := cb.TransitionImage(img, LayoutTransferDst,
			StageTopOfPipe, AccessNone, StageTransfer, AccessTransferWrite); err != nil {
			return err
		}
		if err := cb.CopyBufferToImage(staging.All(), img); err != nil {
			return err
		}
		return cb.TransitionImage(img, LayoutShaderReadOnly,
			StageTransfer, AccessTransferWrite, StageFragmentShader, AccessShaderRead)
	})
}

// CreateSampler returns the shared sampler for the given parameters.
func (c *Context) CreateSampler(mag, minFilter Filter, address AddressMode) (*Sampler, error) {
	desc := SamplerDesc{Mag: mag, Min: minFilter, Address: address}
	if s, ok := c.samplers[desc]; ok {
		return s, nil
	}
	handle, err := c.driver.CreateSampler(desc)
	if err != nil {
		err = fmt.Errorf("failed to create sampler: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	s := &Sampler{resource: c.newResource("sampler"), Handle: handle, Desc: desc}
	c.samplers[desc] = s
	return s, nil
}

func (c *Context) CreateAccelStruct(size uint64) (*AccelStruct, error) {
	handle, err := c.driver.CreateAccelStruct(AccelStructDesc{Size: size})
	if err != nil {
		err = fmt.Errorf("failed to create acceleration structure: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return &AccelStruct{resource: c.newResource("accel"), Handle: handle, Size: size}, nil
}

func (c *Context) DestroyBuffer(b *Buffer) {
	if b == nil || b.Handle == NullHandle {
		return
	}
	c.notifyDestroy(b)
	b.Unmap()
	c.driver.DestroyBuffer(b.Handle)
	b.Handle = NullHandle
}

func (c *Context) DestroyImage(img *Image) {
	if img == nil || img.Handle == NullHandle || img.swapchain {
		return
	}
	c.notifyDestroy(img)
	c.driver.DestroyImage(img.Handle)
	img.Handle = NullHandle
}

func (c *Context) DestroySampler(s *Sampler) {
	if s == nil || s.Handle == NullHandle {
		return
	}
	c.notifyDestroy(s)
	delete(c.samplers, s.Desc)
	c.driver.DestroySampler(s.Handle)
	s.Handle = NullHandle
}

func (c *Context) DestroyAccelStruct(a *AccelStruct) {
	if a == nil || a.Handle == NullHandle {
		return
	}
	c.notifyDestroy(a)
	c.driver.DestroyAccelStruct(a.Handle)
	a.Handle = NullHandle
}

// NewCommandBuffer allocates a reusable command buffer.
func (c *Context) NewCommandBuffer() (*CommandBuffer, error) {
	rec, err := c.driver.NewRecorder()
	if err != nil {
		err = fmt.Errorf("failed to allocate command buffer: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return newCommandBuffer(c, rec, false), nil
}

// FreeCommandBuffer releases cb. It must not be in flight.
func (c *Context) FreeCommandBuffer(cb *CommandBuffer) {
	cb.free()
}

// Run records fn into a one shot command buffer, submits it and waits for it.
func (c *Context) Run(fn func(cb *CommandBuffer) error) error {
	rec, err := c.driver.NewRecorder()
	if err != nil {
		err = fmt.Errorf("failed to allocate one shot command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb := newCommandBuffer(c, rec, true)
	defer cb.free()

	if err := cb.Begin(); err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	if err := c.driver.SubmitAndWait(rec); err != nil {
		err = fmt.Errorf("one shot submit failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	return cb.MarkSubmitted()
}

// NewFrame resets per frame allocations. Only call it after the fence wait.
func (c *Context) NewFrame() {
	c.Frame.NewFrame()
}

func (c *Context) WaitIdle() error {
	return c.driver.WaitIdle()
}

func (c *Context) Destroy() {
	if err := c.driver.WaitIdle(); err != nil {
		core.LogWarn("wait idle before destroy failed: %s", err.Error())
	}
	if c.sync != nil {
		c.sync.destroy(c.driver)
		c.sync = nil
	}
	if c.Queries != nil {
		c.Queries.Destroy()
		c.Queries = nil
	}
	if c.Frame != nil {
		c.Frame.destroy(c)
		c.Frame = nil
	}
	for _, s := range c.samplers {
		c.DestroySampler(s)
	}
	if c.Pipelines != nil {
		c.Pipelines.Destroy()
	}
	if c.Descriptors != nil {
		c.Descriptors.Destroy()
	}
	c.swapchainImages = make(map[Handle]*Image)
}
