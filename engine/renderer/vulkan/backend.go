package vulkan

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/platform"
)

// Driver is the Vulkan implementation of gpu.Driver.
type Driver struct {
	platform *platform.Platform
	config   core.RendererConfig
	context  *VulkanContext
	locks    *VulkanLockPool

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32
	// swapchainGeneration survives a swapchain that was dropped on a zero-sized surface.
	swapchainGeneration uint64

	handles         *handleSource
	buffers         *registry[*vulkanBuffer]
	images          *registry[*vulkanImage]
	samplers        *registry[vk.Sampler]
	setLayouts      *registry[vk.DescriptorSetLayout]
	pools           *registry[vk.DescriptorPool]
	sets            *registry[*vulkanDescriptorSet]
	pipelineLayouts *registry[*vulkanPipelineLayout]
	pipelines       *registry[vk.Pipeline]
	queryPools      *registry[vk.QueryPool]
	fences          *registry[*VulkanFence]
	semaphores      *registry[vk.Semaphore]
	passes          *renderpassCache
}

var _ gpu.Driver = (*Driver)(nil)

func New(p *platform.Platform, config core.RendererConfig) *Driver {
	return &Driver{
		platform: p,
		config:   config,
		context: &VulkanContext{
			Allocator: nil,
			VSync:     config.VSync,
		},
		locks:           NewVulkanLockPool(),
		handles:         &handleSource{},
		buffers:         newRegistry[*vulkanBuffer](),
		images:          newRegistry[*vulkanImage](),
		samplers:        newRegistry[vk.Sampler](),
		setLayouts:      newRegistry[vk.DescriptorSetLayout](),
		pools:           newRegistry[vk.DescriptorPool](),
		sets:            newRegistry[*vulkanDescriptorSet](),
		pipelineLayouts: newRegistry[*vulkanPipelineLayout](),
		pipelines:       newRegistry[vk.Pipeline](),
		queryPools:      newRegistry[vk.QueryPool](),
		fences:          newRegistry[*VulkanFence](),
		semaphores:      newRegistry[vk.Semaphore](),
		passes:          newRenderpassCache(),
	}
}

func (d *Driver) device() vk.Device {
	return d.context.Device.LogicalDevice
}

func (d *Driver) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogFatal(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogFatal("failed to initialize vk: %s", err)
		return err
	}

	d.context.FramebufferWidth = appWidth
	d.context.FramebufferHeight = appHeight

	if err := d.createInstance(appName); err != nil {
		return err
	}

	if d.config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := d.platform.CreateSurface(d.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		return err
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(d.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}
	d.locks.SetQueueFamily(uint32(d.context.Device.GraphicsQueueIndex))
	d.locks.SetQueueFamily(uint32(d.context.Device.PresentQueueIndex))

	sc, err := SwapchainCreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
	if err != nil {
		return err
	}
	d.context.Swapchain = sc
	d.registerSwapchainImages()

	d.platform.OnResize(func(width, height uint32) {
		d.Resized(width, height)
	})

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (d *Driver) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Abyss Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	for _, ext := range d.platform.GetRequiredExtensionNames() {
		if ext != "VK_KHR_surface" {
			requiredExtensions = append(requiredExtensions, ext)
		}
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if d.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(layers); err != nil {
			core.LogError(err.Error())
			return err
		}
		core.LogInfo("Validation layers enabled.")
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if err := vkCheck("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := vkCheck("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	names := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		names[string(available[i].LayerName[:end])] = true
	}
	for _, layer := range required {
		if !names[layer] {
			return fmt.Errorf("required validation layer is missing: %s", layer)
		}
	}
	return nil
}

func (d *Driver) Shutdown() error {
	if d.context.Device == nil {
		return nil
	}
	vk.DeviceWaitIdle(d.device())

	d.passes.destroy(d.context)
	d.unregisterSwapchainImages()
	if d.context.Swapchain != nil {
		d.context.Swapchain.SwapchainDestroy(d.context)
		d.context.Swapchain = nil
	}

	// Objects the engine leaked are reported and released.
	if n := d.buffers.len() + d.images.len() + d.pipelines.len(); n > 0 {
		core.LogWarn("%d buffers, images or pipelines still alive at shutdown", n)
	}
	d.releaseAll()

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(d.context)

	core.LogDebug("Destroying Vulkan surface...")
	if d.context.Surface != vk.NullSurface {
		vk.DestroySurface(d.context.Instance, d.context.Surface, d.context.Allocator)
		d.context.Surface = vk.NullSurface
	}

	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(d.context.Instance, d.context.Allocator)
	return nil
}

func (d *Driver) releaseAll() {
	var handles []gpu.Handle
	collect := func(h gpu.Handle) { handles = append(handles, h) }

	d.pipelines.each(func(h gpu.Handle, _ vk.Pipeline) { collect(h) })
	for _, h := range handles {
		d.DestroyPipeline(h)
	}
	handles = handles[:0]
	d.pipelineLayouts.each(func(h gpu.Handle, _ *vulkanPipelineLayout) { collect(h) })
	for _, h := range handles {
		d.DestroyPipelineLayout(h)
	}
	handles = handles[:0]
	d.pools.each(func(h gpu.Handle, _ vk.DescriptorPool) { collect(h) })
	for _, h := range handles {
		d.DestroyDescriptorPool(h)
	}
	handles = handles[:0]
	d.setLayouts.each(func(h gpu.Handle, _ vk.DescriptorSetLayout) { collect(h) })
	for _, h := range handles {
		d.DestroyDescriptorSetLayout(h)
	}
	handles = handles[:0]
	d.images.each(func(h gpu.Handle, _ *vulkanImage) { collect(h) })
	for _, h := range handles {
		d.DestroyImage(h)
	}
	handles = handles[:0]
	d.buffers.each(func(h gpu.Handle, _ *vulkanBuffer) { collect(h) })
	for _, h := range handles {
		d.DestroyBuffer(h)
	}
	handles = handles[:0]
	d.samplers.each(func(h gpu.Handle, _ vk.Sampler) { collect(h) })
	for _, h := range handles {
		d.DestroySampler(h)
	}
	handles = handles[:0]
	d.queryPools.each(func(h gpu.Handle, _ vk.QueryPool) { collect(h) })
	for _, h := range handles {
		d.DestroyQueryPool(h)
	}
	handles = handles[:0]
	d.fences.each(func(h gpu.Handle, _ *VulkanFence) { collect(h) })
	for _, h := range handles {
		d.DestroyFence(h)
	}
	handles = handles[:0]
	d.semaphores.each(func(h gpu.Handle, _ vk.Semaphore) { collect(h) })
	for _, h := range handles {
		d.DestroySemaphore(h)
	}
}

// Resized bumps the framebuffer size generation. The swapchain is recreated before the next acquire.
func (d *Driver) Resized(width, height uint32) {
	d.cachedFramebufferWidth = width
	d.cachedFramebufferHeight = height
	d.context.FramebufferSizeGeneration++
	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, d.context.FramebufferSizeGeneration)
}

func (d *Driver) Limits() gpu.Limits {
	limits := d.context.Device.Properties.Limits
	return gpu.Limits{
		MinUniformOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MinStorageOffsetAlignment: uint64(limits.MinStorageBufferOffsetAlignment),
		TimestampPeriod:           limits.TimestampPeriod,
	}
}

func (d *Driver) registerSwapchainImages() {
	sc := d.context.Swapchain
	d.swapchainGeneration++
	sc.Generation = d.swapchainGeneration
	extent := gpu.Extent{Width: sc.Extent.Width, Height: sc.Extent.Height}
	sc.Handles = make([]gpu.Handle, len(sc.Images))
	for i := range sc.Images {
		sc.Handles[i] = d.images.put(d.handles.allocate(), &vulkanImage{
			Handle:    sc.Images[i],
			View:      sc.Views[i],
			Format:    sc.ImageFormat.Format,
			Extent:    extent,
			Swapchain: true,
		})
	}
}

func (d *Driver) unregisterSwapchainImages() {
	if d.context.Swapchain == nil {
		return
	}
	for _, h := range d.context.Swapchain.Handles {
		d.images.take(h)
	}
	d.context.Swapchain.Handles = nil
}

func (d *Driver) recreateSwapchain() error {
	return d.locks.SafeCall(SwapchainManagement, func() error {
		if d.cachedFramebufferWidth != 0 && d.cachedFramebufferHeight != 0 {
			d.context.FramebufferWidth = d.cachedFramebufferWidth
			d.context.FramebufferHeight = d.cachedFramebufferHeight
		}
		if d.context.FramebufferWidth == 0 || d.context.FramebufferHeight == 0 {
			core.LogDebug("recreate swapchain called when window is < 1 in a dimension. Booting.")
			return core.ErrFrameSkipped
		}

		d.passes.clearFramebuffers(d.context)
		d.unregisterSwapchainImages()
		sc, err := d.context.Swapchain.SwapchainRecreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
		if err != nil {
			d.context.Swapchain = nil
			if errors.Is(err, core.ErrSwapchainBooting) {
				return core.ErrFrameSkipped
			}
			return err
		}
		d.context.Swapchain = sc
		d.registerSwapchainImages()
		d.context.FramebufferSizeLastGeneration = d.context.FramebufferSizeGeneration
		d.cachedFramebufferWidth = 0
		d.cachedFramebufferHeight = 0
		return nil
	})
}

func (d *Driver) AcquireNextImage(signal gpu.Handle) (gpu.SwapchainImage, error) {
	if d.context.Swapchain == nil {
		// A previous recreation booted on a zero-sized surface.
		if err := DeviceQuerySwapchainSupport(d.context.Device.PhysicalDevice, d.context.Surface, d.context.Device.SwapchainSupport); err != nil {
			return gpu.SwapchainImage{}, err
		}
		sc, err := SwapchainCreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
		if err != nil {
			return gpu.SwapchainImage{}, core.ErrFrameSkipped
		}
		d.context.Swapchain = sc
		d.registerSwapchainImages()
		d.context.FramebufferSizeLastGeneration = d.context.FramebufferSizeGeneration
	}
	if d.context.FramebufferSizeGeneration != d.context.FramebufferSizeLastGeneration {
		if err := d.recreateSwapchain(); err != nil {
			return gpu.SwapchainImage{}, err
		}
	}

	sc := d.context.Swapchain
	index, err := sc.SwapchainAcquireNextImageIndex(d.context, math.MaxUint64, d.semaphore(signal))
	if err != nil {
		return gpu.SwapchainImage{}, err
	}
	return gpu.SwapchainImage{
		Index:      index,
		Image:      sc.Handles[index],
		Extent:     gpu.Extent{Width: sc.Extent.Width, Height: sc.Extent.Height},
		Format:     gpu.Format(sc.ImageFormat.Format),
		Generation: sc.Generation,
	}, nil
}

func (d *Driver) Present(wait gpu.Handle, imageIndex uint32) error {
	if d.context.Swapchain == nil {
		return core.ErrFrameSkipped
	}
	return d.locks.SafeQueueCall(uint32(d.context.Device.PresentQueueIndex), func() error {
		return d.context.Swapchain.SwapchainPresent(d.context, d.context.Device.PresentQueue, d.semaphore(wait), imageIndex)
	})
}

func (d *Driver) NewRecorder() (gpu.Recorder, error) {
	return NewVulkanCommandBuffer(d, d.context.Device.GraphicsCommandPool)
}

func (d *Driver) FreeRecorder(r gpu.Recorder) {
	if cb, ok := r.(*VulkanCommandBuffer); ok {
		cb.Free(d.context.Device.GraphicsCommandPool)
	}
}

func (d *Driver) Submit(r gpu.Recorder, wait gpu.Handle, waitStage gpu.PipelineStage, signal, fence gpu.Handle) error {
	cb, ok := r.(*VulkanCommandBuffer)
	if !ok {
		return fmt.Errorf("recorder %T does not belong to the Vulkan driver", r)
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if sem := d.semaphore(wait); sem != vk.NullSemaphore {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{sem}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(waitStage)}
	}
	if sem := d.semaphore(signal); sem != vk.NullSemaphore {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{sem}
	}
	vkFence := d.markSubmitted(fence)

	return d.locks.SafeQueueCall(uint32(d.context.Device.GraphicsQueueIndex), func() error {
		res := vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence)
		if err := vkCheck("vkQueueSubmit", res); err != nil {
			core.LogError(err.Error())
			return err
		}
		cb.State = COMMAND_BUFFER_STATE_SUBMITTED
		return nil
	})
}

func (d *Driver) SubmitAndWait(r gpu.Recorder) error {
	if err := d.Submit(r, gpu.NullHandle, gpu.StageNone, gpu.NullHandle, gpu.NullHandle); err != nil {
		return err
	}
	return d.locks.SafeQueueCall(uint32(d.context.Device.GraphicsQueueIndex), func() error {
		return vkCheck("vkQueueWaitIdle", vk.QueueWaitIdle(d.context.Device.GraphicsQueue))
	})
}

func (d *Driver) WaitIdle() error {
	return vkCheck("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device()))
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
