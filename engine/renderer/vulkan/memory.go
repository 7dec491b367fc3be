package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type vulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Mapped []byte
}

type vulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Extent gpu.Extent
	// Swapchain images are owned by the swapchain.
	Swapchain bool
}

func memoryProperties(class gpu.MemoryClass) vk.MemoryPropertyFlagBits {
	if class == gpu.MemoryCPUToGPU {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

func (d *Driver) allocateMemory(requirements vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := d.context.FindMemoryIndex(requirements.MemoryTypeBits, props)
	if index < 0 {
		return nil, fmt.Errorf("no memory type with properties 0x%x", uint32(props))
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(d.device(), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}, d.context.Allocator, &memory)
	if err := vkCheck("vkAllocateMemory", res); err != nil {
		return nil, err
	}
	return memory, nil
}

func (d *Driver) CreateBuffer(desc gpu.BufferDesc) (gpu.Handle, error) {
	var buffer vk.Buffer
	res := vk.CreateBuffer(d.device(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, d.context.Allocator, &buffer)
	if err := vkCheck("vkCreateBuffer", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device(), buffer, &requirements)
	memory, err := d.allocateMemory(requirements, memoryProperties(desc.Memory))
	if err != nil {
		vk.DestroyBuffer(d.device(), buffer, d.context.Allocator)
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	if err := vkCheck("vkBindBufferMemory", vk.BindBufferMemory(d.device(), buffer, memory, 0)); err != nil {
		vk.FreeMemory(d.device(), memory, d.context.Allocator)
		vk.DestroyBuffer(d.device(), buffer, d.context.Allocator)
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.buffers.put(d.handles.allocate(), &vulkanBuffer{Handle: buffer, Memory: memory, Size: desc.Size}), nil
}

func (d *Driver) DestroyBuffer(h gpu.Handle) {
	b, ok := d.buffers.take(h)
	if !ok {
		return
	}
	if b.Mapped != nil {
		vk.UnmapMemory(d.device(), b.Memory)
	}
	vk.DestroyBuffer(d.device(), b.Handle, d.context.Allocator)
	vk.FreeMemory(d.device(), b.Memory, d.context.Allocator)
}

// MapBuffer maps the whole buffer. Memory is host coherent, so no flush is needed.
func (d *Driver) MapBuffer(h gpu.Handle) ([]byte, error) {
	b, ok := d.buffers.get(h)
	if !ok {
		return nil, fmt.Errorf("map of unknown buffer %d", h)
	}
	if b.Mapped != nil {
		return b.Mapped, nil
	}
	var ptr unsafe.Pointer
	res := vk.MapMemory(d.device(), b.Memory, 0, vk.DeviceSize(b.Size), 0, &ptr)
	if err := vkCheck("vkMapMemory", res); err != nil {
		return nil, err
	}
	b.Mapped = unsafe.Slice((*byte)(ptr), b.Size)
	return b.Mapped, nil
}

func (d *Driver) UnmapBuffer(h gpu.Handle) {
	b, ok := d.buffers.get(h)
	if !ok || b.Mapped == nil {
		return
	}
	vk.UnmapMemory(d.device(), b.Memory)
	b.Mapped = nil
}

func aspectOf(format vk.Format) vk.ImageAspectFlagBits {
	switch format {
	case vk.FormatD32Sfloat, vk.FormatD16Unorm:
		return vk.ImageAspectDepthBit
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	}
	return vk.ImageAspectColorBit
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	var view vk.ImageView
	res := vk.CreateImageView(context.Device.LogicalDevice, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, context.Allocator, &view)
	if err := vkCheck("vkCreateImageView", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (d *Driver) CreateImage(desc gpu.ImageDesc) (gpu.Handle, error) {
	format := vk.Format(desc.Format)
	var image vk.Image
	res := vk.CreateImage(d.device(), &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, d.context.Allocator, &image)
	if err := vkCheck("vkCreateImage", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device(), image, &requirements)
	memory, err := d.allocateMemory(requirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device(), image, d.context.Allocator)
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	if err := vkCheck("vkBindImageMemory", vk.BindImageMemory(d.device(), image, memory, 0)); err != nil {
		vk.FreeMemory(d.device(), memory, d.context.Allocator)
		vk.DestroyImage(d.device(), image, d.context.Allocator)
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}

	view, err := createImageView(d.context, image, format, aspectOf(format))
	if err != nil {
		vk.FreeMemory(d.device(), memory, d.context.Allocator)
		vk.DestroyImage(d.device(), image, d.context.Allocator)
		return gpu.NullHandle, err
	}
	return d.images.put(d.handles.allocate(), &vulkanImage{
		Handle: image,
		Memory: memory,
		View:   view,
		Format: format,
		Extent: desc.Extent,
	}), nil
}

func (d *Driver) DestroyImage(h gpu.Handle) {
	img, ok := d.images.get(h)
	if !ok || img.Swapchain {
		return
	}
	d.images.take(h)
	d.passes.forgetView(d.context, img.View)
	vk.DestroyImageView(d.device(), img.View, d.context.Allocator)
	vk.DestroyImage(d.device(), img.Handle, d.context.Allocator)
	vk.FreeMemory(d.device(), img.Memory, d.context.Allocator)
}

func (d *Driver) CreateSampler(desc gpu.SamplerDesc) (gpu.Handle, error) {
	limits := d.context.Device.Properties.Limits
	var sampler vk.Sampler
	res := vk.CreateSampler(d.device(), &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(desc.Mag),
		MinFilter:               vk.Filter(desc.Min),
		AddressModeU:            vk.SamplerAddressMode(desc.Address),
		AddressModeV:            vk.SamplerAddressMode(desc.Address),
		AddressModeW:            vk.SamplerAddressMode(desc.Address),
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           limits.MaxSamplerAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}, d.context.Allocator, &sampler)
	if err := vkCheck("vkCreateSampler", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.samplers.put(d.handles.allocate(), sampler), nil
}

func (d *Driver) DestroySampler(h gpu.Handle) {
	if s, ok := d.samplers.take(h); ok {
		vk.DestroySampler(d.device(), s, d.context.Allocator)
	}
}

// CreateAccelStruct is not available: the binding does not expose VK_KHR_acceleration_structure.
func (d *Driver) CreateAccelStruct(gpu.AccelStructDesc) (gpu.Handle, error) {
	return gpu.NullHandle, fmt.Errorf("%w: acceleration structures", gpu.ErrUnsupported)
}

func (d *Driver) DestroyAccelStruct(gpu.Handle) {}
