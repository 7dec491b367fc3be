package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := vkCheck("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait returns immediately for a fence already known to be signaled.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
		return fmt.Errorf("fence wait timed out after %dns", timeoutNs)
	default:
		err := fmt.Errorf("fence wait failed: %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return err
	}
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := vkCheck("vkResetFences", vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

func (d *Driver) CreateFence(signaled bool) (gpu.Handle, error) {
	f, err := NewFence(d.context, signaled)
	if err != nil {
		return gpu.NullHandle, err
	}
	return d.fences.put(d.handles.allocate(), f), nil
}

func (d *Driver) WaitFence(h gpu.Handle, timeout uint64) error {
	f, ok := d.fences.get(h)
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return f.FenceWait(d.context, timeout)
}

func (d *Driver) ResetFence(h gpu.Handle) error {
	f, ok := d.fences.get(h)
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return f.FenceReset(d.context)
}

func (d *Driver) DestroyFence(h gpu.Handle) {
	if f, ok := d.fences.take(h); ok {
		f.FenceDestroy(d.context)
	}
}

func (d *Driver) CreateSemaphore() (gpu.Handle, error) {
	var sem vk.Semaphore
	res := vk.CreateSemaphore(d.device(), &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, d.context.Allocator, &sem)
	if err := vkCheck("vkCreateSemaphore", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.semaphores.put(d.handles.allocate(), sem), nil
}

func (d *Driver) DestroySemaphore(h gpu.Handle) {
	if s, ok := d.semaphores.take(h); ok {
		vk.DestroySemaphore(d.device(), s, d.context.Allocator)
	}
}

func (d *Driver) semaphore(h gpu.Handle) vk.Semaphore {
	if s, ok := d.semaphores.get(h); ok {
		return s
	}
	return vk.NullSemaphore
}

// markSubmitted records that fence will be signaled by the queue.
func (d *Driver) markSubmitted(h gpu.Handle) vk.Fence {
	f, ok := d.fences.get(h)
	if !ok {
		return vk.NullFence
	}
	f.IsSignaled = false
	return f.Handle
}
