package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer records into a primary command buffer of the graphics pool.
// Validation of the call order happens one level up, in gpu.CommandBuffer.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	driver *Driver
}

var _ gpu.Recorder = (*VulkanCommandBuffer)(nil)

func NewVulkanCommandBuffer(driver *Driver, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	handles := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(driver.device(), &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}, handles)
	if err := vkCheck("vkAllocateCommandBuffers", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle: handles[0],
		State:  COMMAND_BUFFER_STATE_READY,
		driver: driver,
	}, nil
}

func (v *VulkanCommandBuffer) Free(pool vk.CommandPool) {
	if v.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(v.driver.device(), pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(oneTime bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := vkCheck("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := vkCheck("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := vkCheck("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) PipelineBarrier(srcStage, dstStage gpu.PipelineStage, images []gpu.ImageBarrier, buffers []gpu.BufferBarrier) {
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, b := range images {
		img, ok := v.driver.images.get(b.Image)
		if !ok {
			continue
		}
		aspect := vk.ImageAspectColorBit
		if b.Depth {
			aspect = aspectOf(img.Format)
		}
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		buf, ok := v.driver.buffers.get(b.Buffer)
		if !ok {
			continue
		}
		size := vk.DeviceSize(b.Size)
		if b.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf.Handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		})
	}
	if srcStage == gpu.StageNone {
		srcStage = gpu.StageTopOfPipe
	}
	if dstStage == gpu.StageNone {
		dstStage = gpu.StageBottomOfPipe
	}
	vk.CmdPipelineBarrier(v.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (v *VulkanCommandBuffer) BeginRenderPass(desc gpu.RenderPassDesc) {
	key, err := renderpassKeyOf(desc)
	if err != nil {
		core.LogError(err.Error())
		return
	}
	rp, err := v.driver.passes.renderpass(v.driver.context, key)
	if err != nil {
		return
	}

	fbKey := framebufferKey{
		Renderpass: rp,
		Width:      desc.Extent.Width,
		Height:     desc.Extent.Height,
	}
	clearValues := make([]vk.ClearValue, 0, len(desc.Colors)+1)
	for _, c := range desc.Colors {
		img, ok := v.driver.images.get(c.Image)
		if !ok {
			core.LogError("render pass color attachment %d is unknown", c.Image)
			return
		}
		fbKey.Views[fbKey.Count] = img.View
		fbKey.Count++
		var cv vk.ClearValue
		cv.SetColor(c.Clear.Color[:])
		clearValues = append(clearValues, cv)
	}
	if desc.Depth != nil {
		img, ok := v.driver.images.get(desc.Depth.Image)
		if !ok {
			core.LogError("render pass depth attachment %d is unknown", desc.Depth.Image)
			return
		}
		fbKey.Views[fbKey.Count] = img.View
		fbKey.Count++
		var cv vk.ClearValue
		cv.SetDepthStencil(desc.Depth.Clear.Depth, 0)
		clearValues = append(clearValues, cv)
	}
	fb, err := v.driver.passes.framebuffer(v.driver.context, fbKey)
	if err != nil {
		return
	}

	vk.CmdBeginRenderPass(v.Handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BindGraphicsPipeline(pipeline gpu.Handle) {
	if p, ok := v.driver.pipelines.get(pipeline); ok {
		vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, p)
	}
}

func (v *VulkanCommandBuffer) BindDescriptorSets(layout gpu.Handle, first uint32, sets []gpu.Handle) {
	l, ok := v.driver.pipelineLayouts.get(layout)
	if !ok || len(sets) == 0 {
		return
	}
	vkSets := make([]vk.DescriptorSet, 0, len(sets))
	for _, h := range sets {
		s, ok := v.driver.sets.get(h)
		if !ok {
			core.LogError("binding unknown descriptor set %d", h)
			return
		}
		vkSets = append(vkSets, s.Handle)
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, l.Handle,
		first, uint32(len(vkSets)), vkSets, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(layout gpu.Handle, offset uint32, data []byte) {
	l, ok := v.driver.pipelineLayouts.get(layout)
	if !ok || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(v.Handle, l.Handle, l.PushStage, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Handle, offsets []uint64) {
	vkBuffers := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, h := range buffers {
		b, ok := v.driver.buffers.get(h)
		if !ok {
			core.LogError("binding unknown vertex buffer %d", h)
			return
		}
		vkBuffers[i] = b.Handle
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, first, uint32(len(vkBuffers)), vkBuffers, vkOffsets)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer gpu.Handle, offset uint64, indexType gpu.IndexType) {
	if b, ok := v.driver.buffers.get(buffer); ok {
		vk.CmdBindIndexBuffer(v.Handle, b.Handle, vk.DeviceSize(offset), vk.IndexType(indexType))
	}
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) SetViewport(viewport gpu.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(scissor gpu.Rect) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: vk.Extent2D{Width: scissor.Width, Height: scissor.Height},
	}})
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst gpu.Handle, srcOffset, dstOffset, size uint64) {
	s, okSrc := v.driver.buffers.get(src)
	d, okDst := v.driver.buffers.get(dst)
	if !okSrc || !okDst {
		core.LogError("copy between unknown buffers %d -> %d", src, dst)
		return
	}
	vk.CmdCopyBuffer(v.Handle, s.Handle, d.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src gpu.Handle, srcOffset uint64, dst gpu.Handle, layout gpu.ImageLayout, extent gpu.Extent) {
	s, okSrc := v.driver.buffers.get(src)
	img, okDst := v.driver.images.get(dst)
	if !okSrc || !okDst {
		core.LogError("copy from buffer %d to unknown image %d", src, dst)
		return
	}
	vk.CmdCopyBufferToImage(v.Handle, s.Handle, img.Handle, vk.ImageLayout(layout), 1, []vk.BufferImageCopy{{
		BufferOffset: vk.DeviceSize(srcOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}})
}

func blitCorners(r gpu.Rect) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.X, Y: r.Y, Z: 0},
		{X: r.X + int32(r.Width), Y: r.Y + int32(r.Height), Z: 1},
	}
}

func (v *VulkanCommandBuffer) BlitImage(src gpu.Handle, srcLayout gpu.ImageLayout, dst gpu.Handle, dstLayout gpu.ImageLayout, region gpu.BlitRegion, filter gpu.Filter) {
	s, okSrc := v.driver.images.get(src)
	d, okDst := v.driver.images.get(dst)
	if !okSrc || !okDst {
		core.LogError("blit between unknown images %d -> %d", src, dst)
		return
	}
	subresource := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	vk.CmdBlitImage(v.Handle,
		s.Handle, vk.ImageLayout(srcLayout),
		d.Handle, vk.ImageLayout(dstLayout),
		1, []vk.ImageBlit{{
			SrcSubresource: subresource,
			SrcOffsets:     blitCorners(region.Src),
			DstSubresource: subresource,
			DstOffsets:     blitCorners(region.Dst),
		}},
		vk.Filter(filter))
}

func (v *VulkanCommandBuffer) ResetQueryPool(pool gpu.Handle, first, count uint32) {
	if p, ok := v.driver.queryPools.get(pool); ok {
		vk.CmdResetQueryPool(v.Handle, p, first, count)
	}
}

func (v *VulkanCommandBuffer) WriteTimestamp(stage gpu.PipelineStage, pool gpu.Handle, query uint32) {
	if p, ok := v.driver.queryPools.get(pool); ok {
		vk.CmdWriteTimestamp(v.Handle, vk.PipelineStageFlagBits(stage), p, query)
	}
}

// BeginLabel is a no-op unless VK_EXT_debug_marker is enabled.
func (v *VulkanCommandBuffer) BeginLabel(name string) {
	if !v.driver.context.debugMarkers {
		return
	}
	vk.CmdDebugMarkerBegin(v.Handle, &vk.DebugMarkerMarkerInfo{
		SType:       vk.StructureTypeDebugMarkerMarkerInfo,
		PMarkerName: VulkanSafeString(name),
		Color:       [4]float32{1, 1, 1, 1},
	})
}

func (v *VulkanCommandBuffer) EndLabel() {
	if v.driver.context.debugMarkers {
		vk.CmdDebugMarkerEnd(v.Handle)
	}
}

func (v *VulkanCommandBuffer) String() string {
	return fmt.Sprintf("VulkanCommandBuffer(state=%d)", v.State)
}
