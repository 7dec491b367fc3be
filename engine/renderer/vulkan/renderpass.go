package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type attachmentKey struct {
	Format vk.Format
	Load   vk.AttachmentLoadOp
	Layout vk.ImageLayout
}

// renderpassKey identifies a compatible render pass. At most 8 color attachments.
type renderpassKey struct {
	Colors     [8]attachmentKey
	ColorCount int
	Depth      attachmentKey
	HasDepth   bool
}

type framebufferKey struct {
	Renderpass vk.RenderPass
	Views      [9]vk.ImageView
	Count      int
	Width      uint32
	Height     uint32
}

// renderpassCache keeps one VkRenderPass per attachment configuration and one
// VkFramebuffer per set of image views. Images never leave their attachment
// layout inside a pass: the recorder issues the transitions.
type renderpassCache struct {
	mu           sync.Mutex
	renderpasses map[renderpassKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

func newRenderpassCache() *renderpassCache {
	return &renderpassCache{
		renderpasses: make(map[renderpassKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
}

func (rc *renderpassCache) renderpass(context *VulkanContext, key renderpassKey) (vk.RenderPass, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rp, ok := rc.renderpasses[key]; ok {
		return rp, nil
	}

	attachments := make([]vk.AttachmentDescription, 0, key.ColorCount+1)
	colorRefs := make([]vk.AttachmentReference, 0, key.ColorCount)
	for i := 0; i < key.ColorCount; i++ {
		c := key.Colors[i]
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         c.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         c.Load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  c.Layout,
			FinalLayout:    c.Layout,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     c.Layout,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.HasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.Depth.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.Depth.Load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  key.Depth.Layout,
			FinalLayout:    key.Depth.Layout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.ColorCount),
			Layout:     key.Depth.Layout,
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var rp vk.RenderPass
	res := vk.CreateRenderPass(context.Device.LogicalDevice, &createInfo, context.Allocator, &rp)
	if err := vkCheck("vkCreateRenderPass", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	rc.renderpasses[key] = rp
	core.LogDebug("render pass created with %d color attachments, depth=%t", key.ColorCount, key.HasDepth)
	return rp, nil
}

func (rc *renderpassCache) framebuffer(context *VulkanContext, key framebufferKey) (vk.Framebuffer, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if fb, ok := rc.framebuffers[key]; ok {
		return fb, nil
	}
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(context.Device.LogicalDevice, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      key.Renderpass,
		AttachmentCount: uint32(key.Count),
		PAttachments:    key.Views[:key.Count],
		Width:           key.Width,
		Height:          key.Height,
		Layers:          1,
	}, context.Allocator, &fb)
	if err := vkCheck("vkCreateFramebuffer", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	rc.framebuffers[key] = fb
	return fb, nil
}

// forgetView destroys every framebuffer that uses view.
func (rc *renderpassCache) forgetView(context *VulkanContext, view vk.ImageView) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key, fb := range rc.framebuffers {
		for _, v := range key.Views[:key.Count] {
			if v == view {
				vk.DestroyFramebuffer(context.Device.LogicalDevice, fb, context.Allocator)
				delete(rc.framebuffers, key)
				break
			}
		}
	}
}

func (rc *renderpassCache) clearFramebuffers(context *VulkanContext) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key, fb := range rc.framebuffers {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, fb, context.Allocator)
		delete(rc.framebuffers, key)
	}
}

func (rc *renderpassCache) destroy(context *VulkanContext) {
	rc.clearFramebuffers(context)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key, rp := range rc.renderpasses {
		vk.DestroyRenderPass(context.Device.LogicalDevice, rp, context.Allocator)
		delete(rc.renderpasses, key)
	}
}

func attachmentKeyOf(a gpu.AttachmentDesc) attachmentKey {
	return attachmentKey{
		Format: vk.Format(a.Format),
		Load:   vk.AttachmentLoadOp(a.Load),
		Layout: vk.ImageLayout(a.Layout),
	}
}

func renderpassKeyOf(desc gpu.RenderPassDesc) (renderpassKey, error) {
	var key renderpassKey
	if len(desc.Colors) > len(key.Colors) {
		return key, fmt.Errorf("%w: %d color attachments", gpu.ErrUnsupported, len(desc.Colors))
	}
	for i, c := range desc.Colors {
		key.Colors[i] = attachmentKeyOf(c)
	}
	key.ColorCount = len(desc.Colors)
	if desc.Depth != nil {
		key.Depth = attachmentKeyOf(*desc.Depth)
		key.HasDepth = true
	}
	return key, nil
}

// pipelineRenderpassKey builds the key of a render pass compatible with a pipeline.
// Load ops and layouts do not affect compatibility.
func pipelineRenderpassKey(desc gpu.GraphicsPipelineDesc) (renderpassKey, error) {
	var key renderpassKey
	if len(desc.Colors) > len(key.Colors) {
		return key, fmt.Errorf("%w: %d color targets", gpu.ErrUnsupported, len(desc.Colors))
	}
	for i, c := range desc.Colors {
		key.Colors[i] = attachmentKey{
			Format: vk.Format(c.Format),
			Load:   vk.AttachmentLoadOpLoad,
			Layout: vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	key.ColorCount = len(desc.Colors)
	if desc.Depth != nil {
		key.Depth = attachmentKey{
			Format: vk.Format(desc.Depth.Format),
			Load:   vk.AttachmentLoadOpLoad,
			Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		key.HasDepth = true
	}
	return key, nil
}
