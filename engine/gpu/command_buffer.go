package gpu

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/core"
)

type CommandBufferState int

const (
	CommandBufferNotAllocated CommandBufferState = iota
	CommandBufferReady
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
)

var commandBufferStateNames = [...]string{
	CommandBufferNotAllocated:   "not_allocated",
	CommandBufferReady:          "ready",
	CommandBufferRecording:      "recording",
	CommandBufferInRenderPass:   "in_render_pass",
	CommandBufferRecordingEnded: "recording_ended",
	CommandBufferSubmitted:      "submitted",
}

func (s CommandBufferState) String() string {
	if int(s) < len(commandBufferStateNames) {
		return commandBufferStateNames[s]
	}
	return "unknown"
}

// Attachment is one render target of a render pass. The image must already be
// in an attachment layout.
type Attachment struct {
	Image *Image
	Load  LoadOp
	Clear ClearValue
}

// ClearColorAttachment clears img to the given color.
func ClearColorAttachment(img *Image, r, g, b, a float32) Attachment {
	return Attachment{Image: img, Load: LoadOpClear, Clear: ClearValue{Color: [4]float32{r, g, b, a}}}
}

// ClearDepthAttachment clears img to depth.
func ClearDepthAttachment(img *Image, depth float32) Attachment {
	return Attachment{Image: img, Load: LoadOpClear, Clear: ClearValue{Depth: depth}}
}

// LoadAttachment keeps the existing contents of img.
func LoadAttachment(img *Image) Attachment {
	return Attachment{Image: img, Load: LoadOpLoad}
}

/**
 * @brief Records commands for one native command buffer and tracks the state
 * needed to validate them: the bound pipeline, the render pass and image layouts.
 */
type CommandBuffer struct {
	ctx      *Context
	rec      Recorder
	state    CommandBufferState
	oneTime  bool
	hazards  bool
	pipeline *GraphicsPipeline
	extent   Extent
	groups   int

	drawCalls int
}

func newCommandBuffer(ctx *Context, rec Recorder, oneTime bool) *CommandBuffer {
	return &CommandBuffer{
		ctx:     ctx,
		rec:     rec,
		state:   CommandBufferReady,
		oneTime: oneTime,
		hazards: ctx.config.HazardTracking,
	}
}

func (cb *CommandBuffer) State() CommandBufferState {
	return cb.state
}

// Recorder exposes the native recorder for drivers that need it on submit.
func (cb *CommandBuffer) Recorder() Recorder {
	return cb.rec
}

// DrawCalls counts draws recorded since the last Begin.
func (cb *CommandBuffer) DrawCalls() int {
	return cb.drawCalls
}

// Pipeline is the currently bound pipeline, or nil.
func (cb *CommandBuffer) Pipeline() *GraphicsPipeline {
	return cb.pipeline
}

func (cb *CommandBuffer) expect(op string, states ...CommandBufferState) error {
	for _, s := range states {
		if cb.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s while %s", ErrInvalidCommandBufferState, op, cb.state)
}

func (cb *CommandBuffer) recording(op string) error {
	return cb.expect(op, CommandBufferRecording, CommandBufferInRenderPass)
}

func (cb *CommandBuffer) Begin() error {
	if err := cb.expect("begin", CommandBufferReady); err != nil {
		return err
	}
	if err := cb.rec.Begin(cb.oneTime); err != nil {
		err = fmt.Errorf("failed to begin command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.state = CommandBufferRecording
	cb.pipeline = nil
	cb.drawCalls = 0
	return nil
}

func (cb *CommandBuffer) End() error {
	if err := cb.expect("end", CommandBufferRecording); err != nil {
		return err
	}
	for ; cb.groups > 0; cb.groups-- {
		core.LogWarn("command buffer ended with an open debug group")
		cb.rec.EndLabel()
	}
	if err := cb.rec.End(); err != nil {
		err = fmt.Errorf("failed to end command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.state = CommandBufferRecordingEnded
	return nil
}

// Reset returns a submitted or finished command buffer to Ready. The caller
// must know the device is done with it.
func (cb *CommandBuffer) Reset() error {
	if cb.state == CommandBufferNotAllocated {
		return fmt.Errorf("%w: reset while %s", ErrInvalidCommandBufferState, cb.state)
	}
	if err := cb.rec.Reset(); err != nil {
		err = fmt.Errorf("failed to reset command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	cb.state = CommandBufferReady
	cb.pipeline = nil
	cb.groups = 0
	return nil
}

func (cb *CommandBuffer) MarkSubmitted() error {
	if err := cb.expect("submit", CommandBufferRecordingEnded); err != nil {
		return err
	}
	cb.state = CommandBufferSubmitted
	return nil
}

func (cb *CommandBuffer) free() {
	if cb.rec != nil {
		cb.ctx.driver.FreeRecorder(cb.rec)
		cb.rec = nil
	}
	cb.state = CommandBufferNotAllocated
}

func (cb *CommandBuffer) BindPipeline(p *GraphicsPipeline) error {
	if err := cb.recording("bind pipeline"); err != nil {
		return err
	}
	cb.rec.BindGraphicsPipeline(p.Handle)
	cb.pipeline = p
	return nil
}

// BindDescriptorSet binds set at index of the bound pipeline's layout.
func (cb *CommandBuffer) BindDescriptorSet(index uint32, set *DescriptorSet) error {
	if err := cb.recording("bind descriptor set"); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return fmt.Errorf("%w: bind descriptor set %d", ErrNoPipelineBound, index)
	}
	cb.rec.BindDescriptorSets(cb.pipeline.Layout.Handle, index, []Handle{set.Handle})
	return nil
}

func (cb *CommandBuffer) PushConstants(data []byte) error {
	if err := cb.recording("push constants"); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return fmt.Errorf("%w: push constants", ErrNoPipelineBound)
	}
	if size := cb.pipeline.Layout.PushConstantSize; uint32(len(data)) > size {
		return fmt.Errorf("%w: %d bytes of push constants, layout has %d", ErrOutOfBounds, len(data), size)
	}
	cb.rec.PushConstants(cb.pipeline.Layout.Handle, 0, data)
	return nil
}

func (cb *CommandBuffer) BindVertexBuffer(sub SubBuffer) error {
	if err := cb.recording("bind vertex buffer"); err != nil {
		return err
	}
	cb.rec.BindVertexBuffers(0, []Handle{sub.Buffer.Handle}, []uint64{sub.Offset})
	return nil
}

func (cb *CommandBuffer) BindIndexBuffer(sub SubBuffer, indexType IndexType) error {
	if err := cb.recording("bind index buffer"); err != nil {
		return err
	}
	cb.rec.BindIndexBuffer(sub.Buffer.Handle, sub.Offset, indexType)
	return nil
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount uint32) error {
	if err := cb.expect("draw", CommandBufferInRenderPass); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return fmt.Errorf("%w: draw", ErrNoPipelineBound)
	}
	cb.rec.Draw(vertexCount, instanceCount, 0, 0)
	cb.drawCalls++
	return nil
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32) error {
	if err := cb.expect("draw indexed", CommandBufferInRenderPass); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return fmt.Errorf("%w: draw indexed", ErrNoPipelineBound)
	}
	cb.rec.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, 0)
	cb.drawCalls++
	return nil
}

// SetViewport covers rect with depth [0, 1]. flipY uses a negative height so +Y points up.
func (cb *CommandBuffer) SetViewport(rect Rect, flipY bool) error {
	if err := cb.recording("set viewport"); err != nil {
		return err
	}
	vp := Viewport{
		X:        float32(rect.X),
		Y:        float32(rect.Y),
		Width:    float32(rect.Width),
		Height:   float32(rect.Height),
		MaxDepth: 1,
	}
	if flipY {
		vp.Y += vp.Height
		vp.Height = -vp.Height
	}
	cb.rec.SetViewport(vp)
	return nil
}

func (cb *CommandBuffer) SetScissor(rect Rect) error {
	if err := cb.recording("set scissor"); err != nil {
		return err
	}
	cb.rec.SetScissor(rect)
	return nil
}

func (cb *CommandBuffer) CopyBuffer(src, dst SubBuffer) error {
	if err := cb.expect("copy buffer", CommandBufferRecording); err != nil {
		return err
	}
	if src.Size != dst.Size {
		return fmt.Errorf("%w: %d -> %d", ErrCopySizeMismatch, src.Size, dst.Size)
	}
	if src.Size == 0 {
		return nil
	}
	cb.rec.CopyBuffer(src.Buffer.Handle, dst.Buffer.Handle, src.Offset, dst.Offset, src.Size)
	return nil
}

// CopyBufferToImage fills the whole image. dst must be in TransferDst or General layout.
func (cb *CommandBuffer) CopyBufferToImage(src SubBuffer, dst *Image) error {
	if err := cb.expect("copy buffer to image", CommandBufferRecording); err != nil {
		return err
	}
	if dst.Layout != LayoutTransferDst && dst.Layout != LayoutGeneral {
		return fmt.Errorf("copy into %s: image is in %s layout", dst.name, dst.Layout)
	}
	need := uint64(dst.Extent.Width) * uint64(dst.Extent.Height) * uint64(dst.Format.BytesPerPixel())
	if src.Size != need {
		return fmt.Errorf("%w: %d bytes for a %dx%d image", ErrCopySizeMismatch, src.Size, dst.Extent.Width, dst.Extent.Height)
	}
	cb.rec.CopyBufferToImage(src.Buffer.Handle, src.Offset, dst.Handle, dst.Layout, dst.Extent)
	dst.lastStage, dst.lastAccess = StageTransfer, AccessTransferWrite
	return nil
}

// BlitImage scales the whole of src onto the whole of dst.
func (cb *CommandBuffer) BlitImage(src, dst *Image, filter Filter) error {
	if err := cb.expect("blit image", CommandBufferRecording); err != nil {
		return err
	}
	region := BlitRegion{
		Src: Rect{Width: src.Extent.Width, Height: src.Extent.Height},
		Dst: Rect{Width: dst.Extent.Width, Height: dst.Extent.Height},
	}
	cb.rec.BlitImage(src.Handle, src.Layout, dst.Handle, dst.Layout, region, filter)
	dst.lastStage, dst.lastAccess = StageTransfer, AccessTransferWrite
	return nil
}

// TransitionImage records one barrier moving img from its tracked layout to
// newLayout and updates the tracked layout.
func (cb *CommandBuffer) TransitionImage(img *Image, newLayout ImageLayout, srcStage PipelineStage, srcAccess Access, dstStage PipelineStage, dstAccess Access) error {
	if err := cb.expect("transition image", CommandBufferRecording); err != nil {
		return err
	}
	if cb.hazards {
		if err := checkHazard(img, srcStage, srcAccess); err != nil {
			return err
		}
	}
	cb.rec.PipelineBarrier(srcStage, dstStage, []ImageBarrier{{
		Image:     img.Handle,
		Depth:     img.IsDepth(),
		OldLayout: img.Layout,
		NewLayout: newLayout,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
	}}, nil)
	img.Layout = newLayout
	img.lastStage, img.lastAccess = dstStage, dstAccess
	return nil
}

func checkHazard(img *Image, srcStage PipelineStage, srcAccess Access) error {
	if img.lastStage == StageNone {
		return nil
	}
	if srcStage&StageAllCommands == 0 && srcStage&img.lastStage != img.lastStage {
		return fmt.Errorf("%w: %s last used at stage %#x, barrier waits on %#x", ErrHazardMismatch, img.name, img.lastStage, srcStage)
	}
	writes := img.lastAccess.Writes()
	if srcAccess&AccessMemoryWrite == 0 && srcAccess&writes != writes {
		return fmt.Errorf("%w: %s last written with access %#x, barrier makes %#x available", ErrHazardMismatch, img.name, writes, srcAccess)
	}
	return nil
}

func (cb *CommandBuffer) BufferBarrier(sub SubBuffer, srcStage PipelineStage, srcAccess Access, dstStage PipelineStage, dstAccess Access) error {
	if err := cb.expect("buffer barrier", CommandBufferRecording); err != nil {
		return err
	}
	cb.rec.PipelineBarrier(srcStage, dstStage, nil, []BufferBarrier{{
		Buffer:    sub.Buffer.Handle,
		Offset:    sub.Offset,
		Size:      sub.Size,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
	}})
	return nil
}

// BeginRenderPass starts rendering into attachments. At most one may be a depth
// image; render area, viewport and scissor come from the first attachment.
func (cb *CommandBuffer) BeginRenderPass(attachments ...Attachment) error {
	if err := cb.expect("begin render pass", CommandBufferRecording); err != nil {
		return err
	}
	if len(attachments) == 0 {
		return ErrNoAttachments
	}

	desc := RenderPassDesc{Extent: attachments[0].Image.Extent}
	for _, a := range attachments {
		img := a.Image
		att := AttachmentDesc{
			Image:  img.Handle,
			Format: img.Format,
			Layout: img.Layout,
			Load:   a.Load,
			Clear:  a.Clear,
		}
		if img.IsDepth() {
			if desc.Depth != nil {
				return ErrMultipleDepthAttachments
			}
			if img.Layout != LayoutDepthStencilAttachment && img.Layout != LayoutGeneral {
				return fmt.Errorf("%w: %s is %s", ErrAttachmentLayout, img.name, img.Layout)
			}
			desc.Depth = &att
			continue
		}
		if img.Layout != LayoutColorAttachment && img.Layout != LayoutGeneral {
			return fmt.Errorf("%w: %s is %s", ErrAttachmentLayout, img.name, img.Layout)
		}
		desc.Colors = append(desc.Colors, att)
	}

	cb.rec.BeginRenderPass(desc)
	cb.state = CommandBufferInRenderPass
	cb.extent = desc.Extent

	full := Rect{Width: desc.Extent.Width, Height: desc.Extent.Height}
	cb.rec.SetViewport(Viewport{Width: float32(full.Width), Height: float32(full.Height), MaxDepth: 1})
	cb.rec.SetScissor(full)

	for _, a := range attachments {
		if a.Image.IsDepth() {
			a.Image.lastStage = StageEarlyFragmentTests | StageLateFragmentTests
			a.Image.lastAccess = AccessDepthStencilRead | AccessDepthStencilWrite
			continue
		}
		a.Image.lastStage = StageColorAttachmentOutput
		a.Image.lastAccess = AccessColorAttachmentWrite
		if a.Load == LoadOpLoad {
			a.Image.lastAccess |= AccessColorAttachmentRead
		}
	}
	return nil
}

func (cb *CommandBuffer) EndRenderPass() error {
	if err := cb.expect("end render pass", CommandBufferInRenderPass); err != nil {
		return err
	}
	cb.rec.EndRenderPass()
	cb.state = CommandBufferRecording
	cb.extent = Extent{}
	return nil
}

// RenderExtent is the extent of the active render pass.
func (cb *CommandBuffer) RenderExtent() Extent {
	return cb.extent
}

// BeginGroup opens a named debug region visible in GPU debuggers.
func (cb *CommandBuffer) BeginGroup(name string) {
	if cb.recording("begin group") != nil {
		return
	}
	cb.rec.BeginLabel(name)
	cb.groups++
}

func (cb *CommandBuffer) EndGroup() {
	if cb.groups == 0 || cb.recording("end group") != nil {
		return
	}
	cb.rec.EndLabel()
	cb.groups--
}

// BeginQuery starts a named timestamp pair, ended by EndQuery.
func (cb *CommandBuffer) BeginQuery(name string) error {
	if err := cb.recording("begin query"); err != nil {
		return err
	}
	if cb.ctx.Queries == nil {
		return nil
	}
	return cb.ctx.Queries.begin(cb, name)
}

func (cb *CommandBuffer) EndQuery() error {
	if err := cb.recording("end query"); err != nil {
		return err
	}
	if cb.ctx.Queries == nil {
		return nil
	}
	return cb.ctx.Queries.end(cb)
}
