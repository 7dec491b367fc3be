package gputest

import "github.com/spaghettifunk/abyss/engine/gpu"

const (
	OpBarrier           = "barrier"
	OpBeginRenderPass   = "begin_render_pass"
	OpEndRenderPass     = "end_render_pass"
	OpBindPipeline      = "bind_pipeline"
	OpBindSets          = "bind_sets"
	OpPushConstants     = "push_constants"
	OpBindVertexBuffers = "bind_vertex_buffers"
	OpBindIndexBuffer   = "bind_index_buffer"
	OpDraw              = "draw"
	OpDrawIndexed       = "draw_indexed"
	OpSetViewport       = "set_viewport"
	OpSetScissor        = "set_scissor"
	OpCopyBuffer        = "copy_buffer"
	OpCopyBufferToImage = "copy_buffer_to_image"
	OpBlitImage         = "blit_image"
	OpResetQueries      = "reset_queries"
	OpTimestamp         = "timestamp"
	OpBeginLabel        = "begin_label"
	OpEndLabel          = "end_label"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op string

	SrcStage       gpu.PipelineStage
	DstStage       gpu.PipelineStage
	ImageBarriers  []gpu.ImageBarrier
	BufferBarriers []gpu.BufferBarrier

	RenderPass gpu.RenderPassDesc
	Pipeline   gpu.Handle
	Layout     gpu.Handle
	First      uint32
	Handles    []gpu.Handle
	Offsets    []uint64
	Data       []byte
	IndexType  gpu.IndexType

	Count        uint32
	Instances    uint32
	FirstIndex   uint32
	VertexOffset int32
	Viewport     gpu.Viewport
	Scissor      gpu.Rect
	Src, Dst     gpu.Handle
	SrcOffset    uint64
	DstOffset    uint64
	Size         uint64
	ImageLayout  gpu.ImageLayout
	Extent       gpu.Extent
	Filter       gpu.Filter
	Label        string
}

// Recorder is a gpu.Recorder that keeps every command in order.
type Recorder struct {
	Commands []Command
	Begun    bool
	Ended    bool
	OneTime  bool
	Resets   int
	Freed    bool
}

var _ gpu.Recorder = (*Recorder)(nil)

func (r *Recorder) add(c Command) {
	r.Commands = append(r.Commands, c)
}

func (r *Recorder) Begin(oneTime bool) error {
	r.Begun, r.Ended, r.OneTime = true, false, oneTime
	return nil
}

func (r *Recorder) End() error {
	r.Ended = true
	return nil
}

func (r *Recorder) Reset() error {
	r.Commands = nil
	r.Begun, r.Ended = false, false
	r.Resets++
	return nil
}

func (r *Recorder) PipelineBarrier(srcStage, dstStage gpu.PipelineStage, images []gpu.ImageBarrier, buffers []gpu.BufferBarrier) {
	r.add(Command{
		Op:             OpBarrier,
		SrcStage:       srcStage,
		DstStage:       dstStage,
		ImageBarriers:  append([]gpu.ImageBarrier(nil), images...),
		BufferBarriers: append([]gpu.BufferBarrier(nil), buffers...),
	})
}

func (r *Recorder) BeginRenderPass(desc gpu.RenderPassDesc) {
	desc.Colors = append([]gpu.AttachmentDesc(nil), desc.Colors...)
	if desc.Depth != nil {
		depth := *desc.Depth
		desc.Depth = &depth
	}
	r.add(Command{Op: OpBeginRenderPass, RenderPass: desc})
}

func (r *Recorder) EndRenderPass() {
	r.add(Command{Op: OpEndRenderPass})
}

func (r *Recorder) BindGraphicsPipeline(pipeline gpu.Handle) {
	r.add(Command{Op: OpBindPipeline, Pipeline: pipeline})
}

func (r *Recorder) BindDescriptorSets(layout gpu.Handle, first uint32, sets []gpu.Handle) {
	r.add(Command{Op: OpBindSets, Layout: layout, First: first, Handles: append([]gpu.Handle(nil), sets...)})
}

func (r *Recorder) PushConstants(layout gpu.Handle, offset uint32, data []byte) {
	r.add(Command{Op: OpPushConstants, Layout: layout, First: offset, Data: append([]byte(nil), data...)})
}

func (r *Recorder) BindVertexBuffers(first uint32, buffers []gpu.Handle, offsets []uint64) {
	r.add(Command{
		Op:      OpBindVertexBuffers,
		First:   first,
		Handles: append([]gpu.Handle(nil), buffers...),
		Offsets: append([]uint64(nil), offsets...),
	})
}

func (r *Recorder) BindIndexBuffer(buffer gpu.Handle, offset uint64, indexType gpu.IndexType) {
	r.add(Command{Op: OpBindIndexBuffer, Handles: []gpu.Handle{buffer}, Offsets: []uint64{offset}, IndexType: indexType})
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.add(Command{Op: OpDraw, Count: vertexCount, Instances: instanceCount, First: firstVertex})
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.add(Command{Op: OpDrawIndexed, Count: indexCount, Instances: instanceCount, FirstIndex: firstIndex, VertexOffset: vertexOffset})
}

func (r *Recorder) SetViewport(viewport gpu.Viewport) {
	r.add(Command{Op: OpSetViewport, Viewport: viewport})
}

func (r *Recorder) SetScissor(scissor gpu.Rect) {
	r.add(Command{Op: OpSetScissor, Scissor: scissor})
}

func (r *Recorder) CopyBuffer(src, dst gpu.Handle, srcOffset, dstOffset, size uint64) {
	r.add(Command{Op: OpCopyBuffer, Src: src, Dst: dst, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

func (r *Recorder) CopyBufferToImage(src gpu.Handle, srcOffset uint64, dst gpu.Handle, layout gpu.ImageLayout, extent gpu.Extent) {
	r.add(Command{Op: OpCopyBufferToImage, Src: src, SrcOffset: srcOffset, Dst: dst, ImageLayout: layout, Extent: extent})
}

func (r *Recorder) BlitImage(src gpu.Handle, srcLayout gpu.ImageLayout, dst gpu.Handle, dstLayout gpu.ImageLayout, region gpu.BlitRegion, filter gpu.Filter) {
	r.add(Command{Op: OpBlitImage, Src: src, Dst: dst, ImageLayout: dstLayout, Filter: filter, Scissor: region.Dst})
}

func (r *Recorder) ResetQueryPool(pool gpu.Handle, first, count uint32) {
	r.add(Command{Op: OpResetQueries, Handles: []gpu.Handle{pool}, First: first, Count: count})
}

func (r *Recorder) WriteTimestamp(stage gpu.PipelineStage, pool gpu.Handle, query uint32) {
	r.add(Command{Op: OpTimestamp, SrcStage: stage, Handles: []gpu.Handle{pool}, First: query})
}

func (r *Recorder) BeginLabel(name string) {
	r.add(Command{Op: OpBeginLabel, Label: name})
}

func (r *Recorder) EndLabel() {
	r.add(Command{Op: OpEndLabel})
}

// Ops lists the recorded operation names in order.
func (r *Recorder) Ops() []string {
	return Ops(r.Commands)
}

// Find returns the recorded commands with the given op.
func (r *Recorder) Find(op string) []Command {
	return Find(r.Commands, op)
}

func Ops(commands []Command) []string {
	out := make([]string, len(commands))
	for i, c := range commands {
		out[i] = c.Op
	}
	return out
}

func Find(commands []Command, op string) []Command {
	var out []Command
	for _, c := range commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
