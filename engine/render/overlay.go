package render

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/math"
)

// OverlayVertex is a 2D vertex in display coordinates with a straight alpha color.
type OverlayVertex struct {
	Pos   math.Vec2
	UV    math.Vec2
	Color [4]uint8
}

// TextureID selects the texture a DrawCmd samples. Zero is a 1x1 white texture.
type TextureID uint32

// DrawCmd draws ElemCount indices of its list starting at IdxOffset.
type DrawCmd struct {
	// ClipRect is (minX, minY, maxX, maxY) in display coordinates.
	ClipRect  math.Vec4
	Texture   TextureID
	ElemCount uint32
	IdxOffset uint32
	VtxOffset uint32
}

type DrawList struct {
	Vertices []OverlayVertex
	Indices  []uint16
	Commands []DrawCmd
}

// DrawData is one frame of UI geometry.
type DrawData struct {
	DisplayPos       math.Vec2
	DisplaySize      math.Vec2
	FramebufferScale math.Vec2
	Lists            []DrawList
}

func (d *DrawData) framebufferSize() (int32, int32) {
	return int32(d.DisplaySize.X * d.FramebufferScale.X), int32(d.DisplaySize.Y * d.FramebufferScale.Y)
}

func (d *DrawData) counts() (vertices, indices int) {
	for _, l := range d.Lists {
		vertices += len(l.Vertices)
		indices += len(l.Indices)
	}
	return vertices, indices
}

type overlayPush struct {
	Scale     math.Vec2
	Translate math.Vec2
}

var overlayVertexLayout = gpu.VertexLayout{
	Stride: 20,
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Format: gpu.FormatRG32Sfloat, Offset: 0},
		{Location: 1, Format: gpu.FormatRG32Sfloat, Offset: 8},
		{Location: 2, Format: gpu.FormatRGBA8Unorm, Offset: 16},
	},
}

/**
 * @brief Overlay composites UI draw lists on top of the rendered frame with
 * alpha blending. It loads the existing target contents instead of clearing.
 */
type Overlay struct {
	ctx      *gpu.Context
	shaders  ShaderSource
	pipeline *gpu.GraphicsPipeline
	format   gpu.Format
	sampler  *gpu.Sampler
	textures []*gpu.Image
	white    *gpu.Image
}

func NewOverlay(ctx *gpu.Context, shaders ShaderSource) (*Overlay, error) {
	sampler, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeClampToEdge)
	if err != nil {
		return nil, err
	}
	white, err := ctx.CreateImage(gpu.Extent{Width: 1, Height: 1}, gpu.ImageUsageSampled|gpu.ImageUsageTransferDst, gpu.FormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	if err := ctx.UploadImage(white, []byte{255, 255, 255, 255}); err != nil {
		ctx.DestroyImage(white)
		return nil, err
	}
	white.SetName("overlay-white")
	return &Overlay{
		ctx:      ctx,
		shaders:  shaders,
		sampler:  sampler,
		textures: []*gpu.Image{white},
		white:    white,
	}, nil
}

// RegisterTexture makes img sampleable by draw commands. img must stay in
// ShaderReadOnly layout.
func (o *Overlay) RegisterTexture(img *gpu.Image) TextureID {
	o.textures = append(o.textures, img)
	return TextureID(len(o.textures) - 1)
}

// Invalidate drops the pipeline so the next Draw rebuilds it from fresh shaders.
func (o *Overlay) Invalidate() {
	o.ctx.Pipelines.DestroyPipeline(o.pipeline)
	o.pipeline = nil
}

func (o *Overlay) ensurePipeline(format gpu.Format) error {
	if o.pipeline != nil && o.format == format {
		return nil
	}
	o.Invalidate()
	p, err := buildPipeline(o.ctx, o.shaders, "overlay.vert", "overlay.frag", gpu.GraphicsPipelineOptions{
		Name:     "overlay",
		Topology: gpu.TopologyTriangleList,
		Cull:     gpu.CullNone,
		Vertex:   overlayVertexLayout,
		Colors:   []gpu.ColorAttachmentOptions{{Format: format, Blend: gpu.BlendAlpha}},
	})
	if err != nil {
		return fmt.Errorf("overlay pipeline: %w", err)
	}
	o.pipeline, o.format = p, format
	return nil
}

// Draw renders data into target, which must be in ColorAttachment layout.
// Nothing is recorded for an empty or zero sized frame.
func (o *Overlay) Draw(cb *gpu.CommandBuffer, target *gpu.Image, data *DrawData) error {
	if data == nil || len(data.Lists) == 0 {
		return nil
	}
	fbWidth, fbHeight := data.framebufferSize()
	if fbWidth <= 0 || fbHeight <= 0 {
		return nil
	}
	vertexCount, indexCount := data.counts()
	if vertexCount == 0 || indexCount == 0 {
		return nil
	}
	if err := o.ensurePipeline(target.Format); err != nil {
		return err
	}

	vertices := make([]OverlayVertex, 0, vertexCount)
	indices := make([]uint16, 0, indexCount)
	for _, l := range data.Lists {
		vertices = append(vertices, l.Vertices...)
		indices = append(indices, l.Indices...)
	}
	vb, err := o.ctx.Frame.AllocateData(encode(vertices))
	if err != nil {
		return fmt.Errorf("overlay vertices: %w", err)
	}
	ib, err := o.ctx.Frame.AllocateData(encode(indices))
	if err != nil {
		return fmt.Errorf("overlay indices: %w", err)
	}

	cb.BeginGroup("overlay")
	defer cb.EndGroup()
	if err := cb.BeginRenderPass(gpu.LoadAttachment(target)); err != nil {
		return err
	}
	// scissors must stay inside the render area even when the display is larger
	bounds := gpu.Extent{
		Width:  uint32(min(fbWidth, int32(target.Extent.Width))),
		Height: uint32(min(fbHeight, int32(target.Extent.Height))),
	}
	if err := o.record(cb, data, vb, ib, fbWidth, fbHeight, bounds); err != nil {
		cb.EndRenderPass()
		return err
	}
	return cb.EndRenderPass()
}

func (o *Overlay) record(cb *gpu.CommandBuffer, data *DrawData, vb, ib gpu.SubBuffer, fbWidth, fbHeight int32, bounds gpu.Extent) error {
	if err := cb.BindPipeline(o.pipeline); err != nil {
		return err
	}
	if err := cb.SetViewport(gpu.Rect{Width: uint32(fbWidth), Height: uint32(fbHeight)}, false); err != nil {
		return err
	}

	var push overlayPush
	push.Scale = math.NewVec2(2/data.DisplaySize.X, 2/data.DisplaySize.Y)
	push.Translate = math.NewVec2(
		-1-data.DisplayPos.X*push.Scale.X,
		-1-data.DisplayPos.Y*push.Scale.Y,
	)
	if err := cb.PushConstants(encode(push)); err != nil {
		return err
	}
	if err := cb.BindVertexBuffer(vb); err != nil {
		return err
	}
	if err := cb.BindIndexBuffer(ib, gpu.IndexUint16); err != nil {
		return err
	}

	var globalVtx, globalIdx uint32
	bound := TextureID(^uint32(0))
	for _, list := range data.Lists {
		for _, cmd := range list.Commands {
			scissor, ok := clipToFramebuffer(cmd.ClipRect, data, int32(bounds.Width), int32(bounds.Height))
			if !ok {
				continue
			}
			if err := cb.SetScissor(scissor); err != nil {
				return err
			}
			if cmd.Texture != bound {
				if err := o.bindTexture(cb, cmd.Texture); err != nil {
					return err
				}
				bound = cmd.Texture
			}
			if err := cb.DrawIndexed(cmd.ElemCount, 1, cmd.IdxOffset+globalIdx, int32(cmd.VtxOffset+globalVtx)); err != nil {
				return err
			}
		}
		globalVtx += uint32(len(list.Vertices))
		globalIdx += uint32(len(list.Indices))
	}
	return nil
}

func (o *Overlay) bindTexture(cb *gpu.CommandBuffer, id TextureID) error {
	img := o.white
	if int(id) < len(o.textures) {
		img = o.textures[id]
	} else {
		core.LogWarn("overlay texture %d is not registered", id)
	}
	set, err := o.ctx.Descriptors.GetSet(img.WithSampler(o.sampler))
	if err != nil {
		return err
	}
	return cb.BindDescriptorSet(0, set)
}

// clipToFramebuffer projects a display space clip rectangle into framebuffer
// pixels, clamped to its bounds. Empty results are reported as false.
func clipToFramebuffer(clip math.Vec4, data *DrawData, fbWidth, fbHeight int32) (gpu.Rect, bool) {
	scale := data.FramebufferScale
	minX := (clip.X - data.DisplayPos.X) * scale.X
	minY := (clip.Y - data.DisplayPos.Y) * scale.Y
	maxX := (clip.Z - data.DisplayPos.X) * scale.X
	maxY := (clip.W - data.DisplayPos.Y) * scale.Y

	minX, minY = max(minX, 0), max(minY, 0)
	maxX, maxY = min(maxX, float32(fbWidth)), min(maxY, float32(fbHeight))
	if maxX <= minX || maxY <= minY {
		return gpu.Rect{}, false
	}
	return gpu.Rect{
		X:      int32(minX),
		Y:      int32(minY),
		Width:  uint32(maxX - minX),
		Height: uint32(maxY - minY),
	}, true
}

func (o *Overlay) Destroy() {
	o.Invalidate()
	o.ctx.DestroyImage(o.white)
	o.textures = nil
}
