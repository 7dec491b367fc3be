package render

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

const (
	bloomLevels = 7
	bloomFormat = gpu.FormatRGBA16Sfloat
)

// Bloom blurs the bright parts of an HDR image through a chain of half sized
// images and adds the result back. Level 0 of the chain is the input itself.
type Bloom struct {
	ctx        *gpu.Context
	shaders    ShaderSource
	config     core.BloomConfig
	sampler    *gpu.Sampler
	downsample *gpu.GraphicsPipeline
	upsample   *gpu.GraphicsPipeline
	// levels[0] is owned by the caller.
	levels [bloomLevels]*gpu.Image
	extent gpu.Extent
}

func NewBloom(ctx *gpu.Context, shaders ShaderSource, config core.BloomConfig) (*Bloom, error) {
	sampler, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeClampToEdge)
	if err != nil {
		return nil, err
	}
	return &Bloom{ctx: ctx, shaders: shaders, config: config, sampler: sampler}, nil
}

// Invalidate drops both pipelines so they are rebuilt on the next Apply.
func (b *Bloom) Invalidate() {
	b.ctx.Pipelines.DestroyPipeline(b.downsample)
	b.ctx.Pipelines.DestroyPipeline(b.upsample)
	b.downsample, b.upsample = nil, nil
}

func (b *Bloom) ensurePipelines() error {
	if b.downsample != nil && b.upsample != nil {
		return nil
	}
	b.Invalidate()
	opts := gpu.GraphicsPipelineOptions{
		Name:     "bloom-downsample",
		Topology: gpu.TopologyTriangleList,
		Cull:     gpu.CullNone,
		Colors:   []gpu.ColorAttachmentOptions{{Format: bloomFormat, Blend: gpu.BlendNone}},
	}
	down, err := buildPipeline(b.ctx, b.shaders, "fullscreen.vert", "bloom_downsample.frag", opts)
	if err != nil {
		return fmt.Errorf("bloom downsample pipeline: %w", err)
	}
	opts.Name = "bloom-upsample"
	opts.Colors = []gpu.ColorAttachmentOptions{{Format: bloomFormat, Blend: gpu.BlendAdditive}}
	up, err := buildPipeline(b.ctx, b.shaders, "fullscreen.vert", "bloom_upsample.frag", opts)
	if err != nil {
		b.ctx.Pipelines.DestroyPipeline(down)
		return fmt.Errorf("bloom upsample pipeline: %w", err)
	}
	b.downsample, b.upsample = down, up
	return nil
}

func (b *Bloom) destroyChain() {
	for i := 1; i < bloomLevels; i++ {
		b.ctx.DestroyImage(b.levels[i])
		b.levels[i] = nil
	}
	b.extent = gpu.Extent{}
}

func (b *Bloom) ensureChain(extent gpu.Extent) error {
	if b.extent == extent && b.levels[1] != nil {
		return nil
	}
	b.destroyChain()
	size := extent
	for i := 1; i < bloomLevels; i++ {
		size = gpu.Extent{Width: max(size.Width/2, 1), Height: max(size.Height/2, 1)}
		img, err := b.ctx.CreateImage(size, gpu.ImageUsageColorAttachment|gpu.ImageUsageSampled, bloomFormat)
		if err != nil {
			b.destroyChain()
			return err
		}
		img.SetName(fmt.Sprintf("bloom-%d", i))
		b.levels[i] = img
	}
	b.extent = extent
	core.LogDebug("bloom chain recreated for %dx%d", extent.Width, extent.Height)
	return nil
}

// Apply runs the chain over hdr, which must be a sampleable RGBA16Sfloat color
// attachment. hdr is left in ColorAttachment layout holding the bloomed image.
func (b *Bloom) Apply(cb *gpu.CommandBuffer, hdr *gpu.Image) error {
	if hdr.Format != bloomFormat {
		return fmt.Errorf("bloom input must be %d, got %d", bloomFormat, hdr.Format)
	}
	if err := b.ensurePipelines(); err != nil {
		return err
	}
	if err := b.ensureChain(hdr.Extent); err != nil {
		return err
	}
	b.levels[0] = hdr

	cb.BeginGroup("bloom")
	defer cb.EndGroup()

	threshold := b.config.Threshold
	for i := 0; i < bloomLevels-1; i++ {
		att := gpu.Attachment{Image: b.levels[i+1], Load: gpu.LoadOpDontCare}
		if err := b.pass(cb, b.downsample, b.levels[i], att, threshold); err != nil {
			return fmt.Errorf("bloom downsample %d: %w", i, err)
		}
		// Only the first pass filters by brightness.
		threshold = -1
	}
	for i := bloomLevels - 1; i > 0; i-- {
		att := gpu.LoadAttachment(b.levels[i-1])
		if err := b.pass(cb, b.upsample, b.levels[i], att, b.config.FilterRadius); err != nil {
			return fmt.Errorf("bloom upsample %d: %w", i, err)
		}
	}
	return nil
}

func (b *Bloom) pass(cb *gpu.CommandBuffer, pipeline *gpu.GraphicsPipeline, src *gpu.Image, dst gpu.Attachment, param float32) error {
	if err := transition(cb, src, gpu.LayoutShaderReadOnly, gpu.StageFragmentShader, gpu.AccessShaderRead); err != nil {
		return err
	}
	dstAccess := gpu.AccessColorAttachmentWrite
	if dst.Load == gpu.LoadOpLoad {
		dstAccess |= gpu.AccessColorAttachmentRead
	}
	if err := transition(cb, dst.Image, gpu.LayoutColorAttachment, gpu.StageColorAttachmentOutput, dstAccess); err != nil {
		return err
	}
	set, err := b.ctx.Descriptors.GetSet(src.WithSampler(b.sampler))
	if err != nil {
		return err
	}

	if err := cb.BeginRenderPass(dst); err != nil {
		return err
	}
	if err := cb.BindPipeline(pipeline); err != nil {
		cb.EndRenderPass()
		return err
	}
	if err := cb.BindDescriptorSet(0, set); err != nil {
		cb.EndRenderPass()
		return err
	}
	if err := cb.PushConstants(encode(param)); err != nil {
		cb.EndRenderPass()
		return err
	}
	if err := cb.Draw(3, 1); err != nil {
		cb.EndRenderPass()
		return err
	}
	return cb.EndRenderPass()
}

func (b *Bloom) Destroy() {
	b.Invalidate()
	b.destroyChain()
	b.levels[0] = nil
}

// transition moves img to layout, waiting on whatever last touched it.
func transition(cb *gpu.CommandBuffer, img *gpu.Image, layout gpu.ImageLayout, dstStage gpu.PipelineStage, dstAccess gpu.Access) error {
	srcStage, srcAccess := img.LastAccess()
	if srcStage == gpu.StageNone {
		srcStage = gpu.StageTopOfPipe
	}
	return cb.TransitionImage(img, layout, srcStage, srcAccess, dstStage, dstAccess)
}
