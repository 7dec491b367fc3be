package render

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/scene"
)

const depthFormat = gpu.FormatD32Sfloat

// UILayer produces the overlay geometry of a frame. Returning nil draws nothing.
type UILayer interface {
	Build(extent gpu.Extent) *DrawData
}

type drawable struct {
	mesh     *Mesh
	data     DrawPush
	distance float32
}

/**
 * @brief Renderer draws the world seen by its first camera into the swapchain.
 * Everything it owns is reused across frames and only touched after the frame
 * fence has been waited on.
 */
type Renderer struct {
	ctx     *gpu.Context
	world   *scene.World
	shaders ShaderSource
	config  core.RendererConfig
	metrics *core.Metrics
	bus     *core.EventBus
	busID   uint64

	cb           *gpu.CommandBuffer
	textureArray *gpu.TextureArray
	meshes       *MeshCache
	textures     *TextureCache
	lights       *gpu.GrowableStorageBuffer[GpuLight]
	materials    *gpu.GrowableStorageBuffer[GpuMaterial]

	layout         *gpu.PipelineLayout
	pipeline       *gpu.GraphicsPipeline
	pipelineFormat gpu.Format
	depthCompare   gpu.CompareOp
	reloadShaders  bool

	depth   *gpu.Image
	hdr     *gpu.Image
	bloom   *Bloom
	overlay *Overlay
	ui      UILayer

	materialIndex map[assets.ID]uint32
	opaque        []drawable
	translucent   []drawable
}

// New creates a renderer for world. shaders usually is the asset manager and
// bus, when set, delivers shader changes for hot reload. metrics may be nil.
func New(ctx *gpu.Context, world *scene.World, shaders ShaderSource, bus *core.EventBus, config *core.EngineConfig, metrics *core.Metrics) (*Renderer, error) {
	compare, ok := gpu.ParseCompareOp(config.Renderer.DepthCompare)
	if !ok {
		compare = gpu.CompareLessOrEqual
	}
	r := &Renderer{
		ctx:           ctx,
		world:         world,
		shaders:       shaders,
		config:        config.Renderer,
		metrics:       metrics,
		bus:           bus,
		depthCompare:  compare,
		materialIndex: make(map[assets.ID]uint32),
	}
	if err := r.init(config); err != nil {
		r.Destroy()
		return nil, err
	}
	if bus != nil {
		r.busID = bus.Register(core.EVENT_CODE_ASSET_CHANGED, r.onAssetChanged)
	}
	core.LogInfo("renderer created (depth compare %d, bloom %t)", r.depthCompare, r.bloom != nil)
	return r, nil
}

func (r *Renderer) init(config *core.EngineConfig) error {
	var err error
	if r.cb, err = r.ctx.NewCommandBuffer(); err != nil {
		return err
	}
	capacity := config.Renderer.TextureArrayCapacity
	if capacity == 0 {
		capacity = r.ctx.Config().RuntimeArrayCount
	}
	if r.textureArray, err = gpu.NewTextureArray(r.ctx, capacity); err != nil {
		return err
	}
	if r.textures, err = NewTextureCache(r.ctx, r.textureArray); err != nil {
		return err
	}
	r.meshes = NewMeshCache(r.ctx)
	r.lights = gpu.NewGrowableStorageBuffer[GpuLight](r.ctx, "lights")
	r.materials = gpu.NewGrowableStorageBuffer[GpuMaterial](r.ctx, "materials")

	frameSet, err := r.ctx.Descriptors.GetLayout(
		gpu.Binding(gpu.DescriptorUniformBuffer),
		gpu.Binding(gpu.DescriptorStorageBuffer),
		gpu.Binding(gpu.DescriptorStorageBuffer),
	)
	if err != nil {
		return err
	}
	if r.layout, err = r.ctx.Pipelines.GetLayout(drawPushSize, frameSet, r.textureArray.Layout()); err != nil {
		return err
	}

	if r.overlay, err = NewOverlay(r.ctx, r.shaders); err != nil {
		return err
	}
	if config.Bloom.Enabled {
		if r.bloom, err = NewBloom(r.ctx, r.shaders, config.Bloom); err != nil {
			return err
		}
	}
	return nil
}

// SetUI installs the layer composited over every frame.
func (r *Renderer) SetUI(layer UILayer) {
	r.ui = layer
}

// Overlay is the compositor used for the UI layer, for registering textures.
func (r *Renderer) Overlay() *Overlay {
	return r.overlay
}

func (r *Renderer) Meshes() *MeshCache {
	return r.meshes
}

func (r *Renderer) Textures() *TextureCache {
	return r.textures
}

func (r *Renderer) onAssetChanged(ctx core.EventContext) bool {
	ev, ok := ctx.Data.(core.AssetChangedEvent)
	if !ok {
		return false
	}
	if name, ok := shaderName(ev.Path); ok {
		core.LogInfo("shader %s changed, pipelines will be rebuilt", name)
		r.reloadShaders = true
	}
	return false
}

// rebuildPipelines drops every pipeline. They are recreated lazily from the
// current shaders. Only call after the frame fence wait.
func (r *Renderer) rebuildPipelines() {
	r.ctx.Pipelines.DestroyPipeline(r.pipeline)
	r.pipeline = nil
	r.overlay.Invalidate()
	if r.bloom != nil {
		r.bloom.Invalidate()
	}
	r.reloadShaders = false
}

func (r *Renderer) ensurePipeline(format gpu.Format) error {
	if r.pipeline != nil && r.pipelineFormat == format {
		return nil
	}
	r.ctx.Pipelines.DestroyPipeline(r.pipeline)
	r.pipeline = nil
	p, err := buildPipeline(r.ctx, r.shaders, "mesh.vert", "mesh.frag", gpu.GraphicsPipelineOptions{
		Name:     "mesh",
		Topology: gpu.TopologyTriangleList,
		Cull:     gpu.CullBack,
		Vertex: gpu.VertexLayout{
			Stride: vertexSize,
			Attributes: []gpu.VertexAttribute{
				{Location: 0, Format: gpu.FormatRGB32Sfloat, Offset: 0},
				{Location: 1, Format: gpu.FormatRG32Sfloat, Offset: 12},
				{Location: 2, Format: gpu.FormatRGB32Sfloat, Offset: 20},
			},
		},
		Colors: []gpu.ColorAttachmentOptions{{Format: format, Blend: gpu.BlendAlpha}},
		Depth:  &gpu.DepthOptions{Format: depthFormat, Write: true, Compare: r.depthCompare},
		Layout: r.layout,
	})
	if err != nil {
		return fmt.Errorf("mesh pipeline: %w", err)
	}
	r.pipeline, r.pipelineFormat = p, format
	return nil
}

func (r *Renderer) ensureTargets(extent gpu.Extent) error {
	if r.depth == nil || r.depth.Extent != extent {
		r.ctx.DestroyImage(r.depth)
		r.depth = nil
		depth, err := r.ctx.CreateImage(extent, gpu.ImageUsageDepthStencilAttachment, depthFormat)
		if err != nil {
			return err
		}
		depth.SetName("depth")
		r.depth = depth
		core.LogDebug("depth image recreated at %dx%d", extent.Width, extent.Height)
	}
	if r.bloom == nil {
		return nil
	}
	if r.hdr == nil || r.hdr.Extent != extent {
		r.ctx.DestroyImage(r.hdr)
		r.hdr = nil
		hdr, err := r.ctx.CreateImage(extent,
			gpu.ImageUsageColorAttachment|gpu.ImageUsageSampled|gpu.ImageUsageTransferSrc, bloomFormat)
		if err != nil {
			return err
		}
		hdr.SetName("hdr")
		r.hdr = hdr
	}
	return nil
}

// Frame renders and presents one frame. A frame without a presentable image
// is skipped without error.
func (r *Renderer) Frame(dt float64) error {
	if err := r.ctx.WaitForFrame(); err != nil {
		return err
	}
	if r.reloadShaders {
		r.rebuildPipelines()
	}

	target, imageIndex, err := r.ctx.AcquireFrame()
	if errors.Is(err, core.ErrFrameSkipped) {
		if r.metrics != nil {
			r.metrics.SkippedFrame++
		}
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.cb.Reset(); err != nil {
		return err
	}
	r.ctx.NewFrame()
	if err := r.cb.Begin(); err != nil {
		return err
	}
	if r.ctx.Queries != nil {
		if err := r.ctx.Queries.Reset(r.cb); err != nil {
			return err
		}
	}

	scene.UpdateWorldTransforms(r.world)
	if err := r.record(r.cb, target); err != nil {
		return fmt.Errorf("record frame: %w", err)
	}

	if err := r.cb.TransitionImage(target, gpu.LayoutPresentSrc,
		gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite,
		gpu.StageBottomOfPipe, gpu.AccessNone); err != nil {
		return err
	}
	if err := r.cb.End(); err != nil {
		return err
	}
	if err := r.ctx.SubmitFrame(r.cb); err != nil {
		return err
	}
	r.report()
	return r.ctx.Present(imageIndex)
}

func (r *Renderer) report() {
	if r.metrics == nil {
		return
	}
	r.metrics.DrawCalls = r.cb.DrawCalls()
	r.metrics.Lights = r.lights.Len()
	if r.ctx.Queries != nil {
		clear(r.metrics.GPUTimings)
		for name, d := range r.ctx.Queries.Results() {
			r.metrics.GPUTimings[name] = d
		}
	}
}

// record fills cb for target. On return target is in ColorAttachment layout
// after a color attachment write.
func (r *Renderer) record(cb *gpu.CommandBuffer, target *gpu.Image) error {
	extent := target.Extent
	if err := r.ensureTargets(extent); err != nil {
		return err
	}

	color := target
	if r.bloom != nil {
		color = r.hdr
	}
	if err := cb.BeginQuery("scene"); err != nil {
		core.LogWarn(err.Error())
	}
	if err := r.renderScene(cb, color); err != nil {
		return err
	}
	if err := cb.EndQuery(); err != nil {
		core.LogWarn(err.Error())
	}

	if r.bloom != nil {
		if err := r.bloom.Apply(cb, r.hdr); err != nil {
			return err
		}
		if err := r.resolve(cb, r.hdr, target); err != nil {
			return err
		}
	}

	if r.ui != nil {
		if err := r.overlay.Draw(cb, target, r.ui.Build(extent)); err != nil {
			return err
		}
	}
	return nil
}

// resolve blits the HDR image onto the swapchain image and leaves the latter
// ready for the overlay.
func (r *Renderer) resolve(cb *gpu.CommandBuffer, hdr, target *gpu.Image) error {
	if err := transition(cb, hdr, gpu.LayoutTransferSrc, gpu.StageTransfer, gpu.AccessTransferRead); err != nil {
		return err
	}
	if err := transition(cb, target, gpu.LayoutTransferDst, gpu.StageTransfer, gpu.AccessTransferWrite); err != nil {
		return err
	}
	if err := cb.BlitImage(hdr, target, gpu.FilterLinear); err != nil {
		return err
	}
	return transition(cb, target, gpu.LayoutColorAttachment, gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite)
}

// renderScene draws the world into color using the renderer's depth image.
func (r *Renderer) renderScene(cb *gpu.CommandBuffer, color *gpu.Image) error {
	r.lights.Clear()
	r.materials.Clear()
	clear(r.materialIndex)
	r.opaque = r.opaque[:0]
	r.translucent = r.translucent[:0]

	if err := transition(cb, color, gpu.LayoutColorAttachment, gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite); err != nil {
		return err
	}
	if err := transition(cb, r.depth, gpu.LayoutDepthStencilAttachment,
		gpu.StageEarlyFragmentTests|gpu.StageLateFragmentTests, gpu.AccessDepthStencilRead|gpu.AccessDepthStencilWrite); err != nil {
		return err
	}

	camEntity, _, camera, ok := scene.First2[scene.Transform, scene.Camera](r.world)
	if !ok {
		// Nothing to look through: clear to white.
		if err := cb.BeginRenderPass(gpu.ClearColorAttachment(color, 1, 1, 1, 1), gpu.ClearDepthAttachment(r.depth, 1)); err != nil {
			return err
		}
		return cb.EndRenderPass()
	}

	env := camera.Environment
	if env == nil {
		env = assets.NewEnvironment()
		c := r.config.ClearColor
		env.ClearColor = math.NewVec3(c[0], c[1], c[2])
	}
	camTransform, _ := r.world.GlobalTransform(camEntity)
	cameraPos := camTransform.Position

	r.collectLights()
	if err := r.collectDrawables(cameraPos); err != nil {
		return err
	}

	extent := color.Extent
	uniforms := FrameUniforms{
		Projection: camera.Projection(extent.Aspect()),
		View:       camera.View(camTransform),
		CameraPos:  cameraPos,
		LightCount: uint32(r.lights.Len()),
		Ambient:    env.ClearColor.MulScalar(env.AmbientStrength),
	}
	uniforms.ProjectionView = uniforms.View.Mul(uniforms.Projection)
	uniformBuffer, err := r.ctx.Frame.AllocateData(encode(uniforms))
	if err != nil {
		return err
	}

	if err := r.lights.Upload(cb); err != nil {
		return err
	}
	if err := r.materials.Upload(cb); err != nil {
		return err
	}
	if err := r.ensurePipeline(color.Format); err != nil {
		return err
	}
	frameSet, err := r.ctx.Descriptors.GetSet(uniformBuffer.Uniform(), r.lights.Descriptor(), r.materials.Descriptor())
	if err != nil {
		return err
	}

	clearColor := env.ClearColor
	if err := cb.BeginRenderPass(
		gpu.ClearColorAttachment(color, clearColor.X, clearColor.Y, clearColor.Z, 1),
		gpu.ClearDepthAttachment(r.depth, 1),
	); err != nil {
		return err
	}
	if err := r.drawAll(cb, frameSet); err != nil {
		cb.EndRenderPass()
		return err
	}
	return cb.EndRenderPass()
}

func (r *Renderer) drawAll(cb *gpu.CommandBuffer, frameSet *gpu.DescriptorSet) error {
	if err := cb.BindPipeline(r.pipeline); err != nil {
		return err
	}
	if err := cb.BindDescriptorSet(0, frameSet); err != nil {
		return err
	}
	if err := cb.BindDescriptorSet(1, r.textureArray.Set()); err != nil {
		return err
	}

	cb.BeginGroup("opaque")
	err := r.draw(cb, r.opaque)
	cb.EndGroup()
	if err != nil {
		return err
	}
	cb.BeginGroup("translucent")
	err = r.draw(cb, r.translucent)
	cb.EndGroup()
	return err
}

func (r *Renderer) draw(cb *gpu.CommandBuffer, drawables []drawable) error {
	for i := range drawables {
		d := &drawables[i]
		if err := cb.PushConstants(encode(d.data)); err != nil {
			return err
		}
		if err := cb.BindVertexBuffer(d.mesh.VertexBuffer.All()); err != nil {
			return err
		}
		if d.mesh.Indexed() {
			if err := cb.BindIndexBuffer(d.mesh.IndexBuffer.All(), gpu.IndexUint32); err != nil {
				return err
			}
			if err := cb.DrawIndexed(d.mesh.IndexCount, 1, 0, 0); err != nil {
				return err
			}
			continue
		}
		if err := cb.Draw(d.mesh.VertexCount, 1); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) collectLights() {
	scene.Each2(r.world, func(e scene.Entity, _ *scene.Transform, light *scene.PointLight) {
		if !r.world.IsVisible(e) {
			return
		}
		r.lights.Add(GpuLight{
			Color: light.Color.MulScalar(light.Intensity),
			Type:  LightPoint,
			Data:  r.world.WorldPosition(e),
		})
	})
	scene.Each(r.world, func(e scene.Entity, light *scene.DirectionalLight) {
		if !r.world.IsVisible(e) {
			return
		}
		dir := light.Direction
		if dir == (math.Vec3{}) {
			if t, ok := r.world.GlobalTransform(e); ok {
				dir = t.Forward()
			} else {
				dir = math.NewVec3Forward()
			}
		}
		r.lights.Add(GpuLight{
			Color: light.Color.MulScalar(light.Intensity),
			Type:  LightDirectional,
			// Shaders want the direction towards the light.
			Data: dir.Normalized().Negate(),
		})
	})
}

func (r *Renderer) collectDrawables(cameraPos math.Vec3) error {
	var err error
	scene.Each2(r.world, func(e scene.Entity, _ *scene.Transform, instance *scene.MeshInstance) {
		if err != nil || instance.Mesh == nil || !r.world.IsVisible(e) {
			return
		}
		mesh, meshErr := r.meshes.Get(instance.Mesh)
		if meshErr != nil {
			err = meshErr
			return
		}
		material := instance.Material
		if material == nil {
			material = defaultMaterial
		}
		index, matErr := r.materialSlot(material)
		if matErr != nil {
			err = matErr
			return
		}

		global, _ := r.world.GlobalTransform(e)
		d := drawable{
			mesh:     mesh,
			data:     NewDrawPush(global.Matrix(), index),
			distance: global.Position.DistanceSquared(cameraPos),
		}
		if material.Opaque {
			r.opaque = append(r.opaque, d)
		} else {
			r.translucent = append(r.translucent, d)
		}
	})
	if err != nil {
		return err
	}

	slices.SortStableFunc(r.opaque, func(a, b drawable) int {
		return compareFloat(a.distance, b.distance)
	})
	slices.SortStableFunc(r.translucent, func(a, b drawable) int {
		return compareFloat(b.distance, a.distance)
	})
	return nil
}

func compareFloat(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var defaultMaterial = assets.NewMaterial("default")

// materialSlot adds material to this frame's material buffer once.
func (r *Renderer) materialSlot(m *assets.Material) (uint32, error) {
	if index, ok := r.materialIndex[m.ID()]; ok {
		return index, nil
	}
	var textures [4]uint32
	for i, tex := range m.Textures() {
		index, err := r.textures.Get(tex)
		if err != nil {
			return 0, fmt.Errorf("material %s: %w", m.Name, err)
		}
		textures[i] = index
	}
	var opaque uint32
	if m.Opaque {
		opaque = 1
	}
	index := uint32(r.materials.Add(GpuMaterial{
		Albedo:            m.Albedo.ToVec3(),
		AlbedoTextureI:    textures[0],
		Roughness:         m.Roughness,
		RoughnessTextureI: textures[1],
		Metallic:          m.Metallic,
		MetallicTextureI:  textures[2],
		Emissive:          m.Emissive,
		EmissiveTextureI:  textures[3],
		Alpha:             m.Albedo.W,
		AlphaCutoff:       m.AlphaCutoff,
		Opaque:            opaque,
	}))
	r.materialIndex[m.ID()] = index
	return index, nil
}

func (r *Renderer) Destroy() {
	if r.ctx.WaitIdle() != nil {
		core.LogWarn("wait idle before renderer destroy failed")
	}
	if r.bus != nil && r.busID != 0 {
		r.bus.Unregister(core.EVENT_CODE_ASSET_CHANGED, r.busID)
	}
	if r.overlay != nil {
		r.overlay.Destroy()
	}
	if r.bloom != nil {
		r.bloom.Destroy()
	}
	r.ctx.Pipelines.DestroyPipeline(r.pipeline)
	r.pipeline = nil
	r.ctx.DestroyImage(r.hdr)
	r.ctx.DestroyImage(r.depth)
	r.hdr, r.depth = nil, nil
	if r.meshes != nil {
		r.meshes.Destroy()
	}
	if r.textures != nil {
		r.textures.Destroy()
	}
	if r.lights != nil {
		r.lights.Destroy()
		r.materials.Destroy()
	}
	if r.textureArray != nil {
		r.textureArray.Destroy()
	}
	if r.cb != nil {
		r.ctx.FreeCommandBuffer(r.cb)
		r.cb = nil
	}
}
