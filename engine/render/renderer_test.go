package render

import (
	"encoding/binary"
	"fmt"
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/scene"
)

type shaderMap map[string][]byte

func (s shaderMap) LoadShader(name string) ([]byte, error) {
	code, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("shader %s not found", name)
	}
	return code, nil
}

func sampler(set, binding uint32) gputest.ShaderBinding {
	return gputest.ShaderBinding{Set: set, Binding: binding, Kind: gpu.DescriptorImageSampler, Count: 1}
}

func testShaders() shaderMap {
	frame := []gputest.ShaderBinding{
		{Set: 0, Binding: 0, Kind: gpu.DescriptorUniformBuffer, Count: 1},
		{Set: 0, Binding: 1, Kind: gpu.DescriptorStorageBuffer, Count: 1},
		{Set: 0, Binding: 2, Kind: gpu.DescriptorStorageBuffer, Count: 1},
	}
	textures := gputest.ShaderBinding{Set: 1, Binding: 0, Kind: gpu.DescriptorImageSampler, Count: 0}
	return shaderMap{
		"mesh.vert":             gputest.BuildShader(gpu.ShaderStageVertex, 116, frame[:2]...),
		"mesh.frag":             gputest.BuildShader(gpu.ShaderStageFragment, 116, append(frame, textures)...),
		"overlay.vert":          gputest.BuildShader(gpu.ShaderStageVertex, 16),
		"overlay.frag":          gputest.BuildShader(gpu.ShaderStageFragment, 0, sampler(0, 0)),
		"fullscreen.vert":       gputest.BuildShader(gpu.ShaderStageVertex, 0),
		"bloom_downsample.frag": gputest.BuildShader(gpu.ShaderStageFragment, 4, sampler(0, 0)),
		"bloom_upsample.frag":   gputest.BuildShader(gpu.ShaderStageFragment, 4, sampler(0, 0)),
	}
}

type harness struct {
	r       *Renderer
	driver  *gputest.Driver
	world   *scene.World
	metrics *core.Metrics
	bus     *core.EventBus
}

func newHarness(t *testing.T, configure ...func(*core.EngineConfig)) *harness {
	t.Helper()
	ctx, driver := gputest.NewContext(t)
	cfg := core.DefaultConfig()
	cfg.Renderer.TextureArrayCapacity = 8
	for _, fn := range configure {
		fn(cfg)
	}
	h := &harness{
		driver:  driver,
		world:   scene.NewWorld(),
		metrics: core.NewMetrics(),
		bus:     core.NewEventBus(),
	}
	r, err := New(ctx, h.world, testShaders(), h.bus, cfg, h.metrics)
	require.NoError(t, err)
	t.Cleanup(r.Destroy)
	h.r = r
	return h
}

func (h *harness) frame(t *testing.T) gputest.Submission {
	t.Helper()
	require.NoError(t, h.r.Frame(1.0/60))
	subs := h.driver.FrameSubmissions()
	require.NotEmpty(t, subs)
	return subs[len(subs)-1]
}

func (h *harness) camera() scene.Entity {
	e := h.world.Spawn("camera", scene.NoEntity)
	scene.Add(h.world, e, scene.NewCamera(60, 0.1, 100))
	return e
}

func (h *harness) spawn(name string, pos math.Vec3, mesh assets.Mesh, material *assets.Material) scene.Entity {
	e := h.world.Spawn(name, scene.NoEntity)
	tr, _ := scene.Get[scene.Transform](h.world, e)
	tr.Position = pos
	scene.Add(h.world, e, scene.MeshInstance{Mesh: mesh, Material: material})
	return e
}

// pushedZ decodes the model translation Z of every mesh draw, in draw order.
func pushedZ(cmds []gputest.Command) []float32 {
	var out []float32
	for _, c := range gputest.Find(cmds, gputest.OpPushConstants) {
		if len(c.Data) != int(drawPushSize) {
			continue
		}
		out = append(out, stdmath.Float32frombits(binary.LittleEndian.Uint32(c.Data[14*4:])))
	}
	return out
}

type uiFunc func(gpu.Extent) *DrawData

func (f uiFunc) Build(extent gpu.Extent) *DrawData {
	return f(extent)
}

func TestFrameWithoutCameraClearsWhite(t *testing.T) {
	h := newHarness(t)
	h.spawn("orphan", math.NewVec3(0, 0, 5), assets.NewCube(1), nil)

	sub := h.frame(t)
	passes := gputest.Find(sub.Commands, gputest.OpBeginRenderPass)
	require.Len(t, passes, 1)
	pass := passes[0].RenderPass
	require.Len(t, pass.Colors, 1)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, pass.Colors[0].Clear.Color)
	require.NotNil(t, pass.Depth)
	assert.Equal(t, float32(1), pass.Depth.Clear.Depth)
	assert.Equal(t, gpu.Extent{Width: 800, Height: 600}, pass.Extent)

	assert.Empty(t, gputest.Find(sub.Commands, gputest.OpDraw))
	assert.Empty(t, gputest.Find(sub.Commands, gputest.OpDrawIndexed))
	assert.Zero(t, h.metrics.DrawCalls)
	assert.Equal(t, []uint32{0}, h.driver.Presents)

	barriers := gputest.Find(sub.Commands, gputest.OpBarrier)
	last := barriers[len(barriers)-1].ImageBarriers[0]
	assert.Equal(t, gpu.LayoutPresentSrc, last.NewLayout)
}

func TestFrameCompositesOverlay(t *testing.T) {
	h := newHarness(t)
	h.r.SetUI(uiFunc(func(extent gpu.Extent) *DrawData {
		return &DrawData{
			DisplaySize:      math.NewVec2(float32(extent.Width), float32(extent.Height)),
			FramebufferScale: math.NewVec2(1, 1),
			Lists: []DrawList{{
				Vertices: make([]OverlayVertex, 4),
				Indices:  []uint16{2, 1, 0, 3, 0, 1},
				Commands: []DrawCmd{
					{ClipRect: math.Vec4{X: 10, Y: 10, Z: 100, W: 50}, ElemCount: 6},
					{ClipRect: math.Vec4{X: 900, Y: 900, Z: 1000, W: 1000}, ElemCount: 6},
				},
			}},
		}
	}))

	sub := h.frame(t)
	passes := gputest.Find(sub.Commands, gputest.OpBeginRenderPass)
	require.Len(t, passes, 2)
	assert.Equal(t, gpu.LoadOpLoad, passes[1].RenderPass.Colors[0].Load)
	assert.Nil(t, passes[1].RenderPass.Depth)

	draws := gputest.Find(sub.Commands, gputest.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(6), draws[0].Count)

	scissors := gputest.Find(sub.Commands, gputest.OpSetScissor)
	assert.Equal(t, gpu.Rect{X: 10, Y: 10, Width: 90, Height: 40}, scissors[len(scissors)-1].Scissor)

	pushes := gputest.Find(sub.Commands, gputest.OpPushConstants)
	require.Len(t, pushes, 1)
	scaleX := stdmath.Float32frombits(binary.LittleEndian.Uint32(pushes[0].Data))
	translateX := stdmath.Float32frombits(binary.LittleEndian.Uint32(pushes[0].Data[8:]))
	assert.InDelta(t, 2.0/800, scaleX, 1e-7)
	assert.InDelta(t, -1, translateX, 1e-7)
}

func TestOverlaySkipsEmptyFramebuffer(t *testing.T) {
	h := newHarness(t)
	h.r.SetUI(uiFunc(func(gpu.Extent) *DrawData {
		return &DrawData{
			DisplaySize:      math.NewVec2(0, 600),
			FramebufferScale: math.NewVec2(1, 1),
			Lists:            []DrawList{{Vertices: make([]OverlayVertex, 3), Indices: []uint16{0, 1, 2}, Commands: []DrawCmd{{ElemCount: 3}}}},
		}
	}))
	sub := h.frame(t)
	assert.Len(t, gputest.Find(sub.Commands, gputest.OpBeginRenderPass), 1)
}

func TestFrameSortsDrawables(t *testing.T) {
	h := newHarness(t)
	h.camera()
	cube := assets.NewCube(1)
	glass := assets.NewMaterial("glass")
	glass.Opaque = false
	stone := assets.NewMaterial("stone")

	h.spawn("t1", math.NewVec3(0, 0, 1), cube, glass)
	h.spawn("o4", math.NewVec3(0, 0, 4), cube, stone)
	h.spawn("t5", math.NewVec3(0, 0, 5), cube, glass)
	h.spawn("o2", math.NewVec3(0, 0, 2), cube, stone)
	h.spawn("t3", math.NewVec3(0, 0, 3), cube, glass)

	sub := h.frame(t)
	assert.Equal(t, []float32{2, 4, 5, 3, 1}, pushedZ(sub.Commands))
	assert.Equal(t, 5, h.metrics.DrawCalls)

	labels := gputest.Find(sub.Commands, gputest.OpBeginLabel)
	var names []string
	for _, l := range labels {
		names = append(names, l.Label)
	}
	assert.Contains(t, names, "opaque")
	assert.Contains(t, names, "translucent")
}

func TestFrameSharesMeshesAndMaterials(t *testing.T) {
	h := newHarness(t)
	h.camera()
	cube := assets.NewCube(1)
	brick := assets.NewMaterial("brick")
	brick.AlbedoMap = assets.NewSolidTexture("brick", 200, 80, 40, 255)

	h.spawn("a", math.NewVec3(-1, 0, 5), cube, brick)
	h.spawn("b", math.NewVec3(1, 0, 5), cube, brick)
	hidden := h.spawn("hidden", math.NewVec3(0, 0, 5), assets.NewQuad(1, 1), brick)
	info, _ := scene.Get[scene.Info](h.world, hidden)
	info.Visible = false

	sub := h.frame(t)
	assert.Equal(t, 1, h.r.Meshes().Len())
	assert.Equal(t, 1, h.r.Textures().Len())
	require.Equal(t, 1, h.r.materials.Len())
	assert.Equal(t, uint32(1), h.r.materials.Items()[0].AlbedoTextureI)
	assert.Equal(t, uint32(1), h.r.materials.Items()[0].Opaque)

	draws := gputest.Find(sub.Commands, gputest.OpDrawIndexed)
	require.Len(t, draws, 2)
	assert.Equal(t, uint32(36), draws[0].Count)

	h.frame(t)
	assert.Equal(t, 1, h.r.Meshes().Len())
	assert.Equal(t, 1, h.r.materials.Len())
}

func TestFrameCollectsLights(t *testing.T) {
	h := newHarness(t)
	h.camera()

	point := h.world.Spawn("point", scene.NoEntity)
	tr, _ := scene.Get[scene.Transform](h.world, point)
	tr.Position = math.NewVec3(1, 2, 3)
	scene.Add(h.world, point, scene.PointLight{Color: math.NewVec3(1, 0.5, 0), Intensity: 2})

	sun := h.world.Spawn("sun", scene.NoEntity)
	scene.Add(h.world, sun, scene.DirectionalLight{Color: math.NewVec3One(), Intensity: 1, Direction: math.NewVec3(0, -2, 0)})

	off := h.world.Spawn("off", scene.NoEntity)
	scene.Add(h.world, off, scene.PointLight{Color: math.NewVec3One(), Intensity: 1})
	info, _ := scene.Get[scene.Info](h.world, off)
	info.Visible = false

	h.frame(t)
	assert.Equal(t, 2, h.metrics.Lights)
	lights := h.r.lights.Items()
	require.Len(t, lights, 2)
	assert.Equal(t, LightPoint, lights[0].Type)
	assert.Equal(t, math.NewVec3(1, 2, 3), lights[0].Data)
	assert.Equal(t, math.NewVec3(2, 1, 0), lights[0].Color)
	assert.Equal(t, LightDirectional, lights[1].Type)
	assert.True(t, lights[1].Data.Compare(math.NewVec3(0, 1, 0), 1e-6))
}

func TestFrameSkippedWhenNoImage(t *testing.T) {
	h := newHarness(t)
	h.camera()
	h.driver.SkipAcquires = 1

	require.NoError(t, h.r.Frame(0.016))
	assert.Empty(t, h.driver.FrameSubmissions())
	assert.Empty(t, h.driver.Presents)
	assert.Equal(t, 1, h.metrics.SkippedFrame)

	h.frame(t)
	assert.Len(t, h.driver.FrameSubmissions(), 1)
}

func TestFrameRecreatesDepthOnResize(t *testing.T) {
	h := newHarness(t)
	h.camera()
	h.frame(t)

	h.driver.Resize(gpu.Extent{Width: 1024, Height: 768})
	h.frame(t)

	var depth []gpu.ImageDesc
	for _, desc := range h.driver.Images {
		if desc.Format == gpu.FormatD32Sfloat {
			depth = append(depth, desc)
		}
	}
	require.Len(t, depth, 1)
	assert.Equal(t, gpu.Extent{Width: 1024, Height: 768}, depth[0].Extent)
}

func TestShaderChangeRebuildsPipelines(t *testing.T) {
	h := newHarness(t)
	h.camera()
	h.spawn("cube", math.NewVec3(0, 0, 5), assets.NewCube(1), nil)
	h.frame(t)
	require.Equal(t, 1, h.driver.Created["pipeline"])

	h.bus.Fire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: core.AssetChangedEvent{Path: "textures/a.png"}})
	h.frame(t)
	assert.Equal(t, 1, h.driver.Created["pipeline"])

	h.bus.Fire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: core.AssetChangedEvent{Path: "shaders/mesh.frag.spv"}})
	h.frame(t)
	assert.Equal(t, 2, h.driver.Created["pipeline"])
	assert.Len(t, h.driver.Pipelines, 1)
}

func TestFrameWithBloom(t *testing.T) {
	h := newHarness(t, func(cfg *core.EngineConfig) {
		cfg.Bloom.Enabled = true
	})
	h.camera()
	h.spawn("cube", math.NewVec3(0, 0, 5), assets.NewCube(1), nil)

	for i := 0; i < 2; i++ {
		sub := h.frame(t)
		passes := gputest.Find(sub.Commands, gputest.OpBeginRenderPass)
		require.Len(t, passes, 1+2*(bloomLevels-1))
		assert.Equal(t, gpu.FormatRGBA16Sfloat, passes[0].RenderPass.Colors[0].Format)
		assert.Equal(t, gpu.LoadOpDontCare, passes[1].RenderPass.Colors[0].Load)
		assert.Equal(t, gpu.Extent{Width: 400, Height: 300}, passes[1].RenderPass.Extent)
		assert.Equal(t, gpu.LoadOpLoad, passes[len(passes)-1].RenderPass.Colors[0].Load)
		assert.Equal(t, gpu.Extent{Width: 800, Height: 600}, passes[len(passes)-1].RenderPass.Extent)
		assert.Len(t, gputest.Find(sub.Commands, gputest.OpBlitImage), 1)
	}
	assert.Equal(t, 3, h.driver.Created["pipeline"])
}

func TestClipToFramebuffer(t *testing.T) {
	data := &DrawData{
		DisplayPos:       math.NewVec2(10, 10),
		DisplaySize:      math.NewVec2(100, 100),
		FramebufferScale: math.NewVec2(2, 2),
	}
	rect, ok := clipToFramebuffer(math.Vec4{X: 0, Y: 20, Z: 60, W: 200}, data, 200, 200)
	require.True(t, ok)
	assert.Equal(t, gpu.Rect{X: 0, Y: 20, Width: 100, Height: 180}, rect)

	_, ok = clipToFramebuffer(math.Vec4{X: 50, Y: 50, Z: 50, W: 80}, data, 200, 200)
	assert.False(t, ok)
}

func overlayQuad(display math.Vec2, clip math.Vec4) *DrawData {
	return &DrawData{
		DisplaySize:      display,
		FramebufferScale: math.NewVec2(1, 1),
		Lists: []DrawList{{
			Vertices: make([]OverlayVertex, 4),
			Indices:  []uint16{0, 1, 2, 2, 3, 0},
			Commands: []DrawCmd{{ClipRect: clip, ElemCount: 6}},
		}},
	}
}

func TestEmptySceneClearsToEnvironment(t *testing.T) {
	h := newHarness(t)
	cam, ok := scene.Get[scene.Camera](h.world, h.camera())
	require.True(t, ok)
	cam.Environment.ClearColor = math.NewVec3(0.1, 0.2, 0.3)
	h.r.SetUI(uiFunc(func(extent gpu.Extent) *DrawData {
		return overlayQuad(math.NewVec2(float32(extent.Width), float32(extent.Height)), math.Vec4{Z: 100, W: 100})
	}))

	sub := h.frame(t)
	passes := gputest.Find(sub.Commands, gputest.OpBeginRenderPass)
	require.Len(t, passes, 2)
	color := passes[0].RenderPass.Colors[0].Clear.Color
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3, 1}, color[:], 1e-6)
	require.NotNil(t, passes[0].RenderPass.Depth)
	assert.Equal(t, gpu.LoadOpLoad, passes[1].RenderPass.Colors[0].Load)

	assert.Empty(t, gputest.Find(sub.Commands, gputest.OpDraw))
	assert.Empty(t, pushedZ(sub.Commands))
	// the only indexed draw is the overlay quad
	draws := gputest.Find(sub.Commands, gputest.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(6), draws[0].Count)
	assert.Zero(t, h.metrics.Lights)
	assert.Equal(t, []uint32{0}, h.driver.Presents)
}

func TestOverlayScissorStaysInsideTarget(t *testing.T) {
	h := newHarness(t)
	h.r.SetUI(uiFunc(func(extent gpu.Extent) *DrawData {
		display := math.NewVec2(float32(extent.Width*2), float32(extent.Height*2))
		return overlayQuad(display, math.Vec4{X: 700, Y: 500, Z: 1500, W: 1100})
	}))

	sub := h.frame(t)
	scissors := gputest.Find(sub.Commands, gputest.OpSetScissor)
	require.NotEmpty(t, scissors)
	assert.Equal(t, gpu.Rect{X: 700, Y: 500, Width: 100, Height: 100}, scissors[len(scissors)-1].Scissor)
	assert.Len(t, gputest.Find(sub.Commands, gputest.OpDrawIndexed), 1)
}
