package testbed

import (
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/abyss/engine"
	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/scene"
)

const (
	scatterCount = 64
	lightCount   = 4
	scatterSeed  = 1337
)

var tempMoveSpeed float32 = 15.0

type TestGame struct {
	*engine.Game
}

type gameState struct {
	camera  scene.Entity
	spinner scene.Entity

	width  uint32
	height uint32
}

func NewTestGame(config *core.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Config: config,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	w := g.World

	state.camera = w.Spawn("camera", scene.NoEntity)
	scene.Add(w, state.camera, scene.NewCamera(60, 0.1, 500))
	scene.Add(w, state.camera, scene.NewFlyCamera(tempMoveSpeed))
	cam, _ := scene.Get[scene.Camera](w, state.camera)
	cam.Environment.ClearColor = math.NewVec3(0.05, 0.06, 0.09)
	cam.Environment.AmbientStrength = 1.5
	if t, ok := scene.Get[scene.Transform](w, state.camera); ok {
		t.Position = math.NewVec3(0, 6, -30)
	}

	ground := assets.NewMaterial("ground")
	ground.Albedo = math.NewVec4(0.4, 0.4, 0.45, 1)
	floor := w.Spawn("floor", scene.NoEntity)
	scene.Add(w, floor, scene.MeshInstance{Mesh: assets.NewPlane(80, 80, 8), Material: ground})

	g.spawnSpinner(state)
	g.scatter(rand.New(rand.NewSource(scatterSeed)))

	sun := w.Spawn("sun", scene.NoEntity)
	scene.Add(w, sun, scene.DirectionalLight{
		Color:     math.NewVec3(1, 0.95, 0.85),
		Intensity: 0.6,
		Direction: math.NewVec3(-0.3, -1, 0.4),
	})
	return nil
}

// spawnSpinner builds three nested cubes, each parented to the previous one.
func (g *TestGame) spawnSpinner(state *gameState) {
	w := g.World
	mat := assets.NewMaterial("spinner")
	mat.Albedo = math.NewVec4(0.9, 0.3, 0.2, 1)

	parent := scene.NoEntity
	offsets := []math.Vec3{{Y: 6}, {X: 10, Z: 1}, {X: 5, Z: 1}}
	sizes := []float32{10, 5, 2}
	for i, size := range sizes {
		e := w.Spawn("spinner", parent)
		scene.Add(w, e, scene.MeshInstance{Mesh: assets.NewCube(size), Material: mat})
		if t, ok := scene.Get[scene.Transform](w, e); ok {
			t.Position = offsets[i]
		}
		if parent == scene.NoEntity {
			state.spinner = e
		}
		parent = e
	}
}

func (g *TestGame) scatter(rng *rand.Rand) {
	w := g.World
	cube := assets.NewCube(1)

	for i := 0; i < scatterCount; i++ {
		mat := assets.NewMaterial("scatter")
		mat.Albedo = math.NewVec4(rng.Float32(), rng.Float32(), rng.Float32(), 1)
		mat.Roughness = rng.Float32()
		if i%4 == 0 {
			mat.Albedo.W = 0.5
			mat.Opaque = false
		}
		e := w.Spawn("scatter", scene.NoEntity)
		scene.Add(w, e, scene.MeshInstance{Mesh: cube, Material: mat})
		if t, ok := scene.Get[scene.Transform](w, e); ok {
			t.Position = math.NewVec3(rng.Float32()*60-30, rng.Float32()*4+0.5, rng.Float32()*60-30)
			t.Scale = math.NewVec3One().MulScalar(rng.Float32()*1.5 + 0.5)
		}
	}

	for i := 0; i < lightCount; i++ {
		e := w.Spawn("light", scene.NoEntity)
		scene.Add(w, e, scene.PointLight{
			Color:     math.NewVec3(rng.Float32(), rng.Float32(), rng.Float32()),
			Intensity: 20,
		})
		if t, ok := scene.Get[scene.Transform](w, e); ok {
			t.Position = math.NewVec3(rng.Float32()*40-20, 4, rng.Float32()*40-20)
		}
	}
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	dt := float32(deltaTime)

	if t, ok := scene.Get[scene.Transform](g.World, state.spinner); ok {
		t.Rotate(math.NewQuatFromAxisAngle(math.NewVec3Up(), 0.5*dt))
	}

	t, ok := scene.Get[scene.Transform](g.World, state.camera)
	fly, hasFly := scene.Get[scene.FlyCamera](g.World, state.camera)
	if !ok || !hasFly {
		return nil
	}
	in := g.Input
	if in.IsKeyDown(core.KEY_A) || in.IsKeyDown(core.KEY_LEFT) {
		fly.Yaw(dt)
	}
	if in.IsKeyDown(core.KEY_D) || in.IsKeyDown(core.KEY_RIGHT) {
		fly.Yaw(-dt)
	}
	if in.IsButtonDown(core.BUTTON_RIGHT) {
		_, dy := in.MouseDelta()
		fly.Pitch(float32(-dy) * 0.005)
	}

	var forward, up float32
	if in.IsKeyDown(core.KEY_W) || in.IsKeyDown(core.KEY_UP) {
		forward++
	}
	if in.IsKeyDown(core.KEY_S) || in.IsKeyDown(core.KEY_DOWN) {
		forward--
	}
	if in.IsKeyDown(core.KEY_E) {
		up++
	}
	if in.IsKeyDown(core.KEY_Q) {
		up--
	}
	fly.Apply(t, forward, 0, up, dt)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed")
	return nil
}
