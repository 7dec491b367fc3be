package engine

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/image/font/basicfont"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/platform"
	"github.com/spaghettifunk/abyss/engine/render"
	"github.com/spaghettifunk/abyss/engine/renderer/vulkan"
	"github.com/spaghettifunk/abyss/engine/scene"
	"github.com/spaghettifunk/abyss/engine/systems"
	"github.com/spaghettifunk/abyss/engine/ui"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.EngineConfig
	isRunning    bool
	isSuspended  bool
	stop         atomic.Bool

	events   *core.EventBus
	input    *core.Input
	metrics  *core.Metrics
	clock    *core.Clock
	platform *platform.Platform
	driver   *vulkan.Driver
	gpu      *gpu.Context
	jobs     *systems.JobSystem
	assets   *assets.Manager
	world    *scene.World
	renderer *render.Renderer
	hud      *ui.HUD

	listeners []listener
	width     uint32
	height    uint32
	lastTime  float64
}

type listener struct {
	code core.EventCode
	id   uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		return nil, fmt.Errorf("%w: game has no application config", core.ErrInvalidConfig)
	}
	config := g.ApplicationConfig.engineConfig()
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(config.Log.Level)

	events := core.NewEventBus()
	input := core.NewInput(events)
	p, err := platform.New(input, events)
	if err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		events:       events,
		input:        input,
		metrics:      core.NewMetrics(),
		clock:        core.NewClock(),
		platform:     p,
		world:        scene.NewWorld(),
		width:        config.Window.Width,
		height:       config.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	e.listen(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.listen(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.listen(core.EVENT_CODE_RESIZED, e.onResized)

	if err := e.platform.Startup(cfg.Window.Name, cfg.Window.X, cfg.Window.Y, cfg.Window.Width, cfg.Window.Height); err != nil {
		return err
	}
	e.width, e.height = e.platform.FramebufferSize()

	e.driver = vulkan.New(e.platform, cfg.Renderer)
	if err := e.driver.Initialize(cfg.Window.Name, e.width, e.height); err != nil {
		return err
	}
	ctx, err := gpu.NewContext(e.driver, gpu.ConfigFromRenderer(cfg.Renderer))
	if err != nil {
		return err
	}
	e.gpu = ctx

	workers := max(runtime.NumCPU()-1, 1)
	if e.jobs, err = systems.NewJobSystem(workers, 64); err != nil {
		return err
	}

	// Watches the root when hot reload is on.
	if e.assets, err = assets.NewManager(cfg.Assets, cfg.Renderer.ShaderDir, e.events, e.jobs); err != nil {
		return err
	}

	if e.renderer, err = render.New(e.gpu, e.world, e.assets, e.events, cfg, e.metrics); err != nil {
		return err
	}

	atlas, err := hudAtlas(e.assets, e.gameInstance.ApplicationConfig)
	if err != nil {
		return err
	}
	if e.hud, err = ui.NewHUD(e.gpu, e.renderer.Overlay(), atlas, e.metrics); err != nil {
		return err
	}
	e.renderer.SetUI(e.hud)

	e.gameInstance.World = e.world
	e.gameInstance.Assets = e.assets
	e.gameInstance.Input = e.input

	if preload := e.gameInstance.ApplicationConfig.Preload; len(preload) > 0 {
		if err := e.assets.Preload(preload...); err != nil {
			return err
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// hudAtlas picks the stats overlay font from the application config.
func hudAtlas(am *assets.Manager, app *ApplicationConfig) (*ui.FontAtlas, error) {
	if app.HUDFont == "" {
		return ui.NewFaceAtlas("basic", basicfont.Face7x13), nil
	}
	switch strings.ToLower(filepath.Ext(app.HUDFont)) {
	case ".fnt":
		bf, err := am.LoadBitmapFont(app.HUDFont)
		if err != nil {
			return nil, err
		}
		return ui.NewBitmapAtlas(bf)
	case ".ttf", ".otf", ".ttc":
		size := app.HUDFontSize
		if size <= 0 {
			size = 14
		}
		face, err := am.LoadFontFace(app.HUDFont, size)
		if err != nil {
			return nil, err
		}
		return ui.NewFaceAtlas(app.HUDFont, face), nil
	}
	return nil, fmt.Errorf("%w: unsupported hud font %s", core.ErrInvalidConfig, app.HUDFont)
}

func (e *Engine) listen(code core.EventCode, fn core.FnOnEvent) {
	e.listeners = append(e.listeners, listener{code: code, id: e.events.Register(code, fn)})
}

// Stop asks the loop to exit after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.platform.PumpMessages() || e.stop.Load() {
			e.isRunning = false
			break
		}

		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if n := e.assets.Poll(); n > 0 {
			core.LogDebug("%d assets changed on disk", n)
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				e.isRunning = false
				return err
			}
		}

		if err := e.renderer.Frame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning = false
			return err
		}

		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(frameElapsedTime)

		// Input state is copied last so this frame's presses are visible to
		// everything above.
		e.input.Update()

		e.lastTime = currentTime
	}

	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.gpu != nil {
		if err := e.gpu.WaitIdle(); err != nil {
			core.LogWarn("wait idle failed: %s", err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err)
		}
	}
	for _, l := range e.listeners {
		e.events.Unregister(l.code, l.id)
	}
	e.listeners = nil

	if e.hud != nil {
		e.hud.Destroy()
	}
	if e.renderer != nil {
		e.renderer.Destroy()
	}
	if e.assets != nil {
		if err := e.assets.Close(); err != nil {
			core.LogWarn("closing asset manager: %s", err)
		}
	}
	if e.jobs != nil {
		_ = e.jobs.Shutdown()
	}
	if e.gpu != nil {
		e.gpu.Destroy()
	}
	if e.driver != nil {
		if err := e.driver.Shutdown(); err != nil {
			return err
		}
	}
	return e.platform.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		e.stop.Store(true)
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// Firing to itself, other listeners may care about quit too.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	case core.KEY_F1:
		if e.hud != nil {
			e.hud.Visible = !e.hud.Visible
		}
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if re.Width == e.width && re.Height == e.height {
		return false
	}
	e.width, e.height = re.Width, re.Height
	core.LogDebug("Window resize: %d, %d", re.Width, re.Height)

	// Handle minimization
	if re.Width == 0 || re.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(re.Width, re.Height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
