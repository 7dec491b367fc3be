package engine

import (
	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/scene"
)

// Game is the application side of the engine. The engine fills World, Assets
// and Input before FnInitialize runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	World             *scene.World
	Assets            *assets.Manager
	Input             *core.Input
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
