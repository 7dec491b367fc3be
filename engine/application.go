package engine

import (
	"github.com/spaghettifunk/abyss/engine/core"
)

type ApplicationConfig struct {
	// Engine configuration, usually loaded with core.LoadConfig.
	Config *core.EngineConfig
	// Font used by the stats overlay, relative to the assets root. Accepts
	// AngelCode .fnt files and TrueType/OpenType fonts. Empty uses the
	// built in 7x13 face.
	HUDFont string
	// Point size for TrueType/OpenType HUD fonts.
	HUDFontSize float64
	// Textures and meshes loaded on the job system before the first frame.
	Preload []string
}

func (a *ApplicationConfig) engineConfig() *core.EngineConfig {
	if a.Config == nil {
		a.Config = core.DefaultConfig()
	}
	return a.Config
}
