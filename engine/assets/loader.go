package assets

import "github.com/spaghettifunk/abyss/engine/assets/loaders"

// Loader reads one file into its raw decoded form. The returned value is
// converted into an engine asset by the Manager.
type Loader interface {
	Load(path string) (interface{}, error)
}

var (
	_ Loader = (*loaders.ShaderLoader)(nil)
	_ Loader = (*loaders.ImageLoader)(nil)
	_ Loader = (*loaders.MaterialLoader)(nil)
	_ Loader = (*loaders.ModelLoader)(nil)
	_ Loader = (*loaders.BitmapFontLoader)(nil)
	_ Loader = (*loaders.SystemFontLoader)(nil)
)
