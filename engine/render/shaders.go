package render

import (
	"path"
	"strings"

	"github.com/spaghettifunk/abyss/engine/gpu"
)

// ShaderSource resolves a shader name like "mesh.vert" to SPIR-V.
type ShaderSource interface {
	LoadShader(name string) ([]byte, error)
}

// buildPipeline loads the two shaders and creates the pipeline. Fresh modules
// are created every time, so reflection of reloaded code is never stale.
func buildPipeline(ctx *gpu.Context, shaders ShaderSource, vert, frag string, opts gpu.GraphicsPipelineOptions) (*gpu.GraphicsPipeline, error) {
	vs, err := shaders.LoadShader(vert)
	if err != nil {
		return nil, err
	}
	fs, err := shaders.LoadShader(frag)
	if err != nil {
		return nil, err
	}
	opts.VertexShader = gpu.NewShaderModule(vert, vs)
	opts.FragmentShader = gpu.NewShaderModule(frag, fs)
	p, err := ctx.Pipelines.Create(opts)
	ctx.Pipelines.Forget(opts.VertexShader)
	ctx.Pipelines.Forget(opts.FragmentShader)
	return p, err
}

// shaderName maps a changed asset path such as "shaders/mesh.frag.spv" to
// "mesh.frag". It returns false for anything that is not compiled SPIR-V.
func shaderName(assetPath string) (string, bool) {
	if path.Ext(assetPath) != ".spv" {
		return "", false
	}
	return strings.TrimSuffix(path.Base(assetPath), ".spv"), true
}
