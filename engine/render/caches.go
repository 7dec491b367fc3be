package render

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

// MeshCache uploads every mesh asset once and hands out the same GPU mesh
// until the asset is evicted.
type MeshCache struct {
	ctx    *gpu.Context
	meshes map[assets.ID]*Mesh
}

func NewMeshCache(ctx *gpu.Context) *MeshCache {
	return &MeshCache{ctx: ctx, meshes: make(map[assets.ID]*Mesh)}
}

func (c *MeshCache) Get(asset assets.Mesh) (*Mesh, error) {
	if m, ok := c.meshes[asset.ID()]; ok {
		return m, nil
	}
	m, err := BuildMesh(c.ctx, asset)
	if err != nil {
		return nil, err
	}
	c.meshes[asset.ID()] = m
	return m, nil
}

func (c *MeshCache) Len() int {
	return len(c.meshes)
}

// Evict destroys the GPU copy of id. The caller must know no frame in flight uses it.
func (c *MeshCache) Evict(id assets.ID) {
	if m, ok := c.meshes[id]; ok {
		m.destroy(c.ctx)
		delete(c.meshes, id)
	}
}

func (c *MeshCache) Clear() {
	for id := range c.meshes {
		c.Evict(id)
	}
}

func (c *MeshCache) Destroy() {
	c.Clear()
}

type cachedTexture struct {
	image *gpu.Image
	index uint32
}

// TextureCache uploads textures and registers them in the bindless texture
// array. Get returns the array index plus one, the value stored in materials.
type TextureCache struct {
	ctx      *gpu.Context
	array    *gpu.TextureArray
	sampler  *gpu.Sampler
	textures map[assets.ID]cachedTexture
}

func NewTextureCache(ctx *gpu.Context, array *gpu.TextureArray) (*TextureCache, error) {
	sampler, err := ctx.CreateSampler(gpu.FilterLinear, gpu.FilterLinear, gpu.AddressModeRepeat)
	if err != nil {
		return nil, err
	}
	return &TextureCache{
		ctx:      ctx,
		array:    array,
		sampler:  sampler,
		textures: make(map[assets.ID]cachedTexture),
	}, nil
}

func textureFormat(f assets.TextureFormat) gpu.Format {
	if f == assets.TextureR8 {
		return gpu.FormatR8Unorm
	}
	return gpu.FormatRGBA8Unorm
}

// Get returns 0 for a nil texture.
func (c *TextureCache) Get(tex assets.Texture) (uint32, error) {
	if tex == nil {
		return 0, nil
	}
	if t, ok := c.textures[tex.ID()]; ok {
		return t.index, nil
	}

	w, h := tex.Size()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("texture %s is empty", tex.ID())
	}
	format := tex.Format()
	pixels := make([]byte, int(w)*int(h)*format.BytesPerPixel())
	tex.Write(pixels)

	img, err := c.ctx.CreateImage(gpu.Extent{Width: w, Height: h}, gpu.ImageUsageSampled|gpu.ImageUsageTransferDst, textureFormat(format))
	if err != nil {
		return 0, err
	}
	if err := c.ctx.UploadImage(img, pixels); err != nil {
		c.ctx.DestroyImage(img)
		return 0, fmt.Errorf("upload texture %s: %w", tex.ID(), err)
	}
	index, err := c.array.Add(img, c.sampler)
	if err != nil {
		c.ctx.DestroyImage(img)
		return 0, err
	}
	core.LogDebug("texture %s uploaded (%dx%d %s) at slot %d", tex.ID(), w, h, format, index)
	c.textures[tex.ID()] = cachedTexture{image: img, index: index}
	return index, nil
}

func (c *TextureCache) Len() int {
	return len(c.textures)
}

// Evict frees the texture of id and its array slot.
func (c *TextureCache) Evict(id assets.ID) {
	t, ok := c.textures[id]
	if !ok {
		return
	}
	c.array.Remove(t.index)
	c.ctx.DestroyImage(t.image)
	delete(c.textures, id)
}

func (c *TextureCache) Clear() {
	for id := range c.textures {
		c.Evict(id)
	}
}

func (c *TextureCache) Destroy() {
	c.Clear()
}
