package loaders

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func TestParseMaterial(t *testing.T) {
	src := `
# brick wall
name = brick
albedo = 0.8 0.4 0.2 1.0
albedo_map = textures/brick.png
roughness = 0.7
metallic = 0.1
emissive = 0 0 0.5
alpha_cutoff = 0.25
opaque = false
unknown = ignored
`
	m, err := ParseMaterial(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "brick", m.Name)
	assert.InDelta(t, 0.8, m.Albedo.X, 1e-6)
	assert.InDelta(t, 1.0, m.Albedo.W, 1e-6)
	assert.Equal(t, "textures/brick.png", m.AlbedoMap)
	assert.InDelta(t, 0.7, m.Roughness, 1e-6)
	assert.InDelta(t, 0.1, m.Metallic, 1e-6)
	assert.InDelta(t, 0.5, m.Emissive.Z, 1e-6)
	assert.InDelta(t, 0.25, m.AlphaCutoff, 1e-6)
	assert.False(t, m.Opaque)
}

func TestParseMaterialDefaultsAndErrors(t *testing.T) {
	m, err := ParseMaterial(strings.NewReader("name = plain\n"))
	require.NoError(t, err)
	assert.True(t, m.Opaque)
	assert.InDelta(t, 1.0, m.Roughness, 1e-6)
	assert.InDelta(t, 0.5, m.AlphaCutoff, 1e-6)

	_, err = ParseMaterial(strings.NewReader("albedo = 1 1 1 1\n"))
	assert.Error(t, err, "name is required")

	_, err = ParseMaterial(strings.NewReader("name = x\nalbedo = 1 1\n"))
	assert.Error(t, err)

	_, err = ParseMaterial(strings.NewReader("name = x\nroughness = 2\n"))
	assert.Error(t, err)
}

func TestParseOBJQuad(t *testing.T) {
	src := `
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "quad", m.Name)
	assert.Len(t, m.Positions, 4)
	assert.Len(t, m.UVs, 4)
	assert.Len(t, m.Normals, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	assert.InDelta(t, 1.0, m.UVs[0].Y, 1e-6)
}

func TestParseOBJSharesVerticesAndNegativeIndices(t *testing.T) {
	src := `
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
f 1 2 3
f -3 -1 -2
`
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Positions, 4)
	assert.Empty(t, m.UVs)
	assert.Empty(t, m.Normals)
	assert.Equal(t, []uint32{0, 1, 2, 1, 3, 2}, m.Indices)
}

func TestParseOBJErrors(t *testing.T) {
	_, err := ParseOBJ(strings.NewReader("v 0 0 0\n"))
	assert.Error(t, err)
	_, err = ParseOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"))
	assert.Error(t, err)
	_, err = ParseOBJ(strings.NewReader("v 0 0\n"))
	assert.Error(t, err)
}

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	good := make([]byte, 20)
	binary.LittleEndian.PutUint32(good, spirvMagic)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.spv"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.spv"), []byte("not spirv at all!!!!"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.spv"), good[:7], 0o644))

	sl := &ShaderLoader{}
	data, err := sl.Load(filepath.Join(dir, "good.spv"))
	require.NoError(t, err)
	assert.Equal(t, good, data)

	_, err = sl.Load(filepath.Join(dir, "bad.spv"))
	assert.Error(t, err)
	_, err = sl.Load(filepath.Join(dir, "short.spv"))
	assert.Error(t, err)
	_, err = sl.Load(filepath.Join(dir, "missing.spv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageLoader(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	path := filepath.Join(dir, "red.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	out, err := (&ImageLoader{}).Load(path)
	require.NoError(t, err)
	decoded := out.(image.Image)
	assert.Equal(t, image.Rect(0, 0, 3, 2), decoded.Bounds())
	r, _, _, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestSystemFontLoader(t *testing.T) {
	face, err := (&SystemFontLoader{Size: 12}).Parse(goregular.TTF)
	require.NoError(t, err)
	defer face.Close()
	adv, ok := face.GlyphAdvance('A')
	assert.True(t, ok)
	assert.Greater(t, adv.Ceil(), 0)

	_, err = (&SystemFontLoader{}).Parse([]byte("nope"))
	assert.Error(t, err)
}
