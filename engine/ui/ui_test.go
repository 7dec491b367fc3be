package ui

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"

	"github.com/spaghettifunk/abyss/engine/assets/loaders"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/render"
)

func TestFaceAtlas(t *testing.T) {
	atlas := NewFaceAtlas("basic", basicfont.Face7x13)
	assert.Equal(t, 13, atlas.LineHeight)
	assert.Equal(t, 7*tabSpaces, atlas.TabAdvance)
	assert.Len(t, atlas.Pixels, atlas.Width*atlas.Height*4)

	a, ok := atlas.Glyphs['A']
	require.True(t, ok)
	assert.Equal(t, 7, a.XAdvance)
	assert.Equal(t, 6, a.Width)
	assert.Equal(t, 13, a.Height)
	assert.Zero(t, a.YOffset)

	var covered bool
	for y := a.Y; y < a.Y+a.Height; y++ {
		for x := a.X; x < a.X+a.Width; x++ {
			if atlas.Pixels[(y*atlas.Width+x)*4+3] > 0 {
				covered = true
			}
		}
	}
	assert.True(t, covered, "glyph A has no coverage in the atlas")
	assert.Zero(t, atlas.Kerning('A', 'V'))
}

func TestBitmapAtlas(t *testing.T) {
	page := image.NewGray(image.Rect(0, 0, 16, 8))
	page.SetGray(1, 1, color.Gray{Y: 255})
	bf := &loaders.BitmapFont{
		Face:       "test",
		LineHeight: 10,
		AtlasSizeX: 16,
		AtlasSizeY: 8,
		Glyphs: map[rune]loaders.FontGlyph{
			'A': {Codepoint: 'A', X: 0, Y: 0, Width: 4, Height: 8, XAdvance: 5},
			'V': {Codepoint: 'V', X: 4, Y: 0, Width: 4, Height: 8, XAdvance: 5},
			' ': {Codepoint: ' ', XAdvance: 3},
		},
		Kernings: map[[2]rune]int{{'A', 'V'}: -1},
		Atlas:    page,
	}
	atlas, err := NewBitmapAtlas(bf)
	require.NoError(t, err)
	assert.Equal(t, 16, atlas.Width)
	assert.Equal(t, 12, atlas.TabAdvance)
	assert.Equal(t, []byte{255, 255, 255, 255}, atlas.Pixels[(1*16+1)*4:(1*16+1)*4+4])

	batch := NewBatch(math.Vec4{Z: 100, W: 100})
	end := batch.Text(atlas, 1, "AV", math.Vec2{}, White)
	assert.Equal(t, float32(9), end.X, "kerning pulls V one pixel left")
	require.Len(t, batch.List.Vertices, 8)
	assert.Equal(t, math.NewVec2(4, 0), batch.List.Vertices[4].Pos)

	_, err = NewBitmapAtlas(&loaders.BitmapFont{Face: "empty"})
	assert.Error(t, err)
}

func TestBatchText(t *testing.T) {
	atlas := NewFaceAtlas("basic", basicfont.Face7x13)
	batch := NewBatch(math.Vec4{Z: 800, W: 600})

	end := batch.Text(atlas, 3, "AB\nC\tD", math.NewVec2(10, 20), White)
	assert.Equal(t, math.NewVec2(10+7+28+7, 20+13), end)

	require.Len(t, batch.List.Vertices, 16)
	require.Len(t, batch.List.Indices, 24)
	assert.Equal(t, []uint16{2, 1, 0, 3, 0, 1}, batch.List.Indices[:6])
	assert.Equal(t, []uint16{6, 5, 4, 7, 4, 5}, batch.List.Indices[6:12])

	// C starts the second line.
	c := batch.List.Vertices[8]
	assert.Equal(t, math.NewVec2(10, 33), c.Pos)

	require.Len(t, batch.List.Commands, 1)
	assert.Equal(t, uint32(24), batch.List.Commands[0].ElemCount)
	assert.Equal(t, render.TextureID(3), batch.List.Commands[0].Texture)

	batch.Rect(math.Vec2{}, math.NewVec2(5, 5), Black)
	require.Len(t, batch.List.Commands, 2)
	assert.Equal(t, uint32(24), batch.List.Commands[1].IdxOffset)
	assert.Equal(t, render.TextureID(0), batch.List.Commands[1].Texture)
}

func TestMeasure(t *testing.T) {
	atlas := NewFaceAtlas("basic", basicfont.Face7x13)
	assert.Equal(t, math.NewVec2(21, 26), Measure(atlas, "ab\ncde"))
	assert.Equal(t, math.NewVec2(0, 13), Measure(atlas, ""))
}

func TestHUDBuild(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	overlay, err := render.NewOverlay(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(overlay.Destroy)

	metrics := core.NewMetrics()
	metrics.DrawCalls = 12
	metrics.Lights = 2
	metrics.GPUTimings["scene"] = 1500 * time.Microsecond

	hud, err := NewHUD(ctx, overlay, NewFaceAtlas("basic", basicfont.Face7x13), metrics)
	require.NoError(t, err)
	t.Cleanup(hud.Destroy)
	assert.Contains(t, driver.Images, hud.image.Handle)

	data := hud.Build(gpu.Extent{Width: 640, Height: 480})
	require.NotNil(t, data)
	assert.Equal(t, math.NewVec2(640, 480), data.DisplaySize)
	require.Len(t, data.Lists, 1)
	cmds := data.Lists[0].Commands
	require.Len(t, cmds, 2)
	assert.Equal(t, render.TextureID(0), cmds[0].Texture)
	assert.Equal(t, hud.texture, cmds[1].Texture)
	assert.Contains(t, hud.Text(), "draws 12  lights 2")
	assert.Contains(t, hud.Text(), "gpu scene\t1.500 ms")

	hud.Visible = false
	assert.Nil(t, hud.Build(gpu.Extent{Width: 640, Height: 480}))
}
