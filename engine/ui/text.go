package ui

import (
	"unicode/utf8"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/render"
)

const maxListVertices = 1 << 16

type Color [4]uint8

var (
	White = Color{255, 255, 255, 255}
	Black = Color{0, 0, 0, 255}
)

// quadIndices triangulates the vertex order p0, p2, p3, p1.
var quadIndices = [6]uint16{2, 1, 0, 3, 0, 1}

// Batch accumulates quads into one overlay draw list.
type Batch struct {
	List render.DrawList
	Clip math.Vec4
}

func NewBatch(clip math.Vec4) *Batch {
	return &Batch{Clip: clip}
}

// quad appends a rectangle sampling [uv0, uv1] of tex.
func (b *Batch) quad(tex render.TextureID, p0, p1, uv0, uv1 math.Vec2, color Color) bool {
	if len(b.List.Vertices)+4 > maxListVertices {
		return false
	}
	base := uint16(len(b.List.Vertices))
	b.List.Vertices = append(b.List.Vertices,
		render.OverlayVertex{Pos: p0, UV: uv0, Color: color},
		render.OverlayVertex{Pos: p1, UV: uv1, Color: color},
		render.OverlayVertex{Pos: math.NewVec2(p0.X, p1.Y), UV: math.NewVec2(uv0.X, uv1.Y), Color: color},
		render.OverlayVertex{Pos: math.NewVec2(p1.X, p0.Y), UV: math.NewVec2(uv1.X, uv0.Y), Color: color},
	)

	// Extend the last command when it samples the same texture.
	cmds := b.List.Commands
	if n := len(cmds); n == 0 || cmds[n-1].Texture != tex || cmds[n-1].ClipRect != b.Clip {
		b.List.Commands = append(b.List.Commands, render.DrawCmd{
			ClipRect:  b.Clip,
			Texture:   tex,
			IdxOffset: uint32(len(b.List.Indices)),
		})
	}
	for _, i := range quadIndices {
		b.List.Indices = append(b.List.Indices, base+i)
	}
	b.List.Commands[len(b.List.Commands)-1].ElemCount += uint32(len(quadIndices))
	return true
}

// Rect fills an untextured rectangle.
func (b *Batch) Rect(min, max math.Vec2, color Color) {
	b.quad(0, min, max, math.Vec2{}, math.Vec2{}, color)
}

// Text lays out s with its top left corner at origin and returns the pen
// position after the last character.
func (b *Batch) Text(font *FontAtlas, tex render.TextureID, s string, origin math.Vec2, color Color) math.Vec2 {
	x, y := float32(0), float32(0)
	atlasW, atlasH := float32(font.Width), float32(font.Height)

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			core.LogWarn("invalid UTF-8 in overlay text at byte %d", i)
		}
		i += size

		switch r {
		case '\n':
			x = 0
			y += float32(font.LineHeight)
			continue
		case '\t':
			x += float32(font.TabAdvance)
			continue
		}

		g, ok := font.glyph(r)
		if !ok {
			continue
		}
		if g.Width > 0 && g.Height > 0 {
			minX := origin.X + x + float32(g.XOffset)
			minY := origin.Y + y + float32(g.YOffset)
			p0 := math.NewVec2(minX, minY)
			p1 := math.NewVec2(minX+float32(g.Width), minY+float32(g.Height))
			uv0 := math.NewVec2(float32(g.X)/atlasW, float32(g.Y)/atlasH)
			uv1 := math.NewVec2(float32(g.X+g.Width)/atlasW, float32(g.Y+g.Height)/atlasH)
			if !b.quad(tex, p0, p1, uv0, uv1, color) {
				break
			}
		}

		x += float32(g.XAdvance)
		if i < len(s) {
			next, _ := utf8.DecodeRuneInString(s[i:])
			x += float32(font.Kerning(r, next))
		}
	}
	return math.NewVec2(origin.X+x, origin.Y+y)
}

// Measure returns the size of the text block s.
func Measure(font *FontAtlas, s string) math.Vec2 {
	var width, lineWidth float32
	lines := 1
	for _, r := range s {
		switch r {
		case '\n':
			width = max(width, lineWidth)
			lineWidth = 0
			lines++
			continue
		case '\t':
			lineWidth += float32(font.TabAdvance)
			continue
		}
		if g, ok := font.glyph(r); ok {
			lineWidth += float32(g.XAdvance)
		}
	}
	return math.NewVec2(max(width, lineWidth), float32(lines*font.LineHeight))
}
