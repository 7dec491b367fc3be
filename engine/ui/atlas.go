package ui

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/spaghettifunk/abyss/engine/assets/loaders"
)

const (
	atlasWidth  = 256
	glyphMargin = 1
	tabSpaces   = 4
)

// Glyph locates one character in the atlas. Offsets are relative to the top
// of the line.
type Glyph struct {
	X, Y     int
	Width    int
	Height   int
	XOffset  int
	YOffset  int
	XAdvance int
}

/**
 * @brief FontAtlas is a font rasterized into a single straight alpha RGBA8
 * image, ready to be uploaded as an overlay texture.
 */
type FontAtlas struct {
	Name       string
	LineHeight int
	TabAdvance int
	Width      int
	Height     int
	Glyphs     map[rune]Glyph
	// Pixels holds Width*Height RGBA8 texels.
	Pixels []byte

	kern func(a, b rune) int
}

// Kerning returns the extra advance between a and b.
func (f *FontAtlas) Kerning(a, b rune) int {
	if f.kern == nil {
		return 0
	}
	return f.kern(a, b)
}

func (f *FontAtlas) glyph(r rune) (Glyph, bool) {
	if g, ok := f.Glyphs[r]; ok {
		return g, true
	}
	g, ok := f.Glyphs['?']
	return g, ok
}

func (f *FontAtlas) setTabAdvance() {
	if space, ok := f.Glyphs[' ']; ok {
		f.TabAdvance = space.XAdvance * tabSpaces
	} else {
		f.TabAdvance = f.LineHeight * tabSpaces / 2
	}
}

// NewBitmapAtlas uses the page and metrics of an AngelCode bitmap font.
func NewBitmapAtlas(bf *loaders.BitmapFont) (*FontAtlas, error) {
	if bf.Atlas == nil {
		return nil, fmt.Errorf("bitmap font %s has no atlas page", bf.Face)
	}
	bounds := bf.Atlas.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), bf.Atlas, bounds.Min, xdraw.Src)

	atlas := &FontAtlas{
		Name:       bf.Face,
		LineHeight: bf.LineHeight,
		Width:      rgba.Rect.Dx(),
		Height:     rgba.Rect.Dy(),
		Glyphs:     make(map[rune]Glyph, len(bf.Glyphs)),
		Pixels:     rgba.Pix,
		kern:       bf.Kerning,
	}
	for r, g := range bf.Glyphs {
		if g.PageID != 0 {
			continue
		}
		atlas.Glyphs[r] = Glyph{
			X:        g.X,
			Y:        g.Y,
			Width:    g.Width,
			Height:   g.Height,
			XOffset:  g.XOffset,
			YOffset:  g.YOffset,
			XAdvance: g.XAdvance,
		}
	}
	atlas.setTabAdvance()
	return atlas, nil
}

// NewFaceAtlas rasterizes the printable ASCII range of face.
func NewFaceAtlas(name string, face font.Face) *FontAtlas {
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	// Faces may reuse the mask between Glyph calls, so coverage is copied out.
	type placed struct {
		r        rune
		coverage []byte
		glyph    Glyph
	}
	var glyphs []placed
	x, y, rowHeight := glyphMargin, glyphMargin, 0
	for r := rune(32); r < 127; r++ {
		dr, mask, maskp, advance, ok := face.Glyph(fixed.P(0, ascent), r)
		if !ok {
			continue
		}
		w, h := dr.Dx(), dr.Dy()
		if x+w+glyphMargin > atlasWidth {
			x = glyphMargin
			y += rowHeight + glyphMargin
			rowHeight = 0
		}
		coverage := make([]byte, w*h)
		for gy := 0; gy < h; gy++ {
			for gx := 0; gx < w; gx++ {
				_, _, _, a := mask.At(maskp.X+gx, maskp.Y+gy).RGBA()
				coverage[gy*w+gx] = uint8(a >> 8)
			}
		}
		glyphs = append(glyphs, placed{r: r, coverage: coverage, glyph: Glyph{
			X:        x,
			Y:        y,
			Width:    w,
			Height:   h,
			XOffset:  dr.Min.X,
			YOffset:  dr.Min.Y,
			XAdvance: advance.Round(),
		}})
		x += w + glyphMargin
		rowHeight = max(rowHeight, h)
	}
	height := y + rowHeight + glyphMargin

	atlas := &FontAtlas{
		Name:       name,
		LineHeight: lineHeight,
		Width:      atlasWidth,
		Height:     height,
		Glyphs:     make(map[rune]Glyph, len(glyphs)),
		Pixels:     make([]byte, atlasWidth*height*4),
		kern: func(a, b rune) int {
			return face.Kern(a, b).Round()
		},
	}
	for _, p := range glyphs {
		g := p.glyph
		for gy := 0; gy < g.Height; gy++ {
			for gx := 0; gx < g.Width; gx++ {
				i := ((g.Y+gy)*atlasWidth + g.X + gx) * 4
				atlas.Pixels[i+0] = 255
				atlas.Pixels[i+1] = 255
				atlas.Pixels[i+2] = 255
				atlas.Pixels[i+3] = p.coverage[gy*g.Width+gx]
			}
		}
		atlas.Glyphs[p.r] = g
	}
	atlas.setTabAdvance()
	return atlas
}
