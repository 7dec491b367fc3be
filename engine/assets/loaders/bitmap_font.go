package loaders

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
)

type FontGlyph struct {
	Codepoint rune
	X, Y      int
	Width     int
	Height    int
	XOffset   int
	YOffset   int
	XAdvance  int
	PageID    int
}

// BitmapFont is an AngelCode font with its first page decoded.
type BitmapFont struct {
	Face       string
	Size       int
	LineHeight int
	Baseline   int
	AtlasSizeX int
	AtlasSizeY int
	Glyphs     map[rune]FontGlyph
	Kernings   map[[2]rune]int
	Pages      []string
	Atlas      image.Image
}

// Kerning returns the horizontal adjustment between two codepoints.
func (f *BitmapFont) Kerning(a, b rune) int {
	return f.Kernings[[2]rune{a, b}]
}

type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (interface{}, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, err
	}
	d := font.Descriptor

	out := &BitmapFont{
		Face:       d.Info.Face,
		Size:       int(d.Info.Size),
		LineHeight: int(d.Common.LineHeight),
		Baseline:   int(d.Common.Base),
		AtlasSizeX: int(d.Common.ScaleW),
		AtlasSizeY: int(d.Common.ScaleH),
		Glyphs:     make(map[rune]FontGlyph, len(d.Chars)),
		Kernings:   make(map[[2]rune]int, len(d.Kerning)),
	}

	for _, p := range d.Pages {
		id := int(p.ID)
		for len(out.Pages) <= id {
			out.Pages = append(out.Pages, "")
		}
		out.Pages[id] = p.File
	}
	if len(out.Pages) == 0 || out.Pages[0] == "" {
		return nil, fmt.Errorf("bitmap font %s has no page 0", path)
	}

	for _, g := range d.Chars {
		out.Glyphs[rune(g.ID)] = FontGlyph{
			Codepoint: rune(g.ID),
			X:         int(g.X),
			Y:         int(g.Y),
			Width:     int(g.Width),
			Height:    int(g.Height),
			XOffset:   int(g.XOffset),
			YOffset:   int(g.YOffset),
			XAdvance:  int(g.XAdvance),
			PageID:    int(g.Page),
		}
	}

	for p, k := range d.Kerning {
		out.Kernings[[2]rune{rune(p.First), rune(p.Second)}] = int(k.Amount)
	}

	// Only single page fonts are rendered.
	pagePath := filepath.Join(filepath.Dir(path), out.Pages[0])
	file, err := os.Open(pagePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if out.Atlas, _, err = image.Decode(file); err != nil {
		return nil, fmt.Errorf("decode font page %s: %w", pagePath, err)
	}
	return out, nil
}
