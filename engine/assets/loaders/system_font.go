package loaders

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// SystemFontLoader rasterizes TrueType and OpenType fonts at a fixed size.
type SystemFontLoader struct {
	Size float64
	DPI  float64
}

func (fl *SystemFontLoader) Load(path string) (interface{}, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return fl.Parse(fontBytes)
}

// Parse builds a face from raw font data. Collections use their first font.
func (fl *SystemFontLoader) Parse(fontBytes []byte) (font.Face, error) {
	coll, err := opentype.ParseCollection(fontBytes)
	if err != nil {
		return nil, err
	}
	if coll.NumFonts() == 0 {
		return nil, fmt.Errorf("font collection is empty")
	}
	f, err := coll.Font(0)
	if err != nil {
		return nil, err
	}

	size, dpi := fl.Size, fl.DPI
	if size <= 0 {
		size = 16
	}
	if dpi <= 0 {
		dpi = 72
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
}
