package assets

import (
	"fmt"
	"image"
	"io"

	xdraw "golang.org/x/image/draw"
)

type TextureFormat uint8

const (
	TextureRGBA8 TextureFormat = iota
	TextureR8
)

func (f TextureFormat) BytesPerPixel() int {
	if f == TextureR8 {
		return 1
	}
	return 4
}

func (f TextureFormat) String() string {
	if f == TextureR8 {
		return "r8"
	}
	return "rgba8"
}

// Texture is pixel data the renderer uploads once per asset ID.
type Texture interface {
	ID() ID
	Size() (width, height uint32)
	Format() TextureFormat
	// Write fills dst, tightly packed, with width*height*BytesPerPixel bytes.
	Write(dst []byte)
}

// ImageTexture is a decoded image held in memory.
type ImageTexture struct {
	id     ID
	Name   string
	width  uint32
	height uint32
	format TextureFormat
	pixels []byte
}

func (t *ImageTexture) ID() ID {
	return t.id
}

func (t *ImageTexture) Size() (uint32, uint32) {
	return t.width, t.height
}

func (t *ImageTexture) Format() TextureFormat {
	return t.format
}

func (t *ImageTexture) Write(dst []byte) {
	copy(dst, t.pixels)
}

func (t *ImageTexture) Pixels() []byte {
	return t.pixels
}

// NewImageTexture converts img to a tightly packed texture. Grayscale and
// alpha images become R8, everything else RGBA8.
func NewImageTexture(name string, img image.Image) *ImageTexture {
	b := img.Bounds()
	t := &ImageTexture{
		id:     NewID(),
		Name:   name,
		width:  uint32(b.Dx()),
		height: uint32(b.Dy()),
	}
	switch src := img.(type) {
	case *image.Gray:
		t.format = TextureR8
		t.pixels = packRows(src.Pix, src.Stride, b.Dx(), b.Dy())
	case *image.Alpha:
		t.format = TextureR8
		t.pixels = packRows(src.Pix, src.Stride, b.Dx(), b.Dy())
	default:
		rgba, ok := img.(*image.NRGBA)
		if !ok || rgba.Rect.Min != (image.Point{}) {
			rgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
		}
		t.format = TextureRGBA8
		t.pixels = packRows(rgba.Pix, rgba.Stride, b.Dx()*4, b.Dy())
	}
	return t
}

func packRows(pix []byte, stride, rowBytes, rows int) []byte {
	if stride == rowBytes {
		return append([]byte(nil), pix[:rowBytes*rows]...)
	}
	out := make([]byte, 0, rowBytes*rows)
	for y := 0; y < rows; y++ {
		out = append(out, pix[y*stride:y*stride+rowBytes]...)
	}
	return out
}

// DecodeTexture decodes any format registered by the loaders package.
func DecodeTexture(name string, r io.Reader) (*ImageTexture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", name, err)
	}
	return NewImageTexture(name, img), nil
}

// NewSolidTexture is a 1x1 RGBA8 texture.
func NewSolidTexture(name string, r, g, b, a uint8) *ImageTexture {
	return &ImageTexture{
		id:     NewID(),
		Name:   name,
		width:  1,
		height: 1,
		format: TextureRGBA8,
		pixels: []byte{r, g, b, a},
	}
}

// NewRawTexture wraps already packed pixels.
func NewRawTexture(name string, width, height uint32, format TextureFormat, pixels []byte) (*ImageTexture, error) {
	if want := int(width) * int(height) * format.BytesPerPixel(); len(pixels) != want {
		return nil, fmt.Errorf("texture %s: %d bytes of pixels, %dx%d %s needs %d", name, len(pixels), width, height, format, want)
	}
	return &ImageTexture{id: NewID(), Name: name, width: width, height: height, format: format, pixels: pixels}, nil
}

// Downscale returns img scaled so neither side exceeds maxSize.
func Downscale(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	if maxSize <= 0 || (b.Dx() <= maxSize && b.Dy() <= maxSize) {
		return img
	}
	scale := float64(maxSize) / float64(max(b.Dx(), b.Dy()))
	w := max(int(float64(b.Dx())*scale), 1)
	h := max(int(float64(b.Dy())*scale), 1)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
