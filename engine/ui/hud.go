package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/math"
	"github.com/spaghettifunk/abyss/engine/render"
)

const hudPadding = 6

/**
 * @brief HUD draws frame statistics in the top left corner of the screen. It
 * implements render.UILayer.
 */
type HUD struct {
	Visible bool

	ctx     *gpu.Context
	font    *FontAtlas
	texture render.TextureID
	image   *gpu.Image
	metrics *core.Metrics
	lines   []string
}

// NewHUD uploads the font atlas and registers it with the overlay.
func NewHUD(ctx *gpu.Context, overlay *render.Overlay, font *FontAtlas, metrics *core.Metrics) (*HUD, error) {
	img, err := ctx.CreateImage(gpu.Extent{Width: uint32(font.Width), Height: uint32(font.Height)},
		gpu.ImageUsageSampled|gpu.ImageUsageTransferDst, gpu.FormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	if err := ctx.UploadImage(img, font.Pixels); err != nil {
		ctx.DestroyImage(img)
		return nil, fmt.Errorf("upload font atlas %s: %w", font.Name, err)
	}
	img.SetName("hud-font")
	return &HUD{
		Visible: true,
		ctx:     ctx,
		font:    font,
		texture: overlay.RegisterTexture(img),
		image:   img,
		metrics: metrics,
	}, nil
}

// Text returns the lines shown on the last Build.
func (h *HUD) Text() string {
	return strings.Join(h.lines, "\n")
}

func (h *HUD) statLines() []string {
	m := h.metrics
	fps, ms := m.Frame()
	lines := []string{
		fmt.Sprintf("%.0f fps  %.2f ms", fps, ms),
		fmt.Sprintf("draws %d  lights %d  skipped %d", m.DrawCalls, m.Lights, m.SkippedFrame),
	}
	names := make([]string, 0, len(m.GPUTimings))
	for name := range m.GPUTimings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("gpu %s\t%.3f ms", name, float64(m.GPUTimings[name].Microseconds())/1000))
	}
	return lines
}

func (h *HUD) Build(extent gpu.Extent) *render.DrawData {
	if !h.Visible || extent.IsZero() {
		return nil
	}
	size := math.NewVec2(float32(extent.Width), float32(extent.Height))
	h.lines = h.statLines()
	text := h.Text()

	batch := NewBatch(math.Vec4{Z: size.X, W: size.Y})
	block := Measure(h.font, text)
	origin := math.NewVec2(hudPadding, hudPadding)
	batch.Rect(math.Vec2{}, origin.Add(block).Add(math.NewVec2(hudPadding, hudPadding)), Color{0, 0, 0, 160})
	batch.Text(h.font, h.texture, text, origin, White)

	return &render.DrawData{
		DisplaySize:      size,
		FramebufferScale: math.NewVec2(1, 1),
		Lists:            []render.DrawList{batch.List},
	}
}

func (h *HUD) Destroy() {
	h.ctx.DestroyImage(h.image)
}
