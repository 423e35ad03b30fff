package collage

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

// DefaultBackground is used when no background color is given.
const DefaultBackground = "#121212"

// RendererOpts configures a [Renderer].
type RendererOpts struct {
	// Loader fetches covers. Defaults to an [HTTPLoader].
	Loader ImageLoader
	// Concurrency bounds parallel cover loads. Defaults to 8.
	Concurrency int
	// ImageTimeout applies to the default loader.
	ImageTimeout time.Duration
	Logger       *log.Logger
	// OnProgress is called after each cover finishes loading, successfully or not.
	OnProgress func(done, total int)
}

// Renderer draws collages from album covers.
type Renderer struct {
	loader      ImageLoader
	concurrency int
	logger      *log.Logger
	onProgress  func(done, total int)
}

// NewRenderer creates a renderer.
func NewRenderer(opts RendererOpts) *Renderer {
	if opts.Loader == nil {
		opts.Loader = NewHTTPLoader(nil, opts.ImageTimeout)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Renderer{
		loader:      opts.Loader,
		concurrency: opts.Concurrency,
		logger:      shared.WithLogger(opts.Logger, "component", "collage"),
		onProgress:  opts.OnProgress,
	}
}

// GridOptions controls [Renderer.RenderGrid].
type GridOptions struct {
	// GridSize is the number of columns. Zero picks rows and columns with [ComputeGridDimensions].
	GridSize   int
	Background string
	// Watermark is a display name drawn as "@name" in the bottom-right corner.
	Watermark string
}

// RenderGrid draws up to GridSize x GridSize covers, GridSize per row, with rounded corners.
func (r *Renderer) RenderGrid(ctx context.Context, albums []models.Album, opts GridOptions) (*models.CollageArtifact, error) {
	bg, err := ParseColor(opts.Background)
	if err != nil {
		return nil, err
	}
	if opts.GridSize < 0 {
		return nil, fmt.Errorf("%w: grid size %d", shared.ErrInvalidArgument, opts.GridSize)
	}

	var layout models.GridLayout
	if opts.GridSize == 0 {
		layout = ComputeGridDimensions(len(albums))
	} else {
		count := min(len(albums), opts.GridSize*opts.GridSize)
		layout = models.GridLayout{
			Rows:  (count + opts.GridSize - 1) / opts.GridSize,
			Cols:  opts.GridSize,
			Count: count,
			Type:  models.LayoutRectangle,
		}
		if layout.Rows == layout.Cols {
			layout.Type = models.LayoutSquare
		}
	}
	if layout.Count == 0 {
		return nil, fmt.Errorf("%w: no albums to render", shared.ErrInvalidArgument)
	}
	selected := albums[:layout.Count]

	cell := CellSize(layout.Cols)
	gap := max(cell/25, 4)
	margin := gap * 2
	radius := float64(cell) / 12

	band := 0
	fontSize := 0.0
	if opts.Watermark != "" {
		fontSize = watermarkSize(cell)
		band = int(fontSize * 2)
	}

	width := margin*2 + layout.Cols*cell + (layout.Cols-1)*gap
	height := margin*2 + layout.Rows*cell + (layout.Rows-1)*gap + band

	tiles, skipped, err := loadTiles(ctx, r.loader, selected, cell, r.concurrency, r.logger, r.onProgress)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(bg)
	dc.Clear()

	for i, tile := range tiles {
		x := float64(margin + (i%layout.Cols)*(cell+gap))
		y := float64(margin + (i/layout.Cols)*(cell+gap))

		if tile == nil {
			dc.SetColor(placeholder(bg))
			dc.DrawRoundedRectangle(x, y, float64(cell), float64(cell), radius)
			dc.Fill()
			continue
		}

		dc.Push()
		dc.DrawRoundedRectangle(x, y, float64(cell), float64(cell), radius)
		dc.Clip()
		dc.DrawImage(tile, int(x), int(y))
		dc.ResetClip()
		dc.Pop()
	}

	if opts.Watermark != "" {
		if err := drawWatermark(dc, opts.Watermark, fontSize, float64(width-margin), float64(height)-fontSize*0.7); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("rendered grid", "rows", layout.Rows, "cols", layout.Cols, "skipped", skipped)
	return newArtifact(dc.Image(), models.CollageGrid, layout, skipped), nil
}

// CDOptions controls [Renderer.RenderCD].
type CDOptions struct {
	// Count is the number of discs. Zero renders every album.
	Count      int
	Background string
	Watermark  string
}

const (
	cdMaxRowWidth = 1400
	cdOverlap     = 0.12
)

// cdDiameter shrinks discs as the count grows.
func cdDiameter(count int) int {
	switch {
	case count <= 6:
		return 280
	case count <= 16:
		return 220
	case count <= 40:
		return 180
	default:
		return 140
	}
}

// RenderCD draws covers as overlapping discs in rows that wrap at a fixed width.
//
// Each disc gets a drop shadow, a circular crop, a thin ring, a dark spindle hole and a
// diagonal sheen. Later discs overlap earlier ones.
func (r *Renderer) RenderCD(ctx context.Context, albums []models.Album, opts CDOptions) (*models.CollageArtifact, error) {
	bg, err := ParseColor(opts.Background)
	if err != nil {
		return nil, err
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("%w: count %d", shared.ErrInvalidArgument, opts.Count)
	}

	count := len(albums)
	if opts.Count > 0 {
		count = min(count, opts.Count)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no albums to render", shared.ErrInvalidArgument)
	}
	selected := albums[:count]

	d := cdDiameter(count)
	step := d - int(float64(d)*cdOverlap)
	perRow := max(1, (cdMaxRowWidth-d)/step+1)
	perRow = min(perRow, count)
	rows := (count + perRow - 1) / perRow
	pad := d / 6

	band := 0
	fontSize := 0.0
	if opts.Watermark != "" {
		fontSize = watermarkSize(d)
		band = int(fontSize * 2)
	}

	rowWidth := func(n int) int { return d + (n-1)*step }
	width := pad*2 + rowWidth(perRow)
	height := pad*2 + d + (rows-1)*step + band

	tiles, skipped, err := loadTiles(ctx, r.loader, selected, d, r.concurrency, r.logger, r.onProgress)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(bg)
	dc.Clear()

	for i, tile := range tiles {
		row, col := i/perRow, i%perRow
		inRow := min(perRow, count-row*perRow)
		offset := (rowWidth(perRow) - rowWidth(inRow)) / 2
		x := float64(pad + offset + col*step)
		y := float64(pad + row*step)
		drawDisc(dc, tile, x, y, float64(d), bg)
	}

	if opts.Watermark != "" {
		if err := drawWatermark(dc, opts.Watermark, fontSize, float64(width-pad), float64(height)-fontSize*0.7); err != nil {
			return nil, err
		}
	}

	layout := models.GridLayout{Rows: rows, Cols: perRow, Count: count, Type: models.LayoutRectangle}
	if rows == perRow && rows*perRow == count {
		layout.Type = models.LayoutSquare
	}
	r.logger.Debug("rendered cd collage", "discs", count, "per_row", perRow, "skipped", skipped)
	return newArtifact(dc.Image(), models.CollageCD, layout, skipped), nil
}

// drawDisc draws one CD tile with its top-left corner at x, y.
func drawDisc(dc *gg.Context, tile *image.RGBA, x, y, d float64, bg color.Color) {
	cx, cy, rad := x+d/2, y+d/2, d/2

	// Soft shadow from a few stacked translucent circles.
	off := d * 0.03
	for i := 3; i >= 1; i-- {
		dc.SetRGBA(0, 0, 0, 0.12)
		dc.DrawCircle(cx+off, cy+off*1.5, rad+float64(i)*d*0.01)
		dc.Fill()
	}

	if tile == nil {
		dc.SetColor(placeholder(bg))
		dc.DrawCircle(cx, cy, rad)
		dc.Fill()
	} else {
		dc.Push()
		dc.DrawCircle(cx, cy, rad)
		dc.Clip()
		dc.DrawImage(tile, int(x), int(y))
		dc.ResetClip()
		dc.Pop()
	}

	sheen := gg.NewLinearGradient(x, y, x+d, y+d)
	sheen.AddColorStop(0, color.NRGBA{255, 255, 255, 70})
	sheen.AddColorStop(0.45, color.NRGBA{255, 255, 255, 0})
	sheen.AddColorStop(1, color.NRGBA{0, 0, 0, 60})
	dc.SetFillStyle(sheen)
	dc.DrawCircle(cx, cy, rad)
	dc.Fill()

	lw := max(2, d/90)
	dc.SetLineWidth(lw)
	dc.SetRGBA(1, 1, 1, 0.28)
	dc.DrawCircle(cx, cy, rad-lw/2)
	dc.Stroke()

	dc.SetRGBA(1, 1, 1, 0.18)
	dc.DrawCircle(cx, cy, d*0.16)
	dc.Fill()

	dc.SetRGB255(17, 17, 17)
	dc.DrawCircle(cx, cy, d*0.08)
	dc.Fill()
}

func watermarkSize(cell int) float64 {
	return max(14, float64(cell)/8)
}

var goBold = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gobold.TTF)
})

func fontFace(size float64) (font.Face, error) {
	f, err := goBold()
	if err != nil {
		return nil, fmt.Errorf("%w: font: %w", shared.ErrRender, err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}

// drawWatermark writes "@name" right-aligned with its baseline at x, y.
func drawWatermark(dc *gg.Context, name string, size, x, y float64) error {
	face, err := fontFace(size)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)

	text := "@" + strings.TrimPrefix(name, "@")
	dc.SetRGBA(0, 0, 0, 0.5)
	dc.DrawStringAnchored(text, x+1, y+1, 1, 0)
	dc.SetRGBA(1, 1, 1, 0.8)
	dc.DrawStringAnchored(text, x, y, 1, 0)
	return nil
}

// placeholder lightens bg slightly for tiles whose cover failed to load.
func placeholder(bg color.Color) color.Color {
	r, g, b, _ := bg.RGBA()
	lift := func(v uint32) uint8 { return uint8(min(255, v>>8+24)) }
	return color.NRGBA{lift(r), lift(g), lift(b), 255}
}

// ParseColor parses #rgb or #rrggbb. An empty string yields [DefaultBackground].
func ParseColor(s string) (color.Color, error) {
	if s == "" {
		s = DefaultBackground
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("%w: color %q", shared.ErrInvalidArgument, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: color %q", shared.ErrInvalidArgument, s)
	}
	return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

func newArtifact(img image.Image, kind models.CollageKind, layout models.GridLayout, skipped int) *models.CollageArtifact {
	a := &models.CollageArtifact{
		Image:   img,
		Kind:    kind,
		Layout:  layout,
		Albums:  layout.Count,
		Scale:   1,
		Skipped: skipped,
	}
	a.Filename = a.SuggestedFilename()
	return a
}
