// Package render draws diagnostic images of an extraction: the white-light
// image of the resampled cube next to a plot of the extracted spectrum.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

const (
	defaultPanelSize  = 240
	defaultPlotWidth  = 560
	defaultFontSize   = 12.0
	defaultLineWidth  = 1.5
	defaultHeaderSize = 44
	defaultMargin     = 16
	defaultAxisMargin = 56
	defaultFooterSize = 28
)

var (
	backgroundColor = color.White
	frameColor      = color.RGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xff}
	fluxColor       = color.RGBA{R: 0x1f, G: 0x4e, B: 0xb4, A: 0xff}
)

// Config controls the layout and colors of diagnostic images.
type Config struct {
	Theme     ColorTheme `yaml:"theme"`
	PanelSize int        `yaml:"panelSize"` // White-light panel edge, pixels
	PlotWidth int        `yaml:"plotWidth"` // Spectrum plot width, pixels
	FontSize  float64    `yaml:"fontSize"`
	LineWidth float64    `yaml:"lineWidth"`
}

// DefaultConfig returns the default layout.
func DefaultConfig() Config {
	return Config{
		Theme:     ClassicTheme,
		PanelSize: defaultPanelSize,
		PlotWidth: defaultPlotWidth,
		FontSize:  defaultFontSize,
		LineWidth: defaultLineWidth,
	}
}

// Renderer draws diagnostic images. It is not safe for concurrent use.
type Renderer struct {
	config    Config
	annotator *annotator
}

// NewRenderer creates a renderer; zero config values take their defaults.
func NewRenderer(config Config) (*Renderer, error) {
	def := DefaultConfig()
	if config.Theme == "" {
		config.Theme = def.Theme
	}
	if config.PanelSize <= 0 {
		config.PanelSize = def.PanelSize
	}
	if config.PlotWidth <= 0 {
		config.PlotWidth = def.PlotWidth
	}
	if config.FontSize <= 0 {
		config.FontSize = def.FontSize
	}
	if config.LineWidth <= 0 {
		config.LineWidth = def.LineWidth
	}

	a, err := newAnnotator(config.FontSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{config: config, annotator: a}, nil
}

// Render draws the white-light image of c and the plot of s side by side.
func (r *Renderer) Render(c *cube.Cube, s spectrum.Spectrum, title string) (*image.RGBA, error) {
	if s.Len() < 2 || len(s.Wavelengths) != s.Len() {
		return nil, fmt.Errorf("spectrum of %d values on %d wavelengths cannot be plotted", s.Len(), len(s.Wavelengths))
	}

	panel := r.config.PanelSize
	width := defaultMargin + panel + defaultAxisMargin + r.config.PlotWidth + defaultMargin
	height := defaultHeaderSize + panel + defaultFooterSize

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	whiteArea := image.Rect(defaultMargin, defaultHeaderSize, defaultMargin+panel, defaultHeaderSize+panel)
	plotMinX := whiteArea.Max.X + defaultAxisMargin
	plotArea := image.Rect(plotMinX, defaultHeaderSize, plotMinX+r.config.PlotWidth, defaultHeaderSize+panel)

	if c != nil {
		r.drawWhiteLight(img, whiteArea, c)
	}
	drawFrame(img, whiteArea)

	fluxBounds := PercentileBounds(s.Flux)
	waveBounds := Bounds{Min: s.Wavelengths[0], Max: s.Wavelengths[len(s.Wavelengths)-1]}
	r.drawSpectrum(img, plotArea, s, waveBounds, fluxBounds)
	drawFrame(img, plotArea)

	labels := panelLabels{
		title:       title,
		subtitle:    fmt.Sprintf("%d/%d valid wavelengths, median S/N %.1f", s.NumValid(), s.Len(), s.MedianSNR()),
		wavelengths: waveBounds,
		flux:        fluxBounds,
	}
	if err := r.annotator.annotate(img, plotArea, labels); err != nil {
		return nil, fmt.Errorf("annotating: %w", err)
	}
	return img, nil
}

// drawWhiteLight maps the wavelength-median image of c onto area with the
// configured theme. The cube y axis points up.
func (r *Renderer) drawWhiteLight(img *image.RGBA, area image.Rectangle, c *cube.Cube) {
	nx, ny, _ := c.Dims()
	if nx == 0 || ny == 0 {
		return
	}

	white := c.WhiteLight()
	cm := NewColorMapper(r.config.Theme, PercentileBounds(white))

	small := image.NewRGBA(image.Rect(0, 0, nx, ny))
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			small.Set(i, ny-1-j, cm.Color(white[j*nx+i]))
		}
	}
	xdraw.NearestNeighbor.Scale(img, area, small, small.Bounds(), xdraw.Src, nil)
}

// drawSpectrum strokes the valid runs of s as polylines; invalid
// wavelengths break the line.
func (r *Renderer) drawSpectrum(img *image.RGBA, area image.Rectangle, s spectrum.Spectrum, wave, flux Bounds) {
	size := img.Bounds().Size()
	z := vector.NewRasterizer(size.X, size.Y)

	toPixel := func(k int) (float32, float32) {
		x := float64(area.Min.X) + (s.Wavelengths[k]-wave.Min)/wave.Span()*float64(area.Dx()-1)
		v := math.Max(flux.Min, math.Min(flux.Max, s.Flux[k]))
		y := float64(area.Max.Y-1) - (v-flux.Min)/flux.Span()*float64(area.Dy()-1)
		return float32(x), float32(y)
	}

	half := float32(r.config.LineWidth / 2)
	prev := -1
	for k := range s.Flux {
		if !s.Valid(k) {
			prev = -1
			continue
		}
		if prev >= 0 {
			x0, y0 := toPixel(prev)
			x1, y1 := toPixel(k)
			strokeSegment(z, x0, y0, x1, y1, half)
		}
		prev = k
	}

	z.Draw(img, img.Bounds(), image.NewUniform(fluxColor), image.Point{})
}

// strokeSegment adds a rectangle of half-width w around the segment to z.
func strokeSegment(z *vector.Rasterizer, x0, y0, x1, y1, w float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*w, dx/l*w

	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
}

func drawFrame(img *image.RGBA, r image.Rectangle) {
	for x := r.Min.X - 1; x <= r.Max.X; x++ {
		img.Set(x, r.Min.Y-1, frameColor)
		img.Set(x, r.Max.Y, frameColor)
	}
	for y := r.Min.Y - 1; y <= r.Max.Y; y++ {
		img.Set(r.Min.X-1, y, frameColor)
		img.Set(r.Max.X, y, frameColor)
	}
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
