package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 72.0
	tickMarkLength = 4
	xLabelCount    = 5
)

// annotator draws text labels with the Go Regular font.
type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	fontSize float64
}

func newAnnotator(fontSize float64) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.NewUniform(color.Black))

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
		fontSize: fontSize,
	}, nil
}

// panelLabels describes the text around the spectrum plot.
type panelLabels struct {
	title       string
	subtitle    string
	wavelengths Bounds
	flux        Bounds
}

func (a *annotator) annotate(img *image.RGBA, plot image.Rectangle, labels panelLabels) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, image.Rectangle, panelLabels) error
	}{
		{"drawing title", a.drawTitle},
		{"drawing wavelength scale", a.drawXScale},
		{"drawing flux scale", a.drawYScale},
	}
	for _, op := range ops {
		if err := op.fn(img, plot, labels); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) lineHeight() int {
	return a.context.PointToFixed(a.fontSize * 1.2).Round()
}

func (a *annotator) drawTitle(_ *image.RGBA, _ image.Rectangle, labels panelLabels) error {
	pt := freetype.Pt(8, a.lineHeight())
	if _, err := a.context.DrawString(labels.title, pt); err != nil {
		return err
	}
	pt.Y += a.context.PointToFixed(a.fontSize * 1.2)
	_, err := a.context.DrawString(labels.subtitle, pt)
	return err
}

func (a *annotator) drawXScale(img *image.RGBA, plot image.Rectangle, labels panelLabels) error {
	step := labels.wavelengths.Span() / float64(xLabelCount-1)
	textY := plot.Max.Y + tickMarkLength + a.lineHeight()

	for i := 0; i < xLabelCount; i++ {
		x := plot.Min.X + i*(plot.Dx()-1)/(xLabelCount-1)
		for t := 0; t < tickMarkLength; t++ {
			img.Set(x, plot.Max.Y+t, color.Black)
		}

		str := humanize.Ftoa(float64(int(labels.wavelengths.Min+float64(i)*step+0.5))) + " Å"
		width := font.MeasureString(a.fontFace, str).Round()
		if _, err := a.context.DrawString(str, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawYScale(img *image.RGBA, plot image.Rectangle, labels panelLabels) error {
	ticks := []struct {
		y int
		v float64
	}{
		{y: plot.Max.Y - 1, v: labels.flux.Min},
		{y: plot.Min.Y, v: labels.flux.Max},
	}
	for _, tick := range ticks {
		for t := 1; t <= tickMarkLength; t++ {
			img.Set(plot.Min.X-t, tick.y, color.Black)
		}

		str := fmt.Sprintf("%.3g", tick.v)
		width := font.MeasureString(a.fontFace, str).Round()
		pt := freetype.Pt(plot.Min.X-tickMarkLength-3-width, tick.y+a.lineHeight()/3)
		if _, err := a.context.DrawString(str, pt); err != nil {
			return err
		}
	}
	return nil
}
