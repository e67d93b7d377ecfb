package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined mapping from normalized intensity to color.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

// noDataColor marks pixels without a finite value.
var noDataColor = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}

// ColorMapper maps intensities within Bounds onto a precomputed color table.
type ColorMapper struct {
	colorMap    []color.Color
	theme       func(float64) color.Color
	themeName   ColorTheme
	size        int
	boundsMin   float64
	boundsRange float64
}

// NewColorMapper creates a color mapper with DefaultColorMapSize colors.
func NewColorMapper(theme ColorTheme, bounds Bounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a color mapper with size precomputed
// colors.
func NewColorMapperWithSize(theme ColorTheme, bounds Bounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		theme:     colorTheme(theme),
		themeName: theme,
		size:      size,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = cm.theme(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds changes the intensity range mapped onto the color table.
func (cm *ColorMapper) UpdateBounds(bounds Bounds) {
	cm.boundsMin = bounds.Min
	cm.boundsRange = bounds.Max - bounds.Min
}

// Color returns the color of v. Non-finite values get the no-data color.
func (cm *ColorMapper) Color(v float64) color.Color {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return noDataColor
	}
	if cm.boundsRange <= 0 {
		return cm.colorMap[cm.size/2]
	}

	index := int((v - cm.boundsMin) / cm.boundsRange * float64(cm.size-1))
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= cm.size:
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func hsv(h, s, v float64) color.Color {
	return colorful.Hsv(math.Mod(h+360, 360), s, v).Clamped()
}

func colorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
		}

	case GrayscaleTheme:
		return func(p float64) color.Color {
			v := uint8(math.Pow(p, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(p float64) color.Color {
			return hsv(120-(p*60), 1.0, 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(p float64) color.Color {
			switch {
			case p < 0.33:
				return color.RGBA{R: uint8(p * 3 * 255), A: 255}
			case p < 0.66:
				return color.RGBA{R: 255, G: uint8((p - 0.33) * 3 * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (p-0.66)*3) * 255), A: 255}
		}

	case MarineTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*60), 1.0-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
		}

	default:
		return func(p float64) color.Color {
			p = math.Max(0, math.Min(1, p))
			enhanced := math.Pow(p, 0.7)

			switch {
			case p < 0.25:
				return hsv(240, 1.0, math.Min(1, enhanced*4))
			case p < 0.5:
				return hsv(240-((p-0.25)*240), 1.0, math.Min(1, enhanced*1.5))
			case p < 0.75:
				return hsv(180-((p-0.5)*4*120), 1.0, math.Min(1.0, enhanced*1.5))
			}
			return hsv(60-((p-0.75)*4*60), 1.0, 1.0)
		}
	}
}
