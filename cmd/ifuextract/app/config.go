package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/ifu-extract/internal/cube"
	"github.com/roman-kulish/ifu-extract/internal/extract"
	"github.com/roman-kulish/ifu-extract/internal/poly"
	"github.com/roman-kulish/ifu-extract/internal/psf"
	"github.com/roman-kulish/ifu-extract/internal/render"
	"github.com/roman-kulish/ifu-extract/internal/simulate"
	"github.com/roman-kulish/ifu-extract/internal/spectrum"
)

const defaultCatalogPath = "catalog.sqlite"

// Config represents the main application configuration
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cube       CubeConfig       `yaml:"cube"`
	Output     OutputConfig     `yaml:"output"`
	Simulation simulate.Config  `yaml:"simulation"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel LogLevel `yaml:"logLevel"`
	Workers  int      `yaml:"workers"`
}

// CatalogConfig locates the fiber and target catalog
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ExtractionConfig holds the source-model and combiner parameters
type ExtractionConfig struct {
	SearchRadius        float64      `yaml:"searchRadius"` // arcsec
	MinFibers           int          `yaml:"minFibers"`
	MaskEpsilon         float64      `yaml:"maskEpsilon"`
	ThroughputThreshold float64      `yaml:"throughputThreshold"`
	Chunks              int          `yaml:"chunks"`
	NeighborhoodRadius  float64      `yaml:"neighborhoodRadius"` // arcsec
	InitialWidth        float64      `yaml:"initialWidth"`       // arcsec
	MaxIterations       int          `yaml:"maxIterations"`
	Tolerance           float64      `yaml:"tolerance"`
	SmoothingDegree     int          `yaml:"smoothingDegree"`
	SmoothingMinPoints  int          `yaml:"smoothingMinPoints"`
	RelativeThreshold   float64      `yaml:"relativeThreshold"`
	Timeout             TimeDuration `yaml:"timeout"` // Per target, 0 disables
}

// CubeConfig holds the resampling parameters
type CubeConfig struct {
	Enabled        bool               `yaml:"enabled"`
	Offsets        extract.OffsetMode `yaml:"offsets"`
	ADRAngle       float64            `yaml:"adrAngle"` // degrees, used by "adr" offsets
	Scale          float64            `yaml:"scale"`
	SeeingFactor   float64            `yaml:"seeingFactor"`
	FluxCorrection float64            `yaml:"fluxCorrection"`
	BoxSize        float64            `yaml:"boxSize"`
	FiberRadius    float64            `yaml:"fiberRadius"`
	MinFibers      int                `yaml:"minFibers"`
}

// OutputConfig selects the products of a run
type OutputConfig struct {
	Directory   string        `yaml:"directory"`
	Cubes       bool          `yaml:"cubes"`
	Models      bool          `yaml:"models"`
	Stacked     bool          `yaml:"stacked"`
	Table       bool          `yaml:"table"`
	Diagnostics bool          `yaml:"diagnostics"`
	Render      render.Config `yaml:"render"`
}

// NewConfig returns the configuration with every default applied.
func NewConfig() *Config {
	ex := extract.DefaultConfig()
	cb := cube.DefaultConfig()

	return &Config{
		Settings: Settings{
			LogLevel: LogLevel(slog.LevelInfo),
			Workers:  runtime.NumCPU(),
		},
		Catalog: CatalogConfig{Path: defaultCatalogPath},
		Extraction: ExtractionConfig{
			SearchRadius:        ex.SearchRadius,
			MinFibers:           ex.MinFibers,
			MaskEpsilon:         ex.MaskEpsilon,
			ThroughputThreshold: ex.ThroughputThreshold,
			Chunks:              ex.PSF.Chunks,
			NeighborhoodRadius:  ex.PSF.NeighborhoodRadius,
			InitialWidth:        ex.PSF.InitialWidth,
			MaxIterations:       ex.PSF.Fit.MaxIterations,
			Tolerance:           ex.PSF.Fit.Tolerance,
			SmoothingDegree:     ex.PSF.Smoother.Degree,
			SmoothingMinPoints:  ex.PSF.Smoother.MinPoints,
			RelativeThreshold:   spectrum.DefaultRelativeThreshold,
		},
		Cube: CubeConfig{
			Enabled:        true,
			Offsets:        extract.OffsetsCentroid,
			Scale:          cb.Scale,
			SeeingFactor:   cb.SeeingFactor,
			FluxCorrection: cb.FluxCorrection,
			BoxSize:        cb.BoxSize,
			FiberRadius:    cb.FiberRadius,
			MinFibers:      cb.MinFibers,
		},
		Output: OutputConfig{
			Directory:   "output",
			Cubes:       true,
			Stacked:     true,
			Table:       true,
			Diagnostics: true,
			Render:      render.DefaultConfig(),
		},
		Simulation: simulate.DefaultConfig(),
	}
}

// LoadConfig reads the YAML file at path over the defaults and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	c := NewConfig()
	if err = yaml.Unmarshal(p, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return c, nil
}

// Validate returns the first violated constraint.
func (c *Config) Validate() error {
	switch {
	case c.Settings.Workers < 1:
		return fmt.Errorf("settings.workers must be positive, got %d", c.Settings.Workers)
	case c.Catalog.Path == "":
		return errors.New("catalog.path is required")
	case c.Output.Directory == "":
		return errors.New("output.directory is required")
	case !(c.Extraction.RelativeThreshold >= 0):
		return fmt.Errorf("extraction.relativeThreshold must not be negative, got %g", c.Extraction.RelativeThreshold)
	case c.Extraction.Timeout < 0:
		return fmt.Errorf("extraction.timeout must not be negative, got %s", c.Extraction.Timeout)
	}

	if err := c.ExtractConfig().Validate(); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if c.Cube.Enabled {
		if err := c.CubeResampleConfig().Validate(); err != nil {
			return fmt.Errorf("cube: %w", err)
		}
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

// ExtractConfig converts the extraction section.
func (c *Config) ExtractConfig() extract.Config {
	e := c.Extraction
	return extract.Config{
		SearchRadius:        e.SearchRadius,
		MinFibers:           e.MinFibers,
		MaskEpsilon:         e.MaskEpsilon,
		ThroughputThreshold: e.ThroughputThreshold,
		PSF: psf.Config{
			Chunks:             e.Chunks,
			NeighborhoodRadius: e.NeighborhoodRadius,
			InitialWidth:       e.InitialWidth,
			Fit:                psf.FitOptions{MaxIterations: e.MaxIterations, Tolerance: e.Tolerance},
			Smoother:           poly.Smoother{Degree: e.SmoothingDegree, MinPoints: e.SmoothingMinPoints},
		},
	}
}

// CubeResampleConfig converts the cube section.
func (c *Config) CubeResampleConfig() cube.Config {
	return cube.Config{
		Scale:          c.Cube.Scale,
		SeeingFactor:   c.Cube.SeeingFactor,
		FluxCorrection: c.Cube.FluxCorrection,
		BoxSize:        c.Cube.BoxSize,
		FiberRadius:    c.Cube.FiberRadius,
		MinFibers:      c.Cube.MinFibers,
	}
}

// Combiner returns the spectrum combiner.
func (c *Config) Combiner() spectrum.Combiner {
	return spectrum.Combiner{RelativeThreshold: c.Extraction.RelativeThreshold}
}

// LogLevel is a slog level read from its name ("debug", "info", "warn",
// "error").
type LogLevel slog.Level

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("app.LogLevel: failed to parse: %s", err)
	}

	*l = LogLevel(level)
	return nil
}

func (l LogLevel) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

func (l LogLevel) Level() slog.Level {
	return slog.Level(l)
}

func (l LogLevel) String() string {
	return slog.Level(l).String()
}

// TimeDuration is a time.Duration read from its string form ("30s").
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
