// Package undertone estimates the skin undertone of a facial photo and
// recommends matching products.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		undertone "github.com/menta2k/undertone-analyzer"
//	)
//
//	func main() {
//		analyzer, err := undertone.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		report, err := analyzer.AnalyzeFile(context.Background(), "selfie.jpg", nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(report.Message)
//	}
//
// An analysis loads the image, looks for the dominant face, pads the face
// box into a sampling region (or uses the whole image when there is no
// usable face), averages the region's color and compares red against blue.
//
// Face detection is pluggable: the pure Go pigo cascade, a vision model
// served by Ollama, or a llama.cpp server. Detection problems never fail an
// analysis; they only widen the sampling region to the full image.
//
// Interactive callers should keep one pipeline.Session per user (see
// NewSession) so that a new upload supersedes the one still running.
package undertone

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/undertone-analyzer/internal/config"
	"github.com/menta2k/undertone-analyzer/internal/utils"
	"github.com/menta2k/undertone-analyzer/pkg/catalog"
	"github.com/menta2k/undertone-analyzer/pkg/client"
	"github.com/menta2k/undertone-analyzer/pkg/detection"
	"github.com/menta2k/undertone-analyzer/pkg/llamacpp"
	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/ollama"
	"github.com/menta2k/undertone-analyzer/pkg/pigo"
	"github.com/menta2k/undertone-analyzer/pkg/pipeline"
	"github.com/menta2k/undertone-analyzer/pkg/processing"
	"github.com/menta2k/undertone-analyzer/pkg/region"
	"github.com/menta2k/undertone-analyzer/pkg/sampler"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// Version of the undertone analyzer
const Version = "1.0.0"

// Analyzer owns the components shared by every session
type Analyzer struct {
	config    *config.Config
	stages    pipeline.Stages
	catalog   *catalog.Catalog
	processor *processing.Processor
	logger    *log.Logger
}

// New creates an Analyzer with default configuration
func New() (*Analyzer, error) {
	return NewWithConfig(config.Default())
}

// NewWithConfig creates an Analyzer with the detector backend named in cfg
func NewWithConfig(cfg *config.Config) (*Analyzer, error) {
	capability, err := NewCapability(cfg.Detector)
	if err != nil {
		return nil, err
	}
	return NewWithCapability(cfg, capability, nil)
}

// NewWithCapability creates an Analyzer around an explicit face capability.
// A nil capability disables detection. A nil logger uses log.Default().
func NewWithCapability(cfg *config.Config, capability client.FaceCapability, logger *log.Logger) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	products := catalog.Default()
	if cfg.Catalog.Path != "" {
		loaded, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		products = loaded
	}

	stages := pipeline.Stages{
		Loader: loader.NewWithConfig(loader.Config{
			SupportedFormats: cfg.Loader.SupportedFormats,
			MaxPixels:        cfg.Loader.MaxPixels,
			Logger:           logger,
		}),
		Selector: region.NewWithConfig(region.Config{Padding: cfg.Region.Padding}),
		Sampler:  sampler.NewWithConfig(sampler.Config{PaletteSize: cfg.Sampler.PaletteSize}),
	}
	if capability != nil {
		stages.Detector = detection.NewDetectorWithConfig(capability, detection.Config{
			InputSize:      cfg.Detector.InputSize,
			ScoreThreshold: cfg.Detector.ScoreThreshold,
			Timeout:        cfg.Detector.Timeout(),
			Logger:         logger,
		})
	}

	return &Analyzer{
		config:    cfg,
		stages:    stages,
		catalog:   products,
		processor: processing.NewProcessor(),
		logger:    logger,
	}, nil
}

// NewCapability builds the face capability for a detector backend. The
// "none" or empty backend returns a nil capability.
func NewCapability(cfg config.DetectorConfig) (client.FaceCapability, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendPigo:
		return pigo.New(cfg.ModelPath), nil
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown detector backend: %s", cfg.Backend)
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() *config.Config {
	return a.config
}

// Catalog returns the product catalog
func (a *Analyzer) Catalog() *catalog.Catalog {
	return a.catalog
}

// Loader returns the shared image loader
func (a *Analyzer) Loader() *loader.Loader {
	return a.stages.Loader
}

// Warmup starts detector initialization and waits for it. A failed
// initialization is returned for logging; analyses still work without it.
func (a *Analyzer) Warmup(ctx context.Context) error {
	if a.stages.Detector == nil {
		return nil
	}
	return a.stages.Detector.Init(ctx)
}

// NewSession creates a session sharing this analyzer's components
func (a *Analyzer) NewSession(observer pipeline.Observer) *pipeline.Session {
	return pipeline.NewSessionWithConfig(a.stages, pipeline.Config{
		Observer: observer,
		Palette:  a.config.Sampler.Palette,
		Logger:   a.logger,
	})
}

// Analyze runs a one-off analysis and attaches product recommendations
func (a *Analyzer) Analyze(ctx context.Context, src types.ImageSource, skinType *types.SkinType) (Report, error) {
	outcome, err := a.NewSession(nil).Analyze(ctx, src)
	if err != nil {
		return Report{}, err
	}
	return a.Report(src.Name, outcome, skinType), nil
}

// AnalyzeFile reads path and analyzes it
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, skinType *types.SkinType) (Report, error) {
	src, err := ReadSource(path)
	if err != nil {
		return Report{}, err
	}
	return a.Analyze(ctx, src, skinType)
}

// Report builds the user-facing report for an outcome
func (a *Analyzer) Report(name string, outcome types.Outcome, skinType *types.SkinType) Report {
	var products []catalog.Product
	if outcome.OK() {
		products = a.catalog.Filter(outcome.Label, skinType)
	}
	return NewReport(name, outcome, products)
}

// WriteDebugOverlay renders the face box, sampling region and sampled color
// of outcome over the source image and saves it to path
func (a *Analyzer) WriteDebugOverlay(src types.ImageSource, outcome types.Outcome, path string) error {
	if !outcome.OK() {
		return fmt.Errorf("no overlay for failed analysis: %w", outcome.Err)
	}

	img, err := a.stages.Loader.LoadImage(src)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	format := utils.GetFileExtension(path)
	if format == "" {
		format = a.config.Output.DebugFormat
	}
	quality := a.config.Output.Quality
	overlay := a.processor.CreateDebugOverlay(img, outcome.Face, outcome.Region, outcome.Sample)
	return a.processor.SaveImage(overlay, path, format, quality, quality >= 100)
}

// ReadSource reads an image file into an ImageSource
func ReadSource(path string) (types.ImageSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ImageSource{}, fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := utils.MediaTypeForFile(path)
	if mediaType == "" {
		mediaType = loader.SniffMediaType(data)
	}
	return types.ImageSource{
		Data:      data,
		MediaType: mediaType,
		Name:      filepath.Base(path),
	}, nil
}
