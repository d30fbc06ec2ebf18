// Package pigo is a pure Go face capability backed by the pigo cascade
// classifier. The cascade file is read from disk on Initialize.
package pigo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

const DefaultCascadePath = "models/facefinder"

var ErrNotInitialized = errors.New("pigo: cascade not loaded")

// Config holds cascade parameters
type Config struct {
	CascadePath string
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	// IoUThreshold merges overlapping detections
	IoUThreshold float64
	// Angle is the cascade rotation, 0.0 is 0 and 1.0 is 2*pi radians
	Angle float64
}

// DefaultConfig returns parameters suited to portrait photos
func DefaultConfig() Config {
	return Config{
		CascadePath:  DefaultCascadePath,
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
	}
}

// Capability runs the pigo classifier
type Capability struct {
	config Config

	mu         sync.RWMutex
	classifier *pigo.Pigo
}

// New creates a capability reading the cascade from path
func New(path string) *Capability {
	cfg := DefaultConfig()
	if path != "" {
		cfg.CascadePath = path
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a capability with custom parameters
func NewWithConfig(config Config) *Capability {
	return &Capability{config: config}
}

// Initialize reads and unpacks the cascade file
func (c *Capability) Initialize(ctx context.Context) error {
	data, err := os.ReadFile(c.config.CascadePath)
	if err != nil {
		return fmt.Errorf("error reading the cascade file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	classifier, err := unpack(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.classifier = classifier
	c.mu.Unlock()
	return nil
}

// unpack turns a malformed cascade into an error instead of a panic
func unpack(data []byte) (classifier *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			classifier = nil
			err = fmt.Errorf("error unpacking the cascade file: %v", r)
		}
	}()

	classifier, err = pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return classifier, nil
}

// DetectFaces runs the cascade over img. The cascade itself cannot be
// interrupted, so ctx only bounds how long the caller waits.
func (c *Capability) DetectFaces(ctx context.Context, img image.Image) ([]types.Detection, error) {
	c.mu.RLock()
	classifier := c.classifier
	c.mu.RUnlock()
	if classifier == nil {
		return nil, ErrNotInitialized
	}

	done := make(chan []types.Detection, 1)
	go func() {
		done <- c.run(classifier, img)
	}()

	select {
	case dets := <-done:
		return dets, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Capability) run(classifier *pigo.Pigo, img image.Image) []types.Detection {
	// pigo expects a zero-origin image
	src := imaging.Clone(img)
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     c.config.MinSize,
		MaxSize:     c.config.MaxSize,
		ShiftFactor: c.config.ShiftFactor,
		ScaleFactor: c.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := classifier.RunCascade(params, c.config.Angle)
	dets = classifier.ClusterDetections(dets, c.config.IoUThreshold)

	return toDetections(dets, cols, rows)
}

// toDetections converts centre/scale quadruplets into boxes clipped to the
// image. Quality is mapped to a score by Q/100.
func toDetections(dets []pigo.Detection, cols, rows int) []types.Detection {
	var out []types.Detection
	for _, det := range dets {
		half := det.Scale / 2
		r := image.Rect(det.Col-half, det.Row-half, det.Col-half+det.Scale, det.Row-half+det.Scale)
		r = r.Intersect(image.Rect(0, 0, cols, rows))
		if r.Empty() {
			continue
		}

		score := float64(det.Q) / 100
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}

		out = append(out, types.Detection{
			Box:   types.BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()},
			Score: score,
		})
	}
	return out
}
