// Package detection locates the single dominant face in a raster.
//
// The Detector wraps a client.FaceCapability with a fixed input size, a
// score threshold and a timeout. Absence of a face is a normal result: every
// backend failure, timeout or failed initialization is reported as "no face"
// so that sampling falls back to the full raster.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/undertone-analyzer/pkg/client"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

const (
	DefaultInputSize      = 416
	DefaultScoreThreshold = 0.5
	DefaultTimeout        = 3 * time.Second
)

// Config holds detector configuration
type Config struct {
	// InputSize is the longest side, in pixels, the raster is scaled down to
	// before it is handed to the capability. 0 disables scaling.
	InputSize      int
	ScoreThreshold float64
	// Timeout bounds one detection call; 0 disables it
	Timeout time.Duration
	Logger  *log.Logger
}

// DefaultConfig returns the documented detector defaults
func DefaultConfig() Config {
	return Config{
		InputSize:      DefaultInputSize,
		ScoreThreshold: DefaultScoreThreshold,
		Timeout:        DefaultTimeout,
	}
}

// Detector handles face detection using a pluggable capability. One Detector
// is meant to be shared by every session in the process.
type Detector struct {
	capability client.FaceCapability
	config     Config
	logger     *log.Logger

	initOnce sync.Once
	initDone chan struct{}
	initErr  error
}

// NewDetector creates a new detector with default configuration
func NewDetector(capability client.FaceCapability) *Detector {
	return NewDetectorWithConfig(capability, DefaultConfig())
}

// NewDetectorWithConfig creates a new detector with custom configuration
func NewDetectorWithConfig(capability client.FaceCapability, config Config) *Detector {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{
		capability: capability,
		config:     config,
		logger:     logger,
		initDone:   make(chan struct{}),
	}
}

// Config returns the detector configuration
func (d *Detector) Config() Config {
	return d.config
}

// Init waits until the capability is initialized. The first call starts
// initialization; it runs detached from ctx so an impatient caller cannot
// abort it for everyone else. A failed initialization is permanent and
// reported as ErrDetectorInit.
func (d *Detector) Init(ctx context.Context) error {
	d.initOnce.Do(func() {
		go func() {
			defer close(d.initDone)
			if d.capability == nil {
				d.initErr = fmt.Errorf("%w: no capability configured", types.ErrDetectorInit)
				return
			}
			if err := d.capability.Initialize(context.Background()); err != nil {
				d.initErr = fmt.Errorf("%w: %v", types.ErrDetectorInit, err)
				d.logger.Printf("detection: initialization failed, sampling will use the full image: %v", err)
			}
		}()
	})

	select {
	case <-d.initDone:
		return d.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detect returns the highest scoring face box above the threshold, or nil.
// The timeout covers waiting for initialization as well as the detection
// call. The only error it returns is ctx's own cancellation.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*types.BoundingBox, error) {
	detectCtx := ctx
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		detectCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	if err := d.Init(detectCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			d.logger.Printf("detection: initialization still pending after %s, falling back to full image", d.config.Timeout)
		}
		return nil, nil
	}
	if img == nil {
		return nil, nil
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, nil
	}

	input, scale := d.prepareInput(img)

	detections, err := d.capability.DetectFaces(detectCtx, input)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.logger.Printf("detection: timed out after %s, falling back to full image", d.config.Timeout)
		} else {
			d.logger.Printf("detection: capability error, falling back to full image: %v", err)
		}
		return nil, nil
	}

	best := SelectBest(detections, d.config.ScoreThreshold)
	if best == nil {
		return nil, nil
	}

	box := scaleBox(best.Box, scale)
	box.X += bounds.Min.X
	box.Y += bounds.Min.Y
	return &box, nil
}

// prepareInput shrinks the image so its longest side fits InputSize and
// returns the factor that maps input coordinates back to the original.
func (d *Detector) prepareInput(img image.Image) (image.Image, float64) {
	size := d.config.InputSize
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if size <= 0 || (w <= size && h <= size) {
		return img, 1
	}

	resized := imaging.Fit(img, size, size, imaging.Linear)
	rw := resized.Bounds().Dx()
	if rw == 0 {
		return img, 1
	}
	return resized, float64(w) / float64(rw)
}

// SelectBest picks the highest scoring detection at or above threshold.
// Only one face is ever used.
func SelectBest(detections []types.Detection, threshold float64) *types.Detection {
	var best *types.Detection
	for i := range detections {
		det := &detections[i]
		if det.Score < threshold || det.Box.Width <= 0 || det.Box.Height <= 0 {
			continue
		}
		if best == nil || det.Score > best.Score {
			best = det
		}
	}
	return best
}

func scaleBox(b types.BoundingBox, scale float64) types.BoundingBox {
	if scale == 1 {
		return b
	}
	return types.BoundingBox{
		X:      int(float64(b.X)*scale + 0.5),
		Y:      int(float64(b.Y)*scale + 0.5),
		Width:  int(float64(b.Width)*scale + 0.5),
		Height: int(float64(b.Height)*scale + 0.5),
	}
}
