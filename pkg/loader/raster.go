// Package loader turns uploaded image payloads into pixel-addressable rasters.
//
// Every raster holds a handle registered with the Loader that produced it and
// must be released exactly once with Release. Release is idempotent, so it is
// safe to defer it on every exit path.
package loader

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// ErrReleased is returned when pixels are read from a released raster
var ErrReleased = errors.New("raster released")

// Raster is a decoded image with origin at (0,0)
type Raster struct {
	mu      sync.RWMutex
	img     *image.NRGBA
	format  string
	release func()
	once    sync.Once
}

// NewRaster wraps an image in an untracked raster
func NewRaster(img image.Image) *Raster {
	return &Raster{img: toNRGBA(img), format: "memory"}
}

// Width returns the raster width in pixels, 0 after release
func (r *Raster) Width() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return 0
	}
	return r.img.Bounds().Dx()
}

// Height returns the raster height in pixels, 0 after release
func (r *Raster) Height() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return 0
	}
	return r.img.Bounds().Dy()
}

// Format returns the decoder format name
func (r *Raster) Format() string {
	return r.format
}

// Image returns the underlying image, nil after release
func (r *Raster) Image() image.Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return nil
	}
	return r.img
}

// At returns the pixel at (x, y)
func (r *Raster) At(x, y int) (color.NRGBA, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return color.NRGBA{}, ErrReleased
	}
	if !(image.Point{X: x, Y: y}).In(r.img.Bounds()) {
		return color.NRGBA{}, errors.New("pixel out of bounds")
	}
	return r.img.NRGBAAt(x, y), nil
}

// Pixels calls fn for every row of the region with the row's packed
// R,G,B,A bytes. The slice must not be retained.
func (r *Raster) Pixels(region types.SamplingRegion, fn func(row []uint8)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return ErrReleased
	}

	rect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	if !rect.In(r.img.Bounds()) {
		return errors.New("region outside raster bounds")
	}

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		start := r.img.PixOffset(rect.Min.X, y)
		fn(r.img.Pix[start : start+rect.Dx()*4])
	}
	return nil
}

// Release drops the pixel buffer and frees the raster's handle. Calls after
// the first are no-ops.
func (r *Raster) Release() {
	r.once.Do(func() {
		r.mu.Lock()
		r.img = nil
		r.mu.Unlock()
		if r.release != nil {
			r.release()
		}
	})
}

// Crop returns a copy of the region's pixels
func (r *Raster) Crop(region types.SamplingRegion) (*image.NRGBA, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.img == nil {
		return nil, ErrReleased
	}

	rect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	if rect.Empty() || !rect.In(r.img.Bounds()) {
		return nil, errors.New("region outside raster bounds")
	}
	return imaging.Crop(r.img, rect), nil
}
