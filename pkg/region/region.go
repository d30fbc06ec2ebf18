// Package region derives the sampling rectangle from an optional face box.
package region

import (
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// DefaultPadding is the margin, in raster pixels, added on every side of a
// detected face box.
const DefaultPadding = 20

// Selector turns detection results into sampling regions
type Selector struct {
	config Config
}

// Config holds configuration for region selection
type Config struct {
	Padding int
}

// New creates a new Selector with default configuration
func New() *Selector {
	return &Selector{
		config: Config{
			Padding: DefaultPadding,
		},
	}
}

// NewWithConfig creates a new Selector with custom configuration
func NewWithConfig(config Config) *Selector {
	return &Selector{config: config}
}

// Padding returns the configured margin
func (s *Selector) Padding() int {
	return s.config.Padding
}

// Full returns the region covering the whole raster
func Full(width, height int) types.SamplingRegion {
	return types.SamplingRegion{X: 0, Y: 0, Width: width, Height: height}
}

// Select returns the region to sample for a raster of the given size.
//
// A nil or degenerate box selects the full raster. A box that touches or
// crosses the raster edge is treated as a partial face and also selects the
// full raster; this rejection is applied before padding and does not follow
// from clamping. Any other box is padded and clamped into the raster, and
// the full raster is used if clamping leaves nothing.
func (s *Selector) Select(width, height int, box *types.BoundingBox) types.SamplingRegion {
	full := Full(width, height)
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		return full
	}
	if touchesEdge(*box, width, height) {
		return full
	}

	pad := s.config.Padding
	x := box.X - pad
	y := box.Y - pad
	w := box.Width + 2*pad
	h := box.Height + 2*pad

	x = max(0, x)
	y = max(0, y)
	w = min(width-x, w)
	h = min(height-y, h)

	if w <= 0 || h <= 0 {
		return full
	}

	return types.SamplingRegion{X: x, Y: y, Width: w, Height: h}
}

// Contains reports whether the region lies fully inside a raster of the
// given size and has positive area.
func Contains(r types.SamplingRegion, width, height int) bool {
	if r.Width <= 0 || r.Height <= 0 {
		return false
	}
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

// touchesEdge reports whether the box reaches or crosses any raster edge.
// Such boxes come from partially visible faces and are not trusted.
func touchesEdge(b types.BoundingBox, width, height int) bool {
	return b.X <= 0 || b.Y <= 0 || b.X+b.Width >= width || b.Y+b.Height >= height
}
