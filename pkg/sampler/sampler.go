// Package sampler measures the color of a sampling region.
//
// Mean is the classification input: the unweighted average of every pixel's
// red, green and blue channels. Palette reports the dominant colors of the
// same region for display and is never used for classification.
package sampler

import (
	"fmt"
	"image"
	"sort"

	"github.com/EdlinOrg/prominentcolor"

	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// Sampler computes color statistics over raster regions
type Sampler struct {
	config Config
}

// Config holds configuration for color sampling
type Config struct {
	// PaletteSize is the number of dominant colors extracted by Palette
	PaletteSize int
}

// New creates a new Sampler with default configuration
func New() *Sampler {
	return &Sampler{
		config: Config{
			PaletteSize: 5,
		},
	}
}

// NewWithConfig creates a new Sampler with custom configuration
func NewWithConfig(config Config) *Sampler {
	return &Sampler{config: config}
}

// Mean returns the per-channel mean color of the region, rounded to the
// nearest integer. Alpha is ignored.
func (s *Sampler) Mean(raster *loader.Raster, region types.SamplingRegion) (types.ColorSample, error) {
	n := uint64(region.Area())
	if n == 0 {
		return types.ColorSample{}, fmt.Errorf("%w: %dx%d", types.ErrEmptyRegion, region.Width, region.Height)
	}

	var rSum, gSum, bSum uint64
	err := raster.Pixels(region, func(row []uint8) {
		for i := 0; i+3 < len(row); i += 4 {
			rSum += uint64(row[i])
			gSum += uint64(row[i+1])
			bSum += uint64(row[i+2])
		}
	})
	if err != nil {
		return types.ColorSample{}, fmt.Errorf("%w: %v", types.ErrSample, err)
	}

	return types.ColorSample{
		R: roundDiv(rSum, n),
		G: roundDiv(gSum, n),
		B: roundDiv(bSum, n),
	}, nil
}

// Palette returns up to PaletteSize dominant colors of the region, most
// frequent first.
func (s *Sampler) Palette(raster *loader.Raster, region types.SamplingRegion) ([]types.ColorSample, error) {
	if region.Area() == 0 {
		return nil, fmt.Errorf("%w: %dx%d", types.ErrEmptyRegion, region.Width, region.Height)
	}
	k := s.config.PaletteSize
	if k <= 0 {
		k = prominentcolor.DefaultK
	}

	crop, err := raster.Crop(region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSample, err)
	}

	items, err := kmeans(k, crop)
	if err != nil {
		return nil, fmt.Errorf("%w: dominant color extraction failed: %v", types.ErrSample, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Cnt > items[j].Cnt
	})

	palette := make([]types.ColorSample, 0, len(items))
	for _, item := range items {
		palette = append(palette, types.ColorSample{
			R: uint8(item.Color.R),
			G: uint8(item.Color.G),
			B: uint8(item.Color.B),
		})
	}
	return palette, nil
}

// kmeans runs prominentcolor, reporting a panic on degenerate input as an error
func kmeans(k int, img image.Image) (items []prominentcolor.ColorItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("k-means failed: %v", r)
		}
	}()
	return prominentcolor.KmeansWithAll(k, img, prominentcolor.ArgumentNoCropping, prominentcolor.DefaultSize, nil)
}

// roundDiv divides with halves rounded up
func roundDiv(sum, n uint64) uint8 {
	return uint8((2*sum + n) / (2 * n))
}
