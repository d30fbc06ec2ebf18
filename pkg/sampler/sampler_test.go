package sampler

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/region"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// createTestImage creates a uniform test image
func createTestImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNew(t *testing.T) {
	sampler := New()
	if sampler == nil {
		t.Fatal("New() returned nil")
	}
	if sampler.config.PaletteSize != 5 {
		t.Errorf("Expected palette size 5, got %d", sampler.config.PaletteSize)
	}
}

func TestMeanUniform(t *testing.T) {
	sampler := New()

	for _, c := range []uint8{0, 1, 127, 128, 200, 255} {
		raster := loader.NewRaster(createTestImage(25, 17, color.RGBA{c, c, c, 255}))
		got, err := sampler.Mean(raster, region.Full(25, 17))
		if err != nil {
			t.Fatalf("Mean failed: %v", err)
		}
		want := types.ColorSample{R: c, G: c, B: c}
		if got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	}
}

func TestMeanRegionOnly(t *testing.T) {
	sampler := New()
	img := createTestImage(100, 100, color.RGBA{0, 0, 255, 255})
	for y := 20; y < 40; y++ {
		for x := 30; x < 60; x++ {
			img.Set(x, y, color.RGBA{200, 100, 50, 255})
		}
	}
	raster := loader.NewRaster(img)

	got, err := sampler.Mean(raster, types.SamplingRegion{X: 30, Y: 20, Width: 30, Height: 20})
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if got != (types.ColorSample{R: 200, G: 100, B: 50}) {
		t.Errorf("Expected region color only, got %+v", got)
	}
}

func TestMeanRounding(t *testing.T) {
	sampler := New()
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{1, 10, 0, 255})
	img.Set(1, 0, color.RGBA{2, 11, 3, 255})
	raster := loader.NewRaster(img)

	got, err := sampler.Mean(raster, region.Full(2, 1))
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	want := types.ColorSample{R: 2, G: 11, B: 2}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestMeanIgnoresAlpha(t *testing.T) {
	sampler := New()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 180, G: 120, B: 90, A: uint8(x * 60)})
		}
	}
	raster := loader.NewRaster(img)

	got, err := sampler.Mean(raster, region.Full(4, 4))
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if got != (types.ColorSample{R: 180, G: 120, B: 90}) {
		t.Errorf("Expected alpha to be ignored, got %+v", got)
	}
}

func TestMeanEmptyRegion(t *testing.T) {
	sampler := New()
	raster := loader.NewRaster(createTestImage(10, 10, color.RGBA{A: 255}))

	_, err := sampler.Mean(raster, types.SamplingRegion{X: 0, Y: 0, Width: 0, Height: 10})
	if !errors.Is(err, types.ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion, got %v", err)
	}
}

func TestMeanReleasedRaster(t *testing.T) {
	sampler := New()
	raster := loader.NewRaster(createTestImage(10, 10, color.RGBA{A: 255}))
	raster.Release()

	_, err := sampler.Mean(raster, region.Full(10, 10))
	if !errors.Is(err, types.ErrSample) {
		t.Errorf("Expected ErrSample, got %v", err)
	}
}

func TestPalette(t *testing.T) {
	sampler := NewWithConfig(Config{PaletteSize: 2})
	img := createTestImage(120, 120, color.RGBA{220, 40, 40, 255})
	for y := 0; y < 120; y++ {
		for x := 90; x < 120; x++ {
			img.Set(x, y, color.RGBA{30, 30, 220, 255})
		}
	}
	raster := loader.NewRaster(img)

	palette, err := sampler.Palette(raster, region.Full(120, 120))
	if err != nil {
		t.Fatalf("Palette failed: %v", err)
	}
	if len(palette) == 0 {
		t.Fatal("Expected at least one dominant color")
	}

	top := palette[0]
	if top.R < 150 || top.B > 110 {
		t.Errorf("Expected red to dominate, got %s", top.Hex())
	}
}

func TestPaletteEmptyRegion(t *testing.T) {
	sampler := New()
	raster := loader.NewRaster(createTestImage(10, 10, color.RGBA{A: 255}))

	if _, err := sampler.Palette(raster, types.SamplingRegion{Width: 5}); !errors.Is(err, types.ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion, got %v", err)
	}
}

func BenchmarkMean(b *testing.B) {
	sampler := New()
	raster := loader.NewRaster(createTestImage(1920, 1080, color.RGBA{200, 150, 120, 255}))
	full := region.Full(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sampler.Mean(raster, full)
	}
}
