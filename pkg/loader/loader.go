package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// Loader decodes uploaded image payloads into rasters
type Loader struct {
	config Config
	logger *log.Logger
	live   atomic.Int64
}

// Config holds configuration for the image loader
type Config struct {
	SupportedFormats []string
	// MaxPixels rejects rasters larger than this many pixels, 0 means no limit
	MaxPixels int
	Logger    *log.Logger
}

// DefaultFormats are the raster formats accepted by default
var DefaultFormats = []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"}

// New creates a new Loader with default configuration
func New() *Loader {
	return NewWithConfig(Config{
		SupportedFormats: DefaultFormats,
	})
}

// NewWithConfig creates a new Loader with custom configuration
func NewWithConfig(config Config) *Loader {
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultFormats
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{config: config, logger: logger}
}

// Live returns the number of rasters that have not been released yet
func (l *Loader) Live() int64 {
	return l.live.Load()
}

type decodeResult struct {
	raster *Raster
	err    error
}

// Load decodes the source into a raster. Decoding runs on its own goroutine;
// if ctx is cancelled first, Load returns the context error and the raster
// produced later is released by that goroutine.
//
// The caller must call Release on the returned raster.
func (l *Loader) Load(ctx context.Context, src types.ImageSource) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.checkMediaType(src); err != nil {
		return nil, err
	}

	// unbuffered: a result is either handed to the caller or released here
	done := make(chan decodeResult)
	abandoned := make(chan struct{})

	go func() {
		raster, err := l.decode(src)
		select {
		case done <- decodeResult{raster: raster, err: err}:
		case <-abandoned:
			if raster != nil {
				raster.Release()
			}
		}
	}()

	select {
	case res := <-done:
		return res.raster, res.err
	case <-ctx.Done():
		close(abandoned)
		return nil, ctx.Err()
	}
}

// LoadImage decodes the source without tracking a handle
func (l *Loader) LoadImage(src types.ImageSource) (image.Image, error) {
	img, _, err := l.decodeImage(src.Data)
	return img, err
}

func (l *Loader) decode(src types.ImageSource) (*Raster, error) {
	img, format, err := l.decodeImage(src.Data)
	if err != nil {
		return nil, err
	}

	// decoders without a config reader are only checked after decoding
	bounds := img.Bounds()
	if err := l.checkPixels(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}

	l.live.Add(1)
	return &Raster{
		img:     toNRGBA(img),
		format:  format,
		release: func() { l.live.Add(-1) },
	}, nil
}

// decodeImage tries the registered decoders first and falls back to the
// libwebp decoder for WebP variants the pure Go decoder rejects.
func (l *Loader) decodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", types.ErrDecode)
	}

	cfg, format, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	if cfgErr == nil {
		if err := l.checkPixels(cfg.Width, cfg.Height); err != nil {
			return nil, "", err
		}
	}

	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		if cfgErr != nil {
			format = "unknown"
		}
		if !l.isFormatSupported(format) {
			return nil, "", fmt.Errorf("%w: unsupported image format: %s", types.ErrDecode, format)
		}
		return img, format, nil
	}

	if l.isFormatSupported("webp") {
		if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
			l.logger.Printf("loader: decoded webp payload with libwebp fallback")
			return img, "webp", nil
		}
	}

	return nil, "", fmt.Errorf("%w: unknown or unsupported format", types.ErrDecode)
}

// checkPixels rejects images above MaxPixels
func (l *Loader) checkPixels(width, height int) error {
	if l.config.MaxPixels > 0 && int64(width)*int64(height) > int64(l.config.MaxPixels) {
		return fmt.Errorf("%w: image too large: %dx%d (maximum %d pixels)",
			types.ErrDecode, width, height, l.config.MaxPixels)
	}
	return nil
}

func (l *Loader) checkMediaType(src types.ImageSource) error {
	mediaType := strings.ToLower(strings.TrimSpace(src.MediaType))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		return nil
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: not an image media type: %s", types.ErrDecode, mediaType)
	}
	if !l.isFormatSupported(FormatFromMediaType(mediaType)) {
		return fmt.Errorf("%w: unsupported media type: %s", types.ErrDecode, mediaType)
	}
	return nil
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// FormatFromMediaType maps an image media type to a decoder format name
func FormatFromMediaType(mediaType string) string {
	format := strings.TrimPrefix(strings.ToLower(mediaType), "image/")
	switch format {
	case "jpg", "pjpeg":
		return "jpeg"
	case "x-ms-bmp", "x-bmp":
		return "bmp"
	case "tif":
		return "tiff"
	}
	return format
}

// SniffMediaType guesses the media type of a payload
func SniffMediaType(data []byte) string {
	return http.DetectContentType(data)
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
