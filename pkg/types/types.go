package types

import (
	"errors"
	"fmt"
	"strings"
)

// ImageSource is an uploaded image payload. It is owned by the caller and
// must not be modified while an analysis is running.
type ImageSource struct {
	Data      []byte
	MediaType string
	Name      string
}

// BoundingBox is a face box in raster pixel coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the area of the box, zero for degenerate boxes
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Detection is a single face reported by a detection capability
type Detection struct {
	Box   BoundingBox `json:"box"`
	Score float64     `json:"score"`
}

// SamplingRegion is the rectangle of a raster that color is measured from.
// Regions produced by the region package always lie inside the raster and
// have positive width and height.
type SamplingRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the number of pixels covered by the region
func (r SamplingRegion) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// ColorSample is the aggregate 8-bit color of a sampling region
type ColorSample struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the sample as a #rrggbb string
func (c ColorSample) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// UndertoneLabel is the coarse skin color temperature
type UndertoneLabel string

const (
	Warm    UndertoneLabel = "warm"
	Cool    UndertoneLabel = "cool"
	Neutral UndertoneLabel = "neutral"
)

// ParseUndertone converts a string to an UndertoneLabel
func ParseUndertone(s string) (UndertoneLabel, error) {
	switch UndertoneLabel(strings.ToLower(strings.TrimSpace(s))) {
	case Warm:
		return Warm, nil
	case Cool:
		return Cool, nil
	case Neutral:
		return Neutral, nil
	}
	return "", fmt.Errorf("unknown undertone: %q", s)
}

// SkinType is an optional hint used when filtering products
type SkinType string

const (
	SkinNormal    SkinType = "normal"
	SkinDry       SkinType = "dry"
	SkinOily      SkinType = "oily"
	SkinSensitive SkinType = "sensitive"
)

// ParseSkinType converts a string to a SkinType
func ParseSkinType(s string) (SkinType, error) {
	switch SkinType(strings.ToLower(strings.TrimSpace(s))) {
	case SkinNormal:
		return SkinNormal, nil
	case SkinDry:
		return SkinDry, nil
	case SkinOily:
		return SkinOily, nil
	case SkinSensitive:
		return SkinSensitive, nil
	}
	return "", fmt.Errorf("unknown skin type: %q", s)
}

// Outcome is the terminal result of one analysis run. A nil Err means
// success and Label is set; otherwise Err carries one of the failure kinds.
type Outcome struct {
	Label   UndertoneLabel `json:"label,omitempty"`
	Sample  ColorSample    `json:"sample"`
	Region  SamplingRegion `json:"region"`
	Face    *BoundingBox   `json:"face,omitempty"`
	Palette []ColorSample  `json:"palette,omitempty"`
	Err     error          `json:"-"`
}

// Success builds a successful outcome
func Success(label UndertoneLabel) Outcome {
	return Outcome{Label: label}
}

// Failure builds a failed outcome
func Failure(err error) Outcome {
	return Outcome{Err: err}
}

// OK reports whether the outcome is a success
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Kind returns the failure kind, or an empty string on success
func (o Outcome) Kind() FailureKind {
	if o.Err == nil {
		return ""
	}
	return KindOf(o.Err)
}

// Message returns a single user-facing line describing the outcome
func (o Outcome) Message() string {
	if o.Err == nil {
		return fmt.Sprintf("Your undertone is %s", o.Label)
	}
	switch {
	case errors.Is(o.Err, ErrDecode):
		return "The uploaded file could not be read as an image. Please try another photo."
	case errors.Is(o.Err, ErrEmptyRegion), errors.Is(o.Err, ErrSample):
		return "We could not sample skin color from this photo. Please try another photo."
	}
	return "Analysis failed. Please try again."
}
