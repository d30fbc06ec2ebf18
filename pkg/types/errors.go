package types

import "errors"

var (
	// ErrDecode means the payload is not a supported, valid image
	ErrDecode = errors.New("decode error")
	// ErrDetectorInit means the detection capability failed to initialize
	ErrDetectorInit = errors.New("detector init error")
	// ErrSample means pixel data could not be read from a valid region
	ErrSample = errors.New("sample error")
	// ErrEmptyRegion means a zero-area region reached the sampler
	ErrEmptyRegion = errors.New("empty region")
	// ErrSuperseded means a newer analysis replaced this one
	ErrSuperseded = errors.New("analysis superseded")
)

// FailureKind names a failure in the error taxonomy
type FailureKind string

const (
	KindDecode       FailureKind = "decode_error"
	KindDetectorInit FailureKind = "detector_init_error"
	KindSample       FailureKind = "sample_error"
	KindEmptyRegion  FailureKind = "empty_region_error"
	KindUnknown      FailureKind = "unknown_error"
)

// KindOf maps an error onto the failure taxonomy
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrDetectorInit):
		return KindDetectorInit
	case errors.Is(err, ErrEmptyRegion):
		return KindEmptyRegion
	case errors.Is(err, ErrSample):
		return KindSample
	}
	return KindUnknown
}
