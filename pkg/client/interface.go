package client

import (
	"context"
	"image"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// FaceCapability is an external face-locating backend. Initialize loads
// whatever the backend needs (weights, a remote model) and is called once
// before the first DetectFaces. Boxes are in the pixel space of img.
type FaceCapability interface {
	Initialize(ctx context.Context) error
	DetectFaces(ctx context.Context, img image.Image) ([]types.Detection, error)
}
