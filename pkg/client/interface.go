package client

import (
	"context"
	"image"

	"github.com/menta2k/phytoguard/pkg/types"
)

// Predictor sends a source image to an inference backend. Implementations
// report an unreachable or failing backend by wrapping
// inference.ErrServiceUnavailable.
type Predictor interface {
	Predict(ctx context.Context, src []byte, filename string) (*types.Response, error)
	PredictImage(ctx context.Context, img image.Image, filename string) (*types.Response, error)
}
