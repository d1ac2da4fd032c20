package client

import (
	"context"

	"github.com/menta2k/dental-vision/pkg/types"
)

// VisionClient is a pretrained vision model reachable over some backend.
// Implementations only transport the prompt and image; they hold no model logic.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Detect(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error)
}
