package inference

import (
	"context"

	"github.com/eleven-am/trackie/internal/spatial"
	"github.com/eleven-am/trackie/internal/vision"
)

// Detector runs object detection on an encoded frame. Box coordinates are in
// the frame's pixel space.
type Detector interface {
	Detect(ctx context.Context, frame *vision.Frame) (vision.DetectionSet, error)
	Classes() spatial.ClassTable
}

// DepthEstimator produces a relative inverse-depth map at frame resolution.
type DepthEstimator interface {
	EstimateDepth(ctx context.Context, frame *vision.Frame) (*vision.DepthMap, error)
}

type Face struct {
	Box       vision.Box
	Embedding []float32
}

// FaceEmbedder locates faces in a frame and returns one embedding per face,
// largest face first.
type FaceEmbedder interface {
	EmbedFaces(ctx context.Context, frame *vision.Frame) ([]Face, error)
}
