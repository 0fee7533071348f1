package provider

import (
	"context"
	"errors"
	"image"
	"math"
)

// FaceInputSize is the side length, in pixels, of the square face crop
// expected by every EmbeddingExtractor (FaceNet input).
const FaceInputSize = 160

// ErrInvalidCropSize is returned by extractors when the crop is not
// FaceInputSize x FaceInputSize. Extractors never resize on their own.
var ErrInvalidCropSize = errors.New("face crop must be 160x160")

// FaceLocator finds face regions in an image.
//
// An image without faces yields an empty slice and a nil error. The order of
// the returned faces is provider dependent.
type FaceLocator interface {
	Locate(ctx context.Context, img image.Image) ([]DetectedFace, error)
}

// EmbeddingExtractor turns a single normalized face crop into an
// L2-normalized identity vector. Same crop and model version, same vector.
type EmbeddingExtractor interface {
	Embed(ctx context.Context, crop image.Image) (Embedding, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

// BoundingBox represents the face area in the image, in pixels
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to an integer rectangle in image coordinates.
func (b BoundingBox) Rect() image.Rectangle {
	x0 := int(math.Round(b.X))
	y0 := int(math.Round(b.Y))
	return image.Rect(x0, y0, x0+int(math.Round(b.Width)), y0+int(math.Round(b.Height)))
}

// Embedding is a fixed-length face descriptor
type Embedding []float64

// Normalize returns a unit-length copy of the embedding. A zero vector is
// returned unchanged.
func (e Embedding) Normalize() Embedding {
	if len(e) == 0 {
		return e
	}

	var norm float64
	for _, v := range e {
		norm += v * v
	}

	if norm == 0 {
		return e
	}

	norm = math.Sqrt(norm)
	normalized := make(Embedding, len(e))
	for i, v := range e {
		normalized[i] = v / norm
	}

	return normalized
}

// CheckCropSize reports ErrInvalidCropSize unless crop has the model input size.
func CheckCropSize(crop image.Image) error {
	if crop == nil {
		return ErrInvalidCropSize
	}
	b := crop.Bounds()
	if b.Dx() != FaceInputSize || b.Dy() != FaceInputSize {
		return ErrInvalidCropSize
	}
	return nil
}
