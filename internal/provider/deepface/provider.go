package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// Provider implements provider.FaceLocator and provider.EmbeddingExtractor
// on top of the DeepFace /represent endpoint.
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// Locate runs the configured detector backend and returns the facial areas.
// With enforce_detection off DeepFace answers a face-less image with one
// full-frame result of zero confidence; those are dropped.
func (p *Provider) Locate(ctx context.Context, img image.Image) ([]provider.DetectedFace, error) {
	uri, err := dataURI(img)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	resp, err := p.client.Represent(ctx, uri, "")
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		area := result.FacialArea
		if area.W <= 0 || area.H <= 0 || result.FaceConfidence <= 0 {
			continue
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(area.X),
				Y:      float64(area.Y),
				Width:  float64(area.W),
				Height: float64(area.H),
			},
			Confidence: result.FaceConfidence,
		})
	}

	return faces, nil
}

// Embed sends an already cropped 160x160 face with detection skipped and
// returns the L2-normalized embedding.
func (p *Provider) Embed(ctx context.Context, crop image.Image) (provider.Embedding, error) {
	if err := provider.CheckCropSize(crop); err != nil {
		return nil, err
	}

	uri, err := dataURI(crop)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	resp, err := p.client.Represent(ctx, uri, detectorSkip)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}

	return provider.Embedding(resp.Results[0].Embedding).Normalize(), nil
}

func dataURI(img image.Image) (string, error) {
	data, err := imaging.EncodeBytes(img, "png")
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

var (
	_ provider.FaceLocator        = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)
