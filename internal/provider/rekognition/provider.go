package rekognition

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
const maxImageSize = 5 * 1024 * 1024

// Provider implements provider.FaceLocator using the Rekognition DetectFaces
// API. Rekognition does not expose embeddings, so it cannot serve as an
// EmbeddingExtractor.
type Provider struct {
	api         DetectFacesAPI
	config      Config
	auditLogger audit.Logger
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

var _ provider.FaceLocator = (*Provider)(nil)

// NewProvider creates a locator backed by a real AWS client
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewProviderWithAPI(client, cfg, opts...), nil
}

// NewProviderWithAPI creates a locator on top of any DetectFacesAPI
func NewProviderWithAPI(api DetectFacesAPI, cfg Config, opts ...ProviderOption) *Provider {
	p := &Provider{
		api:    api,
		config: cfg,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventFaceLocated,
		Provider:  "rekognition",
		Success:   success,
		Metadata:  metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// Locate detects faces and converts the ratio-based boxes returned by AWS
// into pixel coordinates of img. Returns an empty slice if no faces are
// detected (not an error).
func (p *Provider) Locate(ctx context.Context, img image.Image) ([]provider.DetectedFace, error) {
	// JPEG keeps webcam frames well under the 5MB limit
	data, err := imaging.EncodeBytes(img, "jpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) > maxImageSize {
		err := fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(data), maxImageSize)
		p.logAudit(ctx, false, err, map[string]string{"image_size": strconv.Itoa(len(data))})
		return nil, err
	}

	output, err := p.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: data},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = parseAPIError(err)
		p.logAudit(ctx, false, err, map[string]string{"image_size": strconv.Itoa(len(data))})
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		confidence := aws.ToFloat32(detail.Confidence)
		if confidence < p.config.MinConfidence {
			continue
		}

		box := detail.BoundingBox
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(aws.ToFloat32(box.Left)) * w,
				Y:      float64(aws.ToFloat32(box.Top)) * h,
				Width:  float64(aws.ToFloat32(box.Width)) * w,
				Height: float64(aws.ToFloat32(box.Height)) * h,
			},
			Confidence: float64(confidence) / 100,
		})
	}

	p.logAudit(ctx, true, nil, map[string]string{
		"faces_count": strconv.Itoa(len(faces)),
		"image_size":  strconv.Itoa(len(data)),
	})

	return faces, nil
}
