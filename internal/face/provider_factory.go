package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/capture"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider/rekognition"
)

// ProviderType defines supported face provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP service (MTCNN + FaceNet)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is AWS Rekognition (locator only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock is the deterministic in-process provider
	ProviderTypeMock ProviderType = "mock"
)

// CameraType defines supported capture devices
type CameraType string

const (
	CameraTypeFFmpeg   CameraType = "ffmpeg"
	CameraTypeSnapshot CameraType = "snapshot"
	CameraTypeFile     CameraType = "file"
)

// NewLocator creates the FaceLocator selected by LOCATOR.
//
// Environment variables:
//   - LOCATOR: "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL / DEEPFACE_DETECTOR: DeepFace service and detector backend
//   - AWS_REGION: AWS region for Rekognition, credentials via the AWS SDK chain
func NewLocator(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.FaceLocator, error) {
	switch ProviderType(cfg.Locator) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeRekognition:
		rekogConfig := rekognition.DefaultConfig()
		rekogConfig.Region = cfg.AWSRegion

		var opts []rekognition.ProviderOption
		if auditLogger != nil {
			opts = append(opts, rekognition.WithAuditLogger(auditLogger))
		}

		prov, err := rekognition.NewProvider(ctx, rekogConfig, opts...)
		if err != nil {
			return nil, fmt.Errorf("create rekognition locator: %w", err)
		}
		return prov, nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown locator type: %s (supported: %s, %s, %s)",
			cfg.Locator, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// NewExtractor creates the EmbeddingExtractor selected by EXTRACTOR.
// Rekognition is rejected because it never exposes embeddings.
func NewExtractor(cfg *config.Config) (provider.EmbeddingExtractor, error) {
	switch ProviderType(cfg.Extractor) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	case ProviderTypeRekognition:
		return nil, fmt.Errorf("extractor %s: rekognition does not expose embeddings", cfg.Extractor)

	default:
		return nil, fmt.Errorf("unknown extractor type: %s (supported: %s, %s)",
			cfg.Extractor, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// NewCamera creates the capture device selected by CAMERA, wrapped so that
// only one handle can be open at a time.
func NewCamera(cfg *config.Config) (*capture.Exclusive, error) {
	var dev capture.Device

	switch CameraType(cfg.Camera) {
	case CameraTypeFFmpeg, "":
		dev = capture.NewFFmpegDevice(cfg.FFmpegPath, cfg.CameraDevice, cfg.CameraWarmup)

	case CameraTypeSnapshot:
		if cfg.CameraSnapshotURL == "" {
			return nil, fmt.Errorf("CAMERA=snapshot requires CAMERA_SNAPSHOT_URL")
		}
		dev = capture.NewSnapshotDevice(cfg.CameraSnapshotURL, cfg.DeepFaceTimeout, cfg.CameraWarmup)

	case CameraTypeFile:
		if cfg.CameraFile == "" {
			return nil, fmt.Errorf("CAMERA=file requires CAMERA_FILE")
		}
		dev = capture.NewFileDevice(cfg.CameraFile)

	default:
		return nil, fmt.Errorf("unknown camera type: %s (supported: %s, %s, %s)",
			cfg.Camera, CameraTypeFFmpeg, CameraTypeSnapshot, CameraTypeFile)
	}

	return capture.NewExclusive(dev, cfg.CameraAcquireTimeout), nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}
	if cfg.DeepFaceTimeout > 0 {
		deepfaceConfig.Timeout = cfg.DeepFaceTimeout
	}
	if cfg.DeepFaceRetries >= 0 {
		deepfaceConfig.RetryCount = cfg.DeepFaceRetries
	}

	return deepface.NewProvider(deepfaceConfig)
}
