package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/capture"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imagestore"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

type ReferenceStore interface {
	Exists(ctx context.Context, id domain.Identity) (bool, error)
	Read(ctx context.Context, id domain.Identity) (image.Image, error)
	Write(ctx context.Context, id domain.Identity, img image.Image) (string, error)
	Path(id domain.Identity) string
}

type FaceMatcher interface {
	Match(probe provider.Embedding, candidates []matcher.Candidate) (matcher.Result, error)
}

type VerificationRecorder interface {
	Create(ctx context.Context, v *domain.Verification) error
}

type Verifier struct {
	store     ReferenceStore
	camera    capture.Device
	locator   provider.FaceLocator
	extractor provider.EmbeddingExtractor
	matcher   FaceMatcher

	cache          cache.EmbeddingCache
	cacheTTL       time.Duration
	cacheNamespace string

	auditLogger  audit.Logger
	recorder     VerificationRecorder
	providerName string
	logger       *slog.Logger
}

type Option func(*Verifier)

// WithEmbeddingCache keeps reference embeddings under "namespace:user_id".
// Use the embedding model name as namespace so switching models never mixes
// vectors from different spaces.
func WithEmbeddingCache(c cache.EmbeddingCache, namespace string, ttl time.Duration) Option {
	return func(v *Verifier) {
		v.cache = c
		v.cacheNamespace = namespace
		v.cacheTTL = ttl
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(v *Verifier) {
		v.auditLogger = l
	}
}

// WithVerificationRecorder persists every verify decision. Recorder errors
// are logged and never fail the request.
func WithVerificationRecorder(r VerificationRecorder) Option {
	return func(v *Verifier) {
		v.recorder = r
	}
}

func WithProviderName(name string) Option {
	return func(v *Verifier) {
		v.providerName = name
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

func NewVerifier(
	store ReferenceStore,
	camera capture.Device,
	locator provider.FaceLocator,
	extractor provider.EmbeddingExtractor,
	faceMatcher FaceMatcher,
	opts ...Option,
) *Verifier {
	v := &Verifier{
		store:       store,
		camera:      camera,
		locator:     locator,
		extractor:   extractor,
		matcher:     faceMatcher,
		cache:       cache.Noop{},
		auditLogger: &audit.NoOpLogger{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "verifier")
	return v
}

// Check reports whether a reference image exists for id.
func (v *Verifier) Check(ctx context.Context, id domain.Identity) (bool, error) {
	exists, err := v.store.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("user %s: check reference: %w", id, err)
	}
	return exists, nil
}

// Enroll captures one frame and stores it as the reference image of id.
// A frame is stored only when it contains exactly one face.
func (v *Verifier) Enroll(ctx context.Context, id domain.Identity) (*domain.Enrollment, error) {
	exists, err := v.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %s: check reference: %w", id, err)
	}
	if exists {
		return &domain.Enrollment{
			Identity:  id,
			Status:    domain.EnrollmentAlreadyExists,
			ImagePath: v.store.Path(id),
		}, nil
	}

	enrollment, err := v.enroll(ctx, id)
	v.logEnrollment(ctx, id, enrollment, err)
	return enrollment, err
}

func (v *Verifier) enroll(ctx context.Context, id domain.Identity) (*domain.Enrollment, error) {
	frame, err := v.captureFrame(ctx)
	if err != nil {
		return nil, err
	}

	faces, err := v.locator.Locate(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("user %s: locate faces: %w", id, err)
	}

	switch {
	case len(faces) > 1:
		return nil, domain.ErrMultipleSubjects
	case len(faces) == 0:
		return nil, domain.ErrNoSubject
	}

	path, err := v.store.Write(ctx, id, frame)
	if errors.Is(err, imagestore.ErrAlreadyExists) {
		// lost the race against a concurrent enroll of the same user
		return &domain.Enrollment{Identity: id, Status: domain.EnrollmentAlreadyExists, ImagePath: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user %s: store reference: %w", id, err)
	}

	if err := v.cache.Delete(ctx, v.cacheKey(id)); err != nil {
		v.logger.WarnContext(ctx, "failed to drop cached reference embedding",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	return &domain.Enrollment{Identity: id, Status: domain.EnrollmentCreated, ImagePath: path}, nil
}

// Verify compares a live frame against the reference image of id. Face
// counts other than one on either side give a negative decision without
// extracting embeddings.
func (v *Verifier) Verify(ctx context.Context, id domain.Identity) (*domain.Verification, error) {
	start := time.Now()

	reference, err := v.store.Read(ctx, id)
	if errors.Is(err, imagestore.ErrNotFound) {
		return nil, domain.ErrNoReference
	}
	if err != nil {
		return nil, fmt.Errorf("user %s: read reference: %w", id, err)
	}

	frame, err := v.captureFrame(ctx)
	if err != nil {
		v.logVerification(ctx, id, nil, err)
		return nil, err
	}

	verification, err := v.verify(ctx, id, reference, frame)
	if err != nil {
		v.logVerification(ctx, id, nil, err)
		return nil, err
	}
	verification.LatencyMs = time.Since(start).Milliseconds()
	verification.CreatedAt = time.Now().UTC()

	v.logVerification(ctx, id, verification, nil)
	v.record(ctx, verification)

	return verification, nil
}

func (v *Verifier) verify(ctx context.Context, id domain.Identity, reference, frame image.Image) (*domain.Verification, error) {
	liveFaces, err := v.locator.Locate(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("user %s: locate faces in live frame: %w", id, err)
	}

	referenceEmbedding, cached := v.cachedReference(ctx, id)

	var referenceFaces []provider.DetectedFace
	referenceCount := 1
	if !cached {
		referenceFaces, err = v.locator.Locate(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("user %s: locate faces in reference: %w", id, err)
		}
		referenceCount = len(referenceFaces)
	}

	verification := &domain.Verification{
		ID:             uuid.New(),
		Identity:       id,
		LiveFaces:      len(liveFaces),
		ReferenceFaces: referenceCount,
	}

	if len(liveFaces) != 1 || referenceCount != 1 {
		verification.Reason = domain.ReasonAmbiguousFaceCount
		return verification, nil
	}

	liveEmbedding, err := v.embed(ctx, frame, liveFaces[0])
	if err != nil {
		return nil, fmt.Errorf("user %s: embed live face: %w", id, err)
	}

	if !cached {
		referenceEmbedding, err = v.embed(ctx, reference, referenceFaces[0])
		if err != nil {
			return nil, fmt.Errorf("user %s: embed reference face: %w", id, err)
		}
		v.cacheReference(ctx, id, referenceEmbedding)
	}

	result, err := v.matcher.Match(liveEmbedding, []matcher.Candidate{
		{Embedding: referenceEmbedding, Label: id.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("user %s: match: %w", id, err)
	}

	verification.Recognized = result.Recognized()
	verification.Score = result.Score
	verification.Reason = domain.ReasonNoMatch
	if verification.Recognized {
		verification.Reason = domain.ReasonMatch
	}

	return verification, nil
}

// captureFrame opens the camera, reads one frame and releases the camera
// before returning.
func (v *Verifier) captureFrame(ctx context.Context) (image.Image, error) {
	handle, err := v.camera.Open(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.ErrCameraUnavailable.WithError(err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			v.logger.WarnContext(ctx, "failed to close camera", slog.String("error", err.Error()))
		}
	}()

	frame, err := handle.ReadFrame(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.ErrFrameRead.WithError(err)
	}

	return frame, nil
}

func (v *Verifier) embed(ctx context.Context, img image.Image, face provider.DetectedFace) (provider.Embedding, error) {
	crop, err := imaging.CropFace(img, face.BoundingBox)
	if err != nil {
		return nil, err
	}
	return v.extractor.Embed(ctx, crop)
}

func (v *Verifier) cacheKey(id domain.Identity) string {
	if v.cacheNamespace == "" {
		return id.String()
	}
	return v.cacheNamespace + ":" + id.String()
}

func (v *Verifier) cachedReference(ctx context.Context, id domain.Identity) (provider.Embedding, bool) {
	emb, err := v.cache.Get(ctx, v.cacheKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheExpired) {
			v.logger.WarnContext(ctx, "reference embedding cache unavailable",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return emb, true
}

func (v *Verifier) cacheReference(ctx context.Context, id domain.Identity, emb provider.Embedding) {
	if err := v.cache.Set(ctx, v.cacheKey(id), emb, v.cacheTTL); err != nil {
		v.logger.WarnContext(ctx, "failed to cache reference embedding",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (v *Verifier) record(ctx context.Context, verification *domain.Verification) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.Create(ctx, verification); err != nil {
		v.logger.ErrorContext(ctx, "failed to record verification",
			slog.String("user_id", verification.Identity.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (v *Verifier) logEnrollment(ctx context.Context, id domain.Identity, enrollment *domain.Enrollment, err error) {
	event := audit.Event{
		Identity:  id.String(),
		EventType: audit.EventReferenceEnrolled,
		Provider:  v.providerName,
		Success:   err == nil,
		RequestID: audit.RequestIDFromContext(ctx),
	}
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Metadata = map[string]string{"status": string(enrollment.Status)}
	}
	_ = v.auditLogger.Log(ctx, event)
}

func (v *Verifier) logVerification(ctx context.Context, id domain.Identity, verification *domain.Verification, err error) {
	event := audit.Event{
		Identity:  id.String(),
		EventType: audit.EventFaceVerified,
		Provider:  v.providerName,
		Success:   err == nil,
		RequestID: audit.RequestIDFromContext(ctx),
	}
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Metadata = map[string]string{
			"recognized":      strconv.FormatBool(verification.Recognized),
			"reason":          string(verification.Reason),
			"score":           strconv.FormatFloat(verification.Score, 'f', 4, 64),
			"live_faces":      strconv.Itoa(verification.LiveFaces),
			"reference_faces": strconv.Itoa(verification.ReferenceFaces),
		}
	}
	_ = v.auditLogger.Log(ctx, event)
}
