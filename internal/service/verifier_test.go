package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/capture"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imagestore"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Open(ctx context.Context) (capture.Handle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(capture.Handle), args.Error(1)
}

type MockHandle struct {
	mock.Mock
}

func (m *MockHandle) ReadFrame(ctx context.Context) (image.Image, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(image.Image), args.Error(1)
}

func (m *MockHandle) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Locate(ctx context.Context, img image.Image) ([]provider.DetectedFace, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.DetectedFace), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Embed(ctx context.Context, crop image.Image) (provider.Embedding, error) {
	args := m.Called(ctx, crop)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Embedding), args.Error(1)
}

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Match(probe provider.Embedding, candidates []matcher.Candidate) (matcher.Result, error) {
	args := m.Called(probe, candidates)
	return args.Get(0).(matcher.Result), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Create(ctx context.Context, v *domain.Verification) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *recordingAuditLogger) Log(_ context.Context, event audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

var (
	liveColor      = color.RGBA{R: 200, A: 255}
	referenceColor = color.RGBA{B: 200, A: 255}
	oneFace        = []provider.DetectedFace{{BoundingBox: provider.BoundingBox{X: 4, Y: 4, Width: 24, Height: 24}, Confidence: 0.99}}
	twoFaces       = []provider.DetectedFace{oneFace[0], {BoundingBox: provider.BoundingBox{X: 32, Y: 4, Width: 24, Height: 24}, Confidence: 0.97}}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// isLive tells live frames and their crops apart from reference images by
// their dominant channel.
func isLive(img image.Image) bool {
	b := img.Bounds()
	r, _, bl, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	return r > bl
}

var (
	liveImage      = mock.MatchedBy(func(img image.Image) bool { return isLive(img) })
	referenceImage = mock.MatchedBy(func(img image.Image) bool { return !isLive(img) })
)

type fixture struct {
	store     *imagestore.Store
	camera    *MockDevice
	handle    *MockHandle
	locator   *MockLocator
	extractor *MockExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := imagestore.New(t.TempDir(), "png")
	require.NoError(t, err)

	return &fixture{
		store:     store,
		camera:    new(MockDevice),
		handle:    new(MockHandle),
		locator:   new(MockLocator),
		extractor: new(MockExtractor),
	}
}

func (f *fixture) cameraReturns(frame image.Image) {
	f.camera.On("Open", mock.Anything).Return(f.handle, nil)
	f.handle.On("ReadFrame", mock.Anything).Return(frame, nil)
	f.handle.On("Close").Return(nil).Once()
}

func (f *fixture) enrollReference(t *testing.T, id domain.Identity) {
	t.Helper()
	_, err := f.store.Write(context.Background(), id, solid(64, 48, referenceColor))
	require.NoError(t, err)
}

func (f *fixture) verifier(m FaceMatcher, opts ...Option) *Verifier {
	return NewVerifier(f.store, f.camera, f.locator, f.extractor, m, opts...)
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.camera.AssertExpectations(t)
	f.handle.AssertExpectations(t)
	f.locator.AssertExpectations(t)
	f.extractor.AssertExpectations(t)
}

// unitAt returns a unit vector whose cosine with {1, 0} is cos.
func unitAt(cos float64) provider.Embedding {
	return provider.Embedding{cos, math.Sqrt(1 - cos*cos)}
}

func TestVerifier_Enroll(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fixture)
		wantStatus domain.EnrollmentStatus
		wantErr    error
		wantFile   bool
	}{
		{
			name: "single face is stored",
			setup: func(f *fixture) {
				f.cameraReturns(solid(64, 48, liveColor))
				f.locator.On("Locate", mock.Anything, liveImage).Return(oneFace, nil)
			},
			wantStatus: domain.EnrollmentCreated,
			wantFile:   true,
		},
		{
			name: "multiple faces are rejected",
			setup: func(f *fixture) {
				f.cameraReturns(solid(64, 48, liveColor))
				f.locator.On("Locate", mock.Anything, liveImage).Return(twoFaces, nil)
			},
			wantErr: domain.ErrMultipleSubjects,
		},
		{
			name: "no face is rejected",
			setup: func(f *fixture) {
				f.cameraReturns(solid(64, 48, liveColor))
				f.locator.On("Locate", mock.Anything, liveImage).Return([]provider.DetectedFace{}, nil)
			},
			wantErr: domain.ErrNoSubject,
		},
		{
			name: "camera cannot be opened",
			setup: func(f *fixture) {
				f.camera.On("Open", mock.Anything).Return(nil, capture.ErrCameraUnavailable)
			},
			wantErr: domain.ErrCameraUnavailable,
		},
		{
			name: "frame cannot be read",
			setup: func(f *fixture) {
				f.camera.On("Open", mock.Anything).Return(f.handle, nil)
				f.handle.On("ReadFrame", mock.Anything).Return(nil, capture.ErrReadFailure)
				f.handle.On("Close").Return(nil).Once()
			},
			wantErr: domain.ErrFrameRead,
		},
		{
			name: "locator failure",
			setup: func(f *fixture) {
				f.cameraReturns(solid(64, 48, liveColor))
				f.locator.On("Locate", mock.Anything, liveImage).Return(nil, errors.New("detector down"))
			},
			wantErr: errors.New("detector down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			enrollment, err := f.verifier(matcher.New(matcher.DefaultThreshold)).Enroll(context.Background(), "alice")

			if tt.wantErr != nil {
				require.Error(t, err)
				var appErr *domain.AppError
				if errors.As(tt.wantErr, &appErr) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
				assert.Nil(t, enrollment)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, enrollment.Status)
				assert.Equal(t, f.store.Path("alice"), enrollment.ImagePath)
			}

			exists, err := f.store.Exists(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, exists)

			f.assertExpectations(t)
			f.extractor.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
		})
	}
}

func TestVerifier_EnrollTwiceKeepsFirstReference(t *testing.T) {
	f := newFixture(t)
	f.cameraReturns(solid(64, 48, liveColor))
	f.locator.On("Locate", mock.Anything, liveImage).Return(oneFace, nil).Once()

	v := f.verifier(matcher.New(matcher.DefaultThreshold))
	ctx := context.Background()

	first, err := v.Enroll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCreated, first.Status)

	before, err := os.ReadFile(first.ImagePath)
	require.NoError(t, err)
	info, err := os.Stat(first.ImagePath)
	require.NoError(t, err)

	second, err := v.Enroll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentAlreadyExists, second.Status)
	assert.Equal(t, first.ImagePath, second.ImagePath)

	after, err := os.ReadFile(second.ImagePath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "reference must be byte-identical")

	infoAfter, err := os.Stat(second.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), infoAfter.ModTime())

	// the camera is opened by the first call only
	f.camera.AssertNumberOfCalls(t, "Open", 1)
	f.assertExpectations(t)
}

func TestVerifier_ConcurrentEnrollStoresOneReference(t *testing.T) {
	store, err := imagestore.New(t.TempDir(), "png")
	require.NoError(t, err)

	camera := new(MockDevice)
	locator := new(MockLocator)
	const workers = 8

	for i := 0; i < workers; i++ {
		h := new(MockHandle)
		h.On("ReadFrame", mock.Anything).Return(solid(64, 48, color.RGBA{R: uint8(100 + i), A: 255}), nil)
		h.On("Close").Return(nil)
		camera.On("Open", mock.Anything).Return(h, nil).Once()
	}
	locator.On("Locate", mock.Anything, mock.Anything).Return(oneFace, nil)

	v := NewVerifier(store, camera, locator, new(MockExtractor), matcher.New(matcher.DefaultThreshold))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enrollment, err := v.Enroll(context.Background(), "alice")
			if !assert.NoError(t, err) {
				return
			}
			if enrollment.Status == domain.EnrollmentCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)

	entries, err := os.ReadDir(filepath.Dir(store.Path("alice")))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestVerifier_Verify(t *testing.T) {
	tests := []struct {
		name           string
		similarity     float64
		wantRecognized bool
		wantReason     domain.VerificationReason
	}{
		{
			name:           "similar faces are recognized",
			similarity:     0.80,
			wantRecognized: true,
			wantReason:     domain.ReasonMatch,
		},
		{
			name:           "dissimilar faces are not recognized",
			similarity:     0.40,
			wantRecognized: false,
			wantReason:     domain.ReasonNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enrollReference(t, "alice")
			f.cameraReturns(solid(64, 48, liveColor))
			f.locator.On("Locate", mock.Anything, liveImage).Return(oneFace, nil).Once()
			f.locator.On("Locate", mock.Anything, referenceImage).Return(oneFace, nil).Once()
			f.extractor.On("Embed", mock.Anything, liveImage).Return(provider.Embedding{1, 0}, nil).Once()
			f.extractor.On("Embed", mock.Anything, referenceImage).Return(unitAt(tt.similarity), nil).Once()

			got, err := f.verifier(matcher.New(matcher.DefaultThreshold)).Verify(context.Background(), "alice")
			require.NoError(t, err)

			assert.Equal(t, domain.Identity("alice"), got.Identity)
			assert.Equal(t, tt.wantRecognized, got.Recognized)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.InDelta(t, tt.similarity, got.Score, 1e-9)
			assert.Equal(t, 1, got.LiveFaces)
			assert.Equal(t, 1, got.ReferenceFaces)
			assert.GreaterOrEqual(t, got.LatencyMs, int64(0))

			f.assertExpectations(t)
		})
	}
}

func TestVerifier_VerifyAmbiguousFaceCount(t *testing.T) {
	tests := []struct {
		name           string
		liveFaces      []provider.DetectedFace
		referenceFaces []provider.DetectedFace
	}{
		{name: "two faces in live frame", liveFaces: twoFaces, referenceFaces: oneFace},
		{name: "no face in live frame", liveFaces: []provider.DetectedFace{}, referenceFaces: oneFace},
		{name: "two faces in reference", liveFaces: oneFace, referenceFaces: twoFaces},
		{name: "no face in reference", liveFaces: oneFace, referenceFaces: []provider.DetectedFace{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enrollReference(t, "alice")
			f.cameraReturns(solid(64, 48, liveColor))
			f.locator.On("Locate", mock.Anything, liveImage).Return(tt.liveFaces, nil).Once()
			f.locator.On("Locate", mock.Anything, referenceImage).Return(tt.referenceFaces, nil).Once()

			m := new(MockMatcher)
			recorder := new(MockRecorder)
			recorder.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.Verification) bool {
				return v.Reason == domain.ReasonAmbiguousFaceCount
			})).Return(nil).Once()

			got, err := f.verifier(m, WithVerificationRecorder(recorder)).Verify(context.Background(), "alice")
			require.NoError(t, err)

			assert.False(t, got.Recognized)
			assert.Equal(t, domain.ReasonAmbiguousFaceCount, got.Reason)
			assert.Zero(t, got.Score)
			assert.Equal(t, len(tt.liveFaces), got.LiveFaces)
			assert.Equal(t, len(tt.referenceFaces), got.ReferenceFaces)

			m.AssertNotCalled(t, "Match", mock.Anything, mock.Anything)
			f.extractor.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
			recorder.AssertExpectations(t)
			f.assertExpectations(t)
		})
	}
}

func TestVerifier_VerifyErrors(t *testing.T) {
	t.Run("no reference", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.verifier(new(MockMatcher)).Verify(context.Background(), "alice")

		assert.ErrorIs(t, err, domain.ErrNoReference)
		f.camera.AssertNotCalled(t, "Open", mock.Anything)
	})

	t.Run("camera cannot be opened", func(t *testing.T) {
		f := newFixture(t)
		f.enrollReference(t, "alice")
		f.camera.On("Open", mock.Anything).Return(nil, capture.ErrCameraUnavailable)

		_, err := f.verifier(new(MockMatcher)).Verify(context.Background(), "alice")

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCameraUnavailable)
		assert.ErrorIs(t, err, capture.ErrCameraUnavailable)
		assert.Equal(t, "camera could not be opened", domain.ErrCameraUnavailable.Message)
		f.locator.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything)
	})

	t.Run("frame read failure closes the camera", func(t *testing.T) {
		f := newFixture(t)
		f.enrollReference(t, "alice")
		f.camera.On("Open", mock.Anything).Return(f.handle, nil)
		f.handle.On("ReadFrame", mock.Anything).Return(nil, capture.ErrReadFailure)
		f.handle.On("Close").Return(nil).Once()

		_, err := f.verifier(new(MockMatcher)).Verify(context.Background(), "alice")

		assert.ErrorIs(t, err, domain.ErrFrameRead)
		f.assertExpectations(t)
	})

	t.Run("cancelled request is not reported as a camera fault", func(t *testing.T) {
		f := newFixture(t)
		f.enrollReference(t, "alice")

		ctx, cancel := context.WithCancel(context.Background())
		f.camera.On("Open", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

		_, err := f.verifier(new(MockMatcher)).Verify(ctx, "alice")

		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrCameraUnavailable)
	})

	t.Run("extractor failure", func(t *testing.T) {
		f := newFixture(t)
		f.enrollReference(t, "alice")
		f.cameraReturns(solid(64, 48, liveColor))
		f.locator.On("Locate", mock.Anything, mock.Anything).Return(oneFace, nil)
		f.extractor.On("Embed", mock.Anything, liveImage).Return(nil, errors.New("model unavailable"))

		m := new(MockMatcher)
		_, err := f.verifier(m).Verify(context.Background(), "alice")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "model unavailable")
		m.AssertNotCalled(t, "Match", mock.Anything, mock.Anything)
	})
}

func TestVerifier_VerifyIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.enrollReference(t, "alice")
	f.camera.On("Open", mock.Anything).Return(f.handle, nil)
	f.handle.On("ReadFrame", mock.Anything).Return(solid(64, 48, liveColor), nil)
	f.handle.On("Close").Return(nil)
	f.locator.On("Locate", mock.Anything, mock.Anything).Return(oneFace, nil)
	f.extractor.On("Embed", mock.Anything, liveImage).Return(provider.Embedding{1, 0}, nil)
	f.extractor.On("Embed", mock.Anything, referenceImage).Return(unitAt(0.7), nil)

	v := f.verifier(matcher.New(matcher.DefaultThreshold))

	first, err := v.Verify(context.Background(), "alice")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := v.Verify(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, first.Recognized, again.Recognized)
		assert.Equal(t, first.Score, again.Score)
	}
}

func TestVerifier_VerifyUsesEmbeddingCache(t *testing.T) {
	f := newFixture(t)
	f.enrollReference(t, "alice")
	f.camera.On("Open", mock.Anything).Return(f.handle, nil)
	f.handle.On("ReadFrame", mock.Anything).Return(solid(64, 48, liveColor), nil)
	f.handle.On("Close").Return(nil)
	f.locator.On("Locate", mock.Anything, liveImage).Return(oneFace, nil).Twice()
	f.locator.On("Locate", mock.Anything, referenceImage).Return(oneFace, nil).Once()
	f.extractor.On("Embed", mock.Anything, liveImage).Return(provider.Embedding{1, 0}, nil).Twice()
	f.extractor.On("Embed", mock.Anything, referenceImage).Return(unitAt(0.9), nil).Once()

	embeddings := cache.NewMemoryCache(time.Hour, time.Hour)
	v := f.verifier(matcher.New(matcher.DefaultThreshold), WithEmbeddingCache(embeddings, "Facenet512", time.Hour))
	ctx := context.Background()

	first, err := v.Verify(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, first.Recognized)

	cached, err := embeddings.Get(ctx, "Facenet512:alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cached[0], 1e-9)

	second, err := v.Verify(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, second.Recognized)
	assert.InDelta(t, first.Score, second.Score, 1e-9)

	f.assertExpectations(t)
}

func TestVerifier_VerifyRecorderFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.enrollReference(t, "alice")
	f.cameraReturns(solid(64, 48, liveColor))
	f.locator.On("Locate", mock.Anything, mock.Anything).Return(oneFace, nil)
	f.extractor.On("Embed", mock.Anything, liveImage).Return(provider.Embedding{1, 0}, nil)
	f.extractor.On("Embed", mock.Anything, referenceImage).Return(unitAt(0.8), nil)

	recorder := new(MockRecorder)
	recorder.On("Create", mock.Anything, mock.AnythingOfType("*domain.Verification")).Return(errors.New("connection refused"))

	got, err := f.verifier(matcher.New(matcher.DefaultThreshold), WithVerificationRecorder(recorder)).
		Verify(context.Background(), "alice")

	require.NoError(t, err)
	assert.True(t, got.Recognized)
	recorder.AssertExpectations(t)
}

func TestVerifier_AuditEvents(t *testing.T) {
	f := newFixture(t)
	f.camera.On("Open", mock.Anything).Return(f.handle, nil)
	f.handle.On("ReadFrame", mock.Anything).Return(solid(64, 48, liveColor), nil)
	f.handle.On("Close").Return(nil)
	f.locator.On("Locate", mock.Anything, mock.Anything).Return(twoFaces, nil)

	auditLogger := &recordingAuditLogger{}
	v := f.verifier(matcher.New(matcher.DefaultThreshold),
		WithAuditLogger(auditLogger),
		WithProviderName("mock"),
	)
	ctx := audit.WithRequestID(context.Background(), "req-123")

	_, err := v.Enroll(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrMultipleSubjects)

	f.enrollReference(t, "alice")
	_, err = v.Verify(ctx, "alice")
	require.NoError(t, err)

	require.Len(t, auditLogger.events, 2)

	enrolled := auditLogger.events[0]
	assert.Equal(t, audit.EventReferenceEnrolled, enrolled.EventType)
	assert.False(t, enrolled.Success)
	assert.Equal(t, "alice", enrolled.Identity)
	assert.Equal(t, "req-123", enrolled.RequestID)
	assert.Contains(t, enrolled.Error, "multiple persons")

	verified := auditLogger.events[1]
	assert.Equal(t, audit.EventFaceVerified, verified.EventType)
	assert.True(t, verified.Success)
	assert.Equal(t, "mock", verified.Provider)
	assert.Equal(t, "AMBIGUOUS_FACE_COUNT", verified.Metadata["reason"])
	assert.Equal(t, "false", verified.Metadata["recognized"])
}

func TestVerifier_Check(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(new(MockMatcher))
	ctx := context.Background()

	exists, err := v.Check(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	f.enrollReference(t, "alice")

	exists, err = v.Check(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}
