package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
)

const maxSnapshotBytes = 32 << 20

// SnapshotDevice reads frames from a network camera that serves a still
// image (JPEG or PNG) on a plain GET.
type SnapshotDevice struct {
	url        string
	httpClient *http.Client
	warmup     time.Duration
}

func NewSnapshotDevice(url string, timeout, warmup time.Duration) *SnapshotDevice {
	return &SnapshotDevice{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		warmup:     warmup,
	}
}

// Open probes the camera. The probe's body becomes the first frame when no
// warm-up is configured.
func (d *SnapshotDevice) Open(ctx context.Context) (Handle, error) {
	body, err := d.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	h := &snapshotHandle{dev: d, pendingWarmup: d.warmup}
	if d.warmup <= 0 {
		h.first = body
	}
	return h, nil
}

func (d *SnapshotDevice) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return body, nil
}

type snapshotHandle struct {
	dev           *SnapshotDevice
	first         []byte
	pendingWarmup time.Duration
	closed        bool
}

func (h *snapshotHandle) ReadFrame(ctx context.Context) (image.Image, error) {
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", ErrReadFailure)
	}

	body := h.first
	h.first = nil

	if body == nil {
		if err := sleep(ctx, h.pendingWarmup); err != nil {
			return nil, err
		}
		h.pendingWarmup = 0

		var err error
		body, err = h.dev.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
		}
	}

	img, err := imaging.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return img, nil
}

func (h *snapshotHandle) Close() error {
	h.closed = true
	h.first = nil
	return nil
}
