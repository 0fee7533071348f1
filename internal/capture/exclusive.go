package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultAcquireTimeout bounds how long Open waits for a busy device.
const DefaultAcquireTimeout = 3 * time.Second

// Exclusive allows at most one open Handle on the wrapped Device.
type Exclusive struct {
	dev     Device
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewExclusive(dev Device, acquireTimeout time.Duration) *Exclusive {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Exclusive{
		dev:     dev,
		sem:     semaphore.NewWeighted(1),
		timeout: acquireTimeout,
	}
}

// Open waits up to the acquire timeout for the device and fails with
// ErrCameraUnavailable if it stays busy.
func (e *Exclusive) Open(ctx context.Context) (Handle, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: device busy", ErrCameraUnavailable)
	}

	h, err := e.dev.Open(ctx)
	if err != nil {
		e.sem.Release(1)
		return nil, err
	}

	return &exclusiveHandle{inner: h, release: func() { e.sem.Release(1) }}, nil
}

type exclusiveHandle struct {
	inner   Handle
	once    sync.Once
	release func()
}

func (h *exclusiveHandle) ReadFrame(ctx context.Context) (image.Image, error) {
	return h.inner.ReadFrame(ctx)
}

// Close releases the device slot exactly once, even if called repeatedly.
func (h *exclusiveHandle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.inner.Close()
		h.release()
	})
	return err
}
