// Package capture acquires still frames from a camera.
//
// A Device is opened once per operation and the returned Handle must be
// closed on every path. Wrap a Device in Exclusive to allow at most one open
// Handle at a time.
package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrCameraUnavailable means the device could not be opened or is busy.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrReadFailure means the device was open but produced no usable frame.
	ErrReadFailure = errors.New("frame read failed")
)

type Device interface {
	Open(ctx context.Context) (Handle, error)
}

type Handle interface {
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
