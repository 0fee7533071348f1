package capture

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
)

// FileDevice replays a fixed image file as the camera frame.
type FileDevice struct {
	path string
}

func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

func (d *FileDevice) Open(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(d.path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	return &fileHandle{path: d.path}, nil
}

type fileHandle struct {
	path   string
	closed bool
}

func (h *fileHandle) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", ErrReadFailure)
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return img, nil
}

func (h *fileHandle) Close() error {
	h.closed = true
	return nil
}
