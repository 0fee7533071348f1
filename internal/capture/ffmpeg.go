package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
)

// runFunc executes name with args and returns stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, string, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// FFmpegDevice grabs single frames from a V4L2 webcam through ffmpeg.
type FFmpegDevice struct {
	binary      string
	device      string
	inputFormat string
	warmup      time.Duration

	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	run      runFunc
}

// NewFFmpegDevice reads from device (e.g. /dev/video0) using the ffmpeg
// binary. warmup is waited once before the first frame so the sensor can
// settle its exposure.
func NewFFmpegDevice(binary, device string, warmup time.Duration) *FFmpegDevice {
	return &FFmpegDevice{
		binary:      binary,
		device:      device,
		inputFormat: "v4l2",
		warmup:      warmup,
		lookPath:    exec.LookPath,
		stat:        os.Stat,
		run:         runCommand,
	}
}

func (d *FFmpegDevice) Open(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin, err := d.lookPath(d.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrCameraUnavailable, err)
	}
	if _, err := d.stat(d.device); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraUnavailable, d.device, err)
	}

	return &ffmpegHandle{dev: d, bin: bin, pendingWarmup: d.warmup}, nil
}

type ffmpegHandle struct {
	dev           *FFmpegDevice
	bin           string
	pendingWarmup time.Duration
	closed        bool
}

func (h *ffmpegHandle) ReadFrame(ctx context.Context) (image.Image, error) {
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", ErrReadFailure)
	}

	if err := sleep(ctx, h.pendingWarmup); err != nil {
		return nil, err
	}
	h.pendingWarmup = 0

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", h.dev.inputFormat,
		"-i", h.dev.device,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}

	out, stderr, err := h.dev.run(ctx, h.bin, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrReadFailure, err, strings.TrimSpace(stderr))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrReadFailure)
	}

	img, err := imaging.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	return img, nil
}

// Close is idempotent; ffmpeg is started per frame so nothing stays open.
func (h *ffmpegHandle) Close() error {
	h.closed = true
	return nil
}
