// Package imaging holds the raster helpers shared by the capture devices,
// the reference store and the providers: decoding, encoding and the
// crop-and-resize step that prepares a face region for the embedding model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

const jpegQuality = 92

var (
	// ErrEmptyRegion is returned when a face box does not overlap the image.
	ErrEmptyRegion = errors.New("face region outside image bounds")
	// ErrUnsupportedFormat is returned for encode formats other than png/jpg.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Decode reads any registered raster format (png, jpeg, bmp, webp).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Encode writes img to w as png or jpeg.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CropFace cuts box out of img, clipped to the image bounds, and scales it
// to provider.FaceInputSize square. The aspect ratio is not preserved, the
// same as the FaceNet input pipeline.
func CropFace(img image.Image, box provider.BoundingBox) (image.Image, error) {
	bounds := img.Bounds()
	region := box.Rect().Add(bounds.Min).Intersect(bounds)
	if region.Empty() {
		return nil, ErrEmptyRegion
	}

	dst := image.NewRGBA(image.Rect(0, 0, provider.FaceInputSize, provider.FaceInputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)
	return dst, nil
}
