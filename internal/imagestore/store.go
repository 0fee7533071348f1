// Package imagestore keeps one reference image per identity on the local
// filesystem. A reference is written once and never replaced.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imaging"
)

var (
	ErrNotFound      = errors.New("reference image not found")
	ErrAlreadyExists = errors.New("reference image already exists")
)

// Store is a directory of {identity}.{format} files.
type Store struct {
	dir    string
	format string
}

// New creates dir if needed. format is the file extension and encoding
// (png, jpg or jpeg).
func New(dir, format string) (*Store, error) {
	format = strings.ToLower(format)
	switch format {
	case "png", "jpg", "jpeg":
	default:
		return nil, fmt.Errorf("%w: %s", imaging.ErrUnsupportedFormat, format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}

	return &Store{dir: dir, format: format}, nil
}

// Path returns where the reference for id lives, whether or not it exists.
func (s *Store) Path(id domain.Identity) string {
	return filepath.Join(s.dir, id.String()+"."+s.format)
}

func (s *Store) Exists(ctx context.Context, id domain.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat reference: %w", err)
}

func (s *Store) Read(ctx context.Context, id domain.Identity) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read reference: %w", err)
	}

	return imaging.Decode(data)
}

// Write stores img as the reference for id and returns its path. If a
// reference already exists it is left untouched and ErrAlreadyExists is
// returned. Concurrent writers for the same id race on a hard link, so
// exactly one of them wins.
func (s *Store) Write(ctx context.Context, id domain.Identity, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	final := s.Path(id)

	tmp, err := os.CreateTemp(s.dir, "."+id.String()+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := imaging.Encode(tmp, img, s.format); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode reference: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync reference: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close reference: %w", err)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return final, ErrAlreadyExists
		}
		return "", fmt.Errorf("publish reference: %w", err)
	}

	return final, nil
}
