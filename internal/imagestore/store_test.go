package imagestore

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

func frame(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "png")
	require.NoError(t, err)
	return s
}

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New(t.TempDir(), "gif")
	assert.Error(t, err)
}

func TestNew_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "photos")
	_, err := New(dir, "jpg")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_Path(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "JPG")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.jpg"), s.Path("alice"))
}

func TestStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	exists, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	path, err := s.Write(ctx, "alice", frame(color.White))
	require.NoError(t, err)
	assert.Equal(t, s.Path("alice"), path)

	exists, err = s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	img, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestStore_ReadMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Read(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_WriteDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Write(ctx, "alice", frame(color.White))
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path("alice"))
	require.NoError(t, err)

	path, err := s.Write(ctx, "alice", frame(color.Black))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, s.Path("alice"), path)

	after, err := os.ReadFile(s.Path("alice"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Write(ctx, "alice", frame(color.White))
	require.NoError(t, err)
	_, _ = s.Write(ctx, "alice", frame(color.White))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice.png", entries[0].Name())
}

func TestStore_ConcurrentWriteSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Write(ctx, "alice", frame(color.Gray{Y: uint8(i * 10)}))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, ErrAlreadyExists):
				exists++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, exists)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_DistinctIdentities(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, id := range []domain.Identity{"alice", "bob"} {
		_, err := s.Write(ctx, id, frame(color.White))
		require.NoError(t, err)
	}

	for _, id := range []domain.Identity{"alice", "bob"} {
		ok, err := s.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "alice", frame(color.White))
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := s.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
