package camera

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, path string, width int) {
	t.Helper()
	require.NoError(t, imaging.WriteJPEG(path, image.NewGray(image.Rect(0, 0, width, 8))))
}

func TestFileSource_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "b.jpg"), 20)
	writeFrame(t, filepath.Join(dir, "a.jpg"), 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644))

	src, err := NewFileSource(dir, false)
	require.NoError(t, err)
	ctx := context.Background()

	img, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	img, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, faceauth.ErrEmptyFrame)
}

func TestFileSource_LoopSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.jpg")
	writeFrame(t, path, 12)

	src, err := NewFileSource(path, true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		img, err := src.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 12, img.Bounds().Dx())
	}
	assert.True(t, IsFileSource(path))
	assert.False(t, IsFileSource("0"))
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing"), false)
	assert.Error(t, err)

	_, err = NewFileSource(t.TempDir(), false)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "frame.jpg")
	writeFrame(t, path, 4)
	src, err := NewFileSource(path, true)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
