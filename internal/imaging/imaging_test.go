package imaging

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / w)})
		}
	}
	return img
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(image.NewGray(image.Rect(0, 0, 0, 10))))
	assert.False(t, IsEmpty(image.NewGray(image.Rect(0, 0, 1, 1))))
}

func TestCrop_ClipsToBoundsAndResetsOrigin(t *testing.T) {
	src := gradient(20, 10)

	out := Crop(src, image.Rect(15, 5, 40, 40))

	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())
	r, _, _, _ := out.At(0, 0).RGBA()
	want, _, _, _ := src.At(15, 5).RGBA()
	assert.Equal(t, want, r)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		src  image.Image
		size image.Point
	}{
		{name: "already normalized", src: gradient(50, 50), size: image.Pt(50, 50)},
		{name: "downscale color", src: image.NewRGBA(image.Rect(0, 0, 200, 120)), size: image.Pt(50, 50)},
		{name: "upscale with offset origin", src: gradient(40, 40).SubImage(image.Rect(10, 10, 30, 30)), size: image.Pt(64, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.src, tt.size)
			assert.Equal(t, tt.size, out.Bounds().Size())
			assert.Equal(t, image.Point{}, out.Bounds().Min)
		})
	}
}

func TestEyeLineAngle(t *testing.T) {
	assert.InDelta(t, 0.0, EyeLineAngle(image.Pt(10, 20), image.Pt(40, 20)), 1e-9)
	assert.InDelta(t, 45.0, EyeLineAngle(image.Pt(0, 0), image.Pt(10, 10)), 1e-9)
	assert.InDelta(t, -45.0, EyeLineAngle(image.Pt(0, 10), image.Pt(10, 0)), 1e-9)
	assert.Equal(t, 0.0, EyeLineAngle(image.Pt(3, 3), image.Pt(3, 3)))
}

func TestRotate_ZeroAngleKeepsPixels(t *testing.T) {
	src := gradient(16, 16)

	out := Rotate(src, 0, image.Pt(8, 8))

	require.Equal(t, src.Bounds(), out.Bounds())
	for x := 0; x < 16; x++ {
		got := color.GrayModel.Convert(out.At(x, 8)).(color.Gray)
		assert.Equal(t, src.GrayAt(x, 8), got)
	}
}

func TestAlign_SkipsSmallAngles(t *testing.T) {
	src := gradient(32, 32)

	out, angle := Align(src, image.Pt(10, 16), image.Pt(22, 16), 1.0)

	assert.Equal(t, 0.0, angle)
	assert.Same(t, src, out)
}

func TestAlign_RotatesTiltedEyes(t *testing.T) {
	src := gradient(32, 32)

	out, angle := Align(src, image.Pt(8, 8), image.Pt(24, 24), 1.0)

	assert.InDelta(t, 45.0, angle, 1e-9)
	assert.Equal(t, image.Rect(0, 0, 32, 32), out.Bounds())
}

func TestJPEGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.jpg")
	src := gradient(30, 30)

	require.NoError(t, WriteJPEG(path, src))
	img, err := DecodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, src.Bounds().Size(), img.Bounds().Size())
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	assert.Error(t, err)
}
