package faceauth_test

import (
	"context"
	"errors"
	"image"
	"testing"

	"faceauth-go/internal/faceauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_Locate(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))

	tests := []struct {
		name       string
		detections []faceauth.Detection
		floor      float64
		want       image.Rectangle
		wantErr    error
	}{
		{
			name:    "no detections",
			wantErr: faceauth.ErrNoFaceDetected,
		},
		{
			name: "all below floor",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(0, 0, 10, 10), Confidence: 0.49},
			},
			wantErr: faceauth.ErrNoFaceDetected,
		},
		{
			name: "floor is inclusive",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(0, 0, 10, 10), Confidence: 0.5},
			},
			want: image.Rect(0, 0, 10, 10),
		},
		{
			name: "first above floor wins over larger",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(0, 0, 5, 5), Confidence: 0.3},
				{Rectangle: image.Rect(10, 10, 20, 20), Confidence: 0.6},
				{Rectangle: image.Rect(20, 0, 120, 100), Confidence: 0.99},
			},
			want: image.Rect(10, 10, 20, 20),
		},
		{
			name: "clipped to frame",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(180, -10, 230, 40), Confidence: 0.9},
			},
			want: image.Rect(180, 0, 200, 40),
		},
		{
			name: "outside frame is skipped",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(300, 300, 310, 310), Confidence: 0.9},
				{Rectangle: image.Rect(1, 1, 2, 2), Confidence: 0.8},
			},
			want: image.Rect(1, 1, 2, 2),
		},
		{
			name: "custom floor",
			detections: []faceauth.Detection{
				{Rectangle: image.Rect(0, 0, 10, 10), Confidence: 0.7},
			},
			floor:   0.8,
			wantErr: faceauth.ErrNoFaceDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := faceauth.NewLocator(&fakeDetector{detections: tt.detections}, tt.floor)
			got, err := l.Locate(context.Background(), frame)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocator_DefaultFloor(t *testing.T) {
	l := faceauth.NewLocator(&fakeDetector{}, 0)
	assert.Equal(t, faceauth.DefaultConfidenceFloor, l.Floor())
}

func TestLocator_EmptyFrame(t *testing.T) {
	d := &fakeDetector{detections: []faceauth.Detection{{Rectangle: image.Rect(0, 0, 1, 1), Confidence: 1}}}
	l := faceauth.NewLocator(d, 0)

	_, err := l.Locate(context.Background(), nil)
	assert.ErrorIs(t, err, faceauth.ErrEmptyFrame)

	_, err = l.Locate(context.Background(), image.NewGray(image.Rect(5, 5, 5, 9)))
	assert.ErrorIs(t, err, faceauth.ErrEmptyFrame)

	assert.Zero(t, d.calls.Load())
}

func TestLocator_DetectorError(t *testing.T) {
	boom := errors.New("net not loaded")
	l := faceauth.NewLocator(&fakeDetector{err: boom}, 0)

	_, err := l.Locate(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, boom)
	assert.False(t, faceauth.IsRecoverable(err))
}
