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

func trainedAuthEngine(t *testing.T, detector *fakeDetector) *faceauth.Engine {
	t.Helper()
	ctx := context.Background()
	e, _, _ := newClassificationEngine(t, detector)
	_, err := e.EnrollFace(ctx, "alice", gradientFace(faceSize, false, 1, 8))
	require.NoError(t, err)
	_, err = e.EnrollFace(ctx, "bob", gradientFace(faceSize, true, 2, 8))
	require.NoError(t, err)
	require.NoError(t, e.Train(ctx))
	return e
}

func fullFrameDetector() *fakeDetector {
	return &fakeDetector{detections: []faceauth.Detection{{Rectangle: image.Rect(0, 0, 100, 100), Confidence: 0.99}}}
}

func TestAuthenticate_RetriesRecoverable(t *testing.T) {
	e := trainedAuthEngine(t, fullFrameDetector())
	src := &scriptedSource{
		frames: []image.Image{nil, nil, gradientFace(faceSize, false, 3, 8)},
		errs:   []error{faceauth.ErrReadTimeout, nil, nil},
	}

	res, err := faceauth.Authenticate(context.Background(), e, src, "alice", 5)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "alice", res.Identity)
	assert.Equal(t, 3, src.reads)
}

func TestAuthenticate_WrongClaimRejected(t *testing.T) {
	e := trainedAuthEngine(t, fullFrameDetector())
	src := &scriptedSource{frames: []image.Image{gradientFace(faceSize, true, 3, 8)}}

	res, err := faceauth.Authenticate(context.Background(), e, src, "alice", 5)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "bob", res.Identity)
	assert.Equal(t, 1, src.reads)
}

func TestAuthenticate_GivesUpAfterMaxAttempts(t *testing.T) {
	e := trainedAuthEngine(t, &fakeDetector{})
	src := &scriptedSource{frames: []image.Image{
		gradientFace(faceSize, false, 3, 8),
		gradientFace(faceSize, false, 4, 8),
		gradientFace(faceSize, false, 5, 8),
	}}

	res, err := faceauth.Authenticate(context.Background(), e, src, "alice", 3)
	assert.ErrorIs(t, err, faceauth.ErrNoFaceDetected)
	assert.True(t, faceauth.IsRecoverable(err))
	assert.False(t, res.Accepted)
	assert.Equal(t, 3, src.reads)
}

func TestAuthenticate_StopsOnFatalError(t *testing.T) {
	cameraDown := errors.New("camera unplugged")
	e := trainedAuthEngine(t, fullFrameDetector())
	src := &scriptedSource{
		frames: []image.Image{nil, gradientFace(faceSize, false, 3, 8)},
		errs:   []error{cameraDown},
	}

	_, err := faceauth.Authenticate(context.Background(), e, src, "alice", 5)
	assert.ErrorIs(t, err, cameraDown)
	assert.Equal(t, 1, src.reads)
}

func TestAuthenticate_NotTrained(t *testing.T) {
	e, _, _ := newClassificationEngine(t, fullFrameDetector())
	src := &scriptedSource{frames: []image.Image{gradientFace(faceSize, false, 3, 8)}}

	_, err := faceauth.Authenticate(context.Background(), e, src, "alice", 5)
	assert.ErrorIs(t, err, faceauth.ErrNotTrained)
	assert.Equal(t, 1, src.reads)
}

func TestAuthenticate_InvalidClaim(t *testing.T) {
	e := trainedAuthEngine(t, fullFrameDetector())
	src := &scriptedSource{}

	_, err := faceauth.Authenticate(context.Background(), e, src, "../root", 5)
	assert.ErrorIs(t, err, faceauth.ErrInvalidIdentity)
	assert.Zero(t, src.reads)
}

func TestAuthenticate_CanceledContext(t *testing.T) {
	e := trainedAuthEngine(t, fullFrameDetector())
	src := &scriptedSource{frames: []image.Image{gradientFace(faceSize, false, 3, 8)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := faceauth.Authenticate(ctx, e, src, "alice", 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.reads)
}
