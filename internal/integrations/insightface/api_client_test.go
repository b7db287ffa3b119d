package insightface

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"faceauth-go/internal/faceauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, faces []apiFace) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiInfoResponse{Status: "ok", Version: "1.0"})
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		out := make([]apiFace, len(faces))
		copy(out, faces)
		if r.FormValue("extract_embedding") != "true" {
			for i := range out {
				out[i].Embedding = nil
			}
		}
		_ = json.NewEncoder(w).Encode(apiDetectResponse{Status: "ok", FacesCount: len(out), Faces: out})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIClient_Ping(t *testing.T) {
	srv := newTestServer(t, nil)
	ok, err := NewAPIClient(srv.URL+"/", 0).Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmbedder_Embed(t *testing.T) {
	srv := newTestServer(t, []apiFace{
		{BoundingBox: []int{1, 2, 3, 4}, Confidence: 0.9, Embedding: []float32{0.1, 0.2}},
		{BoundingBox: []int{5, 6, 7, 8}, Confidence: 0.8, Embedding: []float32{0.3, 0.4}},
	})
	e := NewEmbedder(NewAPIClient(srv.URL, 0), 0.5)
	assert.Equal(t, faceauth.VariantEmbedding, e.Variant())

	emb, err := e.Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.Equal(t, faceauth.Embedding{0.1, 0.2}, emb)

	_, err = e.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, faceauth.ErrEmptyFrame)
}

func TestEmbedder_NoFace(t *testing.T) {
	srv := newTestServer(t, nil)
	e := NewEmbedder(NewAPIClient(srv.URL, 0), 0.5)

	_, err := e.Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorIs(t, err, faceauth.ErrNoFaceDetected)
}

func TestEmbedder_Detect(t *testing.T) {
	srv := newTestServer(t, []apiFace{
		{BoundingBox: []int{1, 2, 30, 40}, Confidence: 0.9},
		{BoundingBox: []int{1, 2}, Confidence: 0.9},
	})
	e := NewEmbedder(NewAPIClient(srv.URL, 0), 0.5)

	frame := image.NewRGBA(image.Rect(10, 10, 110, 110))
	detections, err := e.Detect(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, image.Rect(11, 12, 40, 50), detections[0].Rectangle)
	assert.Equal(t, 0.9, detections[0].Confidence)
}

func TestAPIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewEmbedder(NewAPIClient(srv.URL, 0), 0.5).Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
	assert.False(t, faceauth.IsRecoverable(err))
}

func TestEmbedder_CanceledContext(t *testing.T) {
	srv := newTestServer(t, []apiFace{
		{BoundingBox: []int{1, 2, 3, 4}, Confidence: 0.9, Embedding: []float32{0.1, 0.2}},
	})
	e := NewEmbedder(NewAPIClient(srv.URL, 0), 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedder_ModelName(t *testing.T) {
	e := NewEmbedder(NewAPIClient("http://localhost:18081/", 0), 0.5)
	assert.Equal(t, "insightface@http://localhost:18081", e.ModelName())
	assert.Equal(t, e.ModelName(), faceauth.EmbeddingModelName(e))
}
