package faceauth_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"faceauth-go/internal/faceauth"
)

// gradientFace erzeugt ein synthetisches Gesicht: ein horizontaler oder
// vertikaler Verlauf mit normalverteiltem Rauschen.
func gradientFace(size image.Point, vertical bool, seed int64, sigma float64) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			pos, span := x, size.X-1
			if vertical {
				pos, span = y, size.Y-1
			}
			v := float64(pos)*255/float64(span) + r.NormFloat64()*sigma
			g.SetGray(x, y, color.Gray{Y: clamp(v)})
		}
	}
	return g
}

func noiseFace(size image.Point, seed int64) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for i := range g.Pix {
		g.Pix[i] = uint8(r.Intn(256))
	}
	return g
}

func solidRGBA(size image.Point, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// fakeDetector meldet immer dieselben Detektionen und zählt die Aufrufe
type fakeDetector struct {
	detections []faceauth.Detection
	err        error
	calls      atomic.Int32
}

func (d *fakeDetector) Detect(ctx context.Context, frame image.Image) ([]faceauth.Detection, error) {
	d.calls.Add(1)
	return d.detections, d.err
}

// memStore ist ein Store im Speicher
type memStore struct {
	mu      sync.Mutex
	samples []faceauth.Sample
	nextID  uint
	cached  map[uint]cachedEmbedding
	listErr error
}

type cachedEmbedding struct {
	model string
	emb   faceauth.Embedding
}

func newMemStore() *memStore {
	return &memStore{cached: make(map[uint]cachedEmbedding)}
}

func (s *memStore) Init(ctx context.Context) error { return nil }

func (s *memStore) List(ctx context.Context) ([]faceauth.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]faceauth.Sample, len(s.samples))
	for i, sm := range s.samples {
		if c, ok := s.cached[sm.ID]; ok {
			sm.Embedding, sm.EmbeddingModel = c.emb, c.model
		}
		out[i] = sm
	}
	return out, nil
}

func (s *memStore) Add(ctx context.Context, identity string, face image.Image) (faceauth.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sm := faceauth.Sample{
		ID:       s.nextID,
		Identity: identity,
		Path:     fmt.Sprintf("mem/%s/%d.jpg", identity, s.nextID),
		Image:    face,
	}
	s.samples = append(s.samples, sm)
	return sm, nil
}

func (s *memStore) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sm := range s.samples {
		if sm.Path == path {
			s.samples = append(s.samples[:i], s.samples[i+1:]...)
			return nil
		}
	}
	return os.ErrNotExist
}

func (s *memStore) CacheEmbedding(ctx context.Context, id uint, model string, emb faceauth.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[id] = cachedEmbedding{model: model, emb: emb}
	return nil
}

// countingClassifier zählt die Trainingsläufe eines echten Classifiers
type countingClassifier struct {
	faceauth.Classifier
	fits atomic.Int32
}

func (c *countingClassifier) Fit(faces []*image.Gray, labels []int) (faceauth.Predictor, error) {
	c.fits.Add(1)
	return c.Classifier.Fit(faces, labels)
}

// stubClassifier liefert immer dieselbe Vorhersage
type stubClassifier struct {
	prediction faceauth.Prediction
}

func (c *stubClassifier) Variant() faceauth.Variant { return faceauth.VariantClassification }
func (c *stubClassifier) FaceSize() image.Point     { return image.Pt(2, 2) }

func (c *stubClassifier) Fit(faces []*image.Gray, labels []int) (faceauth.Predictor, error) {
	return stubPredictor{c.prediction}, nil
}

type stubPredictor struct {
	p faceauth.Prediction
}

func (p stubPredictor) Predict(face *image.Gray) (faceauth.Prediction, error) { return p.p, nil }
func (p stubPredictor) Close() error                                          { return nil }

// colorEmbedder verwendet die mittlere Farbe als Embedding. Ist err gesetzt,
// schlägt jeder Aufruf damit fehl.
type colorEmbedder struct {
	model string
	err   error
	calls atomic.Int32
}

func (e *colorEmbedder) Variant() faceauth.Variant { return faceauth.VariantEmbedding }
func (e *colorEmbedder) ModelName() string          { return e.model }

func (e *colorEmbedder) Embed(ctx context.Context, face image.Image) (faceauth.Embedding, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	if face == nil || face.Bounds().Empty() {
		return nil, errors.New("empty face")
	}
	var r, g, b float64
	bounds := face.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := face.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			b += float64(cb >> 8)
		}
	}
	n := float64(bounds.Dx() * bounds.Dy())
	return faceauth.Embedding{float32(r / n), float32(g / n), float32(b / n)}, nil
}

// scriptedSource liefert der Reihe nach die vorgegebenen Bilder bzw. Fehler
type scriptedSource struct {
	frames []image.Image
	errs   []error
	reads  int
}

func (s *scriptedSource) Read(ctx context.Context) (image.Image, error) {
	i := s.reads
	s.reads++
	if i >= len(s.frames) {
		return nil, faceauth.ErrEmptyFrame
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.frames[i], err
}
