// Package dlib berechnet Gesichtsvektoren mit dlib (ResNet, 128 Dimensionen) über go-face.
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"

	"github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
)

// DefaultAlignMinAngle: kleinere Neigungen der Augenlinie werden nicht korrigiert (Grad)
const DefaultAlignMinAngle = 2.0

var logFields = log.Fields{
	"component": "dlib",
}

// Embedder implementiert faceauth.Embedder.
// Erwartet in modelsDir shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat und mmod_human_face_detector.dat.
type Embedder struct {
	rec      *face.Recognizer
	minAngle float64
	mu       sync.Mutex // der native Recognizer ist nicht threadsicher
}

var _ faceauth.Embedder = (*Embedder)(nil)

// NewEmbedder lädt die dlib-Modelle
func NewEmbedder(modelsDir string, alignMinAngle float64) (*Embedder, error) {
	log.WithFields(logFields).Infof("Loading face recognition models from: %s", modelsDir)

	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	if alignMinAngle <= 0 {
		alignMinAngle = DefaultAlignMinAngle
	}
	return &Embedder{rec: rec, minAngle: alignMinAngle}, nil
}

// Variant implementiert faceauth.Extractor
func (e *Embedder) Variant() faceauth.Variant {
	return faceauth.VariantEmbedding
}

// ModelName implementiert faceauth.ModelNamer
func (e *Embedder) ModelName() string {
	return "dlib_face_recognition_resnet_model_v1"
}

// Embed berechnet den Vektor für das Gesicht in img. Ist das Gesicht geneigt,
// wird es anhand der Augenlinie ausgerichtet und erneut berechnet.
func (e *Embedder) Embed(ctx context.Context, img image.Image) (faceauth.Embedding, error) {
	if imaging.IsEmpty(img) {
		return nil, faceauth.ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.recognize(img)
	if err != nil {
		return nil, err
	}

	if left, right, ok := eyeCenters(f.Shapes); ok {
		aligned, angle := imaging.Align(img, left, right, e.minAngle)
		if angle != 0 {
			log.WithFields(logFields).Debugf("Gesicht um %.1f° ausgerichtet", angle)
			if af, err := e.recognize(aligned); err == nil {
				f = af
			}
		}
	}

	emb := make(faceauth.Embedding, len(f.Descriptor))
	copy(emb, f.Descriptor[:])
	return emb, nil
}

func (e *Embedder) recognize(img image.Image) (*face.Face, error) {
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}
	f, err := e.rec.RecognizeSingle(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}
	if f == nil {
		return nil, faceauth.ErrNoFaceDetected
	}
	return f, nil
}

// eyeCenters liefert die Augenmittelpunkte aus den 5 Landmarken
// (0,1: rechtes Auge, 2,3: linkes Auge, 4: Nase). Links/rechts aus Sicht des Bildes.
func eyeCenters(shapes []image.Point) (image.Point, image.Point, bool) {
	if len(shapes) < 4 {
		return image.Point{}, image.Point{}, false
	}
	a := midpoint(shapes[0], shapes[1])
	b := midpoint(shapes[2], shapes[3])
	if a.X > b.X {
		a, b = b, a
	}
	return a, b, true
}

func midpoint(p, q image.Point) image.Point {
	return image.Pt((p.X+q.X)/2, (p.Y+q.Y)/2)
}

// Close gibt die Modelle frei
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}
