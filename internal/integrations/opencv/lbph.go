package opencv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"faceauth-go/internal/faceauth"

	gocv "gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPH-Parameter wie in OpenCV
const (
	DefaultLBPHRadius    = 1
	DefaultLBPHNeighbors = 8
)

// LBPHClassifier implementiert faceauth.Classifier mit dem LBPH-Verfahren aus opencv_contrib.
// Die Distanz ist die Chi-Quadrat-Distanz der Histogramme.
type LBPHClassifier struct {
	size      image.Point
	radius    int
	neighbors int
}

var _ faceauth.Classifier = (*LBPHClassifier)(nil)

// NewLBPHClassifier erstellt einen Classifier für Gesichter der Größe size
func NewLBPHClassifier(size image.Point) *LBPHClassifier {
	return &LBPHClassifier{
		size:      size,
		radius:    DefaultLBPHRadius,
		neighbors: DefaultLBPHNeighbors,
	}
}

// Variant implementiert faceauth.Extractor
func (c *LBPHClassifier) Variant() faceauth.Variant {
	return faceauth.VariantClassification
}

// FaceSize implementiert faceauth.Classifier
func (c *LBPHClassifier) FaceSize() image.Point {
	return c.size
}

// Fit trainiert einen neuen Recognizer
func (c *LBPHClassifier) Fit(faces []*image.Gray, labels []int) (faceauth.Predictor, error) {
	if len(faces) == 0 || len(faces) != len(labels) {
		return nil, fmt.Errorf("%d faces for %d labels", len(faces), len(labels))
	}

	mats := make([]gocv.Mat, 0, len(faces))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	for i, f := range faces {
		if f.Bounds().Size() != c.size {
			return nil, fmt.Errorf("face %d: %w", i, faceauth.ErrShapeMismatch)
		}
		m, err := gocv.ImageGrayToMatGray(f)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		mats = append(mats, m)
	}

	rec := contrib.NewLBPHFaceRecognizer()
	rec.SetRadius(c.radius)
	rec.SetNeighbors(c.neighbors)
	rec.Train(mats, labels)

	return &lbphModel{rec: rec, size: c.size}, nil
}

type lbphModel struct {
	rec  *contrib.LBPHFaceRecognizer
	size image.Point
	mu   sync.Mutex
}

// Predict liefert Label und Chi-Quadrat-Distanz
func (m *lbphModel) Predict(face *image.Gray) (faceauth.Prediction, error) {
	if face == nil {
		return faceauth.Prediction{Label: faceauth.UnknownLabel}, errors.New("nil face")
	}
	if face.Bounds().Size() != m.size {
		return faceauth.Prediction{Label: faceauth.UnknownLabel},
			fmt.Errorf("%w: got %v, want %v", faceauth.ErrShapeMismatch, face.Bounds().Size(), m.size)
	}

	mat, err := gocv.ImageGrayToMatGray(face)
	if err != nil {
		return faceauth.Prediction{Label: faceauth.UnknownLabel}, err
	}
	defer mat.Close()

	m.mu.Lock()
	resp := m.rec.PredictExtendedResponse(mat)
	m.mu.Unlock()

	return faceauth.Prediction{
		Label:    int(resp.Label),
		Distance: float64(resp.Confidence),
	}, nil
}

// Close gibt das Modell zur Freigabe durch den Garbage Collector frei
func (m *lbphModel) Close() error {
	m.mu.Lock()
	m.rec = nil
	m.mu.Unlock()
	return nil
}
