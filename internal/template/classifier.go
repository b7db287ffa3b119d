// Package template enthält einen Klassifikator ohne native Abhängigkeiten:
// jedes Referenzgesicht ist ein Template, die Distanz ist die euklidische
// Pixeldistanz, das nächste Template bestimmt das Label.
package template

import (
	"fmt"
	"image"
	"math"

	"faceauth-go/internal/faceauth"
)

// DefaultFaceSize ist die Gesichtsgröße, mit der trainiert und verglichen wird
var DefaultFaceSize = image.Pt(100, 100)

// Classifier erzeugt Template-Modelle fester Gesichtsgröße
type Classifier struct {
	size image.Point
}

// NewClassifier erstellt einen Classifier. Eine leere size verwendet DefaultFaceSize.
func NewClassifier(size image.Point) *Classifier {
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultFaceSize
	}
	return &Classifier{size: size}
}

// Variant implementiert faceauth.Extractor
func (c *Classifier) Variant() faceauth.Variant {
	return faceauth.VariantClassification
}

// FaceSize implementiert faceauth.Classifier
func (c *Classifier) FaceSize() image.Point {
	return c.size
}

// Fit kopiert alle Gesichter in ein neues Modell
func (c *Classifier) Fit(faces []*image.Gray, labels []int) (faceauth.Predictor, error) {
	if len(faces) == 0 {
		return nil, fmt.Errorf("no faces")
	}
	if len(faces) != len(labels) {
		return nil, fmt.Errorf("%d labels for %d faces", len(labels), len(faces))
	}

	m := &model{
		size:      c.size,
		templates: make([][]uint8, len(faces)),
		labels:    append([]int(nil), labels...),
	}
	for i, f := range faces {
		px, err := pixels(f, c.size)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		m.templates[i] = px
	}
	return m, nil
}

type model struct {
	size      image.Point
	templates [][]uint8
	labels    []int
}

// Predict liefert das Label des nächsten Templates
func (m *model) Predict(face *image.Gray) (faceauth.Prediction, error) {
	q, err := pixels(face, m.size)
	if err != nil {
		return faceauth.Prediction{Label: faceauth.UnknownLabel}, err
	}

	best := faceauth.Prediction{Label: faceauth.UnknownLabel, Distance: math.Inf(1)}
	for i, t := range m.templates {
		d := distance(q, t)
		if d < best.Distance {
			best = faceauth.Prediction{Label: m.labels[i], Distance: d}
		}
	}
	return best, nil
}

func (m *model) Close() error {
	return nil
}

// pixels liefert die Pixel zeilenweise ohne Stride
func pixels(g *image.Gray, size image.Point) ([]uint8, error) {
	if g == nil {
		return nil, faceauth.ErrShapeMismatch
	}
	b := g.Bounds()
	if b.Size() != size {
		return nil, fmt.Errorf("%w: got %v, want %v", faceauth.ErrShapeMismatch, b.Size(), size)
	}
	out := make([]uint8, 0, size.X*size.Y)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		out = append(out, g.Pix[off:off+size.X]...)
	}
	return out, nil
}

func distance(a, b []uint8) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
