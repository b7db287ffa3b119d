package faceauth

import (
	"context"
	"fmt"
	"image"

	"faceauth-go/internal/imaging"
)

// Locator wählt aus den Detektionen eines Detectors genau ein Gesicht aus.
//
// Auswahlregel: die erste Detektion in Ausgabereihenfolge des Detektors, deren
// Konfidenz die Untergrenze erreicht. Es findet keine weitere Rangfolge nach
// Größe oder Lage statt.
type Locator struct {
	detector Detector
	floor    float64
}

// NewLocator erstellt einen Locator. floor <= 0 verwendet DefaultConfidenceFloor.
func NewLocator(detector Detector, floor float64) *Locator {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Locator{detector: detector, floor: floor}
}

// Floor gibt die Konfidenz-Untergrenze zurück
func (l *Locator) Floor() float64 {
	return l.floor
}

// Locate liefert die Region des ausgewählten Gesichts im Koordinatensystem von frame
func (l *Locator) Locate(ctx context.Context, frame image.Image) (image.Rectangle, error) {
	// Leere Bilder dürfen den Detektor nicht erreichen
	if imaging.IsEmpty(frame) {
		return image.Rectangle{}, ErrEmptyFrame
	}

	detections, err := l.detector.Detect(ctx, frame)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := frame.Bounds()
	for _, d := range detections {
		if d.Confidence < l.floor {
			continue
		}
		region := d.Rectangle.Canon().Intersect(bounds)
		if region.Empty() {
			continue
		}
		return region, nil
	}

	return image.Rectangle{}, ErrNoFaceDetected
}
