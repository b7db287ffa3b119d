// Package imaging enthält reine Go-Hilfsfunktionen für Gesichtsbilder:
// Zuschneiden, Graustufen, Skalieren, Ausrichten und JPEG-Kodierung.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG-Uploads werden ebenfalls akzeptiert
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// JPEGQuality ist die Qualität, mit der Referenzbilder gespeichert werden
const JPEGQuality = 95

// IsEmpty meldet, ob ein Bild keine Pixel enthält
func IsEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// Crop schneidet r aus img aus. Das Ergebnis beginnt immer bei (0,0).
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// ToGray wandelt img in ein Graustufenbild mit Ursprung (0,0) um
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Normalize liefert img als Graustufenbild in exakt der Größe size.
func Normalize(img image.Image, size image.Point) *image.Gray {
	g := ToGray(img)
	if g.Bounds().Size() == size {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

// EyeLineAngle gibt den Winkel der Augenlinie in Grad zurück (0 = horizontal).
// Positive Werte bedeuten, dass das rechte Bildauge tiefer liegt.
func EyeLineAngle(left, right image.Point) float64 {
	dx := float64(right.X - left.X)
	dy := float64(right.Y - left.Y)
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// Rotate dreht den Bildinhalt um center, sodass eine Linie mit dem Winkel
// angle (Grad, wie EyeLineAngle) anschließend horizontal liegt.
// Das Ergebnis hat dieselbe Größe wie img und beginnt bei (0,0).
func Rotate(img image.Image, angle float64, center image.Point) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	rad := angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	px, py := float64(center.X), float64(center.Y)
	mx, my := float64(b.Min.X), float64(b.Min.Y)

	// s2d bildet Quellkoordinaten auf Zielkoordinaten ab
	s2d := f64.Aff3{
		cos, sin, px - mx - cos*px - sin*py,
		-sin, cos, py - my + sin*px - cos*py,
	}
	draw.BiLinear.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}

// Align richtet ein Gesicht anhand der Augenmittelpunkte aus.
// Winkel unterhalb von minAngle (Grad) werden ignoriert.
func Align(img image.Image, leftEye, rightEye image.Point, minAngle float64) (image.Image, float64) {
	angle := EyeLineAngle(leftEye, rightEye)
	if math.Abs(angle) < minAngle {
		return img, 0
	}
	center := image.Pt((leftEye.X+rightEye.X)/2, (leftEye.Y+rightEye.Y)/2)
	return Rotate(img, angle, center), angle
}

// EncodeJPEG kodiert img als JPEG
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJPEG schreibt img als JPEG-Datei nach path
func WriteJPEG(path string, img image.Image) error {
	data, err := EncodeJPEG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Decode dekodiert JPEG- oder PNG-Daten
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeFile liest und dekodiert eine Bilddatei
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
