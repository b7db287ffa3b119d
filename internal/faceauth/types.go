// Package faceauth enthält die Erkennungs-Engine für die Gesichtsauthentifizierung:
// Referenzgesichter registrieren, trainieren und neue Gesichter gegen die
// registrierten Identitäten prüfen.
package faceauth

import (
	"image"
	"strings"
)

// Variant unterscheidet die beiden Arten der Merkmalsextraktion
type Variant string

const (
	// VariantClassification liefert Label und Distanz (Diskriminanzanalyse, LBPH, Templates)
	VariantClassification Variant = "classification"

	// VariantEmbedding liefert einen Merkmalsvektor fester Länge
	VariantEmbedding Variant = "embedding"
)

// State ist der Trainingszustand der Engine
type State string

const (
	StateUntrained State = "untrained"
	StateTrained   State = "trained"
)

// Standardwerte für die Entscheidungslogik
const (
	DefaultDistanceThreshold = 3500.0
	DefaultMinSimilarity     = 0.6
	DefaultConfidenceFloor   = 0.5
)

// Embedding ist ein Gesichtsvektor fester Länge
type Embedding []float32

// Sample ist ein einzelnes Referenzgesicht einer Identität.
// Image ist bei Bild-Samples gesetzt, Embedding bei vorberechneten Vektoren.
// EmbeddingModel nennt das Modell, das Embedding berechnet hat; leer heißt
// vom Aufrufer vorgegeben.
type Sample struct {
	ID             uint
	Identity       string
	Path           string
	Image          image.Image
	Embedding      Embedding
	EmbeddingModel string
}

// Detection ist ein vom Detektor gemeldetes Gesicht
type Detection struct {
	Rectangle  image.Rectangle
	Confidence float64
}

// Result ist das Ergebnis eines Erkennungsversuchs. Es wird nicht gespeichert.
type Result struct {
	Accepted bool    `json:"accepted"`
	Identity string  `json:"identity,omitempty"`
	Label    int     `json:"label"`
	Score    float64 `json:"score"` // Distanz (Klassifikation) oder Ähnlichkeit (Embedding)
	Variant  Variant `json:"variant"`
}

// ValidateIdentity prüft einen Identitätsnamen.
// Erlaubt sind Buchstaben, Ziffern, '-' und '.', da '_' im Dateinamen als Trenner dient.
func ValidateIdentity(name string) error {
	if name == "" || name == "." || name == ".." {
		return invalidIdentity(name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '.':
		default:
			return invalidIdentity(name)
		}
	}
	if strings.HasPrefix(name, ".") {
		return invalidIdentity(name)
	}
	return nil
}
