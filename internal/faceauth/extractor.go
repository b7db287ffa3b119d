package faceauth

import (
	"context"
	"fmt"
	"image"
)

// UnknownLabel ist das Label, das ein Klassifikator für "kein Treffer" meldet
const UnknownLabel = -1

// Extractor ist die gemeinsame Schnittstelle beider Extraktionsvarianten.
// Eine Implementierung erfüllt entweder Classifier oder Embedder.
type Extractor interface {
	Variant() Variant
}

// Prediction ist das Ergebnis eines Klassifikators
type Prediction struct {
	Label    int
	Distance float64
}

// Classifier trainiert ein Modell über Graustufengesichter fester Größe
type Classifier interface {
	Extractor

	// FaceSize ist die exakte Größe, die Fit und Predict erwarten
	FaceSize() image.Point

	// Fit erzeugt ein neues, unveränderliches Modell. Der Classifier selbst bleibt unverändert.
	Fit(faces []*image.Gray, labels []int) (Predictor, error)
}

// Predictor ist ein trainiertes Klassifikationsmodell
type Predictor interface {
	// Predict liefert ErrShapeMismatch, wenn face nicht FaceSize() entspricht
	Predict(face *image.Gray) (Prediction, error)
	Close() error
}

// Embedder berechnet Gesichtsvektoren
type Embedder interface {
	Extractor
	Embed(ctx context.Context, face image.Image) (Embedding, error)
}

// ModelNamer wird optional von Embeddern implementiert. Vektoren verschiedener
// Modelle sind nicht vergleichbar, der Name kennzeichnet zwischengespeicherte Vektoren.
type ModelNamer interface {
	ModelName() string
}

// EmbeddingModelName liefert den Modellnamen von em, ersatzweise den Typnamen
func EmbeddingModelName(em Embedder) string {
	if n, ok := em.(ModelNamer); ok && n.ModelName() != "" {
		return n.ModelName()
	}
	return fmt.Sprintf("%T", em)
}

// Detector ist ein Gesichtsdetektor. Die Reihenfolge der Ergebnisse ist die
// Ausgabereihenfolge des Modells.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Store verwaltet die Referenzgesichter
type Store interface {
	// Init legt den Speicher an und gleicht ihn mit dem Dateisystem ab
	Init(ctx context.Context) error

	// List liefert alle Samples in stabiler Reihenfolge (Reihenfolge der Registrierung)
	List(ctx context.Context) ([]Sample, error)

	// Add speichert ein Gesicht für identity
	Add(ctx context.Context, identity string, face image.Image) (Sample, error)

	// Remove löscht ein Sample anhand seines Pfads
	Remove(ctx context.Context, path string) error
}

// EmbeddingCache wird optional vom Store implementiert, um berechnete
// Vektoren für spätere Trainingsläufe zu speichern. List liefert einen
// gespeicherten Vektor in Sample.Embedding zusammen mit Sample.EmbeddingModel.
type EmbeddingCache interface {
	CacheEmbedding(ctx context.Context, sampleID uint, model string, emb Embedding) error
}

// FrameSource liefert Kamerabilder. Read blockiert, bis ein Bild vorliegt.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
}
