package faceauth

import (
	"errors"
	"fmt"
)

// Fehler der Erkennungspipeline. Aufrufer prüfen mit errors.Is.
var (
	// ErrEmptyFrame: die Kamera hat keine Bilddaten geliefert (nächstes Bild versuchen)
	ErrEmptyFrame = errors.New("empty frame")

	// ErrNoFaceDetected: im Bild wurde kein Gesicht gefunden (nächstes Bild versuchen)
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrNotTrained: Recognize vor erfolgreichem Training oder nach einer Änderung der Samples
	ErrNotTrained = errors.New("recognizer not trained")

	// ErrTraining: leerer oder inkonsistenter Trainingsdatensatz
	ErrTraining = errors.New("training failed")

	// ErrShapeMismatch: Eingabe hat nicht die Größe, mit der trainiert wurde
	ErrShapeMismatch = errors.New("face shape mismatch")

	// ErrInvalidIdentity: Identitätsname ist leer oder enthält unzulässige Zeichen
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrReadTimeout: die Kamera hat innerhalb des Timeouts kein Bild geliefert
	ErrReadTimeout = errors.New("frame read timeout")
)

// IsRecoverable meldet, ob ein Fehler durch einen erneuten Versuch mit dem
// nächsten Bild behoben werden kann. Trainingsfehler sind nie behebbar, auch
// wenn ihre Ursache ein Bildfehler eines Samples ist.
func IsRecoverable(err error) bool {
	if errors.Is(err, ErrTraining) {
		return false
	}
	return errors.Is(err, ErrEmptyFrame) ||
		errors.Is(err, ErrNoFaceDetected) ||
		errors.Is(err, ErrReadTimeout)
}

func trainingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTraining, fmt.Sprintf(format, args...))
}

func invalidIdentity(name string) error {
	return fmt.Errorf("%w: %q", ErrInvalidIdentity, name)
}
