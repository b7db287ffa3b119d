package faceauth

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// DefaultMaxAttempts ist die Anzahl Kamerabilder, die Authenticate höchstens auswertet
const DefaultMaxAttempts = 10

// Authenticate liest Bilder aus src, bis ein Gesicht gefunden und eine Entscheidung
// für claim getroffen wurde. Behebbare Fehler (leeres Bild, kein Gesicht, Timeout)
// führen zum nächsten Versuch; nach maxAttempts wird der letzte dieser Fehler
// zurückgegeben. Alle anderen Fehler werden sofort zurückgegeben.
func Authenticate(ctx context.Context, e *Engine, src FrameSource, claim string, maxAttempts int, opts ...RecognizeOption) (Result, error) {
	if err := ValidateIdentity(claim); err != nil {
		return Result{Label: UnknownLabel, Variant: e.Variant()}, err
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	fields := log.Fields{"component": "faceauth", "claim": claim}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Label: UnknownLabel, Variant: e.Variant()}, err
		}

		frame, err := src.Read(ctx)
		if err == nil {
			var res Result
			res, err = e.Verify(ctx, claim, frame, opts...)
			if err == nil {
				log.WithFields(fields).Infof("Authentifizierung nach %d Versuch(en): accepted=%v identity=%q score=%.4f",
					attempt, res.Accepted, res.Identity, res.Score)
				return res, nil
			}
		}

		if !IsRecoverable(err) {
			return Result{Label: UnknownLabel, Variant: e.Variant()}, err
		}

		log.WithFields(fields).Debugf("Versuch %d/%d ohne Ergebnis: %v", attempt, maxAttempts, err)
		lastErr = err
	}

	return Result{Label: UnknownLabel, Variant: e.Variant()},
		fmt.Errorf("no decision after %d attempts: %w", maxAttempts, lastErr)
}
