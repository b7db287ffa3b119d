package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sample ist ein registriertes Referenzgesicht. Die ID ist autoincrement und
// bestimmt die Reihenfolge der Registrierung.
type Sample struct {
	gorm.Model
	Identity     string         `gorm:"index;not null"`       // Name der Person
	FilePath     string         `gorm:"uniqueIndex;not null"` // Relativer Pfad im Speicherordner
	Embedding      datatypes.JSON `gorm:"type:json;null"`       // Zwischengespeicherter Merkmalsvektor
	EmbeddingDim   int            // Länge des Vektors, 0 wenn nicht berechnet
	EmbeddingModel string         // Modell, das den Vektor berechnet hat
	Source         string         `gorm:"index"` // "api", "cli" oder "sync"
}

// AuthAttempt protokolliert einen Erkennungs- oder Login-Versuch
type AuthAttempt struct {
	gorm.Model
	Claim     string         `gorm:"index"` // Beanspruchte Identität, leer bei reiner Erkennung
	Identity  string         `gorm:"index"` // Erkannte Identität
	Accepted  bool           `gorm:"index"`
	Score     float64        // Distanz oder Ähnlichkeit
	Label     int
	Variant   string
	Source    string         `gorm:"index"` // "api", "login", "cli"
	Error     string         // Fehler, falls keine Entscheidung getroffen wurde
	Details   datatypes.JSON `gorm:"type:json;null"`
}

// IdentitySummary ist eine Identität mit der Anzahl ihrer Samples
type IdentitySummary struct {
	Name    string `json:"name"`
	Samples int64  `json:"samples"`
}

// Statistics fasst den Datenbestand zusammen
type Statistics struct {
	Samples          int64     `json:"samples"`
	Identities       int64     `json:"identities"`
	Attempts         int64     `json:"attempts"`
	AcceptedAttempts int64     `json:"accepted_attempts"`
	LatestAttempt    time.Time `json:"latest_attempt"`
}
