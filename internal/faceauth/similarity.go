package faceauth

import "math"

// CosineSimilarity berechnet die Kosinus-Ähnlichkeit zweier Vektoren (-1 bis 1).
// Bei unterschiedlicher Länge oder Nullvektoren ist das Ergebnis 0.
func CosineSimilarity(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type galleryEntry struct {
	identity  string
	label     int
	embedding Embedding
}

// gallery ist das trainierte Modell der Embedding-Variante
type gallery struct {
	entries []galleryEntry
	dim     int
}

// best vergleicht q mit allen Einträgen. Bei exakt gleicher Ähnlichkeit
// gewinnt der zuerst registrierte Eintrag.
func (g *gallery) best(q Embedding) (galleryEntry, float64, bool) {
	var (
		found   bool
		best    galleryEntry
		bestSim = math.Inf(-1)
	)
	for _, e := range g.entries {
		sim := CosineSimilarity(q, e.embedding)
		if sim > bestSim {
			best, bestSim, found = e, sim, true
		}
	}
	return best, bestSim, found
}
