package faceauth

// decideClassification: Labels außerhalb [lo, hi] oder UnknownLabel werden
// unabhängig von der Distanz abgelehnt, sonst gilt distance < threshold.
func decideClassification(p Prediction, lo, hi int, names map[int]string, threshold float64) Result {
	res := Result{
		Label:   p.Label,
		Score:   p.Distance,
		Variant: VariantClassification,
	}

	if p.Label == UnknownLabel || p.Label < lo || p.Label > hi {
		res.Label = UnknownLabel
		return res
	}

	identity, ok := names[p.Label]
	if !ok {
		res.Label = UnknownLabel
		return res
	}

	res.Identity = identity
	res.Accepted = p.Distance < threshold
	return res
}

// decideEmbedding: Treffer nur bei Ähnlichkeit > minSimilarity und nicht leerer Identität
func decideEmbedding(entry galleryEntry, similarity float64, found bool, minSimilarity float64) Result {
	res := Result{
		Label:   UnknownLabel,
		Variant: VariantEmbedding,
	}
	if !found {
		return res
	}

	res.Label = entry.label
	res.Identity = entry.identity
	res.Score = similarity
	res.Accepted = entry.identity != "" && similarity > minSimilarity
	return res
}
