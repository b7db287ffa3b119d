package faceauth

// LabelMap ist parallel zu den Trainings-Samples: LabelMap[i] gehört zu samples[i]
type LabelMap []int

// Bounds liefert das kleinste und größte Label. Für eine leere Map (0, -1).
func (m LabelMap) Bounds() (int, int) {
	if len(m) == 0 {
		return 0, -1
	}
	lo, hi := m[0], m[0]
	for _, l := range m[1:] {
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	return lo, hi
}

// TrainingSet ist ein vollständig gelabelter Trainingsdatensatz
type TrainingSet struct {
	Samples []Sample
	Labels  LabelMap
	Names   []string // Names[label] ist die Identität zu label
}

// AssembleTrainingSet vergibt die Labels nach Position im Listing: jede Identität
// erhält beim ersten Auftreten das nächste freie Label (0, 1, 2, ...).
// Eine früher registrierte Identität hat damit immer kleinere Labels.
func AssembleTrainingSet(samples []Sample) TrainingSet {
	set := TrainingSet{
		Samples: samples,
		Labels:  make(LabelMap, len(samples)),
	}

	byName := make(map[string]int)
	for i, s := range samples {
		label, ok := byName[s.Identity]
		if !ok {
			label = len(set.Names)
			byName[s.Identity] = label
			set.Names = append(set.Names, s.Identity)
		}
		set.Labels[i] = label
	}

	return set
}

// labelNames ordnet jedem Label genau eine Identität zu
func labelNames(samples []Sample, labels LabelMap) (map[int]string, error) {
	names := make(map[int]string)
	for i, l := range labels {
		if l < 0 {
			return nil, trainingError("sample %d has negative label %d", i, l)
		}
		identity := samples[i].Identity
		if identity == "" {
			return nil, trainingError("sample %d has no identity", i)
		}
		if prev, ok := names[l]; ok && prev != identity {
			return nil, trainingError("label %d maps to both %q and %q", l, prev, identity)
		}
		names[l] = identity
	}
	return names, nil
}
