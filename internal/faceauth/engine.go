package faceauth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"faceauth-go/internal/imaging"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "faceauth",
}

// Options enthält die Schwellenwerte der Entscheidungslogik
type Options struct {
	// DistanceThreshold: Klassifikation wird akzeptiert, wenn distance < DistanceThreshold
	DistanceThreshold float64

	// MinSimilarity: Embedding-Treffer wird akzeptiert, wenn similarity > MinSimilarity
	MinSimilarity float64
}

// DefaultOptions liefert die Standard-Schwellenwerte
func DefaultOptions() Options {
	return Options{
		DistanceThreshold: DefaultDistanceThreshold,
		MinSimilarity:     DefaultMinSimilarity,
	}
}

// RecognizeOption verändert einen einzelnen Erkennungsaufruf
type RecognizeOption func(*recognizeConfig)

type recognizeConfig struct {
	threshold *float64
}

// WithThreshold ersetzt für diesen Aufruf den Schwellenwert: die maximale Distanz
// bei der Klassifikation bzw. die minimale Ähnlichkeit bei Embeddings.
func WithThreshold(threshold float64) RecognizeOption {
	return func(c *recognizeConfig) {
		c.threshold = &threshold
	}
}

// model ist der trainierte, unveränderliche Zustand
type model interface {
	match(ctx context.Context, face image.Image, threshold *float64) (Result, error)
	identities() []string
	close() error
}

// Engine ist die Erkennungs-Engine. Sie besitzt den Trainingszustand, die
// Zuordnung Label -> Identität und die Entscheidung über Annahme/Ablehnung.
//
// Training und Erkennung schließen sich gegenseitig aus: ein Erkennungsaufruf
// sieht immer ein vollständiges Modell oder erhält ErrNotTrained.
type Engine struct {
	locator    *Locator
	classifier Classifier
	embedder   Embedder
	store      Store
	opts       Options

	trainMu sync.Mutex // serialisiert Trainingsläufe

	mu    sync.RWMutex
	model model
	dirty bool
	gen   uint64 // wird bei jeder Änderung der Samples erhöht
}

// NewEngine erstellt eine Engine. extractor muss Classifier oder Embedder sein.
// locator darf nil sein, dann stehen nur EnrollFace und RecognizeFace zur Verfügung.
func NewEngine(locator *Locator, extractor Extractor, store Store, opts Options) (*Engine, error) {
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if opts.DistanceThreshold <= 0 {
		opts.DistanceThreshold = DefaultDistanceThreshold
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}

	e := &Engine{
		locator: locator,
		store:   store,
		opts:    opts,
	}

	switch extractor.Variant() {
	case VariantClassification:
		c, ok := extractor.(Classifier)
		if !ok {
			return nil, fmt.Errorf("extractor %T reports %s but is not a Classifier", extractor, VariantClassification)
		}
		e.classifier = c
	case VariantEmbedding:
		em, ok := extractor.(Embedder)
		if !ok {
			return nil, fmt.Errorf("extractor %T reports %s but is not an Embedder", extractor, VariantEmbedding)
		}
		e.embedder = em
	default:
		return nil, fmt.Errorf("unknown extractor variant %q", extractor.Variant())
	}

	return e, nil
}

// Variant gibt die Extraktionsvariante der Engine zurück
func (e *Engine) Variant() Variant {
	if e.classifier != nil {
		return VariantClassification
	}
	return VariantEmbedding
}

// Options gibt die konfigurierten Schwellenwerte zurück
func (e *Engine) Options() Options {
	return e.opts
}

// State liefert den Trainingszustand. Ein Modell, dessen Samples sich seit dem
// Training geändert haben, gilt als untrainiert.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	if e.model == nil || e.dirty {
		return StateUntrained
	}
	return StateTrained
}

// Identities liefert die Identitäten des aktuellen Modells in Label-Reihenfolge
func (e *Engine) Identities() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return nil
	}
	return e.model.identities()
}

// Initialize bereitet den Store vor und trainiert, falls bereits Samples existieren.
// Ein leerer Store ist kein Fehler, die Engine bleibt dann untrainiert.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	samples, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list samples: %w", err)
	}
	if len(samples) == 0 {
		log.WithFields(logFields).Info("Keine Referenzgesichter vorhanden, Engine bleibt untrainiert")
		return nil
	}

	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()

	set := AssembleTrainingSet(samples)
	return e.fit(ctx, set.Samples, set.Labels, true, gen)
}

// Train baut das Modell aus dem Store neu auf. Ist die Engine bereits trainiert
// und haben sich die Samples nicht geändert, passiert nichts.
func (e *Engine) Train(ctx context.Context) error {
	return e.trainFromStore(ctx, false)
}

// Retrain erzwingt einen Neuaufbau des Modells
func (e *Engine) Retrain(ctx context.Context) error {
	return e.trainFromStore(ctx, true)
}

func (e *Engine) trainFromStore(ctx context.Context, force bool) error {
	e.mu.RLock()
	state, gen := e.stateLocked(), e.gen
	e.mu.RUnlock()

	if state == StateTrained && !force {
		log.WithFields(logFields).Debug("Modell ist aktuell, Training übersprungen")
		return nil
	}

	samples, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list samples: %w", err)
	}
	if len(samples) == 0 {
		return trainingError("no samples enrolled")
	}

	set := AssembleTrainingSet(samples)
	return e.fit(ctx, set.Samples, set.Labels, force, gen)
}

// Fit trainiert über samples mit der parallelen LabelMap labels.
// Bei einem Fehler bleibt der bisherige Zustand unverändert.
func (e *Engine) Fit(ctx context.Context, samples []Sample, labels LabelMap, force bool) error {
	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()
	return e.fit(ctx, samples, labels, force, gen)
}

func (e *Engine) fit(ctx context.Context, samples []Sample, labels LabelMap, force bool, gen uint64) error {
	if len(samples) == 0 {
		return trainingError("no samples")
	}
	if len(labels) != len(samples) {
		return trainingError("%d labels for %d samples", len(labels), len(samples))
	}
	names, err := labelNames(samples, labels)
	if err != nil {
		return err
	}

	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	if !force && e.State() == StateTrained {
		return nil
	}

	var m model
	if e.classifier != nil {
		m, err = e.buildClassification(samples, labels, names)
	} else {
		m, err = e.buildEmbedding(ctx, samples, labels)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.model
	e.model = m
	e.dirty = e.gen != gen
	e.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			log.WithFields(logFields).Warnf("Altes Modell konnte nicht freigegeben werden: %v", err)
		}
	}

	lo, hi := labels.Bounds()
	log.WithFields(logFields).Infof("Modell trainiert: %d Samples, %d Identitäten, Labels [%d, %d]",
		len(samples), len(names), lo, hi)
	return nil
}

func (e *Engine) buildClassification(samples []Sample, labels LabelMap, names map[int]string) (model, error) {
	size := e.classifier.FaceSize()
	faces := make([]*image.Gray, len(samples))
	for i, s := range samples {
		if imaging.IsEmpty(s.Image) {
			return nil, trainingError("sample %d (%s) has no image", i, s.Path)
		}
		g := imaging.ToGray(s.Image)
		if g.Bounds().Size() != size {
			return nil, fmt.Errorf("%w: sample %d (%s) is %v, want %v: %w",
				ErrTraining, i, s.Path, g.Bounds().Size(), size, ErrShapeMismatch)
		}
		faces[i] = g
	}

	predictor, err := e.classifier.Fit(faces, []int(labels))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	lo, hi := labels.Bounds()
	return &classificationModel{
		predictor: predictor,
		faceSize:  size,
		lo:        lo,
		hi:        hi,
		names:     names,
		threshold: e.opts.DistanceThreshold,
	}, nil
}

func (e *Engine) buildEmbedding(ctx context.Context, samples []Sample, labels LabelMap) (model, error) {
	cache, _ := e.store.(EmbeddingCache)
	modelName := EmbeddingModelName(e.embedder)

	g := &gallery{entries: make([]galleryEntry, 0, len(samples))}
	for i, s := range samples {
		emb := s.Embedding
		if len(emb) > 0 && s.EmbeddingModel != "" && s.EmbeddingModel != modelName {
			// von einem anderen Modell berechnet
			emb = nil
		}
		if len(emb) == 0 {
			if imaging.IsEmpty(s.Image) {
				return nil, trainingError("sample %d (%s) has neither image nor embedding", i, s.Path)
			}
			var err error
			emb, err = e.embedder.Embed(ctx, s.Image)
			if err != nil {
				return nil, fmt.Errorf("%w: sample %d (%s): %w", ErrTraining, i, s.Path, err)
			}
			if cache != nil && s.ID != 0 {
				if err := cache.CacheEmbedding(ctx, s.ID, modelName, emb); err != nil {
					log.WithFields(logFields).Warnf("Embedding für %s konnte nicht gespeichert werden: %v", s.Path, err)
				}
			}
		}

		if g.dim == 0 {
			g.dim = len(emb)
		} else if len(emb) != g.dim {
			return nil, trainingError("sample %d (%s) has embedding length %d, want %d", i, s.Path, len(emb), g.dim)
		}

		g.entries = append(g.entries, galleryEntry{
			identity:  s.Identity,
			label:     labels[i],
			embedding: emb,
		})
	}

	return &embeddingModel{
		embedder:      e.embedder,
		gallery:       g,
		minSimilarity: e.opts.MinSimilarity,
	}, nil
}

// Recognize sucht ein Gesicht in frame und prüft es gegen die registrierten Identitäten.
// ErrEmptyFrame und ErrNoFaceDetected sind behebbar (nächstes Bild versuchen).
func (e *Engine) Recognize(ctx context.Context, frame image.Image, opts ...RecognizeOption) (Result, error) {
	if e.State() != StateTrained {
		return Result{Variant: e.Variant()}, ErrNotTrained
	}

	face, err := e.cropFace(ctx, frame)
	if err != nil {
		return Result{Variant: e.Variant()}, err
	}

	if e.classifier != nil {
		face = imaging.Normalize(face, e.classifier.FaceSize())
	}
	return e.RecognizeFace(ctx, face, opts...)
}

// RecognizeFace prüft ein bereits zugeschnittenes Gesicht. Für die Klassifikation
// muss face exakt FaceSize() des Classifiers haben, sonst ErrShapeMismatch.
func (e *Engine) RecognizeFace(ctx context.Context, face image.Image, opts ...RecognizeOption) (Result, error) {
	var cfg recognizeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stateLocked() != StateTrained {
		return Result{Variant: e.Variant()}, ErrNotTrained
	}
	if imaging.IsEmpty(face) {
		return Result{Variant: e.Variant()}, ErrEmptyFrame
	}

	res, err := e.model.match(ctx, face, cfg.threshold)
	if err != nil {
		return Result{Variant: e.Variant()}, err
	}

	log.WithFields(logFields).Debugf("Erkennung: identity=%q label=%d score=%.4f accepted=%v",
		res.Identity, res.Label, res.Score, res.Accepted)
	return res, nil
}

// Verify prüft, ob frame die Identität claim zeigt
func (e *Engine) Verify(ctx context.Context, claim string, frame image.Image, opts ...RecognizeOption) (Result, error) {
	res, err := e.Recognize(ctx, frame, opts...)
	if err != nil {
		return res, err
	}
	if res.Identity != claim {
		res.Accepted = false
	}
	return res, nil
}

// Enroll sucht ein Gesicht in frame und speichert es für identity.
// Das Modell wird nicht neu trainiert; bis zum nächsten Train gilt die Engine als untrainiert.
func (e *Engine) Enroll(ctx context.Context, identity string, frame image.Image) (string, error) {
	if err := ValidateIdentity(identity); err != nil {
		return "", err
	}
	face, err := e.cropFace(ctx, frame)
	if err != nil {
		return "", err
	}
	return e.EnrollFace(ctx, identity, face)
}

// EnrollFace speichert ein bereits zugeschnittenes Gesicht für identity
func (e *Engine) EnrollFace(ctx context.Context, identity string, face image.Image) (string, error) {
	if err := ValidateIdentity(identity); err != nil {
		return "", err
	}
	if imaging.IsEmpty(face) {
		return "", ErrEmptyFrame
	}

	stored := face
	if e.classifier != nil {
		stored = imaging.Normalize(face, e.classifier.FaceSize())
	}

	sample, err := e.store.Add(ctx, identity, stored)
	if err != nil {
		return "", fmt.Errorf("failed to store sample for %s: %w", identity, err)
	}

	e.markDirty()
	log.WithFields(logFields).Infof("Referenzgesicht für '%s' gespeichert: %s", identity, sample.Path)
	return sample.Path, nil
}

// Remove löscht ein Sample. Bis zum nächsten Train gilt die Engine als untrainiert.
func (e *Engine) Remove(ctx context.Context, path string) error {
	if err := e.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("failed to remove sample %s: %w", path, err)
	}
	e.markDirty()
	return nil
}

// Close gibt das trainierte Modell frei
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.close()
	e.model = nil
	return err
}

func (e *Engine) markDirty() {
	e.mu.Lock()
	e.dirty = true
	e.gen++
	e.mu.Unlock()
}

func (e *Engine) cropFace(ctx context.Context, frame image.Image) (image.Image, error) {
	if e.locator == nil {
		return nil, errors.New("no face locator configured")
	}
	region, err := e.locator.Locate(ctx, frame)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(frame, region), nil
}

type classificationModel struct {
	predictor Predictor
	faceSize  image.Point
	lo, hi    int
	names     map[int]string
	threshold float64
}

func (m *classificationModel) match(_ context.Context, face image.Image, threshold *float64) (Result, error) {
	t := m.threshold
	if threshold != nil {
		t = *threshold
	}

	prediction, err := m.predictor.Predict(imaging.ToGray(face))
	if err != nil {
		return Result{Variant: VariantClassification}, err
	}
	return decideClassification(prediction, m.lo, m.hi, m.names, t), nil
}

func (m *classificationModel) identities() []string {
	out := make([]string, 0, len(m.names))
	for l := m.lo; l <= m.hi; l++ {
		if name, ok := m.names[l]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (m *classificationModel) close() error {
	return m.predictor.Close()
}

type embeddingModel struct {
	embedder      Embedder
	gallery       *gallery
	minSimilarity float64
}

func (m *embeddingModel) match(ctx context.Context, face image.Image, threshold *float64) (Result, error) {
	minSim := m.minSimilarity
	if threshold != nil {
		minSim = *threshold
	}

	q, err := m.embedder.Embed(ctx, face)
	if err != nil {
		return Result{Variant: VariantEmbedding}, err
	}
	if len(q) != m.gallery.dim {
		return Result{Variant: VariantEmbedding}, fmt.Errorf("%w: embedding length %d, want %d",
			ErrShapeMismatch, len(q), m.gallery.dim)
	}

	entry, sim, found := m.gallery.best(q)
	return decideEmbedding(entry, sim, found, minSim), nil
}

func (m *embeddingModel) identities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.gallery.entries {
		if !seen[e.identity] {
			seen[e.identity] = true
			out = append(out, e.identity)
		}
	}
	return out
}

func (m *embeddingModel) close() error {
	return nil
}
