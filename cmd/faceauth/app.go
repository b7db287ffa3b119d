package main

import (
	"context"
	"fmt"
	"image"

	"faceauth-go/config"
	"faceauth-go/internal/camera"
	"faceauth-go/internal/db"
	"faceauth-go/internal/db/repository"
	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/integrations/dlib"
	"faceauth-go/internal/integrations/insightface"
	"faceauth-go/internal/integrations/opencv"
	"faceauth-go/internal/template"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app hält die gemeinsam genutzten Komponenten eines Kommandos
type app struct {
	cfg    *config.Config
	gdb    *gorm.DB
	repo   *repository.SQLiteRepository
	store  *enrollment.Store
	engine *faceauth.Engine

	closers []func() error
}

// newApp verbindet Datenbank, Store, Detektor, Extraktor und Engine und
// trainiert aus dem vorhandenen Bestand
func newApp(ctx context.Context, cfg *config.Config, source string) (*app, error) {
	a := &app{cfg: cfg}

	gdb, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a.gdb = gdb
	a.closers = append(a.closers, func() error { return db.Close(gdb) })
	a.repo = repository.NewSQLiteRepository(gdb)

	a.store, err = enrollment.New(a.repo, enrollment.Options{
		Folder:  cfg.Storage.Folder,
		Layout:  enrollment.Layout(cfg.Storage.Layout),
		Workers: cfg.Storage.Workers,
		Source:  source,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	extractor, detector, err := a.newPipeline()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = faceauth.NewEngine(
		faceauth.NewLocator(detector, cfg.Detector.ConfidenceThreshold),
		extractor,
		a.store,
		faceauth.Options{
			DistanceThreshold: cfg.Recognizer.DistanceThreshold,
			MinSimilarity:     cfg.Recognizer.MinSimilarity,
		},
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.engine.Close)

	if err := a.engine.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}

	log.Infof("Engine bereit: extractor=%s variant=%s state=%s identities=%v",
		cfg.Recognizer.Extractor, a.engine.Variant(), a.engine.State(), a.engine.Identities())
	return a, nil
}

// newPipeline erstellt Extraktor und Detektor gemäß recognizer.extractor
func (a *app) newPipeline() (faceauth.Extractor, faceauth.Detector, error) {
	rc := a.cfg.Recognizer
	faceSize := image.Pt(rc.FaceWidth, rc.FaceHeight)

	if rc.Extractor == "insightface" {
		// Der Dienst übernimmt auch die Detektion
		embedder := insightface.NewEmbedder(insightface.NewAPIClient(rc.InsightFaceURL, 0), a.cfg.Detector.ConfidenceThreshold)
		return embedder, embedder, nil
	}

	detector, err := opencv.NewFaceDetector(a.cfg.Detector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create face detector: %w", err)
	}
	a.closers = append(a.closers, detector.Close)

	switch rc.Extractor {
	case "lbph":
		return opencv.NewLBPHClassifier(faceSize), detector, nil
	case "template":
		return template.NewClassifier(faceSize), detector, nil
	case "dlib":
		embedder, err := dlib.NewEmbedder(rc.ModelsDir, rc.AlignMinAngle)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create dlib embedder: %w", err)
		}
		a.closers = append(a.closers, embedder.Close)
		return embedder, detector, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor %q", rc.Extractor)
	}
}

// openSource öffnet die Bildquelle: Datei/Verzeichnis oder Kamera
func openSource(cfg config.CameraConfig) (faceauth.FrameSource, func() error, error) {
	if camera.IsFileSource(cfg.Device) {
		src, err := camera.NewFileSource(cfg.Device, false)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	cam, err := opencv.OpenCamera(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cam, cam.Close, nil
}

// Close gibt alle Ressourcen in umgekehrter Reihenfolge frei
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("Fehler beim Schließen: %v", err)
		}
	}
	a.closers = nil
}
