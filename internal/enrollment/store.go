// Package enrollment speichert Referenzgesichter als JPEG-Dateien in einem
// Verzeichnisbaum und führt einen SQLite-Katalog, dessen IDs die Reihenfolge
// der Registrierung festlegen.
package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"faceauth-go/internal/core/models"
	"faceauth-go/internal/db/repository"
	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var logFields = log.Fields{
	"component": "enrollment",
}

// Layout bestimmt die Ablage der Dateien
type Layout string

const (
	// LayoutNested: <folder>/<identity>/face_<identity>_<random>.jpg
	LayoutNested Layout = "nested"
	// LayoutFlat: <folder>/face_<identity>_<random>.jpg
	LayoutFlat Layout = "flat"
)

// Quellen eines Samples im Katalog
const (
	SourceAPI  = "api"
	SourceCLI  = "cli"
	SourceSync = "sync"
)

// ErrSampleNotFound wird von Remove gemeldet, wenn weder Datei noch Katalogeintrag existieren
var ErrSampleNotFound = errors.New("sample not found")

// Options konfiguriert den Store
type Options struct {
	Folder  string
	Layout  Layout
	Workers int    // 0 = max(2, 3/4 der CPUs)
	Source  string // Quelle für neu angelegte Samples
}

// SyncReport fasst einen Abgleich zwischen Dateisystem und Katalog zusammen
type SyncReport struct {
	Imported int
	Dropped  int
	Skipped  int
}

// Store implementiert faceauth.Store und faceauth.EmbeddingCache
type Store struct {
	root   string
	layout Layout
	source string
	repo   repository.Repository
	pool   *workerPool

	mu sync.Mutex // serialisiert Add, Remove und Sync
}

var (
	_ faceauth.Store          = (*Store)(nil)
	_ faceauth.EmbeddingCache = (*Store)(nil)
)

// New erstellt einen Store. Der Ordner wird erst in Init angelegt.
func New(repo repository.Repository, opts Options) (*Store, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if opts.Folder == "" {
		return nil, errors.New("storage folder is required")
	}
	switch opts.Layout {
	case "":
		opts.Layout = LayoutNested
	case LayoutNested, LayoutFlat:
	default:
		return nil, fmt.Errorf("unknown layout %q", opts.Layout)
	}
	if opts.Source == "" {
		opts.Source = SourceAPI
	}

	root, err := filepath.Abs(opts.Folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage folder: %w", err)
	}

	return &Store{
		root:   root,
		layout: opts.Layout,
		source: opts.Source,
		repo:   repo,
		pool:   newWorkerPool(root, opts.Workers),
	}, nil
}

// Root gibt den absoluten Speicherordner zurück
func (s *Store) Root() string {
	return s.root
}

// Workers liefert die Anzahl der Lade-Worker
func (s *Store) Workers() int {
	return s.pool.workerCount
}

// Init legt den Ordner an und gleicht den Katalog ab
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create storage folder: %w", err)
	}
	report, err := s.Sync(ctx)
	if err != nil {
		return err
	}
	if report.Imported > 0 || report.Dropped > 0 {
		log.WithFields(logFields).Infof("Katalog abgeglichen: %d importiert, %d entfernt, %d übersprungen",
			report.Imported, report.Dropped, report.Skipped)
	}
	return nil
}

// Sync importiert Bilder, die im Ordner liegen, aber nicht im Katalog stehen
// (in Pfadreihenfolge), und entfernt Katalogeinträge ohne Datei.
func (s *Store) Sync(ctx context.Context) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SyncReport

	rows, err := s.repo.ListSamples(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list catalog: %w", err)
	}

	known := make(map[string]bool, len(rows))
	var vanished []uint
	for _, row := range rows {
		known[row.FilePath] = true
		if _, err := os.Stat(s.abs(row.FilePath)); errors.Is(err, fs.ErrNotExist) {
			vanished = append(vanished, row.ID)
		}
	}

	if len(vanished) > 0 {
		if err := s.repo.DeleteSamplesByID(ctx, vanished...); err != nil {
			return report, fmt.Errorf("failed to drop vanished samples: %w", err)
		}
		report.Dropped = len(vanished)
	}

	// WalkDir liefert die Einträge in lexikalischer Reihenfolge
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImageFile(path) {
			return nil
		}

		rel, err := s.rel(path)
		if err != nil || known[rel] {
			return err
		}

		identity, ok := s.identityFor(rel)
		if !ok {
			log.WithFields(logFields).Warnf("Datei %s kann keiner Identität zugeordnet werden, übersprungen", rel)
			report.Skipped++
			return nil
		}

		row := &models.Sample{Identity: identity, FilePath: rel, Source: SourceSync}
		if err := s.repo.SaveSample(ctx, row); err != nil {
			return fmt.Errorf("failed to import %s: %w", rel, err)
		}
		report.Imported++
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to scan storage folder: %w", err)
	}

	return report, nil
}

// identityFor bestimmt die Identität aus dem Dateinamen, ersatzweise aus dem Verzeichnis
func (s *Store) identityFor(rel string) (string, bool) {
	if identity, ok := ParseSampleName(rel); ok {
		return identity, true
	}
	dir := filepath.Dir(filepath.FromSlash(rel))
	if dir == "." || strings.ContainsRune(dir, filepath.Separator) {
		return "", false
	}
	if faceauth.ValidateIdentity(dir) != nil {
		return "", false
	}
	return dir, true
}

// List liefert alle Samples in Registrierungsreihenfolge
func (s *Store) List(ctx context.Context) ([]faceauth.Sample, error) {
	rows, err := s.repo.ListSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	return s.pool.loadAll(ctx, rows)
}

// Add speichert face als JPEG und legt den Katalogeintrag an
func (s *Store) Add(ctx context.Context, identity string, face image.Image) (faceauth.Sample, error) {
	if err := faceauth.ValidateIdentity(identity); err != nil {
		return faceauth.Sample{}, err
	}
	if imaging.IsEmpty(face) {
		return faceauth.Sample{}, faceauth.ErrEmptyFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := SampleName(identity)
	rel := name
	if s.layout == LayoutNested {
		rel = identity + "/" + name
	}
	path := s.abs(rel)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return faceauth.Sample{}, fmt.Errorf("failed to create identity folder: %w", err)
	}
	if err := imaging.WriteJPEG(path, face); err != nil {
		return faceauth.Sample{}, err
	}

	row := &models.Sample{Identity: identity, FilePath: rel, Source: s.source}
	if err := s.repo.SaveSample(ctx, row); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			log.WithFields(logFields).Warnf("Datei %s konnte nicht entfernt werden: %v", path, rmErr)
		}
		return faceauth.Sample{}, fmt.Errorf("failed to save catalog entry: %w", err)
	}

	return faceauth.Sample{
		ID:       row.ID,
		Identity: identity,
		Path:     path,
		Image:    face,
	}, nil
}

// Remove löscht Datei und Katalogeintrag. path darf absolut oder relativ
// zum Speicherordner sein, muss aber innerhalb des Ordners liegen.
func (s *Store) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, err := s.rel(path)
	if err != nil {
		return err
	}

	row, err := s.repo.GetSampleByPath(ctx, rel)
	if err != nil {
		return fmt.Errorf("failed to look up sample: %w", err)
	}

	fileErr := os.Remove(s.abs(rel))
	if fileErr != nil && !errors.Is(fileErr, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, fileErr)
	}

	if row == nil {
		if fileErr != nil {
			return fmt.Errorf("%w: %s", ErrSampleNotFound, rel)
		}
		return nil
	}

	if err := s.repo.DeleteSamplesByID(ctx, row.ID); err != nil {
		return fmt.Errorf("failed to delete catalog entry: %w", err)
	}
	log.WithFields(logFields).Infof("Sample %s entfernt", rel)
	return nil
}

// CacheEmbedding speichert einen berechneten Merkmalsvektor samt Modellname im Katalog
func (s *Store) CacheEmbedding(ctx context.Context, sampleID uint, model string, emb faceauth.Embedding) error {
	if model == "" {
		return errors.New("embedding model name is required")
	}
	data, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	return s.repo.UpdateEmbedding(ctx, sampleID, model, datatypes.JSON(data), len(emb))
}

// Close beendet den Lade-Pool
func (s *Store) Close() error {
	s.pool.Shutdown()
	return nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// rel liefert den Pfad relativ zum Speicherordner mit '/' als Trenner
func (s *Store) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the storage folder", ErrSampleNotFound, path)
	}
	return filepath.ToSlash(rel), nil
}
