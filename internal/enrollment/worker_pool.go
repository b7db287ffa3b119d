package enrollment

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"faceauth-go/internal/core/models"
	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"

	log "github.com/sirupsen/logrus"
)

// workerPool lädt Referenzbilder parallel von der Festplatte
type workerPool struct {
	root        string
	jobs        chan *loadJob
	workerCount int
	shutdown    chan struct{}
	closeOnce   sync.Once
}

// loadJob ist ein einzelnes zu ladendes Sample
type loadJob struct {
	row      models.Sample
	resultCh chan *loadResult // Individueller Ergebniskanal pro Job
}

type loadResult struct {
	sample faceauth.Sample
	err    error
}

// defaultWorkerCount: 75% der verfügbaren CPUs, mindestens 2
func defaultWorkerCount() int {
	return max(2, (runtime.NumCPU()*3)/4)
}

func newWorkerPool(root string, workerCount int) *workerPool {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount()
	}

	log.WithFields(logFields).Debugf("Initializing sample loader pool with %d workers", workerCount)

	pool := &workerPool{
		root:        root,
		jobs:        make(chan *loadJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *workerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			for {
				select {
				case job := <-p.jobs:
					sample, err := p.load(job.row)

					// resultCh ist gepuffert, der Worker blockiert nie
					job.resultCh <- &loadResult{sample: sample, err: err}

				case <-p.shutdown:
					log.WithFields(logFields).Debugf("Loader worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// load liest ein Sample. Das Bild wird immer dekodiert, ein gespeichertes
// Embedding wird nur zusammen mit seinem Modellnamen übernommen.
func (p *workerPool) load(row models.Sample) (faceauth.Sample, error) {
	sample := faceauth.Sample{
		ID:       row.ID,
		Identity: row.Identity,
		Path:     filepath.Join(p.root, filepath.FromSlash(row.FilePath)),
	}

	img, err := imaging.DecodeFile(sample.Path)
	if err != nil {
		return sample, err
	}
	sample.Image = img

	if row.EmbeddingModel != "" && row.EmbeddingDim > 0 && len(row.Embedding) > 0 {
		var emb faceauth.Embedding
		if err := json.Unmarshal(row.Embedding, &emb); err == nil && len(emb) == row.EmbeddingDim {
			sample.Embedding = emb
			sample.EmbeddingModel = row.EmbeddingModel
		} else {
			log.WithFields(logFields).Warnf("Ungültiges Embedding für %s wird ignoriert", row.FilePath)
		}
	}
	return sample, nil
}

// loadAll lädt alle Zeilen. Das Ergebnis hat dieselbe Reihenfolge wie rows,
// unabhängig davon, in welcher Reihenfolge die Worker fertig werden.
func (p *workerPool) loadAll(ctx context.Context, rows []models.Sample) ([]faceauth.Sample, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	start := time.Now()
	chans := make([]chan *loadResult, len(rows))
	for i := range chans {
		chans[i] = make(chan *loadResult, 1)
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		for i, row := range rows {
			select {
			case p.jobs <- &loadJob{row: row, resultCh: chans[i]}:
			case <-done:
				return
			case <-p.shutdown:
				return
			}
		}
	}()

	samples := make([]faceauth.Sample, len(rows))
	for i, ch := range chans {
		select {
		case res := <-ch:
			if res.err != nil {
				return nil, fmt.Errorf("failed to load sample %s: %w", rows[i].FilePath, res.err)
			}
			samples[i] = res.sample
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.shutdown:
			return nil, fmt.Errorf("sample loader is shut down")
		}
	}

	log.WithFields(logFields).Debugf("%d Samples in %v geladen", len(samples), time.Since(start))
	return samples, nil
}

// Shutdown beendet alle Worker
func (p *workerPool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.shutdown)
	})
}
