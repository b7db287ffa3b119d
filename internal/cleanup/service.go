// Package cleanup löscht protokollierte Authentifizierungsversuche nach Ablauf
// der Aufbewahrungsfrist.
package cleanup

import (
	"context"
	"sync"
	"time"

	"faceauth-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "cleanup",
}

// Service bereinigt das Audit-Log periodisch
type Service struct {
	repo          repository.Repository
	retentionDays int
	checkInterval time.Duration
	now           func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService erstellt einen Service. Bei retentionDays <= 0 ist die Bereinigung
// deaktiviert und es wird nil zurückgegeben; alle Methoden akzeptieren nil.
func NewService(repo repository.Repository, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.WithFields(logFields).Info("Automatische Bereinigung deaktiviert (retention_days <= 0)")
		return nil
	}
	if repo == nil {
		log.WithFields(logFields).Error("Bereinigung nicht möglich: kein Repository")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	log.WithFields(logFields).Infof("Bereinigung aktiv: %d Tage Aufbewahrung, Intervall %s", retentionDays, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Start führt sofort einen Durchlauf aus und danach einen pro Intervall
func (s *Service) Start() {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.checkInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.RunCleanupCycle(context.Background())
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle(context.Background())
			case <-s.stopChan:
				log.WithFields(logFields).Info("Bereinigung gestoppt")
				return
			}
		}
	}()
}

// Stop beendet die Hintergrundroutine und wartet auf sie
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// RunCleanupCycle löscht alle Versuche, die älter als die Aufbewahrungsfrist sind
func (s *Service) RunCleanupCycle(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteAttemptsBefore(ctx, cutoff)
	if err != nil {
		log.WithFields(logFields).Errorf("Fehler beim Löschen alter Versuche: %v", err)
		return 0, err
	}

	if deleted > 0 {
		log.WithFields(logFields).Infof("%d Versuch(e) vor %s gelöscht", deleted, cutoff.Format(time.RFC3339))
	} else {
		log.WithFields(logFields).Debug("Keine alten Versuche gefunden")
	}
	return deleted, nil
}
