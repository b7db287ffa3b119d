package repository

import (
	"context"
	"errors"
	"time"

	"faceauth-go/internal/core/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Sample-Methoden
	ListSamples(ctx context.Context) ([]models.Sample, error)
	GetSampleByPath(ctx context.Context, filePath string) (*models.Sample, error)
	SaveSample(ctx context.Context, sample *models.Sample) error
	DeleteSamplesByID(ctx context.Context, ids ...uint) error
	UpdateEmbedding(ctx context.Context, id uint, model string, embedding datatypes.JSON, dim int) error
	CountIdentities(ctx context.Context) (int64, error)
	ListIdentities(ctx context.Context) ([]models.IdentitySummary, error)

	// AuthAttempt-Methoden
	SaveAttempt(ctx context.Context, attempt *models.AuthAttempt) error
	GetAttempts(ctx context.Context, limit, offset int) ([]models.AuthAttempt, int64, error)
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Statistik-Methoden
	GetStatistics(ctx context.Context) (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Sample-Methoden

// ListSamples liefert alle Samples in Registrierungsreihenfolge
func (r *SQLiteRepository) ListSamples(ctx context.Context) ([]models.Sample, error) {
	var samples []models.Sample
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}

// GetSampleByPath holt ein Sample anhand seines relativen Pfads, nil wenn nicht vorhanden
func (r *SQLiteRepository) GetSampleByPath(ctx context.Context, filePath string) (*models.Sample, error) {
	var sample models.Sample
	result := r.db.WithContext(ctx).Where("file_path = ?", filePath).First(&sample)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sample, nil
}

// SaveSample speichert ein Sample
func (r *SQLiteRepository) SaveSample(ctx context.Context, sample *models.Sample) error {
	return r.db.WithContext(ctx).Save(sample).Error
}

// DeleteSamplesByID löscht Samples endgültig, damit der Pfad erneut vergeben werden kann
func (r *SQLiteRepository) DeleteSamplesByID(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Sample{}, ids).Error
}

// UpdateEmbedding speichert den berechneten Merkmalsvektor eines Samples
func (r *SQLiteRepository) UpdateEmbedding(ctx context.Context, id uint, model string, embedding datatypes.JSON, dim int) error {
	result := r.db.WithContext(ctx).Model(&models.Sample{}).Where("id = ?", id).
		Updates(map[string]any{"embedding": embedding, "embedding_dim": dim, "embedding_model": model})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountIdentities zählt die verschiedenen Identitäten
func (r *SQLiteRepository) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Sample{}).Distinct("identity").Count(&count).Error
	return count, err
}

// ListIdentities liefert jede Identität mit ihrer Sample-Anzahl, in Registrierungsreihenfolge
func (r *SQLiteRepository) ListIdentities(ctx context.Context) ([]models.IdentitySummary, error) {
	var identities []models.IdentitySummary
	err := r.db.WithContext(ctx).Model(&models.Sample{}).
		Select("identity AS name, COUNT(*) AS samples").
		Group("identity").
		Order("MIN(id) ASC").
		Scan(&identities).Error
	return identities, err
}

// AuthAttempt-Methoden

// SaveAttempt speichert einen Authentifizierungsversuch
func (r *SQLiteRepository) SaveAttempt(ctx context.Context, attempt *models.AuthAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// GetAttempts holt Versuche mit Pagination, neueste zuerst
func (r *SQLiteRepository) GetAttempts(ctx context.Context, limit, offset int) ([]models.AuthAttempt, int64, error) {
	var attempts []models.AuthAttempt
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.AuthAttempt{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&attempts)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return attempts, total, nil
}

// DeleteAttemptsBefore löscht alle Versuche, die vor cutoff angelegt wurden
func (r *SQLiteRepository) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().Where("created_at < ?", cutoff).Delete(&models.AuthAttempt{})
	return result.RowsAffected, result.Error
}

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *SQLiteRepository) GetStatistics(ctx context.Context) (models.Statistics, error) {
	var stats models.Statistics
	tx := r.db.WithContext(ctx)

	if err := tx.Model(&models.Sample{}).Count(&stats.Samples).Error; err != nil {
		return stats, err
	}

	identities, err := r.CountIdentities(ctx)
	if err != nil {
		return stats, err
	}
	stats.Identities = identities

	if err := tx.Model(&models.AuthAttempt{}).Count(&stats.Attempts).Error; err != nil {
		return stats, err
	}

	if err := tx.Model(&models.AuthAttempt{}).Where("accepted = ?", true).
		Count(&stats.AcceptedAttempts).Error; err != nil {
		return stats, err
	}

	var latest models.AuthAttempt
	result := tx.Order("created_at DESC").Limit(1).Find(&latest)
	if result.Error != nil {
		return stats, result.Error
	}
	if result.RowsAffected > 0 {
		stats.LatestAttempt = latest.CreatedAt
	}

	return stats, nil
}
