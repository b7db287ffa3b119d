package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"faceauth-go/config"
	"faceauth-go/internal/core/models"
	"faceauth-go/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	gdb, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	return NewSQLiteRepository(gdb)
}

func TestSamples_OrderAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, s := range []struct{ identity, path string }{
		{"bob", "bob/face_bob_1.jpg"},
		{"alice", "alice/face_alice_1.jpg"},
		{"bob", "bob/face_bob_2.jpg"},
	} {
		require.NoError(t, repo.SaveSample(ctx, &models.Sample{Identity: s.identity, FilePath: s.path}))
	}

	samples, err := repo.ListSamples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "bob/face_bob_1.jpg", samples[0].FilePath)
	assert.Equal(t, "alice/face_alice_1.jpg", samples[1].FilePath)
	assert.Less(t, samples[0].ID, samples[1].ID)

	count, err := repo.CountIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	found, err := repo.GetSampleByPath(ctx, "alice/face_alice_1.jpg")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.Identity)

	require.NoError(t, repo.DeleteSamplesByID(ctx, found.ID))
	missing, err := repo.GetSampleByPath(ctx, "alice/face_alice_1.jpg")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// endgültig gelöscht: der Pfad kann neu vergeben werden
	require.NoError(t, repo.SaveSample(ctx, &models.Sample{Identity: "alice", FilePath: "alice/face_alice_1.jpg"}))
}

func TestListIdentities_EnrollmentOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, s := range []struct{ identity, path string }{
		{"carol", "carol/face_carol_1.jpg"},
		{"alice", "alice/face_alice_1.jpg"},
		{"carol", "carol/face_carol_2.jpg"},
	} {
		require.NoError(t, repo.SaveSample(ctx, &models.Sample{Identity: s.identity, FilePath: s.path}))
	}

	identities, err := repo.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.IdentitySummary{
		{Name: "carol", Samples: 2},
		{Name: "alice", Samples: 1},
	}, identities)
}

func TestSamples_UpdateEmbedding(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	s := &models.Sample{Identity: "alice", FilePath: "alice/a.jpg"}
	require.NoError(t, repo.SaveSample(ctx, s))

	require.NoError(t, repo.UpdateEmbedding(ctx, s.ID, "dlib", datatypes.JSON(`[0.5,1]`), 2))

	got, err := repo.GetSampleByPath(ctx, "alice/a.jpg")
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5,1]`, string(got.Embedding))
	assert.Equal(t, 2, got.EmbeddingDim)
	assert.Equal(t, "dlib", got.EmbeddingModel)

	assert.Error(t, repo.UpdateEmbedding(ctx, 999, "dlib", datatypes.JSON(`[]`), 0))
}

func TestAttempts_StatisticsAndCleanup(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	old := &models.AuthAttempt{Claim: "alice", Identity: "alice", Accepted: true, Source: "login"}
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.SaveAttempt(ctx, old))
	require.NoError(t, repo.SaveAttempt(ctx, &models.AuthAttempt{Claim: "bob", Identity: "alice", Source: "login"}))
	require.NoError(t, repo.SaveAttempt(ctx, &models.AuthAttempt{Identity: "bob", Accepted: true, Source: "api"}))

	stats, err := repo.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(2), stats.AcceptedAttempts)
	assert.False(t, stats.LatestAttempt.IsZero())

	attempts, total, err := repo.GetAttempts(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, attempts, 2)

	deleted, err := repo.DeleteAttemptsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err = repo.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Attempts)
}
