package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"faceauth-go/config"
	"faceauth-go/internal/api/handlers"
	"faceauth-go/internal/db"
	"faceauth-go/internal/db/repository"
	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"*"}, MaxUploadMB: 5},
		DB:      config.DBConfig{File: filepath.Join(dir, "faceauth.db")},
		Storage: config.StorageConfig{Folder: filepath.Join(dir, "face_db"), Layout: "nested"},
		Session: config.SessionConfig{Name: "faceauth_session", Secret: "secret", MaxAge: time.Hour},
		I18n:    config.I18nConfig{DefaultLanguage: "en"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)

	gdb, err := db.Open(cfg.DB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	repo := repository.NewSQLiteRepository(gdb)

	store, err := enrollment.New(repo, enrollment.Options{Folder: cfg.Storage.Folder})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := faceauth.NewEngine(nil, template.NewClassifier(template.DefaultFaceSize), store, faceauth.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, engine.Initialize(context.Background()))

	srv, err := New(cfg, handlers.NewAPIHandler(engine, store, repo, nil, cfg.Server.MaxUploadMB))
	require.NoError(t, err)
	return srv
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"untrained"`)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_CORSReflectsOrigin(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://example.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestNew_UnknownLanguage(t *testing.T) {
	cfg := testConfig(t)
	cfg.I18n.DefaultLanguage = "xx"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
