// Package server baut den gin-Router mit Middleware und API-Routen und
// betreibt den HTTP-Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"faceauth-go/config"
	"faceauth-go/internal/api/handlers"
	"faceauth-go/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "server",
}

// shutdownTimeout begrenzt das Warten auf laufende Anfragen beim Beenden
const shutdownTimeout = 10 * time.Second

// Server ist der HTTP-Server der API
type Server struct {
	cfg    *config.Config
	router *gin.Engine
}

// New erstellt den Router und registriert die API-Routen unter /api
func New(cfg *config.Config, api *handlers.APIHandler) (*Server, error) {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	translator, err := middleware.NewTranslator(middleware.I18nConfig{
		DefaultLanguage: cfg.I18n.DefaultLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	if len(cfg.Server.AllowedOrigins) == 0 || cfg.Server.AllowedOrigins[0] == "*" {
		// Mit Credentials ist "*" nicht erlaubt, daher den Origin spiegeln
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(cfg.Session.Name, store))
	router.Use(middleware.I18n(translator))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.RegisterRoutes(router.Group("/api"))

	return &Server{cfg: cfg, router: router}, nil
}

// Handler liefert den Router, z.B. für httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run startet den Server und fährt ihn herunter, sobald ctx beendet ist
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logFields).Infof("Starte Server auf %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.WithFields(logFields).Info("Server wird beendet...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.WithFields(logFields).Info("Server gestoppt")
	return nil
}
