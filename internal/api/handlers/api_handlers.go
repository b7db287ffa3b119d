package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"faceauth-go/internal/core/models"
	"faceauth-go/internal/db/repository"
	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"
	"faceauth-go/internal/integrations/mqtt"
	"faceauth-go/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var logFields = log.Fields{
	"component": "api",
}

// Quellen eines protokollierten Versuchs
const (
	SourceRecognize = "api"
	SourceLogin     = "login"
)

// EventPublisher veröffentlicht Authentifizierungsereignisse (MQTT)
type EventPublisher interface {
	PublishAuthEvent(ev mqtt.AuthEvent) error
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	engine         *faceauth.Engine
	store          *enrollment.Store
	repo           repository.Repository
	hub            *sse.Hub
	publishers     []EventPublisher
	maxUploadBytes int64
}

// NewAPIHandler erstellt einen neuen API-Handler. hub darf nil sein; ist er
// gesetzt, erhält er alle Ereignisse zusätzlich zu publishers.
func NewAPIHandler(engine *faceauth.Engine, store *enrollment.Store, repo repository.Repository, hub *sse.Hub, maxUploadMB int, publishers ...EventPublisher) *APIHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	if hub != nil {
		publishers = append(publishers, hub)
	}
	return &APIHandler{
		engine:         engine,
		store:          store,
		repo:           repo,
		hub:            hub,
		publishers:     publishers,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Status
	router.GET("/status", h.GetStatus)
	router.GET("/statistics", h.GetStatistics)
	router.GET("/system", h.GetSystemStats)

	// Identitäten und Referenzbilder
	router.GET("/identities", h.ListIdentities)
	router.POST("/identities/:name/samples", h.AddSample)
	router.DELETE("/samples", h.DeleteSample)

	// Training und Erkennung
	router.POST("/train", h.Train)
	router.POST("/recognize", h.Recognize)
	router.GET("/attempts", h.ListAttempts)
	router.GET("/events", h.Events)

	// Gesichts-Login
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)
	router.GET("/me", h.Me)
}

// GetStatus liefert Zustand und Variante der Engine
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	opts := h.engine.Options()
	c.JSON(http.StatusOK, gin.H{
		"state":              h.engine.State(),
		"variant":            h.engine.Variant(),
		"identities":         h.engine.Identities(),
		"samples":            stats.Samples,
		"distance_threshold": opts.DistanceThreshold,
		"min_similarity":     opts.MinSimilarity,
	})
}

// GetStatistics liefert Zähler über Samples und Versuche
func (h *APIHandler) GetStatistics(c *gin.Context) {
	stats, err := h.repo.GetStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListIdentities liefert alle registrierten Identitäten mit Sample-Anzahl
func (h *APIHandler) ListIdentities(c *gin.Context) {
	identities, err := h.repo.ListIdentities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identities": identities,
		"trained":    h.engine.Identities(),
	})
}

// AddSample registriert ein hochgeladenes Bild für eine Identität.
// Mit cropped=true wird das Bild als bereits zugeschnittenes Gesicht gespeichert.
func (h *APIHandler) AddSample(c *gin.Context) {
	name := c.Param("name")
	if err := faceauth.ValidateIdentity(name); err != nil {
		respondError(c, err)
		return
	}
	if !h.limitBody(c) {
		return
	}

	img, ok := h.readImage(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		path string
		err  error
	)
	if c.PostForm("cropped") == "true" {
		path, err = h.engine.EnrollFace(ctx, name, img)
	} else {
		path, err = h.engine.Enroll(ctx, name, img)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	log.WithFields(logFields).Infof("Referenzbild für '%s' hinzugefügt", name)
	c.JSON(http.StatusCreated, gin.H{
		"identity": name,
		"path":     path,
		"state":    h.engine.State(),
	})
}

type deleteSampleRequest struct {
	Path string `json:"path" binding:"required"`
}

// DeleteSample entfernt ein Referenzbild
func (h *APIHandler) DeleteSample(c *gin.Context) {
	var req deleteSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondKey(c, http.StatusBadRequest, "invalid_request", "error.invalid_request", nil)
		return
	}

	if err := h.engine.Remove(c.Request.Context(), req.Path); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.Path, "state": h.engine.State()})
}

// Train trainiert das Modell aus dem Bestand; ?force=true trainiert auch ein aktuelles Modell neu
func (h *APIHandler) Train(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	var err error
	if c.Query("force") == "true" {
		err = h.engine.Retrain(ctx)
	} else {
		err = h.engine.Train(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":      h.engine.State(),
		"identities": h.engine.Identities(),
		"duration":   time.Since(start).String(),
	})
}

// Recognize erkennt das Gesicht in einem hochgeladenen Bild
func (h *APIHandler) Recognize(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}
	opts, ok := h.thresholdOption(c)
	if !ok {
		return
	}
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	res, err := h.engine.Recognize(c.Request.Context(), img, opts...)
	h.recordAttempt(c.Request.Context(), SourceRecognize, "", res, err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListAttempts liefert das Protokoll der Versuche, neueste zuerst
func (h *APIHandler) ListAttempts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	attempts, total, err := h.repo.GetAttempts(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// formOverhead ist der Platz für Formularfelder und Multipart-Header neben dem Bild
const formOverhead = 64 << 10

// limitBody begrenzt den Request-Body, bevor das Formular gelesen wird.
// Bei false ist die Antwort bereits geschrieben.
func (h *APIHandler) limitBody(c *gin.Context) bool {
	limit := h.maxUploadBytes + formOverhead
	if c.Request.ContentLength > limit {
		respondKey(c, http.StatusRequestEntityTooLarge, "too_large", "error.invalid_image", nil)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return true
}

// readImage liest das Multipart-Feld "image"; bei Fehlern ist die Antwort bereits geschrieben
func (h *APIHandler) readImage(c *gin.Context) (image.Image, bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondKey(c, http.StatusRequestEntityTooLarge, "too_large", "error.invalid_image", nil)
			return nil, false
		}
		log.WithFields(logFields).Debugf("Kein Bild im Formular: %v", err)
		respondKey(c, http.StatusBadRequest, "invalid_image", "error.invalid_image", nil)
		return nil, false
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		respondKey(c, http.StatusRequestEntityTooLarge, "too_large", "error.invalid_image", nil)
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondKey(c, http.StatusBadRequest, "invalid_image", "error.invalid_image", nil)
		return nil, false
	}

	img, err := imaging.Decode(data)
	if err != nil {
		log.WithFields(logFields).Debugf("Bild konnte nicht dekodiert werden: %v", err)
		respondKey(c, http.StatusBadRequest, "invalid_image", "error.invalid_image", nil)
		return nil, false
	}
	return img, true
}

// validThreshold prüft einen Schwellenwert für die Variante: eine positive
// Distanz bei der Klassifikation, eine Kosinus-Ähnlichkeit in [-1, 1] bei Embeddings.
func validThreshold(variant faceauth.Variant, t float64) bool {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return false
	}
	if variant == faceauth.VariantEmbedding {
		return t >= -1 && t <= 1
	}
	return t > 0
}

// thresholdOption liest den optionalen Formularwert "threshold"
func (h *APIHandler) thresholdOption(c *gin.Context) ([]faceauth.RecognizeOption, bool) {
	raw := c.PostForm("threshold")
	if raw == "" {
		return nil, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || !validThreshold(h.engine.Variant(), t) {
		respondKey(c, http.StatusBadRequest, "invalid_threshold", "error.invalid_threshold", nil)
		return nil, false
	}
	return []faceauth.RecognizeOption{faceauth.WithThreshold(t)}, true
}

// recordAttempt protokolliert einen Versuch und veröffentlicht ihn per MQTT.
// Fehler werden nur geloggt, die Antwort an den Client hängt nicht davon ab.
func (h *APIHandler) recordAttempt(ctx context.Context, source, claim string, res faceauth.Result, recErr error) {
	attempt := &models.AuthAttempt{
		Claim:    claim,
		Identity: res.Identity,
		Accepted: res.Accepted && recErr == nil,
		Score:    res.Score,
		Label:    res.Label,
		Variant:  string(h.engine.Variant()),
		Source:   source,
	}
	if recErr != nil {
		attempt.Error = recErr.Error()
		attempt.Details = datatypes.JSON(fmt.Sprintf(`{"recoverable":%t}`, faceauth.IsRecoverable(recErr)))
	}

	if err := h.repo.SaveAttempt(ctx, attempt); err != nil {
		log.WithFields(logFields).Errorf("Versuch konnte nicht gespeichert werden: %v", err)
	}

	ev := mqtt.AuthEvent{
		Time:     time.Now(),
		Source:   source,
		Claim:    claim,
		Identity: attempt.Identity,
		Accepted: attempt.Accepted,
		Score:    attempt.Score,
		Variant:  attempt.Variant,
		Error:    attempt.Error,
	}
	for _, p := range h.publishers {
		if err := p.PublishAuthEvent(ev); err != nil {
			log.WithFields(logFields).Warnf("AuthEvent konnte nicht veröffentlicht werden: %v", err)
		}
	}
}

// Events streamt AuthEvents als Server-Sent Events
func (h *APIHandler) Events(c *gin.Context) {
	if h.hub == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	client := sse.NewClient()
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("auth", string(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// isNotFound fasst die Nicht-gefunden-Fehler der Schichten zusammen
func isNotFound(err error) bool {
	return errors.Is(err, enrollment.ErrSampleNotFound)
}
