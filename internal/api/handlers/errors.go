package handlers

import (
	"errors"
	"net/http"

	"faceauth-go/internal/api/middleware"
	"faceauth-go/internal/faceauth"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// errorResponse ist der Body aller Fehlerantworten
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// respondError bildet Fehler der Engine auf HTTP-Status und übersetzte Meldungen ab
func respondError(c *gin.Context, err error) {
	switch {
	// Trainingsfehler zuerst: ihre Ursache kann ein Bildfehler eines Samples sein
	case errors.Is(err, faceauth.ErrTraining):
		respondKey(c, http.StatusBadRequest, "training", "error.training", map[string]any{"Detail": err.Error()})
	case errors.Is(err, faceauth.ErrEmptyFrame):
		respondKey(c, http.StatusUnprocessableEntity, "empty_frame", "error.empty_frame", nil)
	case errors.Is(err, faceauth.ErrNoFaceDetected):
		respondKey(c, http.StatusUnprocessableEntity, "no_face", "error.no_face", nil)
	case errors.Is(err, faceauth.ErrReadTimeout):
		respondKey(c, http.StatusUnprocessableEntity, "read_timeout", "error.read_timeout", nil)
	case errors.Is(err, faceauth.ErrNotTrained):
		respondKey(c, http.StatusConflict, "not_trained", "error.not_trained", nil)
	case errors.Is(err, faceauth.ErrShapeMismatch):
		respondKey(c, http.StatusBadRequest, "training", "error.training", map[string]any{"Detail": err.Error()})
	case errors.Is(err, faceauth.ErrInvalidIdentity):
		respondKey(c, http.StatusBadRequest, "invalid_identity", "error.invalid_identity", nil)
	case isNotFound(err):
		respondKey(c, http.StatusNotFound, "not_found", "error.sample_not_found", nil)
	default:
		log.WithFields(logFields).Errorf("Interner Fehler bei %s %s: %v", c.Request.Method, c.FullPath(), err)
		respondKey(c, http.StatusInternalServerError, "internal", "error.internal", nil)
	}
}

func respondKey(c *gin.Context, status int, code, key string, data map[string]any) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:  code,
		Error: middleware.T(c, key, data),
	})
}
