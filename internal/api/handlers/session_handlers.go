package handlers

import (
	"net/http"
	"time"

	"faceauth-go/internal/api/middleware"
	"faceauth-go/internal/faceauth"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Schlüssel der Login-Session
const (
	sessionIdentityKey = "identity"
	sessionLoginAtKey  = "login_at"
)

// Login prüft das hochgeladene Gesicht gegen die beanspruchte Identität und
// legt bei Erfolg eine Session an
func (h *APIHandler) Login(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}
	claim := c.PostForm("identity")
	if err := faceauth.ValidateIdentity(claim); err != nil {
		respondError(c, err)
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

	res, err := h.engine.Verify(c.Request.Context(), claim, img, opts...)
	h.recordAttempt(c.Request.Context(), SourceLogin, claim, res, err)
	if err != nil {
		respondError(c, err)
		return
	}

	if !res.Accepted {
		log.WithFields(logFields).Infof("Login für '%s' abgelehnt (erkannt: %q, score %.4f)", claim, res.Identity, res.Score)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":   "rejected",
			"error":  middleware.T(c, "login.rejected", map[string]any{"Identity": claim}),
			"result": res,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionIdentityKey, claim)
	session.Set(sessionLoginAtKey, time.Now().Unix())
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}

	log.WithFields(logFields).Infof("Login für '%s' erfolgreich", claim)
	c.JSON(http.StatusOK, gin.H{
		"message":  middleware.T(c, "login.success", map[string]any{"Identity": claim}),
		"identity": claim,
		"result":   res,
	})
}

// Logout beendet die Session. Die Sprache bleibt erhalten.
func (h *APIHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionIdentityKey)
	session.Delete(sessionLoginAtKey)
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": middleware.T(c, "logout.success", nil)})
}

// Me liefert die angemeldete Identität
func (h *APIHandler) Me(c *gin.Context) {
	session := sessions.Default(c)
	identity, ok := session.Get(sessionIdentityKey).(string)
	if !ok || identity == "" {
		respondKey(c, http.StatusUnauthorized, "not_logged_in", "error.not_logged_in", nil)
		return
	}

	resp := gin.H{"identity": identity}
	if loginAt, ok := session.Get(sessionLoginAtKey).(int64); ok {
		resp["login_at"] = time.Unix(loginAt, 0).UTC()
	}
	c.JSON(http.StatusOK, resp)
}
