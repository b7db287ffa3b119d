package handlers

import (
	"net/http"

	"faceauth-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetSystemStats liefert Laufzeit- und CPU-Statistiken
func (h *APIHandler) GetSystemStats(c *gin.Context) {
	workers := 0
	if h.store != nil {
		workers = h.store.Workers()
	}
	c.JSON(http.StatusOK, utils.GetSystemStats(workers))
}
