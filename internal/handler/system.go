package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type SystemHandler struct {
	Version string
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *SystemHandler) VersionInfo(c *gin.Context) {
	v := h.Version
	if v == "" {
		v = "dev"
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}
