package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/state"
)

type StateHandler struct {
	Store     *state.Store
	Lifecycle Lifecycle
	Log       *logrus.Entry
}

func (h *StateHandler) Snapshot(c *gin.Context) {
	ok(c, http.StatusOK, h.Store.Snapshot())
}

// Reset unlinks WhatsApp and restores every store field to its default,
// including the camera registry.
func (h *StateHandler) Reset(c *gin.Context) {
	if err := h.Lifecycle.Unlink(c.Request.Context()); err != nil {
		h.Log.WithError(err).Warn("unlink during reset failed")
	}
	h.Store.Reset()
	h.Log.Info("state reset")
	ok(c, http.StatusOK, h.Store.Snapshot())
}
