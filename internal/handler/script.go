package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/script"
)

type ScriptRunner interface {
	Start() (model.ScriptProcess, error)
	Stop(timeout time.Duration) error
	Status() model.ScriptProcess
}

type ScriptHandler struct {
	Scripts ScriptRunner
	Log     *logrus.Entry
}

func (h *ScriptHandler) Start(c *gin.Context) {
	proc, err := h.Scripts.Start()
	switch {
	case errors.Is(err, script.ErrAlreadyRunning):
		fail(c, http.StatusBadRequest, "Script is already running.")
		return
	case errors.Is(err, script.ErrNoCommand):
		fail(c, http.StatusBadRequest, "No script configured.")
		return
	case err != nil:
		h.Log.WithError(err).Error("script start failed")
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Script started successfully.", "data": proc})
}

func (h *ScriptHandler) Stop(c *gin.Context) {
	err := h.Scripts.Stop(5 * time.Second)
	if errors.Is(err, script.ErrNotRunning) {
		fail(c, http.StatusBadRequest, "No script is running.")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Script stopped successfully."})
}

func (h *ScriptHandler) Status(c *gin.Context) {
	proc := h.Scripts.Status()
	ok(c, http.StatusOK, gin.H{"running": proc.Running, "process": proc})
}
