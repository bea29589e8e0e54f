package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/camera"
)

type CameraHandler struct {
	Cameras *camera.Service
	Log     *logrus.Entry
}

type assignBody struct {
	Camera string `json:"camera"`
	Group  string `json:"group"`
}

func (h *CameraHandler) List(c *gin.Context) {
	cameras := h.Cameras.List()
	if len(cameras) == 0 {
		fail(c, http.StatusNotFound, "No cameras found")
		return
	}
	ok(c, http.StatusOK, cameras)
}

func (h *CameraHandler) Mappings(c *gin.Context) {
	ok(c, http.StatusOK, h.Cameras.Mappings())
}

func (h *CameraHandler) Assign(c *gin.Context) {
	var body assignBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Camera == "" || body.Group == "" {
		fail(c, http.StatusBadRequest, "Camera and group are required")
		return
	}
	if err := h.Cameras.Assign(body.Camera, body.Group); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, camera.ErrUnknownCamera):
			status = http.StatusNotFound
		case errors.Is(err, camera.ErrInvalidInput):
			status = http.StatusBadRequest
		}
		fail(c, status, err.Error())
		return
	}
	ok(c, http.StatusOK, nil)
}
