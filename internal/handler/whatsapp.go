package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"frigate-wa-bridge/internal/state"
)

type WhatsAppHandler struct {
	Lifecycle Lifecycle
	Store     *state.Store
	Log       *logrus.Entry
}

func (h *WhatsAppHandler) QR(c *gin.Context) {
	qr := h.Lifecycle.QR()
	if qr == "" {
		fail(c, http.StatusNotFound, "QR code not available")
		return
	}
	ok(c, http.StatusOK, gin.H{"qr": qr})
}

// QRImage renders the pending pairing code as a PNG. size is clamped to
// 128..1024 pixels.
func (h *WhatsAppHandler) QRImage(c *gin.Context) {
	qr := h.Lifecycle.QR()
	if qr == "" {
		fail(c, http.StatusNotFound, "QR code not available")
		return
	}
	size := 256
	if raw, found := c.GetQuery("size"); found {
		if n, err := parseInt(raw); err == nil {
			size = min(max(n, 128), 1024)
		}
	}
	png, err := qrcode.Encode(qr, qrcode.Medium, size)
	if err != nil {
		h.Log.WithError(err).Error("qr encode failed")
		fail(c, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *WhatsAppHandler) Status(c *gin.Context) {
	snap := h.Store.Snapshot()
	ok(c, http.StatusOK, gin.H{
		"connected":  snap.Connected,
		"account":    snap.Account,
		"state":      snap.State,
		"forwarding": h.Lifecycle.Forwarding(),
	})
}

func (h *WhatsAppHandler) SubscriptionStatus(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"subscribed":  h.Store.IsSubscribed(),
		"subscribing": h.Store.IsSubscribing(),
	})
}

func (h *WhatsAppHandler) Groups(c *gin.Context) {
	ok(c, http.StatusOK, h.Store.Groups())
}

func (h *WhatsAppHandler) Unlink(c *gin.Context) {
	if err := h.Lifecycle.Unlink(c.Request.Context()); err != nil {
		h.Log.WithError(err).Error("unlink failed")
		fail(c, http.StatusInternalServerError, "Failed to unlink WhatsApp")
		return
	}
	h.Log.Info("whatsapp unlinked")
	ok(c, http.StatusOK, nil)
}
