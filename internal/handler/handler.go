package handler

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Lifecycle is the part of the WhatsApp driver the HTTP and WebSocket
// surfaces call into.
type Lifecycle interface {
	Initialize(ctx context.Context, sessionID string) error
	Unlink(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Authorize(ctx context.Context, sessionID string) error
	Unauthorize(ctx context.Context) error
	SetForwarding(on bool)
	Forwarding() bool
	QR() string
	HasSessionData(sessionID string) bool
}

func ok(c *gin.Context, status int, data any) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}
